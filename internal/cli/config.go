package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/studio-pratiche/internal/model"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(app))
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigAgencyCmd(app))
	return cmd
}

func newConfigInitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the current configuration (with defaults) to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := model.SaveConfig(app.ConfigPath, app.Config); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configurazione scritta in %s\n", app.ConfigPath)
			return nil
		},
	}
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *app.Config
			if cfg.Calendar.ClientSecret != "" {
				cfg.Calendar.ClientSecret = "********"
			}
			if app.JSON {
				return writeJSON(cmd, cfg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store:     %s %s\n", cfg.Store.Driver, storeTarget(cfg.Store))
			fmt.Fprintf(out, "calendar:  %s (client %s)\n", cfg.Calendar.CalendarID, orNone(cfg.Calendar.ClientID))
			fmt.Fprintf(out, "proxy:     %s -> %s\n", cfg.Proxy.Addr, cfg.Proxy.UpstreamURL)
			fmt.Fprintf(out, "agenzie:   %s\n", orNone(strings.Join(cfg.Agencies, ", ")))
			return nil
		},
	}
}

func newConfigAgencyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agenzia",
		Aliases: []string{"agency"},
		Short:   "Manage the known agencies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <nome>",
		Short: "Add an agency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return writeErr(cmd, fmt.Errorf("agency name is required"))
			}
			if slices.Contains(app.Config.Agencies, name) {
				fmt.Fprintf(cmd.OutOrStdout(), "Agenzia %s già presente\n", name)
				return nil
			}
			app.Config.Agencies = append(app.Config.Agencies, name)
			if err := model.SaveConfig(app.ConfigPath, app.Config); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Aggiunta agenzia %s\n", name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <nome>",
		Short: "Remove an agency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i := slices.Index(app.Config.Agencies, args[0])
			if i < 0 {
				return writeErr(cmd, fmt.Errorf("agency %q not found", args[0]))
			}
			app.Config.Agencies = slices.Delete(app.Config.Agencies, i, i+1)
			if err := model.SaveConfig(app.ConfigPath, app.Config); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rimossa agenzia %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func storeTarget(s model.StoreConfig) string {
	if s.Driver == "firestore" {
		return s.FirestoreProject + "/" + s.Collection
	}
	return s.Path
}

func orNone(s string) string {
	if s == "" {
		return "(nessuno)"
	}
	return s
}
