package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nhle/studio-pratiche/internal/model"
)

// App carries the global flags and the state shared by the subcommands.
type App struct {
	ConfigPath string
	EnvFile    string
	JSON       bool
	Verbose    bool

	Config *model.AppConfig
	Logger *slog.Logger

	// Services overrides the runtime wiring; tests use it to inject fakes.
	Services *Services
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "studio",
		Short:        "Dashboard delle pratiche dello studio",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive dashboard
  studio

  # Scriptable commands
  studio pratiche list --stato in_corso
  studio pratiche new --cliente "Rossi Mario" --agenzia Tecnocasa

  # Connect the calendar
  studio calendar connect
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.load()
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("STUDIO_CONFIG", model.DefaultConfigPath()), "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&app.EnvFile, "env-file", ".env", "Dotenv file loaded before the config")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "Print JSON instead of tables")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Debug logging")

	cmd.AddCommand(newTUICmd(app))
	cmd.AddCommand(newPraticheCmd(app))
	cmd.AddCommand(newCalendarCmd(app))
	cmd.AddCommand(newProxyCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd
}

// load reads the dotenv file and the config. Variables already set in the
// environment win over the dotenv file.
func (app *App) load() error {
	if app.EnvFile != "" {
		if err := godotenv.Load(app.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", app.EnvFile, err)
		}
	}

	level := slog.LevelInfo
	if app.Verbose {
		level = slog.LevelDebug
	}
	if app.Logger == nil {
		app.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	if app.Config == nil {
		cfg, err := model.LoadConfig(app.ConfigPath)
		if err != nil {
			return err
		}
		app.Config = cfg
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// writeJSON prints v as indented JSON.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
