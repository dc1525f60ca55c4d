package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/studio-pratiche/internal/credential"
)

var errNoKeyring = errors.New("keyring unavailable: the calendar grant cannot be stored")

func newCalendarCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Manage the calendar connection",
	}
	cmd.AddCommand(newCalendarConnectCmd(app))
	cmd.AddCommand(newCalendarStatusCmd(app))
	cmd.AddCommand(newCalendarDisconnectCmd(app))
	return cmd
}

func newCalendarConnectCmd(app *App) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Authorize access to the calendar in the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Config.Calendar.ClientID == "" {
				return writeErr(cmd, errors.New("calendar.client_id is not configured"))
			}
			mgr := app.manager()
			if mgr == nil {
				return writeErr(cmd, errNoKeyring)
			}
			tok, err := mgr.Connect(cmd.Context(), account)
			if err != nil {
				return writeErr(cmd, err)
			}
			if app.JSON {
				return writeJSON(cmd, map[string]any{"email": tok.UserEmail, "expiresAt": tok.ExpiresAt})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Calendario collegato: %s\n", tok.UserEmail)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account email to preselect on the consent page")
	return cmd
}

func newCalendarStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the calendar is connected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := app.manager()
			status := map[string]any{"connected": false}
			if mgr != nil && mgr.HasGrant() {
				// GetToken refreshes a lapsed access token.
				tok := mgr.GetToken(cmd.Context())
				status["connected"] = true
				if tok != nil {
					status["email"] = tok.UserEmail
					status["expiresAt"] = tok.ExpiresAt
				}
				status["tokenValid"] = mgr.IsAuthenticated()
			}
			if app.JSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			if status["connected"] != true {
				fmt.Fprintln(out, "Calendario non collegato. Usa: studio calendar connect")
				return nil
			}
			fmt.Fprintf(out, "Calendario collegato: %v\n", status["email"])
			if status["tokenValid"] != true {
				fmt.Fprintln(out, "Token scaduto e rinnovo non riuscito: riprova o usa studio calendar connect")
			} else if exp, ok := status["expiresAt"].(time.Time); ok {
				fmt.Fprintf(out, "Token valido fino a %s\n", exp.Local().Format("02/01/2006 15:04"))
			}
			return nil
		},
	}
}

func newCalendarDisconnectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the calendar grant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := app.manager()
			if mgr == nil {
				return writeErr(cmd, errNoKeyring)
			}
			if err := mgr.Disconnect(); err != nil && !errors.Is(err, credential.ErrNotConnected) {
				return writeErr(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Calendario scollegato")
			return nil
		},
	}
}
