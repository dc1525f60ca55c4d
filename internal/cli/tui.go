package cli

import (
	"log/slog"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/studio-pratiche/internal/app"
	appsync "github.com/nhle/studio-pratiche/internal/sync"
)

func newTUICmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, a)
		},
	}
}

func runTUI(cmd *cobra.Command, a *App) error {
	// The alternate screen owns the terminal: logs go to a file.
	logPath := filepath.Join(filepath.Dir(a.ConfigPath), "studio.log")
	if f, err := tea.LogToFile(logPath, "studio"); err == nil {
		defer f.Close()
		a.Logger = slog.New(slog.NewTextHandler(f, nil))
	}

	svc, closeFn, err := a.services(cmd.Context())
	if err != nil {
		return writeErr(cmd, err)
	}
	defer closeFn()

	if svc.Manager != nil {
		svc.Manager.Start()
		defer svc.Manager.Stop()
	}

	cal := a.Config.Calendar
	poller := appsync.NewPoller(appsync.PollerOptions{
		Repo:          svc.Store,
		Notifications: svc.Store,
		Editor:        svc.Editor,
		Backend:       svc.Backend,
		CalendarID:    cal.CalendarID,
		Interval:      time.Duration(cal.PollIntervalSec) * time.Second,
		Window:        time.Duration(cal.PollWindowDays) * 24 * time.Hour,
		Logger:        a.Logger,
	})

	root := app.New(app.Services{
		Repo:          svc.Store,
		Notifications: svc.Store,
		Editor:        svc.Editor,
		Reconciler:    svc.Reconciler,
		Poller:        poller,
		Agencies:      a.Config.Agencies,
		Logger:        a.Logger,
	})

	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	poller.Stop()
	return err
}
