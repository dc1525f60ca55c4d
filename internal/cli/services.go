package cli

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"github.com/nhle/studio-pratiche/internal/calendar"
	"github.com/nhle/studio-pratiche/internal/credential"
	"github.com/nhle/studio-pratiche/internal/store"
	appsync "github.com/nhle/studio-pratiche/internal/sync"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// Services is the runtime wiring shared by the subcommands.
type Services struct {
	Store      store.Store
	Editor     *workflow.Editor
	Manager    *credential.Manager
	Backend    calendar.Backend // nil while the calendar is not connected
	Reconciler *appsync.Reconciler
}

// services opens the store and builds the calendar stack. The returned
// function releases what was opened.
func (app *App) services(ctx context.Context) (*Services, func(), error) {
	if app.Services != nil {
		return app.Services, func() {}, nil
	}

	st, err := store.Open(ctx, app.Config.Store, app.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	svc := &Services{Store: st}
	svc.Editor = workflow.NewEditor(st, app.Logger)
	svc.Manager = app.manager()
	svc.Backend = calendarBackend(svc.Manager, app.Config.Calendar.BaseURL)
	svc.Reconciler = appsync.NewReconciler(svc.Editor, svc.Backend, app.Config.Calendar.CalendarID, app.Logger)

	closeFn := func() {
		if err := st.Close(); err != nil {
			app.Logger.Warn("closing store", "error", err)
		}
	}
	return svc, closeFn, nil
}

// calendarBackend returns a client whenever a refreshable grant is held,
// even if its access token has lapsed: the manager refreshes it on the
// first call, and a failed refresh surfaces as ErrUnauthenticated per call.
// Without a grant it returns a nil interface.
func calendarBackend(mgr *credential.Manager, baseURL string) calendar.Backend {
	if mgr == nil || !mgr.HasGrant() {
		return nil
	}
	return calendar.NewClient(baseURL, mgr)
}

// manager builds the calendar token manager, or nil when the keyring is
// unavailable.
func (app *App) manager() *credential.Manager {
	if app.Services != nil {
		return app.Services.Manager
	}
	ks, err := credential.OpenKeyringStore()
	if err != nil {
		app.Logger.Warn("keyring unavailable, calendar disabled", "error", err)
		return nil
	}
	cfg := app.Config.Calendar
	oauthCfg := credential.OAuthConfig(cfg)
	return credential.NewManager(credential.Options{
		OAuth2: oauthCfg,
		Authorizer: &credential.LoopbackAuthorizer{
			Config: oauthCfg,
			OpenURL: func(authURL string) {
				app.Logger.Info("authorize the calendar in the browser", "url", authURL)
				if err := openURL(authURL); err != nil {
					app.Logger.Warn("opening browser", "error", err)
				}
			},
			Timeout: 5 * time.Minute,
		},
		Store:           ks,
		RefreshInterval: time.Duration(cfg.RefreshIntervalSec) * time.Second,
		Logger:          app.Logger,
	})
}

func openURL(u string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Start()
}
