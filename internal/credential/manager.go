package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	gosync "sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/nhle/studio-pratiche/internal/model"
)

// Defaults of the token lifecycle.
const (
	DefaultRefreshInterval = 60 * time.Second
	DefaultRefreshWindow   = 5 * time.Minute
	DefaultTokenLifetime   = 3600 * time.Second
	refreshTimeout         = 30 * time.Second
)

// ErrNotConnected is returned when no calendar grant exists.
var ErrNotConnected = errors.New("calendar not connected")

// Authorizer runs the interactive consent flow and returns the granted
// token with the account email.
type Authorizer interface {
	Authorize(ctx context.Context, accountHint string) (*oauth2.Token, string, error)
}

// Options configures a Manager.
type Options struct {
	// OAuth2 holds the client credentials and token endpoint used for
	// refresh exchanges.
	OAuth2     *oauth2.Config
	Authorizer Authorizer
	Store      TokenStore

	Clock           func() time.Time
	RefreshInterval time.Duration
	RefreshWindow   time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Manager owns the calendar token, separate from any application session.
// It is the only writer of the token.
type Manager struct {
	oauth      *oauth2.Config
	authorizer Authorizer
	store      TokenStore
	now        func() time.Time
	interval   time.Duration
	window     time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	mu    gosync.Mutex
	token *model.CalendarToken
	gen   uint64 // bumped whenever the grant is replaced or removed

	// persistMu orders a token change with its keyring write, so a
	// Disconnect cannot be followed by a stale Save.
	persistMu gosync.Mutex
	refreshMu gosync.Mutex

	runMu   gosync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager builds a manager and loads any persisted token.
func NewManager(opts Options) *Manager {
	m := &Manager{
		oauth:      opts.OAuth2,
		authorizer: opts.Authorizer,
		store:      opts.Store,
		now:        opts.Clock,
		interval:   opts.RefreshInterval,
		window:     opts.RefreshWindow,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.interval <= 0 {
		m.interval = DefaultRefreshInterval
	}
	if m.window <= 0 {
		m.window = DefaultRefreshWindow
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	if m.store != nil {
		tok, err := m.store.Load()
		if err != nil {
			m.logger.Warn("loading stored calendar token", "error", err)
		}
		m.token = tok
	}
	return m
}

// Connect runs the consent flow and stores the resulting grant.
func (m *Manager) Connect(ctx context.Context, accountHint string) (*model.CalendarToken, error) {
	if m.authorizer == nil {
		return nil, fmt.Errorf("connecting calendar: no authorizer configured")
	}
	granted, email, err := m.authorizer.Authorize(ctx, accountHint)
	if err != nil {
		return nil, fmt.Errorf("connecting calendar: %w", err)
	}
	if granted.RefreshToken == "" {
		return nil, fmt.Errorf("connecting calendar: no refresh token granted")
	}

	tok := &model.CalendarToken{
		AccessToken:  granted.AccessToken,
		RefreshToken: granted.RefreshToken,
		ExpiresAt:    m.now().Add(lifetime(granted)),
		UserEmail:    email,
	}
	m.setToken(tok)
	m.logger.Info("calendar connected", "email", email)
	return copyToken(tok), nil
}

// IsAuthenticated reports whether a complete, unexpired grant is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.Complete() && m.now().Before(m.token.ExpiresAt)
}

// HasGrant reports whether a grant that can still be refreshed is held,
// whatever the expiry of its access token.
func (m *Manager) HasGrant() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != nil && m.token.RefreshToken != "" && m.token.UserEmail != ""
}

// ShouldRefresh reports whether the token expires within the refresh
// window. The window boundary itself counts as due.
func (m *Manager) ShouldRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil || m.token.RefreshToken == "" {
		return false
	}
	return m.token.ExpiresAt.Sub(m.now()) <= m.window
}

// Refresh exchanges the refresh token for a new access token. On failure
// the current token is kept and false is returned. The stored grant is
// read first, so a disconnect done by another process is honoured, and a
// grant replaced or removed while the exchange was in flight is never
// overwritten.
func (m *Manager) Refresh(ctx context.Context) bool {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.reload()

	m.mu.Lock()
	cur, gen := copyToken(m.token), m.gen
	m.mu.Unlock()
	if cur == nil || cur.RefreshToken == "" || m.oauth == nil {
		return false
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cur.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		m.logger.Warn("refreshing calendar token", "email", cur.UserEmail, "error", err)
		return false
	}

	cur.AccessToken = fresh.AccessToken
	cur.ExpiresAt = m.now().Add(lifetime(fresh))
	if !m.replaceToken(gen, cur) {
		m.logger.Info("calendar grant changed during refresh, result discarded")
		return false
	}
	m.logger.Debug("calendar token refreshed", "expires_at", cur.ExpiresAt)
	return true
}

// reload adopts the persisted grant when it differs from the one in
// memory.
func (m *Manager) reload() {
	if m.store == nil {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	stored, err := m.store.Load()
	if err != nil {
		m.logger.Warn("reloading stored calendar token", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case stored == nil && m.token != nil:
		m.token = nil
		m.gen++
	case stored != nil && !sameToken(stored, m.token):
		m.token = stored
		m.gen++
	}
}

// GetToken returns the current token, refreshing it first when it is about
// to expire. It returns nil when no grant exists.
func (m *Manager) GetToken(ctx context.Context) *model.CalendarToken {
	if m.ShouldRefresh() {
		m.Refresh(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyToken(m.token)
}

// AccessToken returns a bearer token for calendar requests.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tok := m.GetToken(ctx)
	if tok == nil || tok.AccessToken == "" {
		return "", ErrNotConnected
	}
	if !m.now().Before(tok.ExpiresAt) {
		return "", fmt.Errorf("%w: token expired at %s", ErrNotConnected, tok.ExpiresAt.Format(time.RFC3339))
	}
	return tok.AccessToken, nil
}

// Disconnect forgets the grant.
func (m *Manager) Disconnect() error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	m.token = nil
	m.gen++
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(); err != nil {
			return fmt.Errorf("removing stored calendar token: %w", err)
		}
	}
	m.logger.Info("calendar disconnected")
	return nil
}

// Start launches the background refresh loop. Calling Start twice is a
// no-op.
func (m *Manager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.loop(m.stopCh, m.doneCh)
}

// Stop halts the refresh loop and waits for it to exit.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	<-m.doneCh
	m.running = false
}

func (m *Manager) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick runs one refresh check.
func (m *Manager) Tick() {
	if !m.ShouldRefresh() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	m.Refresh(ctx)
}

func (m *Manager) setToken(tok *model.CalendarToken) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	m.token = tok
	m.gen++
	m.mu.Unlock()
	m.save(tok)
}

// replaceToken installs tok only if the grant is still generation gen.
func (m *Manager) replaceToken(gen uint64, tok *model.CalendarToken) bool {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if m.gen != gen || m.token == nil || m.token.RefreshToken != tok.RefreshToken {
		m.mu.Unlock()
		return false
	}
	m.token = tok
	m.gen++
	m.mu.Unlock()
	m.save(tok)
	return true
}

func (m *Manager) save(tok *model.CalendarToken) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(tok); err != nil {
		m.logger.Warn("persisting calendar token", "error", err)
	}
}

// lifetime is the validity the server granted. oauth2 converts expires_in
// to an absolute time on the wall clock; it is turned back into a duration
// so the manager's own clock applies.
func lifetime(tok *oauth2.Token) time.Duration {
	if tok.Expiry.IsZero() {
		return DefaultTokenLifetime
	}
	d := time.Until(tok.Expiry).Round(time.Second)
	if d <= 0 {
		return DefaultTokenLifetime
	}
	return d
}

func sameToken(a, b *model.CalendarToken) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.UserEmail == b.UserEmail &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}

func copyToken(tok *model.CalendarToken) *model.CalendarToken {
	if tok == nil {
		return nil
	}
	cp := *tok
	return &cp
}
