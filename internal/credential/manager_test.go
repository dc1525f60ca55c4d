package credential

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/tests/testutil"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeAuthorizer struct {
	tok   *oauth2.Token
	email string
	err   error
	hint  string
}

func (f *fakeAuthorizer) Authorize(_ context.Context, hint string) (*oauth2.Token, string, error) {
	f.hint = hint
	return f.tok, f.email, f.err
}

// tokenServer answers refresh exchanges; it fails when fail is set.
func tokenServer(t *testing.T, fail *atomic.Bool, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))

		if fail.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-2","expires_in":3600,"token_type":"Bearer"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, clock *testutil.Clock, tokenURL string, store TokenStore) *Manager {
	t.Helper()
	cfg := OAuthConfig(model.CalendarConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     tokenURL,
	})
	return NewManager(Options{
		OAuth2: cfg,
		Authorizer: &fakeAuthorizer{
			tok:   &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"},
			email: "studio@example.com",
		},
		Store: store,
		Clock: clock.Now,
	})
}

func TestManager_ConnectAndAuthenticated(t *testing.T) {
	clock := testutil.NewClock(start)
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	m := newManager(t, clock, "http://unused", store)

	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.GetToken(context.Background()))

	tok, err := m.Connect(context.Background(), "studio@example.com")
	require.NoError(t, err)
	assert.Equal(t, "studio@example.com", tok.UserEmail)
	assert.True(t, start.Add(time.Hour).Equal(tok.ExpiresAt))
	assert.True(t, m.IsAuthenticated())

	// The grant survives a restart.
	again := newManager(t, clock, "http://unused", store)
	assert.True(t, again.IsAuthenticated())

	clock.Advance(time.Hour)
	assert.False(t, m.IsAuthenticated())
}

func TestManager_ConnectFailures(t *testing.T) {
	clock := testutil.NewClock(start)
	m := newManager(t, clock, "http://unused", nil)
	m.authorizer = &fakeAuthorizer{err: errors.New("access_denied")}

	_, err := m.Connect(context.Background(), "")
	assert.Error(t, err)

	m.authorizer = &fakeAuthorizer{tok: &oauth2.Token{AccessToken: "a"}, email: "x@example.com"}
	_, err = m.Connect(context.Background(), "")
	assert.Error(t, err)
	assert.False(t, m.IsAuthenticated())
}

func TestManager_ShouldRefreshBoundary(t *testing.T) {
	clock := testutil.NewClock(start)
	m := newManager(t, clock, "http://unused", nil)
	_, err := m.Connect(context.Background(), "")
	require.NoError(t, err)

	expires := start.Add(time.Hour)

	clock.Set(expires.Add(-5*time.Minute - time.Millisecond))
	assert.False(t, m.ShouldRefresh())

	clock.Set(expires.Add(-5 * time.Minute))
	assert.True(t, m.ShouldRefresh())

	clock.Set(expires.Add(-time.Minute))
	assert.True(t, m.ShouldRefresh())
}

func TestManager_RefreshKeepsRefreshTokenAndEmail(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	srv := tokenServer(t, &fail, &calls)

	clock := testutil.NewClock(start)
	m := newManager(t, clock, srv.URL, nil)
	_, err := m.Connect(context.Background(), "")
	require.NoError(t, err)

	clock.Advance(58 * time.Minute)
	tok := m.GetToken(context.Background())
	require.NotNil(t, tok)
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, "studio@example.com", tok.UserEmail)
	assert.True(t, clock.Now().Add(time.Hour).Equal(tok.ExpiresAt))
	assert.Equal(t, int32(1), calls.Load())

	// Far from expiry no exchange happens.
	m.GetToken(context.Background())
	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_RefreshFailureKeepsToken(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	fail.Store(true)
	srv := tokenServer(t, &fail, &calls)

	clock := testutil.NewClock(start)
	m := newManager(t, clock, srv.URL, nil)
	_, err := m.Connect(context.Background(), "")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	assert.False(t, m.Refresh(context.Background()))

	tok := m.GetToken(context.Background())
	require.NotNil(t, tok)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.False(t, m.IsAuthenticated())

	_, err = m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestManager_Disconnect(t *testing.T) {
	clock := testutil.NewClock(start)
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	m := newManager(t, clock, "http://unused", store)
	_, err := m.Connect(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, m.Disconnect())
	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.GetToken(context.Background()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestManager_BackgroundRefresh(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	srv := tokenServer(t, &fail, &calls)

	clock := testutil.NewClock(start)
	m := newManager(t, clock, srv.URL, nil)
	m.interval = 10 * time.Millisecond
	_, err := m.Connect(context.Background(), "")
	require.NoError(t, err)

	m.Start()
	m.Start()
	defer m.Stop()

	clock.Advance(56 * time.Minute)
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop()
}

func TestManager_ExpiredStoredGrantIsRefreshed(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	srv := tokenServer(t, &fail, &calls)

	clock := testutil.NewClock(start)
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	require.NoError(t, store.Save(&model.CalendarToken{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		UserEmail:    "studio@example.com",
		ExpiresAt:    start.Add(-20 * time.Hour),
	}))

	m := newManager(t, clock, srv.URL, store)
	assert.False(t, m.IsAuthenticated())
	assert.True(t, m.HasGrant())

	access, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, m.IsAuthenticated())
}

func TestManager_DisconnectDuringRefreshWins(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once gosync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-2","expires_in":3600,"token_type":"Bearer"}`))
	}))
	t.Cleanup(srv.Close)

	clock := testutil.NewClock(start)
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	m := newManager(t, clock, srv.URL, store)
	_, err := m.Connect(context.Background(), "")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	done := make(chan bool, 1)
	go func() { done <- m.Refresh(context.Background()) }()

	<-entered
	require.NoError(t, m.Disconnect())
	close(release)

	assert.False(t, <-done)
	assert.False(t, m.HasGrant())
	assert.Nil(t, m.GetToken(context.Background()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestManager_RefreshHonoursDisconnectFromAnotherProcess(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	srv := tokenServer(t, &fail, &calls)

	clock := testutil.NewClock(start)
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	running := newManager(t, clock, srv.URL, store)
	_, err := running.Connect(context.Background(), "")
	require.NoError(t, err)

	cli := newManager(t, clock, srv.URL, store)
	require.NoError(t, cli.Disconnect())

	clock.Advance(58 * time.Minute)
	running.Tick()

	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, running.HasGrant())
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
