package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/nhle/studio-pratiche/internal/model"
)

// Google endpoints and scopes for the calendar grant.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	ScopeCalendarEvents = "https://www.googleapis.com/auth/calendar.events"
	ScopeCalendar       = "https://www.googleapis.com/auth/calendar"
)

// OAuthConfig builds the oauth2 configuration for the calendar grant. The
// refresh exchange posts the client credentials in the form body.
func OAuthConfig(cfg model.CalendarConfig) *oauth2.Config {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{ScopeCalendar, ScopeCalendarEvents, "openid", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   GoogleAuthURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// LoopbackAuthorizer runs the installed-app consent flow: it serves the
// redirect on a loopback address, sends the user to the consent page and
// exchanges the returned code.
type LoopbackAuthorizer struct {
	Config      *oauth2.Config
	UserInfoURL string

	// OpenURL presents the consent URL to the user.
	OpenURL func(authURL string)

	HTTPClient *http.Client
	Timeout    time.Duration
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, accountHint string) (*oauth2.Token, string, error) {
	redirect, err := url.Parse(a.Config.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, "", fmt.Errorf("invalid redirect url %q", a.Config.RedirectURL)
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, "", fmt.Errorf("listening for oauth callback: %w", err)
	}
	// A zero port in the configured URL picks any free port.
	redirect.Host = ln.Addr().String()
	cfg := *a.Config
	cfg.RedirectURL = redirect.String()

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, "", err
	}

	results := make(chan callbackResult, 1)
	path := redirect.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := callbackResult{code: q.Get("code")}
		switch {
		case q.Get("state") != state:
			res.err = fmt.Errorf("oauth callback state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("consent refused: %s", q.Get("error"))
		case res.code == "":
			res.err = fmt.Errorf("oauth callback without code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Calendario collegato. Puoi chiudere questa finestra.")
		}
		select {
		case results <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
	if accountHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", accountHint))
	}
	if a.OpenURL != nil {
		a.OpenURL(cfg.AuthCodeURL(state, opts...))
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	var res callbackResult
	select {
	case res = <-results:
	case <-time.After(timeout):
		return nil, "", fmt.Errorf("timed out waiting for consent")
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
	if res.err != nil {
		return nil, "", res.err
	}

	if a.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return nil, "", fmt.Errorf("exchanging authorization code: %w", err)
	}

	email, err := a.fetchEmail(ctx, &cfg, tok)
	if err != nil {
		return nil, "", err
	}
	return tok, email, nil
}

func (a *LoopbackAuthorizer) fetchEmail(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (string, error) {
	endpoint := a.UserInfoURL
	if endpoint == "" {
		endpoint = GoogleUserInfoURL
	}
	resp, err := cfg.Client(ctx, tok).Get(endpoint)
	if err != nil {
		return "", fmt.Errorf("fetching account email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching account email: status %d", resp.StatusCode)
	}
	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decoding account info: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("account info has no email")
	}
	return info.Email, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
