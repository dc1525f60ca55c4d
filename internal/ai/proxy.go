package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultUpstreamURL = "https://api.anthropic.com/v1/messages"
	apiVersion         = "2023-06-01"

	// maxBodyBytes bounds the accepted request body.
	maxBodyBytes = 1 << 20
)

// Error types reported in the {error, type} envelope.
const (
	errTypeMethod     = "method_not_allowed"
	errTypeInvalid    = "invalid_request_error"
	errTypeProxy      = "proxy_error"
	errTypeConfigured = "configuration_error"
)

// ChatRequest holds the fields the proxy validates. Other fields of the
// body are not decoded.
type ChatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []ChatMessage `json:"messages"`
}

// ChatMessage is one turn of the conversation. Content is forwarded as is,
// so both plain strings and content-block arrays are accepted.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Validate checks the fields the upstream API requires.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("model is required")
	}
	if r.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	if len(r.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, m := range r.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
		if len(m.Content) == 0 || string(m.Content) == "null" {
			return fmt.Errorf("messages[%d]: content is required", i)
		}
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

// Proxy forwards chat-completion requests to the upstream messages API,
// adding the server-held API key. Upstream responses pass through with
// their status code.
type Proxy struct {
	apiKey        string
	upstreamURL   string
	allowedOrigin string
	client        *http.Client
	logger        *slog.Logger
}

// ProxyOptions configures a Proxy.
type ProxyOptions struct {
	APIKey        string
	UpstreamURL   string
	AllowedOrigin string // "*" when empty
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// NewProxy creates a proxy handler.
func NewProxy(opts ProxyOptions) *Proxy {
	p := &Proxy{
		apiKey:        opts.APIKey,
		upstreamURL:   opts.UpstreamURL,
		allowedOrigin: opts.AllowedOrigin,
		client:        opts.HTTPClient,
		logger:        opts.Logger,
	}
	if p.upstreamURL == "" {
		p.upstreamURL = DefaultUpstreamURL
	}
	if p.allowedOrigin == "" {
		p.allowedOrigin = "*"
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 2 * time.Minute}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", p.allowedOrigin)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		h.Set("Allow", "POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", errTypeMethod)
		return
	}

	if p.apiKey == "" {
		writeError(w, http.StatusInternalServerError, "API key not configured", errTypeConfigured)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error(), errTypeInvalid)
		return
	}
	if len(raw) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", errTypeInvalid)
		return
	}

	var req ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", errTypeInvalid)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), errTypeInvalid)
		return
	}

	// The validated body goes upstream byte for byte so fields the proxy
	// does not model (system, temperature, tools) survive.
	status, respBody, err := p.forward(r.Context(), raw)
	if err != nil {
		p.logger.Error("forwarding chat request", "model", req.Model, "error", err)
		writeError(w, http.StatusBadGateway, err.Error(), errTypeProxy)
		return
	}
	if status >= 400 {
		p.logger.Warn("upstream rejected chat request", "model", req.Model, "status", status)
	}

	h.Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}

// forward posts body upstream and returns the status and raw response.
func (p *Proxy) forward(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.upstreamURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func writeError(w http.ResponseWriter, status int, msg, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Type: typ})
}

// ListenAndServe serves the proxy on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, p *Proxy) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		p.logger.Info("proxy listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
