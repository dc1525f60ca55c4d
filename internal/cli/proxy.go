package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/studio-pratiche/internal/ai"
	"github.com/nhle/studio-pratiche/internal/credential"
)

const apiKeyEnv = "ANTHROPIC_API_KEY"

func newProxyCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the chat-completion proxy",
		Long: strings.TrimSpace(`
Serve the chat-completion proxy used by the assistant panel. The API key is
read from ANTHROPIC_API_KEY, falling back to the system keyring.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := app.apiKey()
			if err != nil {
				return writeErr(cmd, err)
			}
			if addr == "" {
				addr = app.Config.Proxy.Addr
			}

			p := ai.NewProxy(ai.ProxyOptions{
				APIKey:        key,
				UpstreamURL:   app.Config.Proxy.UpstreamURL,
				AllowedOrigin: app.Config.Proxy.AllowedOrigin,
				Logger:        app.Logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ai.ListenAndServe(ctx, addr, p)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.AddCommand(newProxySetKeyCmd(app))
	return cmd
}

func newProxySetKeyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the API key in the keyring (read from stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return writeErr(cmd, fmt.Errorf("reading key: %w", err))
			}
			key := strings.TrimSpace(line)
			if key == "" {
				return writeErr(cmd, errors.New("empty API key"))
			}

			ks, err := credential.OpenKeyringStore()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ks.Set(credential.APIKeyName, key); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key salvata nel portachiavi")
			return nil
		},
	}
}

// apiKey resolves the upstream key: environment first, then keyring.
func (app *App) apiKey() (string, error) {
	if v := strings.TrimSpace(os.Getenv(apiKeyEnv)); v != "" {
		return v, nil
	}
	ks, err := credential.OpenKeyringStore()
	if err != nil {
		return "", fmt.Errorf("%s not set and %w", apiKeyEnv, err)
	}
	key, err := ks.Get(credential.APIKeyName)
	if err != nil || strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%s not set and no key in the keyring (studio proxy set-key)", apiKeyEnv)
	}
	return strings.TrimSpace(key), nil
}
