package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// StoreConfig selects and configures the case-file repository.
type StoreConfig struct {
	// Driver is "sqlite" or "firestore".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// FirestoreProject is the Google Cloud project holding the collection.
	FirestoreProject string `mapstructure:"firestore_project" yaml:"firestore_project"`

	// Collection is the document collection name.
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// CalendarConfig holds the calendar integration settings. The client secret
// is only used for refresh-token exchanges.
type CalendarConfig struct {
	ClientID           string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret       string `mapstructure:"client_secret" yaml:"client_secret"`
	CalendarID         string `mapstructure:"calendar_id" yaml:"calendar_id"`
	BaseURL            string `mapstructure:"base_url" yaml:"base_url"`
	TokenURL           string `mapstructure:"token_url" yaml:"token_url"`
	RedirectURL        string `mapstructure:"redirect_url" yaml:"redirect_url"`
	RefreshIntervalSec int    `mapstructure:"refresh_interval_sec" yaml:"refresh_interval_sec"`
	PollIntervalSec    int    `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	PollWindowDays     int    `mapstructure:"poll_window_days" yaml:"poll_window_days"`
}

// ProxyConfig holds the LLM proxy settings.
type ProxyConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	UpstreamURL   string `mapstructure:"upstream_url" yaml:"upstream_url"`
	AllowedOrigin string `mapstructure:"allowed_origin" yaml:"allowed_origin"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Calendar CalendarConfig `mapstructure:"calendar" yaml:"calendar"`
	Proxy    ProxyConfig    `mapstructure:"proxy" yaml:"proxy"`

	// Agencies lists the agencies shown as groups even when empty.
	Agencies []string `mapstructure:"agencies" yaml:"agencies"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/studio-pratiche/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "studio-pratiche", "config.yaml")
}

// defaultDBPath places the SQLite file next to the config file.
func defaultDBPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "pratiche.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Store: StoreConfig{
			Driver:     "sqlite",
			Path:       defaultDBPath(),
			Collection: "pratiche",
		},
		Calendar: CalendarConfig{
			CalendarID:         "primary",
			BaseURL:            "https://www.googleapis.com/calendar/v3",
			TokenURL:           "https://oauth2.googleapis.com/token",
			RedirectURL:        "http://127.0.0.1:8765/oauth/callback",
			RefreshIntervalSec: 60,
			PollIntervalSec:    300,
			PollWindowDays:     60,
		},
		Proxy: ProxyConfig{
			Addr:          ":8787",
			UpstreamURL:   "https://api.anthropic.com/v1/messages",
			AllowedOrigin: "*",
		},
		Agencies: []string{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values can be overridden from the environment with the STUDIO_ prefix
// (e.g. STUDIO_CALENDAR_CLIENT_SECRET). If the file does not exist, the
// defaults plus environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("studio")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values and so
	// AutomaticEnv can see every key.
	def := defaultAppConfig()
	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("store.firestore_project", "")
	v.SetDefault("store.collection", def.Store.Collection)
	v.SetDefault("calendar.client_id", "")
	v.SetDefault("calendar.client_secret", "")
	v.SetDefault("calendar.calendar_id", def.Calendar.CalendarID)
	v.SetDefault("calendar.base_url", def.Calendar.BaseURL)
	v.SetDefault("calendar.token_url", def.Calendar.TokenURL)
	v.SetDefault("calendar.redirect_url", def.Calendar.RedirectURL)
	v.SetDefault("calendar.refresh_interval_sec", def.Calendar.RefreshIntervalSec)
	v.SetDefault("calendar.poll_interval_sec", def.Calendar.PollIntervalSec)
	v.SetDefault("calendar.poll_window_days", def.Calendar.PollWindowDays)
	v.SetDefault("proxy.addr", def.Proxy.Addr)
	v.SetDefault("proxy.upstream_url", def.Proxy.UpstreamURL)
	v.SetDefault("proxy.allowed_origin", def.Proxy.AllowedOrigin)
	v.SetDefault("agencies", def.Agencies)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		_, isPathErr := err.(*os.PathError)
		if !isPathErr && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Calendar.RefreshIntervalSec <= 0 {
		cfg.Calendar.RefreshIntervalSec = def.Calendar.RefreshIntervalSec
	}
	if cfg.Calendar.PollIntervalSec <= 0 {
		cfg.Calendar.PollIntervalSec = def.Calendar.PollIntervalSec
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The client secret is never
// written; it belongs in the environment.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	cal := cfg.Calendar
	cal.ClientSecret = ""

	v.Set("store", cfg.Store)
	v.Set("calendar", cal)
	v.Set("proxy", cfg.Proxy)
	v.Set("agencies", cfg.Agencies)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
