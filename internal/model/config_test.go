package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "primary", cfg.Calendar.CalendarID)
	assert.Equal(t, 60, cfg.Calendar.RefreshIntervalSec)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Calendar.TokenURL)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  driver: firestore
  firestore_project: studio-test
calendar:
  client_id: abc.apps.googleusercontent.com
agencies:
  - Tecnocasa
  - Gabetti
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("STUDIO_CALENDAR_CLIENT_SECRET", "s3cret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "firestore", cfg.Store.Driver)
	assert.Equal(t, "studio-test", cfg.Store.FirestoreProject)
	assert.Equal(t, "pratiche", cfg.Store.Collection)
	assert.Equal(t, "abc.apps.googleusercontent.com", cfg.Calendar.ClientID)
	assert.Equal(t, "s3cret", cfg.Calendar.ClientSecret)
	assert.Equal(t, []string{"Tecnocasa", "Gabetti"}, cfg.Agencies)
}

func TestSaveConfig_OmitsSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultAppConfig()
	cfg.Calendar.ClientSecret = "do-not-write"
	cfg.Agencies = []string{"Tecnocasa"}

	require.NoError(t, SaveConfig(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "do-not-write")
	assert.Contains(t, string(raw), "Tecnocasa")
}
