package credential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/studio-pratiche/internal/model"
)

const serviceName = "studio-pratiche"

// Keyring item names.
const (
	calendarTokenKey = "calendar-token"
	APIKeyName       = "anthropic-api-key"
)

// TokenStore persists the calendar grant across restarts.
type TokenStore interface {
	// Load returns nil without error when nothing is stored.
	Load() (*model.CalendarToken, error)
	Save(tok *model.CalendarToken) error
	Delete() error
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/studio-pratiche/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("studio-pratiche-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringStore keeps the calendar token and other secrets in the system
// keyring.
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyringStore opens the system keyring.
func OpenKeyringStore() (*KeyringStore, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return &KeyringStore{ring: ring}, nil
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Load reads the stored calendar token.
func (s *KeyringStore) Load() (*model.CalendarToken, error) {
	raw, err := s.Get(calendarTokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok model.CalendarToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decoding stored calendar token: %w", err)
	}
	return &tok, nil
}

// Save stores the calendar token.
func (s *KeyringStore) Save(tok *model.CalendarToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding calendar token: %w", err)
	}
	return s.Set(calendarTokenKey, string(data))
}

// Delete removes the calendar token. A missing token is not an error.
func (s *KeyringStore) Delete() error {
	err := s.Remove(calendarTokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Get retrieves a credential value by key.
func (s *KeyringStore) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *KeyringStore) Set(key string, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Remove deletes a credential by key.
func (s *KeyringStore) Remove(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
