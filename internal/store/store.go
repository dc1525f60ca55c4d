package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/studio-pratiche/internal/model"
)

// ErrNotFound is returned when a case file does not exist.
var ErrNotFound = errors.New("not found")

// PersistenceError wraps a failed repository operation.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence error (%s %s): %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err (or any error in its chain) is a
// PersistenceError.
func IsPersistenceError(err error) bool {
	var pErr *PersistenceError
	return errors.As(err, &pErr)
}

// Query selects case files for listing and subscriptions.
type Query struct {
	Agenzia *string
	Stato   *model.Stato
	Search  string // matched against codice, cliente and indirizzo
	Limit   int
}

// Match reports whether cf satisfies q.
func (q Query) Match(cf model.CaseFile) bool {
	if q.Agenzia != nil && cf.Agenzia != *q.Agenzia {
		return false
	}
	if q.Stato != nil && cf.Stato != *q.Stato {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		hay := strings.ToLower(cf.Codice + " " + cf.Cliente + " " + cf.Indirizzo)
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

// Update sets the value at a dotted document path, e.g. "workflow.saldo".
// Sibling fields are left untouched.
type Update struct {
	Path  string
	Value any
}

// Repository is the case-file document store. Writes are last-write-wins
// per field; there is no compare-and-swap.
type Repository interface {
	// Subscribe streams the full result of q, once immediately and again
	// after every change. The channel is closed when ctx ends.
	Subscribe(ctx context.Context, q Query) (<-chan []model.CaseFile, error)

	List(ctx context.Context, q Query) ([]model.CaseFile, error)
	Get(ctx context.Context, id string) (*model.CaseFile, error)
	Create(ctx context.Context, cf model.CaseFile) (string, error)
	Update(ctx context.Context, id string, updates []Update) error
	Delete(ctx context.Context, id string) error
}

// NotificationStore persists calendar alerts.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// Store is a full backend.
type Store interface {
	Repository
	NotificationStore
	Close() error
}

// setPath writes value at a dotted path inside doc, creating intermediate
// objects as needed.
func setPath(doc map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			m := make(map[string]any)
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("path %s: %s is not an object", path, strings.Join(parts[:i+1], "."))
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = value
	return nil
}
