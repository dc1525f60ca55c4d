package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nhle/studio-pratiche/internal/model"
)

const notificationsCollection = "notifications"

// FirestoreStore implements Store on a Cloud Firestore collection.
// Timestamps are stored natively and converted to time.Time on read.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

// NewFirestoreStore connects to projectID. Credentials come from the
// environment unless opts say otherwise; FIRESTORE_EMULATOR_HOST is
// honoured by the client library.
func NewFirestoreStore(
	ctx context.Context,
	projectID, collection string,
	logger *slog.Logger,
	opts ...option.ClientOption,
) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore: project id is required")
	}
	if collection == "" {
		collection = "pratiche"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &FirestoreStore{client: client, collection: collection, logger: logger}, nil
}

// Close releases the client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) col() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

// Create adds a document and returns its generated id.
func (s *FirestoreStore) Create(ctx context.Context, cf model.CaseFile) (string, error) {
	if cf.Stato == "" {
		cf.Stato = model.StatoInCorso
	}
	now := time.Now().UTC()
	if cf.DataCreazione.IsZero() {
		cf.DataCreazione = now
	}
	if cf.DataUltimaModifica.IsZero() {
		cf.DataUltimaModifica = cf.DataCreazione
	}

	ref, _, err := s.col().Add(ctx, model.EncodeCaseFile(cf))
	if err != nil {
		return "", &PersistenceError{Op: "create", Err: err}
	}
	return ref.ID, nil
}

// Get retrieves a single case file by id.
func (s *FirestoreStore) Get(ctx context.Context, id string) (*model.CaseFile, error) {
	snap, err := s.col().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", ID: id, Err: err}
	}
	cf, err := decodeSnapshot(snap)
	if err != nil {
		return nil, err
	}
	return &cf, nil
}

// List returns the case files matching q, newest first.
func (s *FirestoreStore) List(ctx context.Context, q Query) ([]model.CaseFile, error) {
	docs, err := s.query(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return filterSnapshots(docs, q)
}

// Update maps each update onto a Firestore field path update. The call
// fails with ErrNotFound when the document is missing.
func (s *FirestoreStore) Update(ctx context.Context, id string, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	fu := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		fu = append(fu, firestore.Update{Path: u.Path, Value: u.Value})
	}

	_, err := s.col().Doc(id).Update(ctx, fu)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return &PersistenceError{Op: "update", ID: id, Err: err}
	}
	return nil
}

// Delete removes a case file. Deleting a missing document is not an error
// in Firestore, so existence is checked first.
func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	ref := s.col().Doc(id)
	if _, err := ref.Get(ctx); status.Code(err) == codes.NotFound {
		return fmt.Errorf("case file %s: %w", id, ErrNotFound)
	} else if err != nil {
		return &PersistenceError{Op: "delete", ID: id, Err: err}
	}
	if _, err := ref.Delete(ctx); err != nil {
		return &PersistenceError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// Subscribe streams query snapshots until ctx ends.
func (s *FirestoreStore) Subscribe(ctx context.Context, q Query) (<-chan []model.CaseFile, error) {
	it := s.query(q).Snapshots(ctx)
	ch := make(chan []model.CaseFile, 1)

	go func() {
		defer close(ch)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					s.logger.Error("case file subscription ended", "error", err)
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				s.logger.Error("reading snapshot", "error", err)
				continue
			}
			cfs, err := filterSnapshots(docs, q)
			if err != nil {
				s.logger.Error("decoding snapshot", "error", err)
				continue
			}
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfs:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (s *FirestoreStore) query(q Query) firestore.Query {
	fq := s.col().Query
	if q.Agenzia != nil {
		if *q.Agenzia == "" {
			fq = fq.Where(model.FieldAgenzia, "==", nil)
		} else {
			fq = fq.Where(model.FieldAgenzia, "==", *q.Agenzia)
		}
	}
	if q.Stato != nil {
		fq = fq.Where(model.FieldStato, "==", string(*q.Stato))
	}
	return fq
}

// CreateNotification stores n under its id.
func (s *FirestoreStore) CreateNotification(ctx context.Context, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if _, err := s.client.Collection(notificationsCollection).Doc(n.ID).Set(ctx, n); err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// GetUnreadNotifications returns unread notifications, newest first.
func (s *FirestoreStore) GetUnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	it := s.client.Collection(notificationsCollection).Where("read", "==", false).Documents(ctx)
	defer it.Stop()

	var out []model.Notification
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("querying unread notifications: %w", err)
		}
		var n model.Notification
		if err := snap.DataTo(&n); err != nil {
			return nil, fmt.Errorf("decoding notification %s: %w", snap.Ref.ID, err)
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkNotificationRead marks a single notification as read.
func (s *FirestoreStore) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.client.Collection(notificationsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "read", Value: true},
	})
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (model.CaseFile, error) {
	cf, err := model.DecodeCaseFile(snap.Ref.ID, snap.Data())
	if err != nil {
		return model.CaseFile{}, &PersistenceError{Op: "decode", ID: snap.Ref.ID, Err: err}
	}
	return cf, nil
}

// filterSnapshots decodes docs, applies the parts of q Firestore cannot
// express and orders the result newest first.
func filterSnapshots(docs []*firestore.DocumentSnapshot, q Query) ([]model.CaseFile, error) {
	out := make([]model.CaseFile, 0, len(docs))
	for _, d := range docs {
		cf, err := decodeSnapshot(d)
		if err != nil {
			return nil, err
		}
		if q.Match(cf) {
			out = append(out, cf)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DataCreazione.After(out[j].DataCreazione)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
