package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/studio-pratiche/internal/model"
)

// SQLiteStore implements Store on a local SQLite database. Each case file is
// kept as a JSON document with its list columns mirrored alongside.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger

	mu     gosync.Mutex
	subs   map[int]*subscription
	nextID int
}

type subscription struct {
	q  Query
	ch chan []model.CaseFile
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default(),
		subs:   make(map[int]*subscription),
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// SetLogger replaces the logger used for change-feed failures.
func (s *SQLiteStore) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Close closes every subscription and the underlying database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// caseFileRow is the stored row of a case file.
type caseFileRow struct {
	ID                 string         `db:"id"`
	Codice             string         `db:"codice"`
	Cliente            string         `db:"cliente"`
	Indirizzo          string         `db:"indirizzo"`
	Agenzia            sql.NullString `db:"agenzia"`
	Stato              string         `db:"stato"`
	DataCreazione      time.Time      `db:"data_creazione"`
	DataUltimaModifica time.Time      `db:"data_ultima_modifica"`
	Document           string         `db:"document"`
}

// Create inserts a new case file and returns its generated id.
func (s *SQLiteStore) Create(ctx context.Context, cf model.CaseFile) (string, error) {
	id := uuid.New().String()
	cf.ID = id
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

	row, err := rowFromDocument(id, model.EncodeCaseFile(cf))
	if err != nil {
		return "", &PersistenceError{Op: "create", Err: err}
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO case_files (
			id, codice, cliente, indirizzo, agenzia, stato,
			data_creazione, data_ultima_modifica, document
		) VALUES (
			:id, :codice, :cliente, :indirizzo, :agenzia, :stato,
			:data_creazione, :data_ultima_modifica, :document
		)`, row)
	if err != nil {
		return "", &PersistenceError{Op: "create", ID: id, Err: err}
	}

	s.notify(ctx)
	return id, nil
}

// Get retrieves a single case file by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.CaseFile, error) {
	var row caseFileRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM case_files WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", ID: id, Err: err}
	}

	cf, err := row.caseFile()
	if err != nil {
		return nil, err
	}
	return &cf, nil
}

// List returns the case files matching q, newest first.
func (s *SQLiteStore) List(ctx context.Context, q Query) ([]model.CaseFile, error) {
	var conditions []string
	var args []interface{}

	if q.Agenzia != nil {
		if *q.Agenzia == "" {
			conditions = append(conditions, "(agenzia IS NULL OR agenzia = '')")
		} else {
			conditions = append(conditions, "agenzia = ?")
			args = append(args, *q.Agenzia)
		}
	}
	if q.Stato != nil {
		conditions = append(conditions, "stato = ?")
		args = append(args, string(*q.Stato))
	}
	if q.Search != "" {
		conditions = append(conditions, "(codice LIKE ? OR cliente LIKE ? OR indirizzo LIKE ?)")
		like := "%" + q.Search + "%"
		args = append(args, like, like, like)
	}

	query := "SELECT * FROM case_files"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY data_creazione DESC, codice DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var rows []caseFileRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	out := make([]model.CaseFile, 0, len(rows))
	for _, r := range rows {
		cf, err := r.caseFile()
		if err != nil {
			return nil, err
		}
		out = append(out, cf)
	}
	return out, nil
}

// Update applies partial updates to the stored document in one transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "update", ID: id, Err: fmt.Errorf("beginning transaction: %w", err)}
	}
	defer tx.Rollback()

	var raw string
	err = tx.GetContext(ctx, &raw, "SELECT document FROM case_files WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return &PersistenceError{Op: "update", ID: id, Err: err}
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return &PersistenceError{Op: "update", ID: id, Err: err}
	}
	for _, u := range updates {
		if err := setPath(doc, u.Path, u.Value); err != nil {
			return &PersistenceError{Op: "update", ID: id, Err: err}
		}
	}

	// Round-trip through JSON so the document is validated in the same
	// shape it will be read back in.
	row, err := rowFromDocument(id, doc)
	if err != nil {
		return &PersistenceError{Op: "update", ID: id, Err: err}
	}
	check, err := decodeDocument(row.Document)
	if err == nil {
		_, err = model.DecodeCaseFile(id, check)
	}
	if err != nil {
		return &PersistenceError{Op: "update", ID: id, Err: err}
	}

	_, err = tx.NamedExecContext(ctx, `
		UPDATE case_files SET
			codice = :codice, cliente = :cliente, indirizzo = :indirizzo,
			agenzia = :agenzia, stato = :stato,
			data_creazione = :data_creazione,
			data_ultima_modifica = :data_ultima_modifica,
			document = :document
		WHERE id = :id`, row)
	if err != nil {
		return &PersistenceError{Op: "update", ID: id, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "update", ID: id, Err: err}
	}

	s.notify(ctx)
	return nil
}

// Delete removes a case file by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM case_files WHERE id = ?", id)
	if err != nil {
		return &PersistenceError{Op: "delete", ID: id, Err: err}
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}

	s.notify(ctx)
	return nil
}

// Subscribe sends the current result of q and a fresh one after every
// write. A slow reader only ever sees the latest result.
func (s *SQLiteStore) Subscribe(ctx context.Context, q Query) (<-chan []model.CaseFile, error) {
	initial, err := s.List(ctx, q)
	if err != nil {
		return nil, err
	}

	sub := &subscription{q: q, ch: make(chan []model.CaseFile, 1)}
	sub.ch <- initial

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			close(sub.ch)
			delete(s.subs, id)
		}
	}()

	return sub.ch, nil
}

// notify re-runs every subscribed query.
func (s *SQLiteStore) notify(ctx context.Context) {
	s.mu.Lock()
	subs := make(map[int]*subscription, len(s.subs))
	for id, sub := range s.subs {
		subs[id] = sub
	}
	s.mu.Unlock()

	for id, sub := range subs {
		cfs, err := s.List(context.WithoutCancel(ctx), sub.q)
		if err != nil {
			s.logger.Warn("refreshing subscription", "subscription", id, "error", err)
			continue
		}

		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			// Replace a result the reader has not picked up yet.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- cfs
		}
		s.mu.Unlock()
	}
}

// CreateNotification inserts a new notification record.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, case_file_id, task_id, kind, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.CaseFileID, n.TaskID, n.Kind, n.Message,
		boolToInt(n.Read), n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	return nil
}

// GetUnreadNotifications retrieves all notifications that have not been read,
// ordered by creation time descending.
func (s *SQLiteStore) GetUnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	var notifications []model.Notification
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM notifications WHERE read = 0 ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// rowFromDocument serializes doc and mirrors its list columns.
func rowFromDocument(id string, doc map[string]any) (caseFileRow, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return caseFileRow{}, fmt.Errorf("marshaling document: %w", err)
	}
	cf, err := model.DecodeCaseFile(id, doc)
	if err != nil {
		return caseFileRow{}, err
	}
	return caseFileRow{
		ID:                 id,
		Codice:             cf.Codice,
		Cliente:            cf.Cliente,
		Indirizzo:          cf.Indirizzo,
		Agenzia:            sql.NullString{String: cf.Agenzia, Valid: cf.Agenzia != ""},
		Stato:              string(cf.Stato),
		DataCreazione:      cf.DataCreazione.UTC(),
		DataUltimaModifica: cf.DataUltimaModifica.UTC(),
		Document:           string(data),
	}, nil
}

func (r caseFileRow) caseFile() (model.CaseFile, error) {
	doc, err := decodeDocument(r.Document)
	if err != nil {
		return model.CaseFile{}, &PersistenceError{Op: "decode", ID: r.ID, Err: err}
	}
	cf, err := model.DecodeCaseFile(r.ID, doc)
	if err != nil {
		return model.CaseFile{}, &PersistenceError{Op: "decode", ID: r.ID, Err: err}
	}
	return cf, nil
}

// decodeDocument parses stored JSON keeping numbers exact.
func decodeDocument(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	doc := make(map[string]any)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	return doc, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
