// Package outbox persists queued capsule entries and drives their retry
// lifecycle.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"capsulemail/internal/model"
)

// ErrNotFound is returned when no entry exists for the given ID.
var ErrNotFound = errors.New("outbox: entry not found")

// Store keeps capsule entries in a local SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at the given path and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id            TEXT PRIMARY KEY,
	child_id      TEXT NOT NULL,
	child_name    TEXT NOT NULL,
	child_email   TEXT NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	photo_uris    TEXT NOT NULL DEFAULT '[]',
	created_at    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT '',
	day_number    INTEGER NOT NULL DEFAULT 0,
	age           TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL,
	body          TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const entryColumns = "id, child_id, child_name, child_email, text, photo_uris, created_at, status, error_message, day_number, age, subject, body"

func scanEntry(row interface{ Scan(...any) error }) (model.CapsuleEntry, error) {
	var e model.CapsuleEntry
	var photoJSON string
	err := row.Scan(&e.ID, &e.ChildID, &e.ChildName, &e.ChildEmail, &e.Text, &photoJSON,
		&e.CreatedAt, &e.Status, &e.ErrorMessage, &e.DayNumber, &e.Age, &e.Subject, &e.Body)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(photoJSON), &e.PhotoURIs); err != nil {
		return e, fmt.Errorf("decode photo uris for %s: %w", e.ID, err)
	}
	return e, nil
}

func encodePhotoURIs(uris []string) (string, error) {
	if uris == nil {
		uris = []string{}
	}
	b, err := json.Marshal(uris)
	if err != nil {
		return "", fmt.Errorf("encode photo uris: %w", err)
	}
	return string(b), nil
}

// Add inserts a new entry.
func (s *Store) Add(ctx context.Context, e model.CapsuleEntry) error {
	photoJSON, err := encodePhotoURIs(e.PhotoURIs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ChildID, e.ChildName, e.ChildEmail, e.Text, photoJSON,
		e.CreatedAt, e.Status, e.ErrorMessage, e.DayNumber, e.Age, e.Subject, e.Body)
	return err
}

// Get returns a single entry by ID.
func (s *Store) Get(ctx context.Context, id string) (model.CapsuleEntry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// List returns all entries, oldest first. Ties on created_at break by ID so
// the order is stable.
func (s *Store) List(ctx context.Context) ([]model.CapsuleEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.CapsuleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Patch describes a partial update; nil fields are left untouched.
type Patch struct {
	Status       *model.Status
	ErrorMessage *string
	PhotoURIs    *[]string
}

// Update applies a patch to the entry with the given ID.
func (s *Store) Update(ctx context.Context, id string, p Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.ErrorMessage != nil {
		e.ErrorMessage = *p.ErrorMessage
	}
	if p.PhotoURIs != nil {
		e.PhotoURIs = *p.PhotoURIs
	}

	photoJSON, err := encodePhotoURIs(e.PhotoURIs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE entries SET status = ?, error_message = ?, photo_uris = ? WHERE id = ?
	`, e.Status, e.ErrorMessage, photoJSON, id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Remove deletes the entry with the given ID. Removing an absent entry is not
// an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	return err
}

// PendingCount counts entries still awaiting a successful send. Failed
// entries count too since they remain retryable.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE status IN (?, ?)",
		model.StatusPending, model.StatusFailed).Scan(&count)
	return count, err
}

// ReplacePhotoURI swaps one photo reference on an entry, used when the user
// re-selects a photo whose original picker URI expired.
func (s *Store) ReplacePhotoURI(ctx context.Context, id, oldURI, newURI string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	replaced := false
	uris := make([]string, len(e.PhotoURIs))
	for i, u := range e.PhotoURIs {
		if u == oldURI {
			uris[i] = newURI
			replaced = true
		} else {
			uris[i] = u
		}
	}
	if !replaced {
		return fmt.Errorf("outbox: entry %s has no photo %s", id, oldURI)
	}
	return s.Update(ctx, id, Patch{PhotoURIs: &uris})
}
