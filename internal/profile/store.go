// Package profile manages child recipient profiles and the day/age math
// derived from their birthdays.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"capsulemail/internal/model"
	"capsulemail/internal/util"
)

// ErrNotFound is returned when no profile exists for the given ID.
var ErrNotFound = errors.New("profile: not found")

// ErrInvalidEmail is returned when a profile's address fails validation. A
// bad address would strand every entry for this child in the outbox.
var ErrInvalidEmail = errors.New("profile: invalid email address")

// Store keeps child profiles in a local SQLite database.
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
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	birthday   TEXT NOT NULL,
	email      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0
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

const profileColumns = "id, name, birthday, email, created_at, is_default"

func scanProfile(row interface{ Scan(...any) error }) (model.ChildProfile, error) {
	var p model.ChildProfile
	err := row.Scan(&p.ID, &p.Name, &p.Birthday, &p.Email, &p.CreatedAt, &p.IsDefault)
	return p, err
}

// List returns all profiles, oldest first.
func (s *Store) List(ctx context.Context) ([]model.ChildProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM profiles ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []model.ChildProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Get returns a single profile by ID.
func (s *Store) Get(ctx context.Context, id string) (model.ChildProfile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = ?", id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// Save inserts a new profile, assigning an ID and creation time when absent.
// The first profile ever saved becomes the default.
func (s *Store) Save(ctx context.Context, p model.ChildProfile) (model.ChildProfile, error) {
	if !util.ValidEmail(p.Email) {
		return p, fmt.Errorf("%w: %q", ErrInvalidEmail, p.Email)
	}
	p.Email = util.NormalizeEmail(p.Email)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles").Scan(&count); err != nil {
		return p, err
	}
	if count == 0 {
		p.IsDefault = true
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Birthday, p.Email, p.CreatedAt, p.IsDefault)
	return p, err
}

// Update rewrites an existing profile's editable fields.
func (s *Store) Update(ctx context.Context, p model.ChildProfile) error {
	if !util.ValidEmail(p.Email) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, p.Email)
	}
	p.Email = util.NormalizeEmail(p.Email)
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET name = ?, birthday = ?, email = ? WHERE id = ?
	`, p.Name, p.Birthday, p.Email, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a profile. If it was the default, the oldest remaining
// profile is promoted so there is always a default while any profile exists.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var wasDefault bool
	err = tx.QueryRowContext(ctx, "SELECT is_default FROM profiles WHERE id = ?", id).Scan(&wasDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?", id); err != nil {
		return err
	}

	if wasDefault {
		_, err = tx.ExecContext(ctx, `
			UPDATE profiles SET is_default = 1 WHERE id = (
				SELECT id FROM profiles ORDER BY created_at ASC, id ASC LIMIT 1
			)
		`)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetDefault marks one profile as the default recipient and clears the flag
// everywhere else.
func (s *Store) SetDefault(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE profiles SET is_default = (id = ?)", id)
	if err != nil {
		return err
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// DefaultChild returns the default recipient, or nil when no profiles exist.
func (s *Store) DefaultChild(ctx context.Context) (*model.ChildProfile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE is_default = 1 ORDER BY created_at ASC LIMIT 1")
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
