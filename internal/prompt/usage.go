package prompt

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteUsage persists prompt rotation state in a local SQLite database.
type SQLiteUsage struct {
	db *sql.DB
}

// NewSQLiteUsage opens (or creates) the database at the given path and runs migrations.
func NewSQLiteUsage(dbPath string) (*SQLiteUsage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS used_prompts (
	id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLiteUsage{db: db}, nil
}

func (s *SQLiteUsage) Close() error {
	return s.db.Close()
}

func (s *SQLiteUsage) UsedIDs(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM used_prompts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	used := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		used[id] = true
	}
	return used, rows.Err()
}

func (s *SQLiteUsage) MarkUsed(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO used_prompts (id) VALUES (?)", id)
	return err
}

// SetCurrent remembers the prompt shown on the compose screen so it survives
// an app restart mid-draft.
func (s *SQLiteUsage) SetCurrent(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES ('current_prompt', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fmt.Sprint(id))
	return err
}

// Current returns the remembered prompt ID, or 0 when none is set.
func (s *SQLiteUsage) Current(ctx context.Context) (int, error) {
	var val int
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = 'current_prompt'").Scan(&val)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return val, err
}

// ClearCurrent forgets the remembered prompt, called after a send.
func (s *SQLiteUsage) ClearCurrent(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM metadata WHERE key = 'current_prompt'")
	return err
}
