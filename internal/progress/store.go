package progress

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/navigator/codebook/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS progress (
	user_id    TEXT PRIMARY KEY,
	rank       TEXT NOT NULL DEFAULT '',
	total_xp   INTEGER NOT NULL DEFAULT 0,
	data       TEXT NOT NULL DEFAULT '{}',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_progress_xp ON progress(total_xp);
`

// Store persists progress records.
type Store interface {
	Load(userID string) (*Progress, error)
	Save(p *Progress) error
	Delete(userID string) error
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// DB is the SQLite-backed Store.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("progress: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("progress: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("progress: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Load reads the record of userID. A missing record wraps apperr.ErrNotFound.
func (db *DB) Load(userID string) (*Progress, error) {
	var data string
	err := db.conn.QueryRow(`SELECT data FROM progress WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("progress: user %s: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("progress: load: %w", err)
	}
	var p Progress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("progress: decode %s: %w", userID, err)
	}
	return &p, nil
}

// Save inserts or replaces a record within a transaction.
func (db *DB) Save(p *Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("progress: encode: %w", err)
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("progress: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO progress (user_id, rank, total_xp, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			rank       = excluded.rank,
			total_xp   = excluded.total_xp,
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, p.UserID, p.Rank, p.TotalXP, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("progress: upsert: %w", err)
	}
	return tx.Commit()
}

// Delete removes a record. Deleting a missing record is not an error.
func (db *DB) Delete(userID string) error {
	if _, err := db.conn.Exec(`DELETE FROM progress WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("progress: delete: %w", err)
	}
	return nil
}

// Leaderboard returns up to limit user IDs ordered by XP, highest first.
func (db *DB) Leaderboard(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(`
		SELECT user_id, rank, total_xp
		FROM progress
		ORDER BY total_xp DESC, user_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("progress: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.Rank, &e.TotalXP); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Entry is one leaderboard row.
type Entry struct {
	UserID  string `json:"userId"`
	Rank    string `json:"rank"`
	TotalXP int    `json:"totalXP"`
}
