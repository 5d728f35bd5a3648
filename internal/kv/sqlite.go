package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/paddledesk/internal/sqlitedb"
)

// SQLite persists items in a local database file so they survive restarts.
// Change events reach tabs opened on the same *SQLite value.
type SQLite struct {
	db  *sqlx.DB
	hub *hub
}

// NewSQLite opens (or creates) the database at dbPath and brings its schema
// up to date.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sqlitedb.Open(dbPath, migrations)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db, hub: newHub()}, nil
}

// Open returns a new tab on s.
func (s *SQLite) Open() *Tab {
	return newTab(s)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM items WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading item %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) set(ctx context.Context, key, value, origin string) error {
	const query = `
		INSERT INTO items (key, value, origin, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			origin = excluded.origin,
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, key, value, origin, time.Now().UTC()); err != nil {
		return fmt.Errorf("writing item %s: %w", key, err)
	}

	s.hub.publish(Event{Key: key, Origin: origin})
	return nil
}

func (s *SQLite) remove(ctx context.Context, key, origin string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("removing item %s: %w", key, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.hub.publish(Event{Key: key, Origin: origin})
	}
	return nil
}

func (s *SQLite) watchers() *hub {
	return s.hub
}
