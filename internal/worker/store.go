package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/sqlitedb"
)

// Store is the worker's durable notification store. It survives every UI
// instance being closed.
type Store struct {
	db *sqlx.DB
}

type notificationRow struct {
	ID        string `db:"id"`
	BookingID int64  `db:"booking_id"`
	Priority  string `db:"priority"`
	IsRead    bool   `db:"is_read"`
	TsMs      int64  `db:"ts_ms"`
	Payload   string `db:"payload"`
}

// NewStore opens (or creates) a SQLite database at dbPath and runs any
// pending schema migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlitedb.Open(dbPath, migrations)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const upsertQuery = `
	INSERT OR REPLACE INTO notifications (
		id, booking_id, priority, is_read, ts_ms, payload
	) VALUES (
		:id, :booking_id, :priority, :is_read, :ts_ms, :payload
	)`

func toRow(n model.Notification) (notificationRow, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return notificationRow{}, fmt.Errorf("marshaling notification %s: %w", n.ID, err)
	}
	return notificationRow{
		ID:        n.ID,
		BookingID: n.BookingID,
		Priority:  string(n.Priority),
		IsRead:    n.IsRead,
		TsMs:      n.Timestamp.UnixMilli(),
		Payload:   string(payload),
	}, nil
}

// Put inserts or replaces n.
func (s *Store) Put(ctx context.Context, n model.Notification) error {
	row, err := toRow(n)
	if err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, upsertQuery, row); err != nil {
		return fmt.Errorf("storing notification %s: %w", n.ID, err)
	}
	return nil
}

// Replace makes list the complete stored set.
func (s *Store) Replace(ctx context.Context, list []model.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}

	for _, n := range list {
		row, err := toRow(n)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, upsertQuery, row); err != nil {
			return fmt.Errorf("storing notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// List returns up to limit notifications, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, booking_id, priority, is_read, ts_ms, payload FROM notifications ORDER BY ts_ms DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	list := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		var n model.Notification
		if err := json.Unmarshal([]byte(r.Payload), &n); err != nil {
			// A single bad row must not hide the rest.
			continue
		}
		list = append(list, n)
	}
	return list, nil
}

// Prune deletes notifications older than before and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE ts_ms < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of stored notifications.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM notifications"); err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return n, nil
}
