package oplog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry is a completed operation log: the merged START and END halves of
// one machine cycle, as reported by the controller.
type Entry struct {
	ID       int64  `json:"id"`
	DeviceID int    `json:"device_id"`
	HWID     string `json:"hwid"`

	// StartTime and EndTime are the server-stamped receipt times of the
	// cycle's START and END halves.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Payload is the merged cycle report as a JSON document. Field names
	// come from the controller firmware and are stored verbatim; the START
	// and END sub-objects additionally carry a server-stamped local_time.
	Payload string `json:"payload"`

	CreatedAt time.Time `json:"created_at"`
}

// Domain errors for the oplog package.
var (
	// ErrEntryNotFound is returned when a log entry ID does not exist.
	ErrEntryNotFound = errors.New("oplog: entry not found")
)

// Sink persists completed operation logs.
type Sink interface {
	// Save writes a completed entry and fills in its ID.
	Save(ctx context.Context, entry *Entry) error

	// List returns the most recent entries, newest first.
	List(ctx context.Context, limit, offset int) ([]Entry, error)

	// GetByID returns a single entry.
	// Returns ErrEntryNotFound if it does not exist.
	GetByID(ctx context.Context, id int64) (*Entry, error)
}

// SQLiteSink implements Sink using SQLite.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink creates a SQLite-backed operation log sink.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

// Save writes a completed entry and fills in its ID.
func (s *SQLiteSink) Save(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO device_logs (device_id, hwid, start_time, end_time, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.DeviceID, entry.HWID,
		entry.StartTime.Format(time.RFC3339),
		entry.EndTime.Format(time.RFC3339),
		entry.Payload,
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading log entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns the most recent entries, newest first.
func (s *SQLiteSink) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, hwid, start_time, end_time, payload, created_at
		FROM device_logs
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying log entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                             Entry
			startTime, endTime, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.HWID, &startTime, &endTime, &e.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		if e.StartTime, err = time.Parse(time.RFC3339, startTime); err != nil {
			return nil, fmt.Errorf("parsing start_time: %w", err)
		}
		if e.EndTime, err = time.Parse(time.RFC3339, endTime); err != nil {
			return nil, fmt.Errorf("parsing end_time: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log entries: %w", err)
	}
	return entries, nil
}

// GetByID returns a single entry.
func (s *SQLiteSink) GetByID(ctx context.Context, id int64) (*Entry, error) {
	var (
		e                             Entry
		startTime, endTime, createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, hwid, start_time, end_time, payload, created_at
		FROM device_logs
		WHERE id = ?`,
		id,
	).Scan(&e.ID, &e.DeviceID, &e.HWID, &startTime, &endTime, &e.Payload, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying log entry: %w", err)
	}
	if e.StartTime, err = time.Parse(time.RFC3339, startTime); err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	if e.EndTime, err = time.Parse(time.RFC3339, endTime); err != nil {
		return nil, fmt.Errorf("parsing end_time: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &e, nil
}
