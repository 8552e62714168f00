// Package notice stores operator announcements shown in the mobile app
// (maintenance windows, room closures).
package notice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Notice is a single announcement.
type Notice struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Domain errors for the notice package.
var (
	// ErrNoticeNotFound is returned when a notice ID does not exist.
	ErrNoticeNotFound = errors.New("notice: not found")

	// ErrInvalidNotice is returned when a notice has no title.
	ErrInvalidNotice = errors.New("notice: title required")
)

// Repository persists notices.
type Repository interface {
	Create(ctx context.Context, n *Notice) error
	List(ctx context.Context) ([]Notice, error)
	Delete(ctx context.Context, id int64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed notice store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a notice and fills in its ID.
func (r *SQLiteRepository) Create(ctx context.Context, n *Notice) error {
	if n.Title == "" {
		return ErrInvalidNotice
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO notices (title, body, created_at)
		VALUES (?, ?, ?)`,
		n.Title, n.Body, n.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting notice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading notice id: %w", err)
	}
	n.ID = id
	return nil
}

// List returns all notices, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Notice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, body, created_at
		FROM notices
		ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notices: %w", err)
	}
	defer rows.Close()

	var notices []Notice
	for rows.Next() {
		var (
			n         Notice
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notice: %w", err)
		}
		if n.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		notices = append(notices, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notices: %w", err)
	}
	return notices, nil
}

// Delete removes a notice.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting notice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNoticeNotFound
	}
	return nil
}
