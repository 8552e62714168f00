package push

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openlaundry/laundry-core/internal/device"
)

// Subscription is a one-shot push registration: notify this token when
// the device reaches the expected state, then forget it.
type Subscription struct {
	ID          int64        `json:"id"`
	Token       string       `json:"token"`
	DeviceID    int          `json:"device_id"`
	ExpectState device.State `json:"expect_state"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Domain errors for the push package.
var (
	// ErrSubscriptionExists is returned when the same token already
	// watches the same device for the same state.
	ErrSubscriptionExists = errors.New("push: subscription already exists")

	// ErrSubscriptionNotFound is returned when no matching subscription exists.
	ErrSubscriptionNotFound = errors.New("push: subscription not found")
)

// Repository persists push subscriptions.
type Repository interface {
	// Create registers a subscription.
	// Returns ErrSubscriptionExists on a duplicate (token, device, state) triple.
	Create(ctx context.Context, sub *Subscription) error

	// ListByToken returns all subscriptions held by a token.
	ListByToken(ctx context.Context, token string) ([]Subscription, error)

	// FindByDeviceAndState returns every subscription waiting for the
	// device to reach the given state.
	FindByDeviceAndState(ctx context.Context, deviceID int, state device.State) ([]Subscription, error)

	// Delete removes a token's subscription for one device.
	// Returns ErrSubscriptionNotFound if none matched.
	Delete(ctx context.Context, token string, deviceID int) error

	// DeleteByDeviceAndState removes all subscriptions for a device/state
	// pair. Called after notifications go out; deleting zero rows is fine.
	DeleteByDeviceAndState(ctx context.Context, deviceID int, state device.State) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed subscription store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create registers a subscription.
func (r *SQLiteRepository) Create(ctx context.Context, sub *Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (token, device_id, expect_state, created_at)
		VALUES (?, ?, ?, ?)`,
		sub.Token, sub.DeviceID, int(sub.ExpectState),
		sub.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrSubscriptionExists
		}
		return fmt.Errorf("inserting subscription: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading subscription id: %w", err)
	}
	sub.ID = id
	return nil
}

// ListByToken returns all subscriptions held by a token.
func (r *SQLiteRepository) ListByToken(ctx context.Context, token string) ([]Subscription, error) {
	return r.querySubscriptions(ctx, `
		SELECT id, token, device_id, expect_state, created_at
		FROM push_subscriptions
		WHERE token = ?
		ORDER BY id`,
		token,
	)
}

// FindByDeviceAndState returns subscriptions waiting for a device state.
func (r *SQLiteRepository) FindByDeviceAndState(ctx context.Context, deviceID int, state device.State) ([]Subscription, error) {
	return r.querySubscriptions(ctx, `
		SELECT id, token, device_id, expect_state, created_at
		FROM push_subscriptions
		WHERE device_id = ? AND expect_state = ?
		ORDER BY id`,
		deviceID, int(state),
	)
}

// Delete removes a token's subscription for one device.
func (r *SQLiteRepository) Delete(ctx context.Context, token string, deviceID int) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM push_subscriptions
		WHERE token = ? AND device_id = ?`,
		token, deviceID,
	)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// DeleteByDeviceAndState removes all subscriptions for a device/state pair.
func (r *SQLiteRepository) DeleteByDeviceAndState(ctx context.Context, deviceID int, state device.State) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM push_subscriptions
		WHERE device_id = ? AND expect_state = ?`,
		deviceID, int(state),
	)
	if err != nil {
		return fmt.Errorf("deleting subscriptions: %w", err)
	}
	return nil
}

// querySubscriptions runs a multi-row subscription query.
func (r *SQLiteRepository) querySubscriptions(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var (
			s         Subscription
			state     int
			createdAt string
		)
		if err := rows.Scan(&s.ID, &s.Token, &s.DeviceID, &state, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		s.ExpectState = device.State(state)
		if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}
