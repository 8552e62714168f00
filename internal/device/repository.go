package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int) (*Device, error)

	// List retrieves all devices ordered by view position.
	List(ctx context.Context) ([]Device, error)

	// ListByRoom retrieves all devices in a specific room type.
	ListByRoom(ctx context.Context, roomType string) ([]Device, error)

	// ListByHWID retrieves the devices wired to a controller board.
	ListByHWID(ctx context.Context, hwid string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device's descriptive fields.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// UpdateState persists the state fields of a device: state,
	// prev_state, on_time, off_time. This is the hot path for
	// transitions driven by controller frames.
	UpdateState(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id int) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, view_id, name, kind, room_type, hwid,
		state, prev_state, on_time, off_time, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by view position.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY view_id`
	return r.queryDevices(ctx, query)
}

// ListByRoom retrieves all devices in a specific room type.
func (r *SQLiteRepository) ListByRoom(ctx context.Context, roomType string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE room_type = ? ORDER BY view_id`
	return r.queryDevices(ctx, query, roomType)
}

// ListByHWID retrieves the devices wired to a controller board.
func (r *SQLiteRepository) ListByHWID(ctx context.Context, hwid string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE hwid = ? ORDER BY id`
	return r.queryDevices(ctx, query, hwid)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if device.Name == "" {
		return ErrInvalidName
	}
	if !device.Kind.Valid() {
		return ErrInvalidKind
	}
	if !device.State.Valid() {
		return ErrInvalidState
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID, device.ViewID, device.Name, string(device.Kind),
		device.RoomType, device.HWID,
		int(device.State), int(device.PrevState),
		nullableTime(device.OnTime), nullableTime(device.OffTime),
		device.CreatedAt.Format(time.RFC3339), device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing device's descriptive fields.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	if device.Name == "" {
		return ErrInvalidName
	}
	if !device.Kind.Valid() {
		return ErrInvalidKind
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices
		SET view_id = ?, name = ?, kind = ?, room_type = ?, hwid = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.ViewID, device.Name, string(device.Kind), device.RoomType,
		device.HWID, device.UpdatedAt.Format(time.RFC3339), device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return checkAffected(result)
}

// UpdateState persists the state fields of a device.
func (r *SQLiteRepository) UpdateState(ctx context.Context, device *Device) error {
	if !device.State.Valid() {
		return ErrInvalidState
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices
		SET state = ?, prev_state = ?, on_time = ?, off_time = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		int(device.State), int(device.PrevState),
		nullableTime(device.OnTime), nullableTime(device.OffTime),
		device.UpdatedAt.Format(time.RFC3339), device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	return checkAffected(result)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return checkAffected(result)
}

// queryDevices runs a multi-row device query and scans the results.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a single device row.
func scanDevice(s scanner) (*Device, error) {
	var (
		d                    Device
		kind                 string
		state, prevState     int
		onTime, offTime      sql.NullString
		createdAt, updatedAt string
	)

	err := s.Scan(
		&d.ID, &d.ViewID, &d.Name, &kind, &d.RoomType, &d.HWID,
		&state, &prevState, &onTime, &offTime, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.State = State(state)
	d.PrevState = State(prevState)

	if d.OnTime, err = parseNullTime(onTime); err != nil {
		return nil, fmt.Errorf("parsing on_time: %w", err)
	}
	if d.OffTime, err = parseNullTime(offTime); err != nil {
		return nil, fmt.Errorf("parsing off_time: %w", err)
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

// nullableTime converts an optional time to a driver value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// parseNullTime converts a nullable column back to an optional time.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// checkAffected maps a zero-row update or delete to ErrDeviceNotFound.
func checkAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
