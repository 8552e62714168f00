// Package appversion tracks the minimum mobile app version per platform,
// letting the app prompt or force an upgrade on launch.
package appversion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Platforms recognised by the version check.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// Version is the published app version for one platform.
type Version struct {
	Platform  string    `json:"platform"`
	Version   string    `json:"version"`
	Required  bool      `json:"required"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Domain errors for the appversion package.
var (
	// ErrPlatformNotFound is returned when no version is recorded for a platform.
	ErrPlatformNotFound = errors.New("appversion: platform not found")

	// ErrInvalidPlatform is returned for an unrecognised platform name.
	ErrInvalidPlatform = errors.New("appversion: invalid platform")
)

// ValidPlatform reports whether p is a recognised platform name.
func ValidPlatform(p string) bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// Repository persists app versions.
type Repository interface {
	// Get returns the version record for a platform.
	Get(ctx context.Context, platform string) (*Version, error)

	// Set creates or replaces the version record for a platform.
	Set(ctx context.Context, v *Version) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed version store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the version record for a platform.
func (r *SQLiteRepository) Get(ctx context.Context, platform string) (*Version, error) {
	if !ValidPlatform(platform) {
		return nil, ErrInvalidPlatform
	}

	var (
		v         Version
		required  int
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT platform, version, required, updated_at
		FROM app_versions
		WHERE platform = ?`,
		platform,
	).Scan(&v.Platform, &v.Version, &required, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlatformNotFound
		}
		return nil, fmt.Errorf("querying app version: %w", err)
	}

	v.Required = required != 0
	if v.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &v, nil
}

// Set creates or replaces the version record for a platform.
func (r *SQLiteRepository) Set(ctx context.Context, v *Version) error {
	if !ValidPlatform(v.Platform) {
		return ErrInvalidPlatform
	}

	v.UpdatedAt = time.Now().UTC()

	required := 0
	if v.Required {
		required = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_versions (platform, version, required, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform) DO UPDATE SET
			version = excluded.version,
			required = excluded.required,
			updated_at = excluded.updated_at`,
		v.Platform, v.Version, required, v.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting app version: %w", err)
	}
	return nil
}
