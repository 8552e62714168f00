// Package database provides SQLite persistence for Laundry Core.
//
// The package wraps database/sql with lifecycle management (Open, Close,
// HealthCheck) and an embedded-filesystem migration runner. Migrations are
// plain SQL files named VERSION_description.up.sql / .down.sql, compiled
// into the binary by the top-level migrations package and applied in
// version order on startup.
//
// SQLite is opened with WAL journaling and a single-connection pool: the
// engine supports one writer, and serialising access through sql.DB avoids
// SQLITE_BUSY churn under concurrent device updates.
package database
