// Package logging provides structured logging for Laundry Core.
//
// It wraps the standard library's log/slog with configuration-driven
// handler selection (JSON or text), level filtering, and default
// service/version attributes on every record.
//
// Components that need logging should accept a minimal Logger interface
// (Debug/Info/Warn/Error) rather than this concrete type, so tests can
// plug in a noop implementation.
package logging
