// Package influxdb provides time-series telemetry storage for Laundry Core.
//
// Controllers report per-channel current readings in their diagnostics
// frames; the state engine emits a point per transition. InfluxDB is the
// analytics store for that data (usage curves, stuck-machine detection),
// while SQLite remains the record store for devices and logs.
//
// Telemetry is optional: when disabled in config, Connect returns
// ErrDisabled and the rest of the system runs unchanged.
//
// Writes are non-blocking and batched. Async write failures surface
// through the SetOnError callback.
package influxdb
