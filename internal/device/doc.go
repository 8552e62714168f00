// Package device holds the laundry machine domain model and the state
// engine that governs transitions between running, available,
// disconnected, and faulted.
//
// Persistence goes through the Repository interface with a SQLite
// implementation; the StateEngine serialises transitions per device
// with striped locks so concurrent controller frames for the same
// machine cannot interleave their read-modify-write cycles.
package device
