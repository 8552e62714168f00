// Package oplog assembles and stores machine cycle reports.
//
// Controllers emit a log fragment at cycle start and another at cycle end.
// The Accumulator pairs the halves per controller channel, stamps each with
// a server-side receipt time, merges them into one document, and flushes it
// to the Sink (SQLite). Fragments whose counterpart never arrives are
// evicted on a TTL so a restarting controller cannot leak memory here.
package oplog
