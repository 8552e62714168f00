package oplog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Logger is the minimal logging interface the accumulator needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Phase sub-objects carried in controller log fragments.
const (
	phaseStart = "START"
	phaseEnd   = "END"
)

// localTimeField is the server-stamped receive time written into each
// phase sub-object.
const localTimeField = "local_time"

// pending is a half-assembled cycle report waiting for its other phase.
type pending struct {
	hwid      string
	deviceID  int
	doc       map[string]any
	startAt   time.Time
	endAt     time.Time
	firstSeen time.Time
}

// Accumulator assembles operation logs from the START and END fragments
// controllers emit around a machine cycle.
//
// A fragment is a JSON document carrying a START and/or END sub-object.
// Fragments are keyed by hwid and device ID; each is shallow-merged at the
// document level into any pending document for the same key, with the new
// fragment's top-level fields winning. START is stamped with a server-side
// local time at receipt (controllers have no reliable clock), END at flush.
// Once both sub-objects are present the merged document is flushed to the
// Sink exactly once and the pending entry dropped. Fragments whose
// counterpart never arrives are evicted by the TTL sweep.
type Accumulator struct {
	sink   Sink
	logger Logger

	mu      sync.Mutex
	entries map[string]*pending

	ttl time.Duration

	// now is replaceable for tests.
	now func() time.Time
}

// NewAccumulator creates an accumulator flushing completed logs to sink.
// Fragments older than ttl with a missing counterpart are evicted by Sweep.
func NewAccumulator(sink Sink, ttl time.Duration, logger Logger) *Accumulator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Accumulator{
		sink:    sink,
		logger:  logger,
		entries: make(map[string]*pending),
		ttl:     ttl,
		now:     time.Now,
	}
}

// key builds the pending-map key for a controller channel.
func key(hwid string, deviceID int) string {
	return fmt.Sprintf("%s_%d", hwid, deviceID)
}

// asObject narrows a decoded JSON value to an object, if it is one.
func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

// Ingest processes one raw log fragment from a controller.
//
// Malformed JSON is dropped with a warning. Any well-formed document is
// merged, even one carrying neither phase; only the phase sub-objects
// drive stamping and flushing. The flush to the sink happens outside the
// accumulator lock, so a slow database write never blocks other
// controllers' fragments.
func (a *Accumulator) Ingest(ctx context.Context, hwid string, deviceID int, raw []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		a.logger.Warn("dropping malformed log fragment",
			"hwid", hwid,
			"device_id", deviceID,
			"error", err,
		)
		return nil
	}

	now := a.now()
	if sub, ok := asObject(doc[phaseStart]); ok {
		sub[localTimeField] = now.Format(time.RFC3339)
	}

	complete := a.merge(hwid, deviceID, doc, now)
	if complete == nil {
		return nil
	}

	payload, err := json.Marshal(complete.doc)
	if err != nil {
		return fmt.Errorf("marshalling merged log: %w", err)
	}

	entry := &Entry{
		DeviceID:  complete.deviceID,
		HWID:      complete.hwid,
		StartTime: complete.startAt,
		EndTime:   complete.endAt,
		Payload:   string(payload),
	}
	if err := a.sink.Save(ctx, entry); err != nil {
		// The pending entry is already gone; the log is lost rather
		// than retried, keeping the flush at-most-once.
		a.logger.Error("failed to flush operation log",
			"hwid", hwid,
			"device_id", deviceID,
			"error", err,
		)
		return nil
	}

	a.logger.Debug("operation log flushed",
		"hwid", hwid,
		"device_id", deviceID,
		"entry_id", entry.ID,
	)
	return nil
}

// merge folds a stamped fragment into the pending map. It returns the
// completed entry (removed from the map) when both phase sub-objects are
// present, or nil while still waiting.
func (a *Accumulator) merge(hwid string, deviceID int, doc map[string]any, now time.Time) *pending {
	k := key(hwid, deviceID)

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.entries[k]
	if !ok {
		p = &pending{
			hwid:      hwid,
			deviceID:  deviceID,
			doc:       make(map[string]any),
			firstSeen: now,
		}
		a.entries[k] = p
	}

	for name, value := range doc {
		p.doc[name] = value
	}
	if _, ok := doc[phaseStart]; ok {
		p.startAt = now
	}

	_, gotStart := p.doc[phaseStart]
	_, gotEnd := p.doc[phaseEnd]
	if !gotStart || !gotEnd {
		return nil
	}

	// END is stamped at flush, so the stored interval covers receipt of
	// the first START through completion of the pair.
	if sub, ok := asObject(p.doc[phaseEnd]); ok {
		sub[localTimeField] = now.Format(time.RFC3339)
	}
	p.endAt = now
	delete(a.entries, k)
	return p
}

// Sweep evicts pending fragments older than the TTL and returns how many
// were dropped. Orphans accumulate when a controller restarts mid-cycle
// and the END half never arrives.
func (a *Accumulator) Sweep() int {
	cutoff := a.now().Add(-a.ttl)

	a.mu.Lock()
	defer a.mu.Unlock()

	evicted := 0
	for k, p := range a.entries {
		if p.firstSeen.Before(cutoff) {
			delete(a.entries, k)
			evicted++
			a.logger.Warn("evicting orphaned log fragment",
				"hwid", p.hwid,
				"device_id", p.deviceID,
				"age", a.now().Sub(p.firstSeen).String(),
			)
		}
	}
	return evicted
}

// Run performs TTL sweeps on the given interval until ctx is cancelled.
func (a *Accumulator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Sweep()
		}
	}
}

// PendingCount returns the number of half-assembled entries, for the
// status surface.
func (a *Accumulator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
