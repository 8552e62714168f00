package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/openlaundry/laundry-core/internal/device"
)

// Logger is the minimal logging interface the gateway needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConnTelemetry receives connection lifecycle events.
// Implemented by the influxdb client; nil disables emission.
type ConnTelemetry interface {
	WriteConnectionEvent(hwid string, event string)
}

// unit is one connected controller board and its channel wiring.
type unit struct {
	hwid string
	conn Conn

	// ch1 and ch2 are the device IDs wired to the board's channels.
	// ch2 is 0 for single-channel boards.
	ch1 int
	ch2 int

	// alive is cleared by each sweep and set again by any inbound
	// traffic. A unit that stays cleared across a full sweep interval
	// has missed two probes and is evicted.
	alive       bool
	lastMessage time.Time
}

// channels returns the device IDs driven by this unit.
func (u *unit) channels() []int {
	if u.ch2 > 0 {
		return []int{u.ch1, u.ch2}
	}
	return []int{u.ch1}
}

// UnitInfo is a point-in-time view of a connected controller.
type UnitInfo struct {
	HWID        string    `json:"hwid"`
	Ch1         int       `json:"ch1"`
	Ch2         int       `json:"ch2,omitempty"`
	LastMessage time.Time `json:"last_message"`
}

// Registry tracks live controller connections keyed by hardware ID and
// drives connectivity-based state transitions through the state engine.
//
// Connection rules:
//   - One connection per hwid; a newer connection supersedes the old one,
//     which is closed without marking its devices disconnected (the
//     channels stay live under the new connection).
//   - Eviction and explicit disconnect mark every wired device
//     disconnected; a fresh connect restores their pre-disconnect state.
//
// All engine and network I/O happens outside the registry lock.
type Registry struct {
	engine    *device.StateEngine
	logger    Logger
	telemetry ConnTelemetry

	// OnTransition, when set, is invoked with each device record that
	// changed state through a connect, disconnect, or eviction. The api
	// layer uses it to fan state out to observers and MQTT.
	OnTransition func(d *device.Device)

	mu    sync.Mutex
	units map[string]*unit
}

// NewRegistry creates a connection registry. telemetry may be nil.
func NewRegistry(engine *device.StateEngine, telemetry ConnTelemetry, logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		engine:    engine,
		logger:    logger,
		telemetry: telemetry,
		units:     make(map[string]*unit),
	}
}

// Connect registers a controller connection.
//
// hwid and ch1 are mandatory; ch2 is 0 for single-channel boards. Any
// existing connection for the same hwid is closed and replaced. Each wired
// device is moved back to its pre-disconnect state.
func (r *Registry) Connect(ctx context.Context, hwid string, ch1, ch2 int, conn Conn) error {
	if hwid == "" {
		return ErrMissingHWID
	}
	if ch1 <= 0 {
		return ErrMissingChannel
	}

	u := &unit{
		hwid:        hwid,
		conn:        conn,
		ch1:         ch1,
		ch2:         ch2,
		alive:       true,
		lastMessage: time.Now(),
	}

	r.mu.Lock()
	prev := r.units[hwid]
	r.units[hwid] = u
	r.mu.Unlock()

	if prev != nil {
		// Replaced, not lost: the devices stay connected through the
		// new socket, so no disconnected transition here.
		r.logger.Info("superseding controller connection", "hwid", hwid)
		_ = prev.conn.Close(CloseSuperseded, "superseded by new connection")
	}

	for _, id := range u.channels() {
		d, err := r.engine.ApplyReconnection(ctx, id)
		if err != nil {
			r.logger.Warn("reconnection transition failed",
				"hwid", hwid,
				"device_id", id,
				"error", err,
			)
			continue
		}
		r.notify(d)
	}

	r.logger.Info("controller connected", "hwid", hwid, "ch1", ch1, "ch2", ch2)
	if r.telemetry != nil {
		r.telemetry.WriteConnectionEvent(hwid, "connected")
	}
	return nil
}

// Disconnect removes a controller connection and marks its devices
// disconnected.
//
// The conn argument makes the call idempotent against races with
// Connect: if the hwid has already been taken over by a newer
// connection, the stale disconnect is a no-op.
func (r *Registry) Disconnect(ctx context.Context, hwid string, conn Conn) {
	r.mu.Lock()
	u, ok := r.units[hwid]
	if !ok || (conn != nil && u.conn != conn) {
		r.mu.Unlock()
		return
	}
	delete(r.units, hwid)
	r.mu.Unlock()

	r.markChannelsLost(ctx, u, "disconnected")
}

// markChannelsLost applies connection-loss transitions for a removed unit.
func (r *Registry) markChannelsLost(ctx context.Context, u *unit, event string) {
	for _, id := range u.channels() {
		d, err := r.engine.ApplyConnectionLoss(ctx, id)
		if err != nil {
			r.logger.Warn("connection loss transition failed",
				"hwid", u.hwid,
				"device_id", id,
				"error", err,
			)
			continue
		}
		r.notify(d)
	}

	r.logger.Info("controller gone", "hwid", u.hwid, "event", event)
	if r.telemetry != nil {
		r.telemetry.WriteConnectionEvent(u.hwid, event)
	}
}

// Touch records inbound traffic from a controller, keeping it alive
// across the next sweep.
func (r *Registry) Touch(hwid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.units[hwid]; ok {
		u.alive = true
		u.lastMessage = time.Now()
	}
}

// DeviceIDsFor returns the device IDs wired to a connected controller.
func (r *Registry) DeviceIDsFor(hwid string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[hwid]
	if !ok {
		return nil, ErrUnitNotFound
	}
	return u.channels(), nil
}

// Send writes a JSON message to a connected controller.
func (r *Registry) Send(hwid string, v any) error {
	r.mu.Lock()
	u, ok := r.units[hwid]
	r.mu.Unlock()

	if !ok {
		return ErrUnitNotFound
	}
	return u.conn.WriteJSON(v)
}

// Sweep runs one liveness pass: units that produced no traffic since the
// previous pass are evicted, the rest are flipped to not-alive and pinged.
// A controller therefore has a full interval to answer before the next
// pass evicts it (two missed probes).
func (r *Registry) Sweep(ctx context.Context) {
	var (
		evicted []*unit
		probed  []*unit
	)

	r.mu.Lock()
	for hwid, u := range r.units {
		if !u.alive {
			delete(r.units, hwid)
			evicted = append(evicted, u)
			continue
		}
		u.alive = false
		probed = append(probed, u)
	}
	r.mu.Unlock()

	for _, u := range evicted {
		_ = u.conn.Close(CloseGoingAway, "liveness timeout")
		r.markChannelsLost(ctx, u, "evicted")
	}
	for _, u := range probed {
		if err := u.conn.Ping(); err != nil {
			r.logger.Debug("ping failed", "hwid", u.hwid, "error", err)
		}
	}
}

// Run sweeps on the given interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Snapshot returns a view of all connected controllers for the status
// surface, ordered arbitrarily.
func (r *Registry) Snapshot() []UnitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]UnitInfo, 0, len(r.units))
	for _, u := range r.units {
		infos = append(infos, UnitInfo{
			HWID:        u.hwid,
			Ch1:         u.ch1,
			Ch2:         u.ch2,
			LastMessage: u.lastMessage,
		})
	}
	return infos
}

// notify forwards a changed device record to the transition callback.
func (r *Registry) notify(d *device.Device) {
	if r.OnTransition != nil && d != nil {
		r.OnTransition(d)
	}
}
