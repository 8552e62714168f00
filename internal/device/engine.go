package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// stateLockStripes is the number of mutexes the engine shards device
// transitions across. Device IDs hash onto stripes so independent
// machines never contend while the same machine is serialised.
const stateLockStripes = 64

// Telemetry receives a point per state transition. Implemented by the
// influxdb client; nil disables emission.
type Telemetry interface {
	WriteStateTransition(deviceID int, from, to int)
}

// Logger is the minimal logging interface the engine needs.
// Compatible with logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateEngine applies state transitions to devices.
//
// Every transition is a read-modify-write against the repository,
// serialised per device by a striped lock so concurrent frames for the
// same machine cannot interleave. The engine owns the transition rules:
//
//   - A repeated state is persisted without touching timestamps.
//   - running sets on_time and clears off_time; available sets off_time.
//   - Connection loss parks the current state in prev_state and moves
//     the device to disconnected.
//   - Reconnection restores prev_state.
//   - faulted is never entered or left by the engine.
type StateEngine struct {
	repo      Repository
	telemetry Telemetry
	logger    Logger

	locks [stateLockStripes]sync.Mutex

	// now is replaceable for tests.
	now func() time.Time
}

// NewStateEngine creates a state engine backed by the given repository.
// Telemetry may be nil.
func NewStateEngine(repo Repository, telemetry Telemetry, logger Logger) *StateEngine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StateEngine{
		repo:      repo,
		telemetry: telemetry,
		logger:    logger,
		now:       time.Now,
	}
}

// lockFor returns the stripe mutex for a device ID.
func (e *StateEngine) lockFor(id int) *sync.Mutex {
	idx := id % stateLockStripes
	if idx < 0 {
		idx += stateLockStripes
	}
	return &e.locks[idx]
}

// ApplyState transitions a device to newState in response to a controller
// update frame.
//
// If the device is already in newState the row is persisted as-is, which
// refreshes updated_at without disturbing the cycle timestamps. On a real
// transition prev_state records the outgoing state and the cycle
// timestamps are maintained: a move to running stamps on_time and clears
// off_time, a move to available stamps off_time.
//
// Returns the device after the transition and whether the state changed.
func (e *StateEngine) ApplyState(ctx context.Context, id int, newState State) (*Device, bool, error) {
	if !newState.Valid() {
		return nil, false, ErrInvalidState
	}

	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if d.State == newState {
		if err := e.repo.UpdateState(ctx, d); err != nil {
			return nil, false, fmt.Errorf("persisting unchanged state: %w", err)
		}
		return d, false, nil
	}

	from := d.State
	d.PrevState = d.State
	d.State = newState

	now := e.now().UTC()
	switch newState {
	case StateRunning:
		d.OnTime = &now
		d.OffTime = nil
	case StateAvailable:
		d.OffTime = &now
	case StateDisconnected, StateFaulted:
		// Timestamps untouched for connectivity and fault transitions.
	}

	if err := e.repo.UpdateState(ctx, d); err != nil {
		return nil, false, fmt.Errorf("persisting state transition: %w", err)
	}

	e.logger.Debug("device state transition",
		"device_id", id,
		"from", from.String(),
		"to", newState.String(),
	)
	if e.telemetry != nil {
		e.telemetry.WriteStateTransition(id, int(from), int(newState))
	}

	return d, true, nil
}

// ApplyConnectionLoss marks a device disconnected after its controller
// channel drops.
//
// The outgoing state is parked in prev_state so a later reconnection can
// restore it. A device that is already disconnected keeps its prev_state;
// repeated losses are idempotent.
func (e *StateEngine) ApplyConnectionLoss(ctx context.Context, id int) (*Device, error) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.State != StateDisconnected {
		d.PrevState = d.State
		d.State = StateDisconnected
	}

	if err := e.repo.UpdateState(ctx, d); err != nil {
		return nil, fmt.Errorf("persisting connection loss: %w", err)
	}

	e.logger.Info("device disconnected",
		"device_id", id,
		"prev_state", d.PrevState.String(),
	)
	if e.telemetry != nil {
		e.telemetry.WriteStateTransition(id, int(d.PrevState), int(StateDisconnected))
	}

	return d, nil
}

// ApplyReconnection restores a device's pre-disconnect state after its
// controller channel comes back.
//
// Only a disconnected device moves; any other state (including faulted)
// is left alone, so a reconnect can never clear a fault flag. prev_state
// is deliberately not rewritten, which keeps repeated reconnects from
// degrading the remembered state.
func (e *StateEngine) ApplyReconnection(ctx context.Context, id int) (*Device, error) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.State == StateDisconnected {
		d.State = d.PrevState
	}

	if err := e.repo.UpdateState(ctx, d); err != nil {
		return nil, fmt.Errorf("persisting reconnection: %w", err)
	}

	e.logger.Info("device reconnected",
		"device_id", id,
		"state", d.State.String(),
	)
	if e.telemetry != nil {
		e.telemetry.WriteStateTransition(id, int(StateDisconnected), int(d.State))
	}

	return d, nil
}

// Get returns a device by ID, passing through to the repository.
func (e *StateEngine) Get(ctx context.Context, id int) (*Device, error) {
	return e.repo.GetByID(ctx, id)
}

// RunningDuration returns the formatted running time for a device,
// used in dashboard responses and push notification bodies.
func (e *StateEngine) RunningDuration(ctx context.Context, id int) (string, error) {
	d, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return FormatDuration(d.RunningFor(e.now())), nil
}
