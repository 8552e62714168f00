package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is an in-memory Repository for engine tests.
type MockRepository struct {
	mu      sync.Mutex
	devices map[int]*Device

	updateErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[int]*Device)}
}

func (m *MockRepository) GetByID(_ context.Context, id int) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *MockRepository) ListByRoom(_ context.Context, roomType string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, d := range m.devices {
		if d.RoomType == roomType {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (m *MockRepository) ListByHWID(_ context.Context, hwid string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, d := range m.devices {
		if d.HWID == hwid {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; ok {
		return ErrDeviceExists
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; !ok {
		return ErrDeviceNotFound
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) UpdateState(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.devices[d.ID]; !ok {
		return ErrDeviceNotFound
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func newTestEngine(t *testing.T, devices ...*Device) (*StateEngine, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	for _, d := range devices {
		if err := repo.Create(context.Background(), d); err != nil {
			t.Fatalf("seeding device %d: %v", d.ID, err)
		}
	}
	return NewStateEngine(repo, nil, nil), repo
}

func washer(id int, state State) *Device {
	return &Device{
		ID:       id,
		ViewID:   id,
		Name:     "Washer",
		Kind:     KindWasher,
		RoomType: "main",
		HWID:     "a1b2c3",
		State:    state,
	}
}

func TestApplyState_Transition(t *testing.T) {
	engine, _ := newTestEngine(t, washer(1, StateAvailable))
	ctx := context.Background()

	d, changed, err := engine.ApplyState(ctx, 1, StateRunning)
	if err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if d.State != StateRunning {
		t.Errorf("State = %v, want running", d.State)
	}
	if d.PrevState != StateAvailable {
		t.Errorf("PrevState = %v, want available", d.PrevState)
	}
	if d.OnTime == nil {
		t.Error("OnTime not stamped on transition to running")
	}
	if d.OffTime != nil {
		t.Error("OffTime not cleared on transition to running")
	}
}

func TestApplyState_SameStateKeepsTimestamps(t *testing.T) {
	start := time.Now().UTC().Add(-time.Hour)
	d := washer(1, StateRunning)
	d.PrevState = StateAvailable
	d.OnTime = &start

	engine, repo := newTestEngine(t, d)
	ctx := context.Background()

	got, changed, err := engine.ApplyState(ctx, 1, StateRunning)
	if err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	if changed {
		t.Error("changed = true for repeated state, want false")
	}
	if got.OnTime == nil || !got.OnTime.Equal(start) {
		t.Errorf("OnTime = %v, want %v (unchanged)", got.OnTime, start)
	}

	stored, _ := repo.GetByID(ctx, 1)
	if stored.PrevState != StateAvailable {
		t.Errorf("PrevState = %v, want untouched zero value", stored.PrevState)
	}
}

func TestApplyState_RunningToAvailable(t *testing.T) {
	start := time.Now().UTC().Add(-30 * time.Minute)
	d := washer(1, StateRunning)
	d.OnTime = &start

	engine, _ := newTestEngine(t, d)

	got, changed, err := engine.ApplyState(context.Background(), 1, StateAvailable)
	if err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if got.OffTime == nil {
		t.Error("OffTime not stamped on transition to available")
	}
	if got.OnTime == nil || !got.OnTime.Equal(start) {
		t.Error("OnTime should survive the cycle end for duration reporting")
	}
	if got.PrevState != StateRunning {
		t.Errorf("PrevState = %v, want running", got.PrevState)
	}
}

func TestApplyState_InvalidState(t *testing.T) {
	engine, _ := newTestEngine(t, washer(1, StateAvailable))

	_, _, err := engine.ApplyState(context.Background(), 1, State(9))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}

func TestApplyState_UnknownDevice(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, _, err := engine.ApplyState(context.Background(), 99, StateRunning)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestConnectionLoss_ThenReconnect_RestoresState(t *testing.T) {
	engine, _ := newTestEngine(t, washer(42, StateRunning))
	ctx := context.Background()

	d, err := engine.ApplyConnectionLoss(ctx, 42)
	if err != nil {
		t.Fatalf("ApplyConnectionLoss() error = %v", err)
	}
	if d.State != StateDisconnected {
		t.Errorf("State = %v, want disconnected", d.State)
	}
	if d.PrevState != StateRunning {
		t.Errorf("PrevState = %v, want running", d.PrevState)
	}

	d, err = engine.ApplyReconnection(ctx, 42)
	if err != nil {
		t.Fatalf("ApplyReconnection() error = %v", err)
	}
	if d.State != StateRunning {
		t.Errorf("State after reconnect = %v, want running", d.State)
	}
}

func TestConnectionLoss_Idempotent(t *testing.T) {
	engine, _ := newTestEngine(t, washer(1, StateAvailable))
	ctx := context.Background()

	if _, err := engine.ApplyConnectionLoss(ctx, 1); err != nil {
		t.Fatalf("first loss: %v", err)
	}
	d, err := engine.ApplyConnectionLoss(ctx, 1)
	if err != nil {
		t.Fatalf("second loss: %v", err)
	}
	if d.PrevState != StateAvailable {
		t.Errorf("PrevState = %v, want available (not overwritten by disconnected)", d.PrevState)
	}
}

func TestReconnection_LeavesConnectedDeviceAlone(t *testing.T) {
	engine, _ := newTestEngine(t, washer(1, StateFaulted))

	d, err := engine.ApplyReconnection(context.Background(), 1)
	if err != nil {
		t.Fatalf("ApplyReconnection() error = %v", err)
	}
	if d.State != StateFaulted {
		t.Errorf("State = %v, want faulted untouched", d.State)
	}
}

func TestApplyState_PersistFailure(t *testing.T) {
	repo := NewMockRepository()
	_ = repo.Create(context.Background(), washer(1, StateAvailable))
	repo.updateErr = errors.New("disk full")

	engine := NewStateEngine(repo, nil, nil)
	_, _, err := engine.ApplyState(context.Background(), 1, StateRunning)
	if err == nil {
		t.Fatal("expected persistence error, got nil")
	}
}

func TestRunningDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := washer(7, StateRunning)
	d.OnTime = &start

	engine, _ := newTestEngine(t, d)
	engine.now = func() time.Time { return start.Add(95 * time.Second) }

	got, err := engine.RunningDuration(context.Background(), 7)
	if err != nil {
		t.Fatalf("RunningDuration() error = %v", err)
	}
	if got != "0h 1m 35s" {
		t.Errorf("RunningDuration() = %q, want %q", got, "0h 1m 35s")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0h 0m 0s"},
		{"seconds only", 35 * time.Second, "0h 0m 35s"},
		{"mixed", time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
		{"negative keeps raw components", -time.Minute, "0h -1m 0s"},
		{"negative mixed", -(time.Hour + 35*time.Second), "-1h 0m -35s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.d); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestStateFromBool(t *testing.T) {
	if got := StateFromBool(true); got != StateAvailable {
		t.Errorf("StateFromBool(true) = %v, want available", got)
	}
	if got := StateFromBool(false); got != StateRunning {
		t.Errorf("StateFromBool(false) = %v, want running", got)
	}
}

func TestRunningFor_FutureOnTimeClamps(t *testing.T) {
	future := time.Now().Add(time.Hour)
	d := washer(1, StateRunning)
	d.OnTime = &future

	if got := d.RunningFor(time.Now()); got != 0 {
		t.Errorf("RunningFor() = %v, want 0 for future on_time", got)
	}
}

func TestApplyState_ConcurrentSameDevice(t *testing.T) {
	engine, repo := newTestEngine(t, washer(1, StateAvailable))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine.ApplyState(ctx, 1, StateFromBool(i%2 == 0)) //nolint:errcheck
		}(i)
	}
	wg.Wait()

	d, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if d.State != StateRunning && d.State != StateAvailable {
		t.Errorf("State = %v, want running or available", d.State)
	}
	if d.State == d.PrevState {
		t.Errorf("State == PrevState (%v); transitions interleaved", d.State)
	}
}
