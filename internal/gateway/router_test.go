package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openlaundry/laundry-core/internal/device"
	"github.com/openlaundry/laundry-core/internal/oplog"
	"github.com/openlaundry/laundry-core/internal/push"
)

// memSubs is an in-memory push.Repository.
type memSubs struct {
	mu   sync.Mutex
	subs []push.Subscription
}

func (m *memSubs) Create(_ context.Context, s *push.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, *s)
	return nil
}

func (m *memSubs) ListByToken(_ context.Context, token string) ([]push.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []push.Subscription
	for _, s := range m.subs {
		if s.Token == token {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubs) FindByDeviceAndState(_ context.Context, deviceID int, state device.State) ([]push.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []push.Subscription
	for _, s := range m.subs {
		if s.DeviceID == deviceID && s.ExpectState == state {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubs) Delete(_ context.Context, token string, deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.subs[:0]
	for _, s := range m.subs {
		if !(s.Token == token && s.DeviceID == deviceID) {
			kept = append(kept, s)
		}
	}
	m.subs = kept
	return nil
}

func (m *memSubs) DeleteByDeviceAndState(_ context.Context, deviceID int, state device.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.subs[:0]
	for _, s := range m.subs {
		if !(s.DeviceID == deviceID && s.ExpectState == state) {
			kept = append(kept, s)
		}
	}
	m.subs = kept
	return nil
}

func (m *memSubs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// fakeDispatcher records sent notifications.
type fakeDispatcher struct {
	mu     sync.Mutex
	tokens [][]string
	bodies []string
}

func (f *fakeDispatcher) Send(_ context.Context, tokens []string, n push.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, tokens)
	f.bodies = append(f.bodies, n.Body)
	return nil
}

// fakeHub records broadcasts.
type fakeHub struct {
	mu       sync.Mutex
	messages []any
}

func (f *fakeHub) Broadcast(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, v)
}

func (f *fakeHub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// fakePublisher records MQTT publishes.
type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) PublishRetained(topic string, payload []byte) error {
	return f.Publish(topic, payload, 1, true)
}

// fakeSensors records telemetry writes.
type fakeSensors struct {
	mu       sync.Mutex
	readings map[string]float64
}

func (f *fakeSensors) WriteChannelCurrent(hwid string, channel int, amps float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readings == nil {
		f.readings = make(map[string]float64)
	}
	f.readings[fmt.Sprintf("%s_%d", hwid, channel)] = amps
}

// memLogSink is an in-memory oplog.Sink.
type memLogSink struct {
	mu      sync.Mutex
	entries []oplog.Entry
}

func (m *memLogSink) Save(_ context.Context, e *oplog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memLogSink) List(_ context.Context, _, _ int) ([]oplog.Entry, error) {
	return append([]oplog.Entry(nil), m.entries...), nil
}

func (m *memLogSink) GetByID(_ context.Context, _ int64) (*oplog.Entry, error) {
	return nil, oplog.ErrEntryNotFound
}

type routerFixture struct {
	router     *Router
	repo       *memRepo
	subs       *memSubs
	dispatcher *fakeDispatcher
	hub        *fakeHub
	publisher  *fakePublisher
	sensors    *fakeSensors
	sink       *memLogSink
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	f := &routerFixture{
		repo:       newMemRepo(),
		subs:       &memSubs{},
		dispatcher: &fakeDispatcher{},
		hub:        &fakeHub{},
		publisher:  &fakePublisher{},
		sensors:    &fakeSensors{},
		sink:       &memLogSink{},
	}
	engine := device.NewStateEngine(f.repo, nil, nil)
	f.router = NewRouter(RouterDeps{
		Engine:      engine,
		Subs:        f.subs,
		Dispatcher:  f.dispatcher,
		Accumulator: oplog.NewAccumulator(f.sink, 6*time.Hour, nil),
		Hub:         f.hub,
		Publisher:   f.publisher,
		Telemetry:   f.sensors,
	})
	return f
}

func TestHandleUpdate_CycleEndNotifiesAndCleansUp(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	on := time.Now().UTC().Add(-95 * time.Second)
	err := f.repo.Create(ctx, &device.Device{
		ID:     7,
		Name:   "Washer 7",
		Kind:   device.KindWasher,
		State:  device.StateRunning,
		OnTime: &on,
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
	_ = f.subs.Create(ctx, &push.Subscription{Token: "tok-1", DeviceID: 7, ExpectState: device.StateAvailable})
	_ = f.subs.Create(ctx, &push.Subscription{Token: "tok-2", DeviceID: 7, ExpectState: device.StateAvailable})

	frame := []byte(`{"title":"Update","id":"7","state":true,"type":1}`)
	if err := f.router.HandleMessage(ctx, "hw", frame); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	d, _ := f.repo.GetByID(ctx, 7)
	if d.State != device.StateAvailable {
		t.Errorf("state = %v, want available", d.State)
	}

	if len(f.dispatcher.tokens) != 1 || len(f.dispatcher.tokens[0]) != 2 {
		t.Fatalf("dispatched = %v, want one send to two tokens", f.dispatcher.tokens)
	}
	if !strings.Contains(f.dispatcher.bodies[0], "0h 1m 35s") {
		t.Errorf("notification body = %q, want cycle time 0h 1m 35s", f.dispatcher.bodies[0])
	}
	if f.subs.count() != 0 {
		t.Errorf("subscriptions remain = %d, want 0 after one-shot delivery", f.subs.count())
	}

	if f.hub.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", f.hub.count())
	}
	update, ok := f.hub.messages[0].(StatusUpdate)
	if !ok || update.Type != "device_status_update" || update.ID != 7 || update.State != 1 {
		t.Errorf("broadcast = %+v", f.hub.messages[0])
	}

	if len(f.publisher.topics) != 1 || f.publisher.topics[0] != "laundry/state/7" {
		t.Errorf("published topics = %v", f.publisher.topics)
	}
}

func TestHandleUpdate_CycleStart(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	seedDevice(t, f.repo, 3, device.StateAvailable)

	frame := []byte(`{"title":"Update","id":3,"state":false}`)
	if err := f.router.HandleMessage(ctx, "hw", frame); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	d, _ := f.repo.GetByID(ctx, 3)
	if d.State != device.StateRunning {
		t.Errorf("state = %v, want running", d.State)
	}
	if d.OnTime == nil {
		t.Error("OnTime not stamped")
	}
	if len(f.dispatcher.tokens) != 0 {
		t.Error("cycle start must not notify")
	}
}

func TestHandleUpdate_LifecycleTypeSkipsNotification(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	seedDevice(t, f.repo, 3, device.StateRunning)
	_ = f.subs.Create(ctx, &push.Subscription{Token: "tok", DeviceID: 3, ExpectState: device.StateAvailable})

	frame := []byte(`{"title":"Update","id":3,"state":true,"type":0}`)
	if err := f.router.HandleMessage(ctx, "hw", frame); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(f.dispatcher.tokens) != 0 {
		t.Error("lifecycle update triggered a notification")
	}
	if f.subs.count() != 1 {
		t.Error("lifecycle update consumed subscriptions")
	}
	if f.hub.count() != 1 {
		t.Error("lifecycle update still broadcasts to observers")
	}
}

func TestHandleUpdate_RepeatedStateDoesNotRenotify(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	seedDevice(t, f.repo, 3, device.StateAvailable)
	_ = f.subs.Create(ctx, &push.Subscription{Token: "tok", DeviceID: 3, ExpectState: device.StateAvailable})

	frame := []byte(`{"title":"Update","id":3,"state":true}`)
	if err := f.router.HandleMessage(ctx, "hw", frame); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(f.dispatcher.tokens) != 0 {
		t.Error("repeated available state re-notified")
	}
}

func TestHandleUpdate_BadDeviceIDDropped(t *testing.T) {
	f := newRouterFixture(t)

	frame := []byte(`{"title":"Update","id":"abc","state":true}`)
	if err := f.router.HandleMessage(context.Background(), "hw", frame); err != nil {
		t.Fatalf("HandleMessage() error = %v, want nil (drop)", err)
	}
	if f.hub.count() != 0 {
		t.Error("dropped frame still broadcast")
	}
}

func TestHandleGetData(t *testing.T) {
	f := newRouterFixture(t)

	frame := []byte(`{"title":"GetData","ch1_current":4.256,"ch2_current":1,"uptime":3600}`)
	if err := f.router.HandleMessage(context.Background(), "a1b2c3", frame); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if got := f.sensors.readings["a1b2c3_1"]; got != 4.256 {
		t.Errorf("ch1 reading = %v, want 4.256", got)
	}
	if got := f.sensors.readings["a1b2c3_2"]; got != 1 {
		t.Errorf("ch2 reading = %v, want 1", got)
	}

	if len(f.publisher.topics) != 1 || f.publisher.topics[0] != "laundry/report/a1b2c3" {
		t.Fatalf("published topics = %v", f.publisher.topics)
	}

	var report map[string]any
	if err := json.Unmarshal(f.publisher.payloads[0], &report); err != nil {
		t.Fatalf("report not JSON: %v", err)
	}
	if report["ch1_current"] != "4.26" || report["ch2_current"] != "1.00" {
		t.Errorf("currents = %v / %v, want two-decimal strings", report["ch1_current"], report["ch2_current"])
	}
	if report["hwid"] != "a1b2c3" {
		t.Errorf("hwid = %v", report["hwid"])
	}
	if _, ok := report["title"]; ok {
		t.Error("frame title leaked into the report")
	}

	if f.hub.count() != 0 {
		t.Error("telemetry broadcast to observers")
	}
}

func TestHandleGetData_StringEncodedCurrents(t *testing.T) {
	f := newRouterFixture(t)

	frame := []byte(`{"title":"GetData","ch1_current":"4.256","ch2_current":"bogus"}`)
	if err := f.router.HandleMessage(context.Background(), "a1b2c3", frame); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if got := f.sensors.readings["a1b2c3_1"]; got != 4.256 {
		t.Errorf("ch1 reading = %v, want 4.256", got)
	}
	if _, ok := f.sensors.readings["a1b2c3_2"]; ok {
		t.Error("unparseable ch2 current written to telemetry")
	}

	var report map[string]any
	if err := json.Unmarshal(f.publisher.payloads[0], &report); err != nil {
		t.Fatalf("report not JSON: %v", err)
	}
	if report["ch1_current"] != "4.26" {
		t.Errorf("ch1_current = %v, want two-decimal string", report["ch1_current"])
	}
	if report["ch2_current"] != "bogus" {
		t.Errorf("ch2_current = %v, unparseable value should pass through", report["ch2_current"])
	}
}

func TestHandleLog_AssemblesCycle(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	start := []byte(`{"title":"Log","id":7,"log":"{\"START\":{\"cycle\":\"heavy\"}}"}`)
	end := []byte(`{"title":"Log","id":"7","log":"{\"END\":{\"spin_rpm\":1200}}"}`)

	if err := f.router.HandleMessage(ctx, "hw", start); err != nil {
		t.Fatalf("HandleMessage(start) error = %v", err)
	}
	if err := f.router.HandleMessage(ctx, "hw", end); err != nil {
		t.Fatalf("HandleMessage(end) error = %v", err)
	}

	if len(f.sink.entries) != 1 {
		t.Fatalf("saved logs = %d, want 1", len(f.sink.entries))
	}
	entry := f.sink.entries[0]
	if entry.DeviceID != 7 || entry.HWID != "hw" {
		t.Errorf("entry identity = %+v", entry)
	}

	var doc map[string]map[string]any
	if err := json.Unmarshal([]byte(entry.Payload), &doc); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if doc["START"]["cycle"] != "heavy" || doc["END"]["spin_rpm"] != float64(1200) {
		t.Errorf("merged payload = %s", entry.Payload)
	}
}

func TestHandleMessage_UnknownTitleDropped(t *testing.T) {
	f := newRouterFixture(t)

	if err := f.router.HandleMessage(context.Background(), "hw", []byte(`{"title":"Reboot"}`)); err != nil {
		t.Errorf("HandleMessage() error = %v, want nil (drop)", err)
	}
	if err := f.router.HandleMessage(context.Background(), "hw", []byte(`garbage`)); err != nil {
		t.Errorf("HandleMessage() error = %v, want nil (drop)", err)
	}
}

func TestNotifyTransition_BroadcastsAndPublishes(t *testing.T) {
	f := newRouterFixture(t)

	d := &device.Device{
		ID:        4,
		Name:      "Dryer 4",
		Kind:      device.KindDryer,
		State:     device.StateDisconnected,
		PrevState: device.StateRunning,
	}
	f.router.NotifyTransition(d)

	if f.hub.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", f.hub.count())
	}
	update, ok := f.hub.messages[0].(StatusUpdate)
	if !ok {
		t.Fatalf("broadcast type = %T, want StatusUpdate", f.hub.messages[0])
	}
	if update.ID != 4 || update.State != int(device.StateDisconnected) {
		t.Errorf("broadcast = %+v", update)
	}

	if len(f.publisher.topics) != 1 || f.publisher.topics[0] != "laundry/state/4" {
		t.Errorf("publish topics = %v, want [laundry/state/4]", f.publisher.topics)
	}
}
