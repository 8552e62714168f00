package push

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openlaundry/laundry-core/internal/device"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE push_subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token TEXT NOT NULL,
			device_id INTEGER NOT NULL,
			expect_state INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (token, device_id, expect_state)
		)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return NewSQLiteRepository(db)
}

func TestCreate_DuplicateRejected(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	sub := &Subscription{Token: "tok-1", DeviceID: 7, ExpectState: device.StateAvailable}
	if err := repo.Create(ctx, sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sub.ID == 0 {
		t.Error("Create() did not assign an ID")
	}

	dup := &Subscription{Token: "tok-1", DeviceID: 7, ExpectState: device.StateAvailable}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrSubscriptionExists) {
		t.Errorf("duplicate Create() error = %v, want ErrSubscriptionExists", err)
	}

	// Same token, different device is a distinct subscription.
	other := &Subscription{Token: "tok-1", DeviceID: 8, ExpectState: device.StateAvailable}
	if err := repo.Create(ctx, other); err != nil {
		t.Errorf("Create() for different device error = %v", err)
	}
}

func TestFindByDeviceAndState(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	seed := []Subscription{
		{Token: "tok-1", DeviceID: 7, ExpectState: device.StateAvailable},
		{Token: "tok-2", DeviceID: 7, ExpectState: device.StateAvailable},
		{Token: "tok-3", DeviceID: 7, ExpectState: device.StateRunning},
		{Token: "tok-4", DeviceID: 9, ExpectState: device.StateAvailable},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	subs, err := repo.FindByDeviceAndState(ctx, 7, device.StateAvailable)
	if err != nil {
		t.Fatalf("FindByDeviceAndState() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("found %d subscriptions, want 2", len(subs))
	}
	for _, s := range subs {
		if s.DeviceID != 7 || s.ExpectState != device.StateAvailable {
			t.Errorf("unexpected subscription %+v", s)
		}
	}
}

func TestDelete(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	sub := &Subscription{Token: "tok-1", DeviceID: 7, ExpectState: device.StateAvailable}
	if err := repo.Create(ctx, sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Delete(ctx, "tok-1", 7); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "tok-1", 7); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("second Delete() error = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestDeleteByDeviceAndState(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, token := range []string{"tok-1", "tok-2"} {
		sub := &Subscription{Token: token, DeviceID: 7, ExpectState: device.StateAvailable}
		if err := repo.Create(ctx, sub); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	if err := repo.DeleteByDeviceAndState(ctx, 7, device.StateAvailable); err != nil {
		t.Fatalf("DeleteByDeviceAndState() error = %v", err)
	}

	subs, _ := repo.FindByDeviceAndState(ctx, 7, device.StateAvailable)
	if len(subs) != 0 {
		t.Errorf("subscriptions remain after bulk delete: %d", len(subs))
	}

	// Zero matches is not an error.
	if err := repo.DeleteByDeviceAndState(ctx, 7, device.StateAvailable); err != nil {
		t.Errorf("empty DeleteByDeviceAndState() error = %v", err)
	}
}

// recordingPublisher captures published payloads.
type recordingPublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestMQTTDispatcher_Send(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewMQTTDispatcher(pub, 1)

	err := d.Send(context.Background(), []string{"tok-1", "tok-2"}, Notification{
		Title: "Laundry",
		Body:  "Washer 7 is available",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(pub.payloads) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.payloads))
	}
	if pub.topics[0] != "laundry/notify/push" {
		t.Errorf("topic = %q", pub.topics[0])
	}

	var event pushEvent
	if err := json.Unmarshal(pub.payloads[0], &event); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if len(event.Tokens) != 2 || event.Body != "Washer 7 is available" {
		t.Errorf("event = %+v", event)
	}
	if event.EventID == "" {
		t.Error("event missing id")
	}
}

func TestMQTTDispatcher_SendNoTokens(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewMQTTDispatcher(pub, 1)

	if err := d.Send(context.Background(), nil, Notification{}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(pub.payloads) != 0 {
		t.Error("published event with no tokens")
	}
}
