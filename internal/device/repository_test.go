package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id INTEGER PRIMARY KEY,
			view_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			room_type TEXT NOT NULL DEFAULT '',
			hwid TEXT NOT NULL DEFAULT '',
			state INTEGER NOT NULL DEFAULT 1,
			prev_state INTEGER NOT NULL DEFAULT 1,
			on_time TEXT,
			off_time TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return NewSQLiteRepository(db)
}

func testDevice(id int) *Device {
	return &Device{
		ID:       id,
		ViewID:   id,
		Name:     "Dryer A",
		Kind:     KindDryer,
		RoomType: "main",
		HWID:     "a1b2c3",
		State:    StateAvailable,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	on := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := testDevice(1)
	d.OnTime = &on

	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Dryer A" || got.Kind != KindDryer {
		t.Errorf("got %+v", got)
	}
	if got.OnTime == nil || !got.OnTime.Equal(on) {
		t.Errorf("OnTime = %v, want %v", got.OnTime, on)
	}
	if got.OffTime != nil {
		t.Errorf("OffTime = %v, want nil", got.OffTime)
	}
}

func TestSQLiteRepository_GetMissing(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.GetByID(context.Background(), 99)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_CreateDuplicate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(1)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, testDevice(1)); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate Create() error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_CreateValidation(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	d := testDevice(1)
	d.Name = ""
	if err := repo.Create(ctx, d); !errors.Is(err, ErrInvalidName) {
		t.Errorf("empty name error = %v, want ErrInvalidName", err)
	}

	d = testDevice(2)
	d.Kind = "toaster"
	if err := repo.Create(ctx, d); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("bad kind error = %v, want ErrInvalidKind", err)
	}
}

func TestSQLiteRepository_UpdateState(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(1)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	d, _ := repo.GetByID(ctx, 1)
	now := time.Now().UTC().Truncate(time.Second)
	d.PrevState = d.State
	d.State = StateRunning
	d.OnTime = &now

	if err := repo.UpdateState(ctx, d); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, 1)
	if got.State != StateRunning || got.PrevState != StateAvailable {
		t.Errorf("state = %v prev = %v", got.State, got.PrevState)
	}
	if got.OnTime == nil || !got.OnTime.Equal(now) {
		t.Errorf("OnTime = %v, want %v", got.OnTime, now)
	}
}

func TestSQLiteRepository_UpdateStateMissing(t *testing.T) {
	repo := openTestRepo(t)

	err := repo.UpdateState(context.Background(), testDevice(404))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateState() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListOrdering(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, id := range []int{3, 1, 2} {
		d := testDevice(id)
		d.ViewID = id
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%d) error = %v", id, err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("List() returned %d devices, want 3", len(devices))
	}
	for i, d := range devices {
		if d.ViewID != i+1 {
			t.Errorf("devices[%d].ViewID = %d, want %d", i, d.ViewID, i+1)
		}
	}
}

func TestSQLiteRepository_ListByHWID(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	a := testDevice(1)
	b := testDevice(2)
	b.HWID = "ffeedd"
	for _, d := range []*Device{a, b} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	devices, err := repo.ListByHWID(ctx, "a1b2c3")
	if err != nil {
		t.Fatalf("ListByHWID() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != 1 {
		t.Errorf("ListByHWID() = %+v, want only device 1", devices)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(1)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(ctx, 1); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, 1); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}
}
