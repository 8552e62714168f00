package device

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a laundry machine.
//
// The numeric codes are part of the wire protocol: controllers and
// dashboard clients exchange them as integers.
type State int

// Machine states.
const (
	// StateRunning means a cycle is in progress.
	StateRunning State = 0

	// StateAvailable means the machine is idle and ready for use.
	StateAvailable State = 1

	// StateDisconnected means the controller channel for this machine
	// has no live connection.
	StateDisconnected State = 2

	// StateFaulted means the machine is flagged out of service.
	// The state engine never enters or leaves this state on its own;
	// it is set by operators through the API.
	StateFaulted State = 3
)

// Valid reports whether s is a recognised state code.
func (s State) Valid() bool {
	return s >= StateRunning && s <= StateFaulted
}

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateAvailable:
		return "available"
	case StateDisconnected:
		return "disconnected"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StateFromBool maps the boolean state flag carried in controller update
// frames to a State: true means the machine finished and is available,
// false means a cycle started.
func StateFromBool(available bool) State {
	if available {
		return StateAvailable
	}
	return StateRunning
}

// Kind is the machine type.
type Kind string

// Machine kinds.
const (
	KindWasher Kind = "wash"
	KindDryer  Kind = "dry"
)

// Valid reports whether k is a recognised machine kind.
func (k Kind) Valid() bool {
	return k == KindWasher || k == KindDryer
}

// Device represents a single laundry machine.
// This matches the database schema in migrations/.
type Device struct {
	// Identity
	ID     int    `json:"id"`
	ViewID int    `json:"view_id"`
	Name   string `json:"name"`

	// Classification
	Kind     Kind   `json:"kind"`
	RoomType string `json:"room_type"`

	// HWID is the hardware identifier of the controller board this
	// machine is wired to. Two machines can share a controller (one
	// per channel).
	HWID string `json:"hwid"`

	// Current state
	State State `json:"state"`

	// PrevState is the state held before the most recent transition.
	// It is what the machine returns to after a reconnection.
	PrevState State `json:"prev_state"`

	// OnTime is when the current (or last) cycle started.
	// OffTime is when the machine last became available.
	OnTime  *time.Time `json:"on_time,omitempty"`
	OffTime *time.Time `json:"off_time,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the Device so cached instances
// cannot be mutated through returned pointers.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.OnTime != nil {
		t := *d.OnTime
		cpy.OnTime = &t
	}
	if d.OffTime != nil {
		t := *d.OffTime
		cpy.OffTime = &t
	}

	return &cpy
}

// RunningFor returns how long the machine has been running, measured from
// OnTime to now. Returns zero when OnTime is unset or in the future
// (clock skew between controller and server).
func (d *Device) RunningFor(now time.Time) time.Duration {
	if d.OnTime == nil {
		return 0
	}
	elapsed := now.Sub(*d.OnTime)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// FormatDuration renders a duration in the "Xh Ym Zs" form used in
// dashboard responses and push notifications. Negative durations (off_time
// before on_time under clock skew) are rendered with their raw components
// so callers can spot the bad data rather than a silent zero.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
