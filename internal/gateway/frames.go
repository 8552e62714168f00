package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Frame titles accepted from controllers.
const (
	// TitleUpdate signals a machine state change.
	TitleUpdate = "Update"

	// TitleGetData carries a sensor telemetry report.
	TitleGetData = "GetData"

	// TitleLog carries an operation log fragment.
	TitleLog = "Log"
)

// envelope is the minimal decode used to route a frame by title.
type envelope struct {
	Title string `json:"title"`
}

// UpdateFrame is a state change report.
//
// State carries the controller's boolean polarity: true means the cycle
// finished and the machine is available, false means a cycle started.
// Type distinguishes operation transitions (1, the default) from
// lifecycle updates (0) that must not trigger notifications.
type UpdateFrame struct {
	ID    any  `json:"id"`
	State bool `json:"state"`
	Type  *int `json:"type"`
}

// OperationType returns the frame's type, defaulting to 1 when absent.
func (f *UpdateFrame) OperationType() int {
	if f.Type == nil {
		return 1
	}
	return *f.Type
}

// LogFrame is an operation log fragment. Log holds a nested JSON document
// produced by the controller firmware.
type LogFrame struct {
	ID  any    `json:"id"`
	Log string `json:"log"`
}

// parseDeviceID coerces the loosely-typed id field controllers send.
// Firmware revisions disagree on whether the id is a JSON number or a
// string, so both are accepted.
func parseDeviceID(v any) (int, error) {
	switch id := v.(type) {
	case float64:
		return int(id), nil
	case string:
		n, err := strconv.Atoi(id)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDeviceID, id)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidDeviceID, v)
	}
}

// decodeFrame unmarshals raw into dst, wrapping decode failures.
func decodeFrame(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	return nil
}
