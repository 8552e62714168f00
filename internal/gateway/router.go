package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/openlaundry/laundry-core/internal/device"
	"github.com/openlaundry/laundry-core/internal/infrastructure/mqtt"
	"github.com/openlaundry/laundry-core/internal/oplog"
	"github.com/openlaundry/laundry-core/internal/push"
)

// Broadcaster fans a message out to all connected observers.
// Implemented by api.Hub.
type Broadcaster interface {
	Broadcast(v any)
}

// Publisher is the slice of the MQTT client the router needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// SensorTelemetry receives numeric channel readings from GetData frames.
type SensorTelemetry interface {
	WriteChannelCurrent(hwid string, channel int, amps float64)
}

// StatusUpdate is the message broadcast to observers after a state change.
type StatusUpdate struct {
	Type       string `json:"type"`
	ID         int    `json:"id"`
	State      int    `json:"state"`
	DeviceType string `json:"device_type"`
}

// statePayload is the document published to the MQTT state topic.
type statePayload struct {
	ID        int    `json:"id"`
	State     int    `json:"state"`
	PrevState int    `json:"prev_state"`
	Timestamp string `json:"timestamp"`
}

// Router decodes controller frames and drives the rest of the system:
// state transitions, push notifications, observer broadcasts, telemetry,
// and operation log assembly.
//
// Malformed frames are dropped with a log line; a misbehaving controller
// must not take its socket down mid-cycle.
type Router struct {
	engine      *device.StateEngine
	subs        push.Repository
	dispatcher  push.Dispatcher
	accumulator *oplog.Accumulator
	hub         Broadcaster
	publisher   Publisher
	telemetry   SensorTelemetry
	logger      Logger
}

// RouterDeps bundles the router's collaborators. subs, dispatcher, hub,
// publisher, and telemetry may each be nil; the matching side effect is
// skipped.
type RouterDeps struct {
	Engine      *device.StateEngine
	Subs        push.Repository
	Dispatcher  push.Dispatcher
	Accumulator *oplog.Accumulator
	Hub         Broadcaster
	Publisher   Publisher
	Telemetry   SensorTelemetry
	Logger      Logger
}

// NewRouter creates a frame router.
func NewRouter(deps RouterDeps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		engine:      deps.Engine,
		subs:        deps.Subs,
		dispatcher:  deps.Dispatcher,
		accumulator: deps.Accumulator,
		hub:         deps.Hub,
		publisher:   deps.Publisher,
		telemetry:   deps.Telemetry,
		logger:      logger,
	}
}

// HandleMessage routes one raw frame from the controller identified by hwid.
//
// Returns an error only for infrastructure failures; protocol garbage is
// logged and swallowed so the connection survives.
func (rt *Router) HandleMessage(ctx context.Context, hwid string, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		rt.logger.Warn("dropping undecodable frame", "hwid", hwid, "error", err)
		return nil
	}

	switch env.Title {
	case TitleUpdate:
		return rt.handleUpdate(ctx, hwid, raw)
	case TitleGetData:
		return rt.handleGetData(hwid, raw)
	case TitleLog:
		return rt.handleLog(ctx, hwid, raw)
	default:
		rt.logger.Warn("dropping frame with unknown title", "hwid", hwid, "title", env.Title)
		return nil
	}
}

// NotifyTransition fans a liveness-driven state change out to observers and
// the MQTT state topic. The registry's OnTransition hook points here for
// transitions that do not originate from a controller frame.
func (rt *Router) NotifyTransition(d *device.Device) {
	rt.broadcastState(d)
	rt.publishState(d)
}

// handleUpdate applies a state change frame.
func (rt *Router) handleUpdate(ctx context.Context, hwid string, raw []byte) error {
	var frame UpdateFrame
	if err := decodeFrame(raw, &frame); err != nil {
		rt.logger.Warn("dropping malformed update", "hwid", hwid, "error", err)
		return nil
	}

	id, err := parseDeviceID(frame.ID)
	if err != nil {
		rt.logger.Warn("dropping update with bad device id", "hwid", hwid, "error", err)
		return nil
	}

	newState := device.StateFromBool(frame.State)
	d, changed, err := rt.engine.ApplyState(ctx, id, newState)
	if err != nil {
		rt.logger.Error("state transition failed", "hwid", hwid, "device_id", id, "error", err)
		return err
	}

	if changed && newState == device.StateAvailable && frame.OperationType() == 1 {
		rt.notifySubscribers(ctx, d)
	}

	rt.broadcastState(d)
	rt.publishState(d)
	return nil
}

// notifySubscribers delivers one-shot availability notifications, then
// removes the consumed subscriptions.
func (rt *Router) notifySubscribers(ctx context.Context, d *device.Device) {
	if rt.subs == nil || rt.dispatcher == nil {
		return
	}

	subs, err := rt.subs.FindByDeviceAndState(ctx, d.ID, device.StateAvailable)
	if err != nil {
		rt.logger.Error("subscription lookup failed", "device_id", d.ID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	tokens := make([]string, len(subs))
	for i, s := range subs {
		tokens[i] = s.Token
	}

	n := push.Notification{
		Title: "Laundry",
		Body:  fmt.Sprintf("%s is now available (cycle time %s)", d.Name, cycleDuration(d)),
	}
	if err := rt.dispatcher.Send(ctx, tokens, n); err != nil {
		rt.logger.Error("push dispatch failed", "device_id", d.ID, "error", err)
		// Fall through: consumed subscriptions are removed regardless,
		// matching the one-shot contract.
	}

	if err := rt.subs.DeleteByDeviceAndState(ctx, d.ID, device.StateAvailable); err != nil {
		rt.logger.Error("subscription cleanup failed", "device_id", d.ID, "error", err)
	}
}

// cycleDuration formats the completed cycle's length from the device's
// on/off timestamps.
func cycleDuration(d *device.Device) string {
	if d.OnTime == nil || d.OffTime == nil {
		return device.FormatDuration(0)
	}
	return device.FormatDuration(d.OffTime.Sub(*d.OnTime))
}

// broadcastState pushes a status update to all observer clients.
func (rt *Router) broadcastState(d *device.Device) {
	if rt.hub == nil {
		return
	}
	rt.hub.Broadcast(StatusUpdate{
		Type:       "device_status_update",
		ID:         d.ID,
		State:      int(d.State),
		DeviceType: string(d.Kind),
	})
}

// publishState publishes the device's current state to the MQTT state topic.
func (rt *Router) publishState(d *device.Device) {
	if rt.publisher == nil {
		return
	}

	payload, err := json.Marshal(statePayload{
		ID:        d.ID,
		State:     int(d.State),
		PrevState: int(d.PrevState),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		rt.logger.Error("marshalling state payload", "device_id", d.ID, "error", err)
		return
	}

	topic := mqtt.Topics{}.DeviceState(d.ID)
	if err := rt.publisher.PublishRetained(topic, payload); err != nil {
		rt.logger.Warn("state publish failed", "device_id", d.ID, "error", err)
	}
}

// handleGetData processes a sensor telemetry report.
//
// Numeric channel currents go to the time-series store; the full report,
// with currents reformatted to two decimals, is published to the
// controller's report topic. Reports are never persisted to SQLite and
// never broadcast to observers.
func (rt *Router) handleGetData(hwid string, raw []byte) error {
	var report map[string]any
	if err := json.Unmarshal(raw, &report); err != nil {
		rt.logger.Warn("dropping malformed report", "hwid", hwid, "error", err)
		return nil
	}
	delete(report, "title")
	report["hwid"] = hwid

	for ch, field := range map[int]string{1: "ch1_current", 2: "ch2_current"} {
		amps, ok := parseCurrent(report[field])
		if !ok {
			continue
		}
		if rt.telemetry != nil {
			rt.telemetry.WriteChannelCurrent(hwid, ch, amps)
		}
		report[field] = fmt.Sprintf("%.2f", amps)
	}

	if rt.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(report)
	if err != nil {
		rt.logger.Error("marshalling report", "hwid", hwid, "error", err)
		return nil
	}

	topic := mqtt.Topics{}.ControllerReport(hwid)
	if err := rt.publisher.Publish(topic, payload, 0, false); err != nil {
		rt.logger.Warn("report publish failed", "hwid", hwid, "error", err)
	}
	return nil
}

// parseCurrent reads a channel current from a decoded report field.
// Controllers send either a JSON number or a string-encoded one.
func parseCurrent(v any) (float64, bool) {
	switch amps := v.(type) {
	case float64:
		return amps, true
	case string:
		f, err := strconv.ParseFloat(amps, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// handleLog forwards an operation log fragment to the accumulator.
func (rt *Router) handleLog(ctx context.Context, hwid string, raw []byte) error {
	var frame LogFrame
	if err := decodeFrame(raw, &frame); err != nil {
		rt.logger.Warn("dropping malformed log frame", "hwid", hwid, "error", err)
		return nil
	}

	id, err := parseDeviceID(frame.ID)
	if err != nil {
		rt.logger.Warn("dropping log frame with bad device id", "hwid", hwid, "error", err)
		return nil
	}

	if rt.accumulator == nil {
		return nil
	}
	return rt.accumulator.Ingest(ctx, hwid, id, []byte(frame.Log))
}
