package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteChannelCurrent records a current-sensor reading for a controller channel.
//
// Controllers report per-channel amperage in their diagnostics frames; the
// series feeds usage dashboards and stuck-machine detection.
func (c *Client) WriteChannelCurrent(hwid string, channel int, amps float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"channel_current",
		map[string]string{
			"hwid":    hwid,
			"channel": strconv.Itoa(channel),
		},
		map[string]interface{}{
			"amps": amps,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStateTransition records a device state change.
//
// One point per transition, tagged by device. The from/to values use the
// numeric state codes so dashboards can filter on them.
func (c *Client) WriteStateTransition(deviceID int, from, to int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"state_transition",
		map[string]string{
			"device_id": strconv.Itoa(deviceID),
		},
		map[string]interface{}{
			"from": from,
			"to":   to,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionEvent records a controller connect, disconnect, or eviction.
func (c *Client) WriteConnectionEvent(hwid string, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connection_event",
		map[string]string{
			"hwid": hwid,
		},
		map[string]interface{}{
			"event": event,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
