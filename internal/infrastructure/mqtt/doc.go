// Package mqtt provides MQTT client connectivity for Laundry Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// Laundry Core publishes state transitions, controller diagnostics reports,
// and push notification requests onto the bus. Downstream workers (push
// delivery, ops alerting) subscribe without coupling to the core process.
//
//	Laundry Core → MQTT Broker → delivery workers / dashboards
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState(42)
//	client.PublishRetained(topic, []byte(`{"id":42,"state":1}`))
package mqtt
