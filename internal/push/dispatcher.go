package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openlaundry/laundry-core/internal/infrastructure/mqtt"
)

// Notification is the message delivered to subscribed tokens.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Dispatcher delivers notifications to device tokens.
type Dispatcher interface {
	// Send dispatches the notification to each token. Delivery is best
	// effort; failures are reported, not retried.
	Send(ctx context.Context, tokens []string, n Notification) error
}

// mqttPublisher is the slice of the MQTT client the dispatcher needs.
type mqttPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTDispatcher publishes notification requests onto the message bus.
// A delivery worker subscribed to laundry/notify/push forwards them to
// the platform push service, keeping provider credentials out of core.
type MQTTDispatcher struct {
	client mqttPublisher
	qos    byte
}

var _ Dispatcher = (*MQTTDispatcher)(nil)
var _ mqttPublisher = (*mqtt.Client)(nil)

// NewMQTTDispatcher creates a dispatcher publishing via the given client.
func NewMQTTDispatcher(client mqttPublisher, qos byte) *MQTTDispatcher {
	return &MQTTDispatcher{client: client, qos: qos}
}

// pushEvent is the wire format published to the notify topic.
type pushEvent struct {
	EventID   string   `json:"event_id"`
	Tokens    []string `json:"tokens"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Timestamp string   `json:"timestamp"`
}

// Send publishes one event carrying all target tokens.
func (d *MQTTDispatcher) Send(_ context.Context, tokens []string, n Notification) error {
	if len(tokens) == 0 {
		return nil
	}

	event := pushEvent{
		EventID:   uuid.NewString(),
		Tokens:    tokens,
		Title:     n.Title,
		Body:      n.Body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling push event: %w", err)
	}

	topic := mqtt.Topics{}.NotifyPush()
	if err := d.client.Publish(topic, payload, d.qos, false); err != nil {
		return fmt.Errorf("publishing push event: %w", err)
	}
	return nil
}
