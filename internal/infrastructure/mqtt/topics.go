package mqtt

import "fmt"

// Topic prefixes for the laundry message bus.
//
// Scheme: laundry/{category}/{id}
const (
	// TopicPrefix is the base for all laundry topics.
	TopicPrefix = "laundry"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "laundry/system"

	// TopicPrefixNotify is the base for notification topics.
	TopicPrefixNotify = "laundry/notify"
)

// Topics provides builders for laundry MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// DeviceState returns the canonical state topic for a device.
// Published (retained) after every state transition.
//
// Example: laundry/state/42
func (Topics) DeviceState(deviceID int) string {
	return fmt.Sprintf("%s/state/%d", TopicPrefix, deviceID)
}

// ControllerReport returns the diagnostics report topic for a controller.
// Controllers publish fault and sensor reports here keyed by hardware ID.
//
// Example: laundry/report/a1b2c3
func (Topics) ControllerReport(hwid string) string {
	return fmt.Sprintf("%s/report/%s", TopicPrefix, hwid)
}

// NotifyPush returns the topic push notification requests are published to.
// A downstream worker delivers them to the platform push service.
//
// Example: laundry/notify/push
func (Topics) NotifyPush() string {
	return fmt.Sprintf("%s/push", TopicPrefixNotify)
}

// SystemStatus returns the service status topic (online/offline, LWT).
//
// Example: laundry/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: laundry/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllControllerReports returns a pattern matching all controller reports.
//
// Pattern: laundry/report/+
func (Topics) AllControllerReports() string {
	return fmt.Sprintf("%s/report/+", TopicPrefix)
}

// AllTopics returns a pattern matching all laundry topics.
// Use with caution, this receives ALL traffic.
//
// Pattern: laundry/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
