// Package push manages machine-ready notifications.
//
// A user subscribes a device token to one machine and one target state
// ("tell me when washer 7 is available"). When the state engine moves the
// machine into that state, all matching subscriptions are notified through
// the Dispatcher and then deleted; subscriptions are one-shot.
//
// The shipped Dispatcher publishes events to the MQTT bus rather than
// calling the platform push service directly, so provider credentials and
// retry policy live in a separate delivery worker.
package push
