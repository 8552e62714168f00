// Package gateway owns the hardware side of the system: the registry of
// live controller connections and the router that turns controller frames
// into state transitions, notifications, telemetry, and operation logs.
//
// A controller board identifies itself at connect time with a hardware ID
// and the device IDs wired to its relay channels (one or two machines per
// board). The registry enforces one connection per board, runs the
// liveness sweep, and drives disconnected/reconnected transitions through
// the state engine. The transport is abstracted behind the Conn
// interface, so the registry never imports a websocket library.
package gateway
