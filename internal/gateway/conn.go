package gateway

// Close codes used on the hardware socket, mirroring RFC 6455.
const (
	// ClosePolicyViolation rejects a connection that broke the handshake
	// contract (missing identity headers).
	ClosePolicyViolation = 1008

	// CloseSuperseded is sent to a connection replaced by a newer one
	// for the same hardware ID.
	CloseSuperseded = 1000

	// CloseGoingAway is sent to a connection evicted by the liveness
	// sweep after missing two consecutive probes.
	CloseGoingAway = 1001
)

// Conn is the transport handle the registry holds for a controller.
// The api package adapts a gorilla websocket connection to this; tests
// use in-memory fakes.
type Conn interface {
	// WriteJSON sends a JSON message to the controller.
	WriteJSON(v any) error

	// Ping sends a liveness probe. A controller answers with a pong or
	// any data frame before the next sweep, or it is evicted.
	Ping() error

	// Close terminates the connection with a close code and reason.
	Close(code int, reason string) error
}
