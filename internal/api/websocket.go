package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openlaundry/laundry-core/internal/gateway"
)

// upgrader configures the WebSocket upgrader for both socket endpoints.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// hwWriteWait is the write deadline applied to outbound frames on a
// hardware socket.
const hwWriteWait = 10 * time.Second

// hwConn adapts a gorilla connection to the gateway.Conn interface.
// Gorilla connections allow one concurrent writer; the mutex covers
// broadcast sends racing liveness pings.
type hwConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *hwConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // Best-effort deadline; write error is returned below
	c.conn.SetWriteDeadline(time.Now().Add(hwWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *hwConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // Best-effort deadline; write error is returned below
	c.conn.SetWriteDeadline(time.Now().Add(hwWriteWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *hwConn) Close(code int, reason string) error {
	c.mu.Lock()
	//nolint:errcheck // Best-effort close frame before dropping the socket
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(hwWriteWait))
	c.mu.Unlock()
	return c.conn.Close()
}

// handleDeviceWS upgrades a controller board connection and hands it to the
// gateway registry. The board identifies itself with the hwid, ch1, and
// optional ch2 request headers; a connection without a channel identity is
// rejected before the upgrade.
func (s *Server) handleDeviceWS(w http.ResponseWriter, r *http.Request) {
	hwid := r.Header.Get("hwid")
	if hwid == "" {
		writeBadRequest(w, "hwid header is required")
		return
	}

	ch1, err := strconv.Atoi(r.Header.Get("ch1"))
	if err != nil {
		writeBadRequest(w, "ch1 header must be a device id")
		return
	}

	ch2 := 0
	if v := r.Header.Get("ch2"); v != "" {
		ch2, err = strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "ch2 header must be a device id")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("hardware socket upgrade failed", "hwid", hwid, "error", err)
		return
	}

	hw := &hwConn{conn: conn}
	if err := s.registry.Connect(r.Context(), hwid, ch1, ch2, hw); err != nil {
		s.logger.Warn("controller rejected", "hwid", hwid, "error", err)
		//nolint:errcheck // Connection is being dropped either way
		hw.Close(gateway.ClosePolicyViolation, err.Error())
		return
	}

	go s.deviceReadLoop(hwid, hw, conn)
}

// deviceReadLoop pumps controller frames into the message router until the
// socket drops. Every frame, valid or not, counts as liveness. The request
// context dies with the handler, so the loop runs on a background context.
func (s *Server) deviceReadLoop(hwid string, hw *hwConn, conn *websocket.Conn) {
	ctx := context.Background()
	defer s.registry.Disconnect(ctx, hwid, hw)

	conn.SetReadLimit(int64(s.gwCfg.MaxMessageSize))
	conn.SetPongHandler(func(string) error {
		s.registry.Touch(hwid)
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("hardware socket read error", "hwid", hwid, "error", err)
			} else {
				s.logger.Debug("hardware socket closed", "hwid", hwid, "error", err)
			}
			return
		}

		s.registry.Touch(hwid)
		if err := s.gwRouter.HandleMessage(ctx, hwid, raw); err != nil {
			s.logger.Warn("frame dropped", "hwid", hwid, "error", err)
		}
	}
}

// deviceSnapshot is the first message an observer receives on connect.
type deviceSnapshot struct {
	Type    string `json:"type"`
	Devices any    `json:"devices"`
}

// handleClientWS upgrades an observer (dashboard) connection and registers
// it with the hub. The observer immediately receives a snapshot of every
// machine's current state, then live updates as they happen.
func (s *Server) handleClientWS(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("failed to build device snapshot", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("observer upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  s.Hub(),
		conn: conn,
		send: make(chan []byte, clientSendBufferSize),
	}
	s.hub.Register(client)

	if data, err := json.Marshal(deviceSnapshot{Type: "device_snapshot", Devices: devices}); err == nil {
		client.trySend(data)
	}

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}
