package gateway

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// WSTransport adapts a gorilla websocket connection to the Transport
// interface. Read liveness is enforced with a deadline refreshed by pong
// replies to the gateway's heartbeat pings.
type WSTransport struct {
	conn     *websocket.Conn
	pongWait time.Duration
}

// NewWSTransport wraps an upgraded websocket connection. heartbeat is the
// gateway's ping cadence; a peer that misses two pongs fails its next
// read.
func NewWSTransport(conn *websocket.Conn, heartbeat time.Duration) *WSTransport {
	pongWait := 2 * heartbeat
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &WSTransport{conn: conn, pongWait: pongWait}
}

// ReadMessage blocks for the next text frame.
func (t *WSTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	// Any inbound traffic proves liveness.
	t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	return data, nil
}

// WriteMessage sends one text frame. Only the gateway's write loop calls
// this, so no write lock is needed.
func (t *WSTransport) WriteMessage(data []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a control ping. Gorilla allows WriteControl concurrently
// with WriteMessage.
func (t *WSTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a best-effort close frame and tears the connection down.
func (t *WSTransport) Close() error {
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
