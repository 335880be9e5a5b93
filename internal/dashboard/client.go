package dashboard

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"icering/internal/logging"
)

const (
	defaultClockSkew  = 2 * time.Second
	writeWait         = 10 * time.Second
	pingInterval      = 15 * time.Second
	pongWaitMultiplier = 2
	sendBufferSize    = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one connected dashboard viewer: a browser or operator tool
// subscribed to this process's ring events. Shape and keepalive discipline
// (ping ticker, pong-extended read deadline, buffered send channel drained
// by a dedicated writer goroutine) are the teacher's main.go Client, scoped
// down to a single Hub instead of a game-wide Broker.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	id      string
	verbosity Tier
	log     *logging.Logger
}

// ServeWS upgrades r into a dashboard WebSocket connection and registers it
// with the Hub. Intended to be mounted at /dashboard/ws.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	logger := h.logger
	clientID, err := h.auth.authenticate(r)
	if err != nil {
		logger.Warn("rejecting dashboard connection: authentication failed", logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("dashboard websocket upgrade failed", logging.Error(err))
		return
	}

	tier := parseTierParam(r.URL.Query().Get("tier"))
	client := &Client{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		id:      clientID,
		verbosity: tier,
		log:     logger.With(logging.String("dashboard_client_id", clientID)),
	}
	h.register(client)

	waitDuration := pongWaitMultiplier * pingInterval
	if err := conn.SetReadDeadline(time.Now().Add(waitDuration)); err != nil {
		client.log.Error("failed to set initial read deadline", logging.Error(err))
		h.deregister(client)
		_ = conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})

	go h.readLoop(client, waitDuration)
	go h.writeLoop(client)
}

// readLoop discards inbound messages - dashboard clients are read-only
// subscribers - but must keep draining the socket so pong frames are seen
// and the read deadline never trips on an otherwise idle connection.
func (h *Hub) readLoop(client *Client, waitDuration time.Duration) {
	defer func() {
		h.deregister(client)
		_ = client.conn.Close()
	}()
	for {
		_, _, err := client.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				client.log.Warn("dashboard read deadline exceeded", logging.Error(err))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.log.Warn("unexpected dashboard websocket close", logging.Error(err))
			} else if !errors.Is(err, websocket.ErrCloseSent) {
				client.log.Debug("dashboard read error", logging.Error(err))
			}
			return
		}
		if err := client.conn.SetReadDeadline(time.Now().Add(waitDuration)); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				client.log.Error("failed to set dashboard write deadline", logging.Error(err))
				h.deregister(client)
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.log.Error("dashboard write error", logging.Error(err))
				h.deregister(client)
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				client.log.Warn("dashboard ping failure", logging.Error(err))
				h.deregister(client)
				return
			}
		}
	}
}
