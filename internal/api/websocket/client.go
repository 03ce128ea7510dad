package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Requests reach the upgrade only through the auth middleware.
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	logger     *zap.Logger
	remoteAddr string
	user       string

	mu            sync.Mutex
	subscriptions map[string]bool // empty: everything
}

// filter narrows a readbacks message to the client's subscriptions. ok is
// false when the shared payload can be sent unchanged; a nil payload with
// ok set means nothing is left to send.
func (c *Client) filter(msg Message) (payload []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subscriptions) == 0 || msg.Type != MessageTypeReadbacks {
		return nil, false
	}
	all, isReadbacks := msg.Data.([]ReadbackData)
	if !isReadbacks {
		return nil, false
	}

	var keep []ReadbackData
	for _, r := range all {
		if c.subscriptions[r.Name] {
			keep = append(keep, r)
		}
	}
	if len(keep) == 0 {
		return nil, true
	}
	msg.Data = keep
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, true
	}
	return data, true
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd ClientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr))
			}
			break
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd ClientCommand) {
	c.logger.Debug("Received client message",
		zap.String("remote_addr", c.remoteAddr),
		zap.String("type", string(cmd.Type)),
		zap.Strings("names", cmd.Names))

	c.mu.Lock()
	defer c.mu.Unlock()
	switch cmd.Type {
	case MessageTypeSubscribe:
		for _, n := range cmd.Names {
			c.subscriptions[n] = true
		}
	case MessageTypeUnsubscribe:
		if len(cmd.Names) == 0 {
			clear(c.subscriptions)
		}
		for _, n := range cmd.Names {
			delete(c.subscriptions, n)
		}
	default:
		c.logger.Debug("Unknown client command", zap.String("type", string(cmd.Type)))
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade requests for user.
func ServeWs(hub *Hub, user string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		logger:        hub.logger,
		remoteAddr:    conn.RemoteAddr().String(),
		user:          user,
		subscriptions: make(map[string]bool),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump()
}
