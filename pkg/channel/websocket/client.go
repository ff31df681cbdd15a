package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"drivel/pkg/stanza"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 << 10
	sendBuffer = 64
)

// client is one websocket connection.
type client struct {
	hub  *hub
	conn *gws.Conn
	send chan []byte
	done chan struct{}
	log  *slog.Logger

	mu      sync.RWMutex
	address stanza.Address
	nicks   map[string]string
}

func newClient(h *hub, conn *gws.Conn, log *slog.Logger) *client {
	return &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		log:   log,
		nicks: make(map[string]string),
	}
}

func (c *client) Address() stanza.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

func (c *client) setAddress(address stanza.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = address
}

func (c *client) nick(room string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nick, ok := c.nicks[room]
	return nick, ok
}

func (c *client) setNick(room string, nick string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nick == "" {
		delete(c.nicks, room)
		return
	}
	c.nicks[room] = nick
}

// sendFrame queues a frame without blocking; frames are dropped when the
// client is too slow to drain its buffer.
func (c *client) sendFrame(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("Failed to encode frame", "error", err)
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.log.Warn("Client send buffer full, dropping frame", "address", c.Address(), "type", frame.Type)
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure) {
				c.log.Info("Client disconnected", "address", c.Address(), "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendFrame(errorFrame("", "invalid frame"))
			continue
		}
		c.hub.handleFrame(c, frame)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(gws.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
