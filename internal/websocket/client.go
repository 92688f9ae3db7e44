package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client is one member's live connection to one group.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	groupID   int64
	userID    int64
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, groupID, userID int64) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		groupID: groupID,
		userID:  userID,
	}
}

// Close ends the write pump, which closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump only keeps the connection alive: posting goes through the HTTP
// API so that every write passes the membership gate.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("group", c.groupID).Debug("websocket closed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "Messages must be JSON")
			continue
		}
		if msg.Type == MessageTypePing {
			c.Send(&Message{Type: MessageTypePong, Timestamp: time.Now().UnixMilli()})
		}
	}
}

func (c *Client) WritePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

// Send queues msg for this client. Messages to a closed or full client
// are dropped.
func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	defer func() {
		// send on a channel closed by the hub
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	msg, err := NewMessage(MessageTypeError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.Send(msg)
}
