package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dom/neighbor-group/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a test WebSocket client
type WSClient struct {
	t        *testing.T
	conn     *gorillaWS.Conn
	messages chan *websocket.Message
	errors   chan error
	done     chan struct{}
	mu       sync.Mutex
}

// NewWSClient connects to url signed in with token.
func NewWSClient(t *testing.T, url, token string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, SessionHeader(token))
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan *websocket.Message, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

// readPump reads messages from the WebSocket connection
func (c *WSClient) readPump() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- err:
			default:
			}
			return
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		select {
		case c.messages <- &msg:
		case <-c.done:
			return
		}
	}
}

// Close closes the WebSocket connection gracefully
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.conn.Close()
	}
}

// Ping sends a PING message.
func (c *WSClient) Ping() {
	c.t.Helper()

	data, err := json.Marshal(&websocket.Message{
		Type:      websocket.MessageTypePing,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		c.t.Fatalf("failed to marshal ping: %v", err)
	}

	c.mu.Lock()
	err = c.conn.WriteMessage(gorillaWS.TextMessage, data)
	c.mu.Unlock()

	if err != nil {
		c.t.Fatalf("failed to send ping: %v", err)
	}
}

// ExpectMessage waits for the next message and checks its type.
func (c *WSClient) ExpectMessage(msgType websocket.MessageType, timeout time.Duration) *websocket.Message {
	c.t.Helper()

	select {
	case msg := <-c.messages:
		if msg == nil {
			c.t.Fatalf("connection closed while waiting for %s", msgType)
			return nil
		}
		if msg.Type != msgType {
			c.t.Fatalf("expected %s, got %s", msgType, msg.Type)
		}
		return msg
	case <-time.After(timeout):
		c.t.Fatalf("timeout waiting for %s", msgType)
	}
	return nil
}

// SkipUntilMessageType discards messages until one of msgType arrives.
func (c *WSClient) SkipUntilMessageType(msgType websocket.MessageType, timeout time.Duration) *websocket.Message {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			if msg == nil {
				c.t.Fatalf("connection closed while waiting for %s", msgType)
				return nil
			}
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			c.t.Fatalf("timeout waiting for %s", msgType)
			return nil
		}
	}
}

// DecodePayload unmarshals msg's payload into v.
func (c *WSClient) DecodePayload(msg *websocket.Message, v interface{}) {
	c.t.Helper()

	if err := json.Unmarshal(msg.Payload, v); err != nil {
		c.t.Fatalf("failed to decode %s payload: %v", msg.Type, err)
	}
}

// ExpectClosed waits for the server to close the connection.
func (c *WSClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.messages:
			if !ok || msg == nil {
				return
			}
		case <-deadline:
			c.t.Fatal("timeout waiting for connection to close")
			return
		}
	}
}
