package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	// Server to Client
	MessageTypeConnected     MessageType = "CONNECTED"
	MessageTypeMessagePosted MessageType = "MESSAGE_POSTED"
	MessageTypeMemberJoined  MessageType = "MEMBER_JOINED"
	MessageTypeMemberLeft    MessageType = "MEMBER_LEFT"
	MessageTypeError         MessageType = "ERROR"

	// Client to Server
	MessageTypePing MessageType = "PING"
	MessageTypePong MessageType = "PONG"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

type ConnectedPayload struct {
	GroupID int64  `json:"groupId"`
	Slug    string `json:"slug"`
	UserID  int64  `json:"userId"`
}

type MessagePostedPayload struct {
	ID         int64     `json:"id"`
	GroupID    int64     `json:"groupId"`
	UserID     int64     `json:"userId"`
	AuthorName string    `json:"authorName"`
	AuthorSlug string    `json:"authorSlug"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

type MembershipPayload struct {
	GroupID int64  `json:"groupId"`
	UserID  int64  `json:"userId"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
