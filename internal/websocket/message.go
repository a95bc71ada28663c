package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeSessionStarted   MessageType = "session_started"
	TypeTaskStarted      MessageType = "task_started"
	TypePageProcessed    MessageType = "page_processed"
	TypeTaskCompleted    MessageType = "task_completed"
	TypeSessionCompleted MessageType = "session_completed"
	TypeSyncError        MessageType = "sync_error"
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SessionStartedPayload struct {
	Ticket    string   `json:"ticket"`
	TaskQueue []string `json:"task_queue"`
}

type TaskStartedPayload struct {
	Ticket     string `json:"ticket"`
	EntityType string `json:"entity_type"`
}

type PageProcessedPayload struct {
	Ticket     string `json:"ticket"`
	EntityType string `json:"entity_type"`
	Records    int    `json:"records"`
	Remaining  int    `json:"remaining"`
	Progress   int    `json:"progress"`
}

type TaskCompletedPayload struct {
	Ticket     string `json:"ticket"`
	EntityType string `json:"entity_type"`
	Progress   int    `json:"progress"`
}

type SessionCompletedPayload struct {
	Ticket string `json:"ticket"`
}

type SyncErrorPayload struct {
	Ticket     string `json:"ticket"`
	EntityType string `json:"entity_type,omitempty"`
	Error      string `json:"error"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
