package keyvexws

import (
	"encoding/json"
	"fmt"
)

// WebSocket frame types exchanged with clients.
const (
	MsgConnectionAck = "connection_ack"
	MsgPing          = "ping"
	MsgPong          = "pong"
	MsgProgress      = "progress"
	MsgError         = "error"
)

// Message is a frame exchanged over a client WebSocket.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseMessage parses a client frame from a JSON string.
func ParseMessage(body string) (*Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &msg, nil
}

// AckMessage returns a connection_ack frame.
func AckMessage() []byte {
	b, _ := json.Marshal(Message{Type: MsgConnectionAck})
	return b
}

// PongMessage returns a pong frame.
func PongMessage() []byte {
	b, _ := json.Marshal(Message{Type: MsgPong})
	return b
}

// ProgressMessage returns a progress frame carrying the given event.
func ProgressMessage(event ProgressEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshalling progress payload: %w", err)
	}
	b, err := json.Marshal(Message{
		ID:      event.JobID,
		Type:    MsgProgress,
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling progress message: %w", err)
	}
	return b, nil
}

// ErrorMessage returns an error frame.
func ErrorMessage(id string, errMsg string) []byte {
	payload, _ := json.Marshal(map[string]string{"message": errMsg})
	b, _ := json.Marshal(Message{
		ID:      id,
		Type:    MsgError,
		Payload: payload,
	})
	return b
}
