// Package hub fans annotated frames and alerts out to read-only viewers
// using a channel-based broadcast loop.
package hub

import (
	"encoding/json"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (JPEG frames)
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Envelope is the JSON frame viewers receive for non-image events.
type Envelope struct {
	Type  string        `json:"type"`
	Alert *events.Alert `json:"alert,omitempty"`
	Text  string        `json:"text,omitempty"`
	Time  time.Time     `json:"time"`
}

func encodeEnvelope(env Envelope) (Message, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
