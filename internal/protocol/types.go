package protocol

import (
	"encoding/json"
	"time"
)

// Event names a signal on the WebSocket channel.
type Event string

const (
	// Client -> Server
	EventRequestUpdate Event = "request_update"

	// Server -> Client
	EventUpdate            Event = "update"
	EventConnectionSuccess Event = "connection_success"
	EventError             Event = "error"
	EventHeartbeat         Event = "heartbeat"
)

// ConnectionMessage is the text sent with every connection_success.
const ConnectionMessage = "Connection successful"

// Message is a named signal with an optional payload.
type Message struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

// RawMessage is used for unmarshalling inbound signals.
type RawMessage struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ConnectionAck struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// Heartbeat lets clients tell an idle channel apart from a collector outage.
// LastSuccess is nil until the first successful sample.
type Heartbeat struct {
	Timestamp   time.Time  `json:"timestamp"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

func UpdateMessage(s Snapshot) Message {
	return Message{Event: EventUpdate, Data: s}
}

func AckMessage() Message {
	return Message{Event: EventConnectionSuccess, Data: ConnectionAck{Message: ConnectionMessage}}
}

func ErrorMessage(msg, stage string) Message {
	return Message{Event: EventError, Data: ErrorPayload{Message: msg, Stage: stage}}
}
