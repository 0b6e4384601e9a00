package subscribe

import (
	"encoding/json"
	"fmt"
)

// Subprotocol is negotiated during the WebSocket upgrade. The Unraid API
// speaks the graphql-transport-ws framing.
const Subprotocol = "graphql-transport-ws"

// MessageType identifies a protocol frame.
type MessageType string

const (
	MsgConnectionInit MessageType = "connection_init"
	MsgConnectionAck  MessageType = "connection_ack"
	MsgPing           MessageType = "ping"
	MsgPong           MessageType = "pong"
	MsgSubscribe      MessageType = "subscribe"
	MsgNext           MessageType = "next"
	MsgError          MessageType = "error"
	MsgComplete       MessageType = "complete"
)

// Message is the JSON envelope for every frame on the socket. ID correlates
// subscribe/next/error/complete frames; connection-level frames omit it.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newMessage(id string, t MessageType, payload any) (Message, error) {
	msg := Message{ID: id, Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// subscribePayload is the body of an outbound subscribe frame.
type subscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// executionResult is the body of an inbound next frame.
type executionResult struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

func errMessages(errs []gqlError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Message)
	}
	return out
}
