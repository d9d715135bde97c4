// Package hub fans events out to websocket subscribers.
//
// One goroutine owns the client set; clients register, unregister and
// receive broadcasts through channels, so no connection is written from
// more than one goroutine.
package hub

import (
	"encoding/json"
	"time"
)

// Event types published by the assistant.
const (
	EventStatus          = "status"
	EventSessionStarted  = "session.started"
	EventSessionFinished = "session.finished"
	EventSpeaker         = "speaker"
	EventHealth          = "health"
	EventTrigger         = "trigger"
)

// Event is the envelope every message is sent in.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Message is an encoded event ready for the wire.
type Message []byte

// NewEvent encodes an event stamped with the current time.
func NewEvent(eventType string, data any) (Message, error) {
	b, err := json.Marshal(Event{Type: eventType, Time: time.Now(), Data: data})
	if err != nil {
		return nil, err
	}
	return Message(b), nil
}
