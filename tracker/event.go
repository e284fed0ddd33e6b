package tracker

import (
	"encoding/json"
	"errors"
	"fmt"

	"capitao/caverna"
)

// EventType tags a push-stream payload
type EventType string

const (
	EventStatus EventType = "status"
	EventUpdate EventType = "update"
)

var (
	// ErrUnknownEvent is returned for payloads with an unrecognised type tag
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrMissingSession is returned for status/update payloads without a session
	ErrMissingSession = errors.New("event carries no session")
)

// Event is a decoded push-stream payload
type Event struct {
	Type    EventType
	Session *caverna.Session
}

type rawEvent struct {
	Type    EventType       `json:"type"`
	Session json.RawMessage `json:"session"`
}

// DecodeEvent parses and validates a payload. Anything that is not a
// well-formed status or update snapshot is rejected.
func DecodeEvent(payload []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("malformed event: %w", err)
	}

	switch raw.Type {
	case EventStatus, EventUpdate:
	case "":
		return Event{}, fmt.Errorf("%w: missing type", ErrUnknownEvent)
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, raw.Type)
	}

	if len(raw.Session) == 0 || string(raw.Session) == "null" {
		return Event{}, ErrMissingSession
	}

	var session caverna.Session
	if err := json.Unmarshal(raw.Session, &session); err != nil {
		return Event{}, fmt.Errorf("malformed session: %w", err)
	}
	if err := session.Validate(); err != nil {
		return Event{}, fmt.Errorf("invalid session: %w", err)
	}

	return Event{Type: raw.Type, Session: &session}, nil
}
