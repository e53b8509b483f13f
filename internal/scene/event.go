package scene

import (
	"encoding/json"
	"time"
)

// EventType classifies scene log events.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeEnter
	EventTypeSeatAssigned
	EventTypeChatSent
	EventTypeChatExpired
	EventTypePresentationStarted
	EventTypeTeardown
)

// EventVersion is the schema version written with every event.
const EventVersion uint8 = 1

// Event is one line of the scene event log.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	Frame     uint64          `json:"frame"`
	SessionID string          `json:"sessionId"`
	Source    string          `json:"source,omitempty"` // rate-limit key, e.g. "seat:3"
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (t EventType) String() string {
	switch t {
	case EventTypeEnter:
		return "scene_enter"
	case EventTypeSeatAssigned:
		return "seat_assigned"
	case EventTypeChatSent:
		return "chat_sent"
	case EventTypeChatExpired:
		return "chat_expired"
	case EventTypePresentationStarted:
		return "presentation_started"
	case EventTypeTeardown:
		return "scene_teardown"
	default:
		return "unknown"
	}
}

// MarshalText writes the event name instead of the number.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses an event name.
func (t *EventType) UnmarshalText(b []byte) error {
	for c := EventTypeEnter; c <= EventTypeTeardown; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	*t = EventTypeUnknown
	return nil
}

// EnterPayload records a completed scene entry.
type EnterPayload struct {
	Pseudonym string `json:"pseudonym"`
	Avatar    string `json:"avatar"`
	LocalSeat int    `json:"localSeat"`
	Seats     int    `json:"seats"`
	Target    string `json:"target"`
}

// SeatPayload records one seat assignment.
type SeatPayload struct {
	Seat   int    `json:"seat"`
	Avatar string `json:"avatar"`
	Label  string `json:"label"`
	Clip   string `json:"clip,omitempty"`
}

// ChatPayload records a bubble being shown or removed.
type ChatPayload struct {
	Seat int    `json:"seat"`
	Text string `json:"text"`
}

// PresentationPayload records the video start.
type PresentationPayload struct {
	VideoURL string `json:"videoUrl"`
	Error    string `json:"error,omitempty"`
}

// EncodePayload marshals a payload to JSON bytes.
func EncodePayload(payload interface{}) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates an event stamped at now.
func NewEvent(eventType EventType, now time.Time, frame uint64, sessionID, source string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: now.UnixNano(),
		Frame:     frame,
		SessionID: sessionID,
		Source:    source,
		Payload:   EncodePayload(payload),
	}
}
