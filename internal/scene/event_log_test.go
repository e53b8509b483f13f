package scene

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestEventLogWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventLog()
	el.Start(NewSink(&buf))

	now := time.Unix(1700000000, 0)
	el.Emit(NewEvent(EventTypeEnter, now, 0, "s1", "", EnterPayload{Pseudonym: "Alice"}))
	el.Emit(NewEvent(EventTypeChatSent, now, 3, "s1", "seat:2", ChatPayload{Seat: 2, Text: "hi"}))
	el.Stop()
	el.Stop()

	var events []Event
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventTypeEnter || events[1].Type != EventTypeChatSent {
		t.Errorf("unexpected types %v %v", events[0].Type, events[1].Type)
	}
	if events[0].Sequence != 1 || events[1].Sequence != 2 {
		t.Errorf("unexpected sequence numbers %d %d", events[0].Sequence, events[1].Sequence)
	}

	var chat ChatPayload
	if err := json.Unmarshal(events[1].Payload, &chat); err != nil || chat.Text != "hi" {
		t.Errorf("payload = %s", events[1].Payload)
	}
}

func TestEventLogTypeNames(t *testing.T) {
	data, err := json.Marshal(NewEvent(EventTypePresentationStarted, time.Now(), 1, "s", "", nil))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"type":"presentation_started"`)) {
		t.Errorf("type not encoded by name: %s", data)
	}
}

func TestEventLogRejectsWhenStopped(t *testing.T) {
	el := NewEventLog()
	if el.Emit(Event{Type: EventTypeEnter}) {
		t.Error("emit before Start should be rejected")
	}
	el.Start(nil)
	el.Stop()
	if el.Emit(Event{Type: EventTypeEnter}) {
		t.Error("emit after Stop should be rejected")
	}
}

func TestEventLogLimitsPerSource(t *testing.T) {
	el := NewEventLog()
	el.Start(nil)
	defer el.Stop()

	accepted := 0
	for i := 0; i < 50; i++ {
		if el.Emit(Event{Type: EventTypeChatSent, Source: "seat:1"}) {
			accepted++
		}
	}
	if accepted >= 50 {
		t.Error("a single source should be rate limited")
	}
	if el.Stats().Dropped == 0 {
		t.Error("dropped events should be counted")
	}
	if !el.Emit(Event{Type: EventTypeChatSent, Source: "seat:2"}) {
		t.Error("another source should not be affected")
	}
}
