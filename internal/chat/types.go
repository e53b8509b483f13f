// Package chat schedules ephemeral chat bubbles above auditorium seats.
package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxLength is the input limit of the chat box, in characters.
const MaxLength = 200

// Entry is one live chat bubble.
type Entry struct {
	Seat      int       `json:"seat"`
	Text      string    `json:"text"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ChangeKind classifies scheduler notifications.
type ChangeKind int

const (
	ChangeSent ChangeKind = iota
	ChangeExpired
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSent:
		return "sent"
	case ChangeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Change is emitted after a bubble is stored or expires.
type Change struct {
	Kind  ChangeKind
	Entry Entry
}

// Sanitize applies the chat box rules: trim, then cut to MaxLength characters.
// It reports false for blank input.
func Sanitize(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}
	if utf8.RuneCountInString(text) > MaxLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:MaxLength]))
	}
	return text, true
}
