package scene

import (
	"time"

	"auditorium/internal/presentation"
	"auditorium/internal/seating"
)

// Snapshot is an immutable copy of a scene for the renderer.
// Uses value types so it can be encoded and pushed without holding any lock.
type Snapshot struct {
	SessionID     string            `json:"sessionId"`
	Status        string            `json:"status"`
	Frame         uint64            `json:"frame"`
	AuditoriumURL string            `json:"auditoriumUrl"`
	LocalSeat     int               `json:"localSeat"`
	Pseudonym     string            `json:"pseudonym"`
	Seats         []SeatSnapshot    `json:"seats"`
	Countdown     CountdownSnapshot `json:"countdown"`
	Screen        presentation.View `json:"screen"`
}

// SeatSnapshot is one occupied seat.
type SeatSnapshot struct {
	Seat      int               `json:"seat"`
	Avatar    string            `json:"avatar"`
	ModelURL  string            `json:"modelUrl"`
	Label     string            `json:"label"`
	Local     bool              `json:"local"`
	Position  seating.Vec3      `json:"position"`
	Chat      *ChatSnapshot     `json:"chat,omitempty"`
	Animation AnimationSnapshot `json:"animation"`
}

// ChatSnapshot is a live bubble anchored above its seat.
type ChatSnapshot struct {
	Text      string    `json:"text"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AnimationSnapshot is the pose the renderer should apply to a seat's model.
type AnimationSnapshot struct {
	Clip   string  `json:"clip,omitempty"`
	Phase  string  `json:"phase"`
	Weight float64 `json:"weight"`
	Time   float64 `json:"time"`
}

// CountdownSnapshot mirrors the presentation trigger.
type CountdownSnapshot struct {
	Remaining int       `json:"remaining"`
	Formatted string    `json:"formatted"`
	Started   bool      `json:"started"`
	Target    time.Time `json:"target"`
}

// Seat returns the snapshot for seat.
func (s Snapshot) Seat(seat int) (SeatSnapshot, bool) {
	for _, ss := range s.Seats {
		if ss.Seat == seat {
			return ss, true
		}
	}
	return SeatSnapshot{}, false
}
