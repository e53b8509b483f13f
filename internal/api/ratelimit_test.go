package api_test

import (
	"errors"
	"testing"
	"time"

	"auditorium/internal/api"
)

func TestJoinLimiterLimits(t *testing.T) {
	tests := []struct {
		name    string
		limiter *api.JoinLimiter
		joins   [][2]string // session, ip
		wantErr error
	}{
		{"per session", api.NewJoinLimiter(10, 10, 2),
			[][2]string{{"a", "1.1.1.1"}, {"a", "2.2.2.2"}, {"a", "3.3.3.3"}}, api.ErrJoinsPerSession},
		{"per ip", api.NewJoinLimiter(10, 2, 10),
			[][2]string{{"a", "1.1.1.1"}, {"b", "1.1.1.1"}, {"c", "1.1.1.1"}}, api.ErrJoinsPerIP},
		{"total", api.NewJoinLimiter(2, 10, 10),
			[][2]string{{"a", "1.1.1.1"}, {"b", "2.2.2.2"}, {"c", "3.3.3.3"}}, api.ErrJoinsFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := len(tt.joins) - 1
			for i, j := range tt.joins[:last] {
				if err := tt.limiter.Acquire(j[0], j[1]); err != nil {
					t.Fatalf("join %d: %v", i, err)
				}
			}
			j := tt.joins[last]
			if err := tt.limiter.Acquire(j[0], j[1]); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			tt.limiter.Release(tt.joins[0][0], tt.joins[0][1])
			if err := tt.limiter.Acquire(j[0], j[1]); err != nil {
				t.Errorf("join after release: %v", err)
			}
		})
	}
}

func TestJoinLimiterReleaseForgetsEmptySessions(t *testing.T) {
	l := api.NewJoinLimiter(0, 0, 0)
	l.Acquire("a", "1.1.1.1")
	l.Acquire("a", "2.2.2.2")
	l.Acquire("b", "1.1.1.1")

	if l.Joined("a") != 2 {
		t.Errorf("Joined(a) = %d", l.Joined("a"))
	}
	l.Release("a", "1.1.1.1")
	l.Release("a", "2.2.2.2")
	// Unknown releases are ignored
	l.Release("a", "2.2.2.2")
	l.Release("zzz", "9.9.9.9")

	want := api.JoinStats{Renderers: 1, Sessions: 1}
	if got := l.Stats(); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
	if l.Joined("a") != 0 {
		t.Errorf("Joined(a) = %d after release", l.Joined("a"))
	}
}

func TestIPRateLimiterCreatesSeparateFromRequests(t *testing.T) {
	rl := api.NewIPRateLimiter(api.RateLimitConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		CreatesPerMinute:  0.01,
		CreateBurst:       1,
		CleanupInterval:   time.Hour,
	})
	defer rl.Stop()

	if !rl.AllowCreate("1.1.1.1") {
		t.Fatal("first create should pass")
	}
	if rl.AllowCreate("1.1.1.1") {
		t.Error("second create should be limited")
	}
	if !rl.AllowCreate("2.2.2.2") {
		t.Error("another client has its own create bucket")
	}
	if !rl.Allow("1.1.1.1") {
		t.Error("plain requests should not use the create bucket")
	}

	want := api.RequestStats{Clients: 2, Allowed: 1, CreatesRejected: 1}
	if got := rl.Stats(); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
}

func TestIPRateLimiterZeroCreateRateIsUnlimited(t *testing.T) {
	rl := api.NewIPRateLimiter(api.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	for i := 0; i < 10; i++ {
		if !rl.AllowCreate("1.1.1.1") {
			t.Fatalf("create %d limited with CreatesPerMinute 0", i)
		}
	}
}
