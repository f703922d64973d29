package httpapi

import (
	"sync"
	"time"
)

// rateLimiter enforces per-IP request limits on two rolling windows: a
// per-minute and a per-hour cap.
type rateLimiter struct {
	mu         sync.Mutex
	perMinute  int
	perHour    int
	windows    map[string]*ipWindow
}

type ipWindow struct {
	minuteStart time.Time
	minuteCount int
	hourStart   time.Time
	hourCount   int
}

func newRateLimiter(perMinute, perHour int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		windows:   make(map[string]*ipWindow),
	}
}

// allow records one request from ip and reports whether it is within both
// the per-minute and per-hour limits.
func (r *rateLimiter) allow(ip string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[ip]
	if !ok {
		w = &ipWindow{minuteStart: now, hourStart: now}
		r.windows[ip] = w
	}

	if now.Sub(w.minuteStart) >= time.Minute {
		w.minuteStart = now
		w.minuteCount = 0
	}
	if now.Sub(w.hourStart) >= time.Hour {
		w.hourStart = now
		w.hourCount = 0
	}

	if w.minuteCount >= r.perMinute || w.hourCount >= r.perHour {
		return false
	}

	w.minuteCount++
	w.hourCount++
	return true
}
