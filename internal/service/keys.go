package service

import "time"

// keyRateLimiter passes every initial key press and throttles auto-repeat
// per key.
type keyRateLimiter struct {
	interval time.Duration
	last     map[string]time.Time
}

func newKeyRateLimiter(interval time.Duration) *keyRateLimiter {
	return &keyRateLimiter{interval: interval, last: make(map[string]time.Time)}
}

func (l *keyRateLimiter) allow(key string, repeat bool, now time.Time) bool {
	if repeat {
		if prev, ok := l.last[key]; ok && now.Sub(prev) < l.interval {
			return false
		}
	}
	l.last[key] = now
	return true
}
