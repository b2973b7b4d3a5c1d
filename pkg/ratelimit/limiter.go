// Package ratelimit suppresses alert batches that arrive within a cooldown of
// the previous one. A single timestamp covers every alert class.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks when the last alert batch was sent. Safe for concurrent use.
type Limiter struct {
	mu   sync.Mutex
	last time.Time
}

// New returns a limiter that has never sent.
func New() *Limiter {
	return &Limiter{}
}

// ShouldSend reports whether at least cooldown has elapsed since the last batch.
// The first call after construction always returns true.
func (l *Limiter) ShouldSend(now time.Time, cooldown time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowed(now, cooldown)
}

// MarkSent records now as the time of the last batch.
func (l *Limiter) MarkSent(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = now
}

// Last returns the time of the last sent batch; zero if none.
func (l *Limiter) Last() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Acquire checks and marks in one step so concurrent callers cannot both send
// within the same cooldown. When ok is true the caller must call release if
// nothing was delivered, which restores the previous mark.
func (l *Limiter) Acquire(now time.Time, cooldown time.Duration) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.allowed(now, cooldown) {
		return func() {}, false
	}

	prev := l.last
	l.last = now
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.last.Equal(now) {
			l.last = prev
		}
	}, true
}

func (l *Limiter) allowed(now time.Time, cooldown time.Duration) bool {
	if l.last.IsZero() {
		return true
	}
	return now.Sub(l.last) >= cooldown
}
