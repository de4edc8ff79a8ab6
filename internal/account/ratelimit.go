// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package account

import (
	"sync"
	"time"
)

// Default login limiter settings, overridable via configuration.
const (
	DefaultAttemptCeiling = 5
	DefaultAttemptWindow  = 15 * time.Minute
)

// AttemptLimiter suppresses authentication attempts per client
// identity once a threshold is exceeded within a window. The login
// flow consults it before touching the store or the hasher.
//
// The in-memory implementation below suits a single process; a
// multi-instance deployment swaps in one backed by a shared cache.
type AttemptLimiter interface {
	// Allow records an attempt for key and reports whether it may
	// proceed. Once it returns false, it keeps returning false for
	// that key until the window rolls over.
	Allow(key string) bool
}

// attemptWindow is the per-key counter state.
type attemptWindow struct {
	count int
	start time.Time
}

// MemoryAttemptLimiter is a fixed-window in-memory AttemptLimiter.
// Window rollover is evaluated lazily on access; there is no
// background sweep.
type MemoryAttemptLimiter struct {
	ceiling int
	window  time.Duration

	mu      sync.Mutex
	windows map[string]*attemptWindow
}

// NewMemoryAttemptLimiter creates a MemoryAttemptLimiter. Non-positive
// arguments fall back to the defaults.
func NewMemoryAttemptLimiter(ceiling int, window time.Duration) *MemoryAttemptLimiter {
	if ceiling <= 0 {
		ceiling = DefaultAttemptCeiling
	}
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &MemoryAttemptLimiter{
		ceiling: ceiling,
		window:  window,
		windows: make(map[string]*attemptWindow),
	}
}

// Allow records an attempt for key and reports whether it may proceed.
func (l *MemoryAttemptLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &attemptWindow{start: now}
		l.windows[key] = w
	}

	w.count++
	return w.count <= l.ceiling
}

// Len reports the number of tracked keys. For tests and metrics.
func (l *MemoryAttemptLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Compile-time interface check.
var _ AttemptLimiter = (*MemoryAttemptLimiter)(nil)
