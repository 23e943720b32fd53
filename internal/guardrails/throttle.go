package guardrails

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultThrottleWindow is the sliding-window duration for mutations.
	DefaultThrottleWindow = 60 * time.Second

	// DefaultThrottleCeiling is the maximum mutations per tool/entity pair
	// inside one window.
	DefaultThrottleCeiling = 3
)

// ThrottleError reports a mutation rejected by the sliding-window limit.
// It is user-correctable and never retried automatically.
type ThrottleError struct {
	Tool       string
	EntityID   string
	Ceiling    int
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("rate limit: %s has been called %d times for this entity in the last minute; retry in %s",
		e.Tool, e.Ceiling, e.RetryAfter.Round(time.Second))
}

// Throttle limits repeated mutations per tool/entity pair. Implementations
// must be safe for concurrent use. A distributed counter can be swapped in
// for multi-instance deployments.
type Throttle interface {
	// Allow records one call and returns a *ThrottleError when the ceiling
	// for the pair is already reached within the current window. An empty
	// entity ID skips throttling.
	Allow(tool, entityID string, now time.Time) error
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

// SlidingWindow is the in-process Throttle. State is keyed by
// "tool:entityID"; a window resets lazily the first time it is observed to
// have expired.
type SlidingWindow struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	window  time.Duration
	ceiling int
}

// NewSlidingWindow creates a throttle with the given window and ceiling.
// Non-positive values fall back to the defaults.
func NewSlidingWindow(window time.Duration, ceiling int) *SlidingWindow {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	if ceiling <= 0 {
		ceiling = DefaultThrottleCeiling
	}
	return &SlidingWindow{
		entries: make(map[string]*windowEntry),
		window:  window,
		ceiling: ceiling,
	}
}

// CompositeKey joins the throttle key parts.
func CompositeKey(tool, entityID string) string {
	return tool + ":" + entityID
}

func (s *SlidingWindow) Allow(tool, entityID string, now time.Time) error {
	if entityID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := CompositeKey(tool, entityID)
	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) >= s.window {
		s.entries[key] = &windowEntry{count: 1, windowStart: now}
		return nil
	}

	if entry.count >= s.ceiling {
		return &ThrottleError{
			Tool:       tool,
			EntityID:   entityID,
			Ceiling:    s.ceiling,
			RetryAfter: s.window - now.Sub(entry.windowStart),
		}
	}
	entry.count++
	return nil
}

// Reset clears all throttle state. Intended for tests.
func (s *SlidingWindow) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*windowEntry)
}
