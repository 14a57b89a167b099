package quota

import (
	"sync"
	"time"
)

// DefaultLockoutCooldown is how long calls are suppressed after a temporary
// lockout when the provider gives no other hint.
const DefaultLockoutCooldown = 15 * time.Minute

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

// State holds the process-wide quota flags. It is owned by the composition root
// and shared by every client of the same provider account.
//
// Daily limits reset at the provider's day boundary (00:00 UTC).
type State struct {
	mu    sync.RWMutex
	clock Clock

	imageLimitUntil    time.Time
	metadataLimitUntil time.Time
	lockoutUntil       time.Time
	cooldown           time.Duration
}

// NewState creates a State using the wall clock.
func NewState() *State {
	return NewStateWithClock(time.Now)
}

// NewStateWithClock creates a State driven by clock.
func NewStateWithClock(clock Clock) *State {
	return &State{
		clock:    clock,
		cooldown: DefaultLockoutCooldown,
	}
}

// NextReset returns the first provider day boundary strictly after t.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// Observe records the side effects of a provider code and returns its category.
func (s *State) Observe(code Code) Category {
	cat := Classify(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	switch cat {
	case CategoryImageQuotaExceeded:
		s.imageLimitUntil = NextReset(now)
	case CategoryMetadataQuotaExceeded:
		s.metadataLimitUntil = NextReset(now)
	case CategoryLockoutWithCooldown:
		s.lockoutUntil = now.Add(s.cooldown)
	}
	return cat
}

// IsImageDailyLimitActive reports whether image downloads are exhausted for
// the current provider day. It never touches the network.
func (s *State) IsImageDailyLimitActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock().Before(s.imageLimitUntil)
}

// ImageLimitResetsAt returns when the image limit clears, zero if inactive.
func (s *State) ImageLimitResetsAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.clock().Before(s.imageLimitUntil) {
		return time.Time{}
	}
	return s.imageLimitUntil
}

// IsMetadataDailyLimitActive reports whether schedule/metadata requests are
// exhausted for the current provider day.
func (s *State) IsMetadataDailyLimitActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock().Before(s.metadataLimitUntil)
}

// LockedOutUntil returns the end of the current lockout, zero if none.
func (s *State) LockedOutUntil() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.clock().Before(s.lockoutUntil) {
		return time.Time{}
	}
	return s.lockoutUntil
}

// SetLockoutCooldown overrides DefaultLockoutCooldown.
func (s *State) SetLockoutCooldown(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldown = d
}

// Reset clears every flag.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageLimitUntil = time.Time{}
	s.metadataLimitUntil = time.Time{}
	s.lockoutUntil = time.Time{}
}
