package todostate

import (
	"sync"

	"github.com/origon/todosync/internal/codec"
)

// Session holds the single session entity and its login lifecycle status.
// The logged-in flag flips only on a confirmed login round trip; there is no
// optimistic login.
type Session struct {
	mu       sync.RWMutex
	user     codec.User
	status   AggregateStatus
	onChange func()
}

// NewSession creates a session at the logged-out resting state.
func NewSession() *Session {
	return &Session{
		user:   restingUser(),
		status: restingAggregate(),
	}
}

func restingUser() codec.User {
	return codec.User{ID: codec.UnassignedID}
}

// SetOnChange registers a hook invoked after every mutation, outside the
// session lock.
func (s *Session) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (s *Session) BeginLogin() {
	s.mu.Lock()
	s.status = AggregateStatus{Status: StatusLoading}
	s.mu.Unlock()
	s.notify()
}

// CompleteLogin replaces the session entity with the resolved user and flips
// the logged-in flag.
func (s *Session) CompleteLogin(user codec.User) {
	s.mu.Lock()
	if s.status.Status == StatusLoading {
		user.LoggedIn = true
		s.user = user
		s.status = AggregateStatus{Status: StatusSucceeded}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) FailLogin(err error) {
	s.mu.Lock()
	if s.status.Status == StatusLoading {
		s.status = AggregateStatus{Status: StatusFailed, Error: errorMessage(err)}
	}
	s.mu.Unlock()
	s.notify()
}

// Logout synchronously resets the session entity and status to their
// initial resting values.
func (s *Session) Logout() {
	s.mu.Lock()
	s.user = restingUser()
	s.status = restingAggregate()
	s.mu.Unlock()
	s.notify()
}

// ResetStatus returns the login status and error to rest without touching
// the session entity.
func (s *Session) ResetStatus() {
	s.mu.Lock()
	s.status = restingAggregate()
	s.mu.Unlock()
	s.notify()
}

// User returns the session entity.
func (s *Session) User() codec.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// UserID returns the current session identifier, codec.UnassignedID when
// logged out. Synchronization operations resolve it once at call time.
func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.ID
}

// LoggedIn reports whether the session identifier is resolved.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.LoggedIn
}

// Status returns the login lifecycle status.
func (s *Session) Status() AggregateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// restore replaces the session entity from a durable snapshot. The
// logged-in flag is derived from the persisted identifier, never stored, and
// the status comes back at rest. The change hook does not fire.
func (s *Session) restore(user codec.User) {
	s.mu.Lock()
	user.LoggedIn = user.ID != codec.UnassignedID
	s.user = user
	s.status = restingAggregate()
	s.mu.Unlock()
}

// snapshotUser returns the durable view of the session entity. The
// logged-in flag is dropped; rehydration recomputes it.
func (s *Session) snapshotUser() codec.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user := s.user
	user.LoggedIn = false
	return user
}
