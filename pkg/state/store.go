package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeolun/lanchat/pkg/protocol"
	"github.com/phuslu/log"
)

// StateChanged is posted after every successful swap
type StateChanged struct {
	State State
}

// Poster accepts events for delivery; *event.Dispatcher implements it
type Poster interface {
	Post(ev any) error
}

// Store holds the current snapshot. Readers never block; writers are
// serialized so that no transition is lost and StateChanged events are
// posted in the order the swaps happened.
type Store struct {
	current atomic.Pointer[State]
	mu      sync.Mutex

	bus    Poster
	logger *log.Logger
}

// NewStore creates a store holding the initial state. bus may be nil.
func NewStore(bus Poster, logger *log.Logger) *Store {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	s := &Store{bus: bus, logger: logger}
	initial := Initial()
	s.current.Store(&initial)
	return s
}

// Current returns the latest snapshot
func (s *Store) Current() State {
	return *s.current.Load()
}

// Swap applies fn to the current snapshot and publishes the result
func (s *Store) Swap(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(*s.current.Load())
	s.current.Store(&next)
	s.publish(next)
	return next
}

// TrySwap is Swap for transitions that may fail. On error nothing is stored
// or published.
func (s *Store) TrySwap(fn func(State) (State, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := *s.current.Load()
	next, err := fn(prev)
	if err != nil {
		return prev, err
	}
	s.current.Store(&next)
	s.publish(next)
	return next, nil
}

func (s *Store) publish(next State) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Post(StateChanged{State: next}); err != nil {
		s.logger.Debug().Err(err).Msg("state change not published")
	}
}

// AddUser registers u if it is not known yet
func (s *Store) AddUser(u User) State {
	return s.Swap(func(st State) State { return st.AddUser(u) })
}

// RemoveUser forgets u
func (s *Store) RemoveUser(u User) State {
	return s.Swap(func(st State) State { return st.RemoveUser(u) })
}

// SelectUser selects a known user
func (s *Store) SelectUser(u User) (State, error) {
	return s.TrySwap(func(st State) (State, error) { return st.SelectUser(u) })
}

// AddTalkToUser appends msg to u's talk log
func (s *Store) AddTalkToUser(u User, msg protocol.Message) State {
	return s.Swap(func(st State) State { return st.AddTalkToUser(u, msg) })
}

// AddTalkToUserAt appends msg, sent or received at at, to u's talk log
func (s *Store) AddTalkToUserAt(u User, msg protocol.Message, at time.Time) State {
	return s.Swap(func(st State) State { return st.AddTalkToUserAt(u, msg, at) })
}

// ClearSelection removes the selection
func (s *Store) ClearSelection() State {
	return s.Swap(func(st State) State { return st.ClearSelection() })
}

// SwapUsers replaces the user list
func (s *Store) SwapUsers(updater func([]User) []User) State {
	return s.Swap(func(st State) State { return st.SwapUsers(updater) })
}
