// Package state holds the immutable snapshot of known users and their
// conversations, and the store that serializes transitions between snapshots.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/aeolun/lanchat/pkg/protocol"
)

// ErrUnregisteredUser matches any *UnregisteredUserError via errors.Is
var ErrUnregisteredUser = errors.New("unregistered user")

// UnregisteredUserError is returned when selecting a user that is not in the snapshot
type UnregisteredUserError struct {
	User Identity
}

func (e *UnregisteredUserError) Error() string {
	return fmt.Sprintf("unregistered user: %s", e.User)
}

// Is makes errors.Is(err, ErrUnregisteredUser) succeed
func (e *UnregisteredUserError) Is(target error) bool {
	return target == ErrUnregisteredUser
}

// State is an immutable snapshot: every transition returns a new State and
// leaves the receiver untouched. The zero value is the initial state.
type State struct {
	users       []User
	selected    User
	hasSelected bool
}

// Initial returns the state at process start: no users, no selection
func Initial() State {
	return State{}
}

// Users returns a copy of the known users in insertion order
func (s State) Users() []User {
	return append([]User(nil), s.users...)
}

// Len returns the number of known users
func (s State) Len() int {
	return len(s.users)
}

// Find returns the user with the given identity
func (s State) Find(id Identity) (User, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.users[i], true
	}
	return User{}, false
}

// Contains reports whether a user with u's identity is known
func (s State) Contains(u User) bool {
	return s.indexOf(u.Identity) >= 0
}

// SelectedUser returns the selected user. While the user is still known the
// latest version (including its talk log) is returned.
func (s State) SelectedUser() (User, bool) {
	if !s.hasSelected {
		return User{}, false
	}
	if current, ok := s.Find(s.selected.Identity); ok {
		return current, true
	}
	return s.selected, true
}

func (s State) indexOf(id Identity) int {
	for i, u := range s.users {
		if u.Identity == id {
			return i
		}
	}
	return -1
}

// AddUser appends u unless a user with the same identity is already known
func (s State) AddUser(u User) State {
	if s.Contains(u) {
		return s
	}
	next := s
	next.users = append(s.users[:len(s.users):len(s.users)], u)
	return next
}

// RemoveUser drops every user equal to u. The selection is left as is, even
// when it names the removed user.
func (s State) RemoveUser(u User) State {
	next := s
	next.users = make([]User, 0, len(s.users))
	for _, each := range s.users {
		if !each.Equal(u) {
			next.users = append(next.users, each)
		}
	}
	return next
}

// SelectUser marks u as selected. It fails with *UnregisteredUserError, and
// returns the receiver unchanged, when u is not known.
func (s State) SelectUser(u User) (State, error) {
	current, ok := s.Find(u.Identity)
	if !ok {
		return s, &UnregisteredUserError{User: u.Identity}
	}
	next := s
	next.selected = current
	next.hasSelected = true
	return next, nil
}

// ClearSelection removes the selection
func (s State) ClearSelection() State {
	next := s
	next.selected = User{}
	next.hasSelected = false
	return next
}

// AddTalkToUser appends msg to the talk log of the user equal to u. Other
// users are carried over unchanged.
func (s State) AddTalkToUser(u User, msg protocol.Message) State {
	return s.AddTalkToUserAt(u, msg, time.Time{})
}

// AddTalkToUserAt is AddTalkToUser recording the local time of the message
func (s State) AddTalkToUserAt(u User, msg protocol.Message, at time.Time) State {
	next := s
	next.users = make([]User, len(s.users))
	for i, each := range s.users {
		if each.Equal(u) {
			each = each.AddTalkAt(msg, at)
		}
		next.users[i] = each
	}
	return next
}

// SwapUsers replaces the user list with updater(users). The updater receives
// a copy it may modify freely; duplicates in its result are dropped, first
// occurrence wins.
func (s State) SwapUsers(updater func([]User) []User) State {
	updated := updater(s.Users())

	next := s
	next.users = make([]User, 0, len(updated))
	seen := make(map[Identity]bool, len(updated))
	for _, u := range updated {
		if seen[u.Identity] {
			continue
		}
		seen[u.Identity] = true
		next.users = append(next.users, u)
	}
	return next
}
