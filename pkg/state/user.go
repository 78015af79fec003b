package state

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/aeolun/lanchat/pkg/protocol"
)

// Identity identifies a peer. Two users are the same user iff their identities are equal.
type Identity struct {
	Name string
	Host string
	Addr netip.AddrPort
}

func (id Identity) String() string {
	return fmt.Sprintf("%s@%s (%s)", id.Name, id.Host, id.Addr)
}

// User is a known peer and the messages exchanged with it.
// A User value is never modified after creation; AddTalk returns a new value.
type User struct {
	Identity
	Nickname string // Display name announced by the peer; not part of the identity

	talk []TalkEntry
}

// TalkEntry is one message of a talk log and the local time it was sent or
// received. Packet numbers are not reliable timestamps, so At is kept apart.
type TalkEntry struct {
	Message protocol.Message
	At      time.Time
}

// NewUser creates a user with an empty talk log
func NewUser(name, host string, addr netip.AddrPort) User {
	return User{Identity: Identity{Name: name, Host: host, Addr: addr}}
}

// UserFromMessage derives the sender of msg, received from addr.
// Entry announcements carry the nickname as payload.
func UserFromMessage(msg protocol.Message, from *net.UDPAddr) User {
	var addr netip.AddrPort
	if from != nil {
		addr = from.AddrPort()
		// Normalize IPv4-mapped addresses so identities compare equal
		addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
	}
	u := NewUser(msg.User, msg.Host, addr)

	switch msg.Command() {
	case protocol.BrEntry, protocol.AnsEntry, protocol.BrAbsence:
		u.Nickname = msg.Payload
	}
	return u
}

// DisplayName returns the nickname, falling back to the login name
func (u User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Name
}

// Equal reports identity equality; the talk log is ignored
func (u User) Equal(other User) bool {
	return u.Identity == other.Identity
}

// UDPAddr returns the peer's address for sending
func (u User) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(u.Addr)
}

// Talk returns the messages of the talk log, oldest first
func (u User) Talk() []protocol.Message {
	msgs := make([]protocol.Message, len(u.talk))
	for i, e := range u.talk {
		msgs[i] = e.Message
	}
	return msgs
}

// TalkEntries returns a copy of the talk log with local times, oldest first
func (u User) TalkEntries() []TalkEntry {
	return append([]TalkEntry(nil), u.talk...)
}

// TalkLen returns the number of messages in the talk log
func (u User) TalkLen() int {
	return len(u.talk)
}

// AddTalk returns a copy of u with msg appended to the talk log, without a local time
func (u User) AddTalk(msg protocol.Message) User {
	return u.AddTalkAt(msg, time.Time{})
}

// AddTalkAt returns a copy of u with msg, sent or received at at, appended to the talk log
func (u User) AddTalkAt(msg protocol.Message, at time.Time) User {
	// Full slice expression forces a fresh backing array so older
	// snapshots sharing u.talk never see the append.
	u.talk = append(u.talk[:len(u.talk):len(u.talk)], TalkEntry{Message: msg, At: at})
	return u
}
