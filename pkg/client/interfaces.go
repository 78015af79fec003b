package client

import (
	"net"
	"time"

	"github.com/aeolun/lanchat/pkg/protocol"
)

// Sender queues outbound messages; *transport.UDPServer implements it
type Sender interface {
	Submit(msg protocol.Message, to *net.UDPAddr) error
}

// SettingsStore defines the interface for client settings persistence
// This allows for mocking in tests while the real Settings implements all these methods
type SettingsStore interface {
	// Configuration
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	// Username management
	GetLastUsername() string
	SetLastUsername(username string) error

	// First run tracking
	GetFirstRun() bool
	SetFirstRunComplete() error

	// Notification toggle
	GetNotificationsMuted() bool
	SetNotificationsMuted(muted bool) error

	// Peer history
	RecordPeer(name, host, addr string, seen time.Time) error
	RecentPeers(limit int) ([]Peer, error)

	Close() error
}

// Notifier raises a desktop notification
type Notifier interface {
	Notify(title, body string) error
}
