package client

import (
	"sort"
	"sync"
	"time"
)

// MockSettings is an in-memory test implementation of SettingsStore
type MockSettings struct {
	mu sync.RWMutex

	config map[string]string
	peers  map[[3]string]time.Time

	// Error injection
	getConfigErr  error
	setConfigErr  error
	recordPeerErr error
}

// NewMockSettings creates a new mock settings store
func NewMockSettings() *MockSettings {
	return &MockSettings{
		config: make(map[string]string),
		peers:  make(map[[3]string]time.Time),
	}
}

// GetConfig retrieves a configuration value
func (s *MockSettings) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getConfigErr != nil {
		return "", s.getConfigErr
	}
	return s.config[key], nil
}

// SetConfig stores a configuration value
func (s *MockSettings) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setConfigErr != nil {
		return s.setConfigErr
	}
	s.config[key] = value
	return nil
}

// GetLastUsername returns the stored username
func (s *MockSettings) GetLastUsername() string {
	v, _ := s.GetConfig("last_username")
	return v
}

// SetLastUsername stores the username
func (s *MockSettings) SetLastUsername(username string) error {
	return s.SetConfig("last_username", username)
}

// GetFirstRun reports whether first run has not been completed
func (s *MockSettings) GetFirstRun() bool {
	v, _ := s.GetConfig("first_run_complete")
	return v != "true"
}

// SetFirstRunComplete marks first run as complete
func (s *MockSettings) SetFirstRunComplete() error {
	return s.SetConfig("first_run_complete", "true")
}

// GetNotificationsMuted reports the mute toggle
func (s *MockSettings) GetNotificationsMuted() bool {
	v, _ := s.GetConfig("notifications_muted")
	return v == "true"
}

// SetNotificationsMuted stores the mute toggle
func (s *MockSettings) SetNotificationsMuted(muted bool) error {
	if muted {
		return s.SetConfig("notifications_muted", "true")
	}
	return s.SetConfig("notifications_muted", "false")
}

// RecordPeer stores a peer sighting
func (s *MockSettings) RecordPeer(name, host, addr string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordPeerErr != nil {
		return s.recordPeerErr
	}
	s.peers[[3]string{name, host, addr}] = seen
	return nil
}

// RecentPeers returns peers, most recently seen first
func (s *MockSettings) RecentPeers(limit int) ([]Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]Peer, 0, len(s.peers))
	for k, seen := range s.peers {
		peers = append(peers, Peer{Name: k[0], Host: k[1], Addr: k[2], LastSeen: seen})
	}
	sort.Slice(peers, func(i, j int) bool {
		if !peers[i].LastSeen.Equal(peers[j].LastSeen) {
			return peers[i].LastSeen.After(peers[j].LastSeen)
		}
		return peers[i].Name < peers[j].Name
	})
	if limit >= 0 && len(peers) > limit {
		peers = peers[:limit]
	}
	return peers, nil
}

// Close is a no-op
func (s *MockSettings) Close() error {
	return nil
}

// SetRecordPeerError injects an error for RecordPeer
func (s *MockSettings) SetRecordPeerError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordPeerErr = err
}
