package client

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Settings manages client-side persistent settings. Conversations are never
// stored; only preferences and the peers seen recently.
type Settings struct {
	db  *sql.DB
	dir string // Directory where settings are stored
}

// Peer is a row of the peer history
type Peer struct {
	Name     string
	Host     string
	Addr     string
	LastSeen time.Time
}

// OpenSettings opens or creates the settings database
func OpenSettings(path string) (*Settings, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Settings{
		db:  db,
		dir: dir,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the settings database
func (s *Settings) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func (s *Settings) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS Config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS PeerHistory (
	name TEXT NOT NULL,
	host TEXT NOT NULL,
	addr TEXT NOT NULL,
	last_seen_at INTEGER NOT NULL,
	PRIMARY KEY (name, host, addr)
);
`
	_, err := s.db.Exec(schema)
	return err
}

// GetConfig retrieves a configuration value
func (s *Settings) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM Config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig stores a configuration value
func (s *Settings) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO Config (key, value) VALUES (?, ?)
	`, key, value)
	return err
}

// GetLastUsername returns the username used on the previous run
func (s *Settings) GetLastUsername() string {
	username, _ := s.GetConfig("last_username")
	return username
}

// SetLastUsername stores the username in use
func (s *Settings) SetLastUsername(username string) error {
	return s.SetConfig("last_username", username)
}

// GetFirstRun checks if this is the first time running the client
func (s *Settings) GetFirstRun() bool {
	val, _ := s.GetConfig("first_run_complete")
	return val != "true"
}

// SetFirstRunComplete marks first run as complete
func (s *Settings) SetFirstRunComplete() error {
	return s.SetConfig("first_run_complete", "true")
}

// GetNotificationsMuted reports whether desktop notifications were muted from the UI
func (s *Settings) GetNotificationsMuted() bool {
	val, _ := s.GetConfig("notifications_muted")
	return val == "true"
}

// SetNotificationsMuted persists the mute toggle
func (s *Settings) SetNotificationsMuted(muted bool) error {
	return s.SetConfig("notifications_muted", fmt.Sprintf("%t", muted))
}

// RecordPeer upserts a peer sighting
func (s *Settings) RecordPeer(name, host, addr string, seen time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO PeerHistory (name, host, addr, last_seen_at)
		VALUES (?, ?, ?, ?)
	`, name, host, addr, seen.Unix())
	return err
}

// RecentPeers returns up to limit peers, most recently seen first
func (s *Settings) RecentPeers(limit int) ([]Peer, error) {
	rows, err := s.db.Query(`
		SELECT name, host, addr, last_seen_at
		FROM PeerHistory
		ORDER BY last_seen_at DESC, name ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []Peer
	for rows.Next() {
		var p Peer
		var seen int64
		if err := rows.Scan(&p.Name, &p.Host, &p.Addr, &seen); err != nil {
			return nil, err
		}
		p.LastSeen = time.Unix(seen, 0)
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// GetSettingsDir returns the directory where settings are stored
func (s *Settings) GetSettingsDir() string {
	return s.dir
}
