// ABOUTME: Embedded assets for the LANChat client
// ABOUTME: Includes the notification icon
package assets

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"os"
	"path/filepath"
)

//go:embed icon.png
var IconPNG []byte

const iconHashKey = "icon_hash"

// ConfigStore defines the settings methods needed for icon hash storage
type ConfigStore interface {
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error
}

// GetIconPath writes the embedded icon to dataDir if needed and returns its path.
// The file is rewritten when it is missing or the embedded icon changed.
func GetIconPath(dataDir string, settings ConfigStore) (string, error) {
	iconPath := filepath.Join(dataDir, "icon.png")
	embeddedHash := calculateHash(IconPNG)

	storedHash, _ := settings.GetConfig(iconHashKey)

	needsWrite := storedHash != embeddedHash
	if _, err := os.Stat(iconPath); os.IsNotExist(err) {
		needsWrite = true
	}

	if needsWrite {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return "", err
		}
		if err := os.WriteFile(iconPath, IconPNG, 0644); err != nil {
			return "", err
		}
		_ = settings.SetConfig(iconHashKey, embeddedHash)
	}

	return iconPath, nil
}

// calculateHash returns the SHA256 hash of data as a hex string
func calculateHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
