package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aeolun/lanchat/pkg/protocol"
)

// TOMLConfig represents the structure of the client config file
type TOMLConfig struct {
	Network NetworkSection `toml:"network"`
	User    UserSection    `toml:"user"`
	Local   LocalSection   `toml:"local"`
	Metrics MetricsSection `toml:"metrics"`
}

type NetworkSection struct {
	Port             int    `toml:"port"`
	BindAddress      string `toml:"bind_address"`
	BroadcastAddress string `toml:"broadcast_address"`
}

type UserSection struct {
	Username string `toml:"username"`
	Hostname string `toml:"hostname"` // empty means the OS host name
}

type LocalSection struct {
	SettingsDB    string `toml:"settings_db"`
	LogFile       string `toml:"log_file"` // empty disables file logging
	LogLevel      string `toml:"log_level"`
	Notifications bool   `toml:"notifications"`
}

type MetricsSection struct {
	Listen string `toml:"listen"` // empty disables the metrics endpoint
}

// ConfigError represents a structured configuration error
type ConfigError struct {
	Path       string
	Message    string
	LineNumber int // 0 if not a parse error
}

func (e *ConfigError) Error() string {
	if e.LineNumber > 0 {
		return fmt.Sprintf("%s (line %d)", e.Message, e.LineNumber)
	}
	return e.Message
}

// getXDGConfigHome returns the XDG config directory
func getXDGConfigHome() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// getXDGDataHome returns the XDG data directory
func getXDGDataHome() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".local", "share")
}

// DefaultConfigPath returns the config file location under XDG_CONFIG_HOME
func DefaultConfigPath() string {
	return filepath.Join(getXDGConfigHome(), "lanchat", "config.toml")
}

// defaultUsername is the login name of the current OS user
func defaultUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		// Windows reports DOMAIN\user
		if i := strings.LastIndexByte(u.Username, '\\'); i >= 0 {
			return u.Username[i+1:]
		}
		return u.Username
	}
	return protocol.DefaultUser
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	dataHome := getXDGDataHome()

	return TOMLConfig{
		Network: NetworkSection{
			Port:             protocol.DefaultPort,
			BindAddress:      "0.0.0.0",
			BroadcastAddress: "255.255.255.255",
		},
		User: UserSection{
			Username: defaultUsername(),
		},
		Local: LocalSection{
			SettingsDB:    filepath.Join(dataHome, "lanchat", "settings.db"),
			LogFile:       filepath.Join(dataHome, "lanchat", "lanchat.log"),
			LogLevel:      "info",
			Notifications: true,
		},
	}
}

// expandHome expands a leading ~/ in path
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}

// LoadClientConfig loads configuration from a TOML file, creates default if not found
func LoadClientConfig(path string) (TOMLConfig, error) {
	path, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// An unwritable location still leaves us with usable defaults
		_ = writeDefaultConfig(path, config)
		return config, nil
	}

	// Start from defaults so sections missing from the file keep sane values
	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, &ConfigError{
			Path:       path,
			Message:    cleanErrorMessage(err.Error()),
			LineNumber: extractLineNumber(err),
		}
	}

	if err := validateConfig(&config); err != nil {
		return TOMLConfig{}, &ConfigError{
			Path:    path,
			Message: err.Error(),
		}
	}

	return config, nil
}

var lineNumberPattern = regexp.MustCompile(`line (\d+)`)

// extractLineNumber returns the line of a TOML parse error, or 0
func extractLineNumber(err error) int {
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return perr.Position.Line
	}
	matches := lineNumberPattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		if num, err := strconv.Atoi(matches[1]); err == nil {
			return num
		}
	}
	return 0
}

// cleanErrorMessage removes redundant parts from error messages
func cleanErrorMessage(errMsg string) string {
	return strings.TrimPrefix(errMsg, "toml: ")
}

// validateConfig validates configuration values
func validateConfig(config *TOMLConfig) error {
	var problems []string

	if config.Network.Port < 1 || config.Network.Port > 65535 {
		problems = append(problems, fmt.Sprintf("Invalid port number: %d (must be 1-65535)", config.Network.Port))
	}

	if ip := net.ParseIP(config.Network.BindAddress); ip == nil || ip.To4() == nil {
		problems = append(problems, fmt.Sprintf("Invalid bind address: %q (must be an IPv4 address)", config.Network.BindAddress))
	}

	if ip := net.ParseIP(config.Network.BroadcastAddress); ip == nil || ip.To4() == nil {
		problems = append(problems, fmt.Sprintf("Invalid broadcast address: %q (must be an IPv4 address)", config.Network.BroadcastAddress))
	}

	if strings.TrimSpace(config.User.Username) == "" {
		problems = append(problems, "Username cannot be empty")
	}
	if strings.ContainsAny(config.User.Username, ":\x00") {
		problems = append(problems, fmt.Sprintf("Invalid username: %q (must not contain ':')", config.User.Username))
	}
	if strings.ContainsAny(config.User.Hostname, ":\x00") {
		problems = append(problems, fmt.Sprintf("Invalid hostname: %q (must not contain ':')", config.User.Hostname))
	}

	if strings.TrimSpace(config.Local.SettingsDB) == "" {
		problems = append(problems, "Settings database path cannot be empty")
	}

	switch config.Local.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("Invalid log level: %q", config.Local.LogLevel))
	}

	if config.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(config.Metrics.Listen); err != nil {
			problems = append(problems, fmt.Sprintf("Invalid metrics listen address: %q", config.Metrics.Listen))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("Configuration validation failed:\n  • %s", strings.Join(problems, "\n  • "))
	}

	return nil
}

// Validate checks the configuration, e.g. after command-line overrides
func (c *TOMLConfig) Validate() error {
	return validateConfig(c)
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# LANChat Configuration
# This file was auto-generated with default values
# Edit as needed - changes take effect on next start

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ResetConfigToDefault resets the config file to default values
// If backup is true, creates a backup with timestamp
func ResetConfigToDefault(path string, backup bool) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); backup && err == nil {
		backupPath := fmt.Sprintf("%s.backup-%s", path, time.Now().Format("2006-01-02"))
		if err := copyFile(path, backupPath); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	if err := writeDefaultConfig(path, DefaultTOMLConfig()); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// GetSettingsDBPath returns the settings database path with ~ expanded
func (c *TOMLConfig) GetSettingsDBPath() (string, error) {
	return expandHome(c.Local.SettingsDB)
}

// GetLogFilePath returns the log file path with ~ expanded
func (c *TOMLConfig) GetLogFilePath() (string, error) {
	return expandHome(c.Local.LogFile)
}

// ListenAddress returns the local UDP address to bind
func (c *TOMLConfig) ListenAddress() string {
	return net.JoinHostPort(c.Network.BindAddress, strconv.Itoa(c.Network.Port))
}

// BroadcastAddr returns the destination for broadcast announcements
func (c *TOMLConfig) BroadcastAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(c.Network.BroadcastAddress), Port: c.Network.Port}
}

// Username implements protocol.Identity
func (c *TOMLConfig) Username() string {
	return c.User.Username
}

// Port implements protocol.Identity
func (c *TOMLConfig) Port() int {
	return c.Network.Port
}

// Hostname resolves the host name announced to peers
func (c *TOMLConfig) Hostname() (string, error) {
	if c.User.Hostname != "" {
		return c.User.Hostname, nil
	}
	return os.Hostname()
}
