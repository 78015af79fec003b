// ABOUTME: Formatting utilities for client UIs
// ABOUTME: Shared functions for displaying peers, talk lines, notifications, etc.
package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/aeolun/lanchat/pkg/protocol"
	"github.com/aeolun/lanchat/pkg/state"
)

// notificationPreviewChars bounds the body of a desktop notification
const notificationPreviewChars = 120

// FormatBytes formats bytes into human-readable form (B, KB, MB, etc.)
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatUserItem formats a peer for display in a list
// Returns: "nickname (user@host)" or "user@host" when no nickname is known
func FormatUserItem(u state.User) string {
	if u.Nickname != "" && u.Nickname != u.Name {
		return fmt.Sprintf("%s (%s@%s)", u.Nickname, u.Name, u.Host)
	}
	return fmt.Sprintf("%s@%s", u.Name, u.Host)
}

// FormatTalkLine formats one message of a conversation
// Outgoing messages (sent by localUser) are prefixed with "> "
func FormatTalkLine(msg protocol.Message, localUser string) string {
	prefix := msg.User + ": "
	if msg.User == localUser {
		prefix = "> "
	}

	text := msg.Payload
	for _, a := range msg.Attachments {
		text += fmt.Sprintf(" [file %s %s]", a.Name, FormatBytes(uint64(a.Size)))
	}
	return prefix + text
}

// FormatNotificationBody flattens and truncates message text for a notification
func FormatNotificationBody(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return Truncate(text, notificationPreviewChars)
}

// Truncate shortens s to at most maxRunes runes, marking the cut with an ellipsis
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes == 1 {
		return "…"
	}
	return string(runes[:maxRunes-1]) + "…"
}

// FormatTalkTime renders the local time a message was sent or received
func FormatTalkTime(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Local().Format("15:04")
}

// FormatRelativeTime formats a timestamp relative to now
// Returns strings like "just now", "5m ago", "2h ago", "3d ago"
func FormatRelativeTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		mins := int(diff.Minutes())
		return fmt.Sprintf("%dm ago", mins)
	}
	if diff < 24*time.Hour {
		hours := int(diff.Hours())
		return fmt.Sprintf("%dh ago", hours)
	}
	days := int(diff.Hours() / 24)
	return fmt.Sprintf("%dd ago", days)
}
