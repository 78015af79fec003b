package client

import (
	"github.com/gen2brain/beeep"
)

// DesktopNotifier sends notifications through the platform notification service
type DesktopNotifier struct {
	IconPath string // optional
}

// Notify implements Notifier
func (n DesktopNotifier) Notify(title, body string) error {
	return beeep.Notify(title, body, n.IconPath)
}

// NopNotifier discards notifications
type NopNotifier struct{}

// Notify implements Notifier
func (NopNotifier) Notify(string, string) error { return nil }
