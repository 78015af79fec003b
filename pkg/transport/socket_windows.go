//go:build windows

package transport

import (
	"golang.org/x/sys/windows"
)

// setSocketOptions enables address reuse and broadcast sends on the socket
func setSocketOptions(fd uintptr) error {
	// On Windows, fd needs to be cast to windows.Handle
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
}
