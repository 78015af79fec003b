//go:build unix

package transport

import (
	"golang.org/x/sys/unix"
)

// setSocketOptions enables address reuse and broadcast sends on the socket
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
}
