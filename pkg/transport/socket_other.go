//go:build !unix && !windows

package transport

// setSocketOptions is a no-op where socket options are unavailable
func setSocketOptions(fd uintptr) error {
	return nil
}
