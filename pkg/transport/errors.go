package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportInit matches any *TransportInitError via errors.Is
	ErrTransportInit = errors.New("transport init failed")
	// ErrTransportClosed is returned by Submit after Stop or Shutdown
	ErrTransportClosed = errors.New("transport closed")
	// ErrQueueFull is returned by Submit when the outbound queue is saturated
	ErrQueueFull = errors.New("outbound queue full")
	// ErrDatagramTooLarge is returned by Submit when the encoded message exceeds the buffer size
	ErrDatagramTooLarge = errors.New("datagram exceeds buffer size")
)

// TransportInitError wraps the OS error from opening or binding the socket
type TransportInitError struct {
	Addr string
	Err  error
}

func (e *TransportInitError) Error() string {
	return fmt.Sprintf("failed to bind UDP socket on %s: %v", e.Addr, e.Err)
}

func (e *TransportInitError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransportInit) succeed
func (e *TransportInitError) Is(target error) bool {
	return target == ErrTransportInit
}
