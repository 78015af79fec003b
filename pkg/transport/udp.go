package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/aeolun/lanchat/pkg/protocol"
	"github.com/phuslu/log"
)

const (
	// MaxDatagramSize is the receive buffer size; larger datagrams are truncated by the OS
	MaxDatagramSize = 1024

	defaultQueueSize = 100
)

// Datagram is the raw-bytes event posted for every received packet
type Datagram struct {
	Data       []byte
	From       *net.UDPAddr
	ReceivedAt time.Time
}

// Poster accepts events for delivery; *event.Dispatcher implements it
type Poster interface {
	Post(ev any) error
}

type outbound struct {
	msg  protocol.Message
	data []byte
	to   *net.UDPAddr
}

// Option configures a UDPServer
type Option func(*UDPServer)

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(s *UDPServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *Metrics) Option {
	return func(s *UDPServer) {
		s.metrics = m
	}
}

// WithQueueSize sets the capacity of the outbound queue
func WithQueueSize(n int) Option {
	return func(s *UDPServer) {
		if n > 0 {
			s.outgoing = make(chan outbound, n)
		}
	}
}

// UDPServer owns one UDP socket. A single receive goroutine posts every
// datagram to the bus as a Datagram event; a single send goroutine drains the
// outbound queue filled by Submit.
//
// The socket is released only by Stop or Shutdown; an abandoned server leaks it.
type UDPServer struct {
	conn    *net.UDPConn
	bus     Poster
	logger  *log.Logger
	metrics *Metrics

	outgoing chan outbound

	mu      sync.RWMutex
	started bool
	closed  bool

	stopWriting  chan struct{}
	shutdownOnce sync.Once
	handle       *ShutdownHandle
	wg           sync.WaitGroup
}

// ShutdownHandle lets a caller wait until the server's goroutines have exited
type ShutdownHandle struct {
	done chan struct{}
	err  error
}

// Done is closed once the server has fully shut down
func (h *ShutdownHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until shutdown completes and returns the socket close error, if any
func (h *ShutdownHandle) Wait() error {
	<-h.done
	return h.err
}

// WaitContext is Wait bounded by ctx
func (h *ShutdownHandle) WaitContext(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewUDPServer binds a UDP socket on addr with address reuse enabled.
// Bind failures are returned as *TransportInitError.
func NewUDPServer(bus Poster, addr string, opts ...Option) (*UDPServer, error) {
	if bus == nil {
		return nil, &TransportInitError{Addr: addr, Err: errors.New("no event bus")}
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var optErr error
			if err := c.Control(func(fd uintptr) {
				optErr = setSocketOptions(fd)
			}); err != nil {
				return err
			}
			return optErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, &TransportInitError{Addr: addr, Err: err}
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, &TransportInitError{Addr: addr, Err: fmt.Errorf("unexpected packet conn %T", pc)}
	}

	s := &UDPServer{
		conn:        conn,
		bus:         bus,
		logger:      &log.DefaultLogger,
		outgoing:    make(chan outbound, defaultQueueSize),
		stopWriting: make(chan struct{}),
		handle:      &ShutdownHandle{done: make(chan struct{})},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// LocalAddr returns the bound address
func (s *UDPServer) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Start launches the receive and send goroutines
func (s *UDPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrTransportClosed
	}
	if s.started {
		return fmt.Errorf("already started")
	}
	s.started = true

	s.logger.Info().Stringer("addr", s.conn.LocalAddr()).Msg("starts listening")

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	return nil
}

// Submit encodes msg and queues it for sending to `to`. It never waits for the
// network; it fails with ErrTransportClosed after shutdown.
func (s *UDPServer) Submit(msg protocol.Message, to *net.UDPAddr) error {
	if to == nil {
		return fmt.Errorf("no destination address")
	}

	data := msg.Encode()
	if len(data) > MaxDatagramSize {
		return fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(data))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrTransportClosed
	}

	select {
	case s.outgoing <- outbound{msg: msg, data: data, to: to}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop shuts the server down and waits for it to finish
func (s *UDPServer) Stop() error {
	return s.Shutdown().Wait()
}

// Close implements io.Closer
func (s *UDPServer) Close() error {
	return s.Stop()
}

// Shutdown rejects further sends, flushes queued messages, closes the socket
// and returns a handle to wait on. Later calls return the same handle.
func (s *UDPServer) Shutdown() *ShutdownHandle {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		started := s.started
		s.mu.Unlock()

		go func() {
			defer close(s.handle.done)

			// Let the writer flush what was submitted before shutdown
			close(s.stopWriting)
			if !started {
				s.flush()
			}

			// Closing the socket unblocks the pending read
			s.wg.Wait()
			s.handle.err = s.closeSocket()
			s.logger.Info().Msg("stopped listening")
		}()
	})
	return s.handle
}

func (s *UDPServer) closeSocket() error {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn().Err(err).Msg("failed to close socket")
		return err
	}
	return nil
}

func (s *UDPServer) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// readLoop receives datagrams until the socket is closed
func (s *UDPServer) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.metrics.RecordReceiveError()
			s.logger.Warn().Err(err).Msg("read error")
			if s.isClosed() {
				return
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		s.metrics.RecordReceived(n)
		s.logger.Debug().Stringer("from", from).Int("len", n).Msg("received")

		if err := s.bus.Post(Datagram{Data: data, From: from, ReceivedAt: time.Now()}); err != nil {
			s.logger.Debug().Err(err).Msg("dropped datagram")
		}
	}
}

// writeLoop sends queued messages; on shutdown it drains the queue, then
// closes the socket so the read loop exits.
func (s *UDPServer) writeLoop() {
	defer s.wg.Done()
	defer s.conn.Close()

	for {
		select {
		case ob := <-s.outgoing:
			s.write(ob)
		case <-s.stopWriting:
			s.flush()
			return
		}
	}
}

func (s *UDPServer) flush() {
	for {
		select {
		case ob := <-s.outgoing:
			s.write(ob)
		default:
			return
		}
	}
}

func (s *UDPServer) write(ob outbound) {
	n, err := s.conn.WriteToUDP(ob.data, ob.to)
	if err != nil {
		s.metrics.RecordSendError()
		s.logger.Warn().Err(err).Stringer("to", ob.to).Stringer("operation", ob.msg.Operation).Msg("send failed")
		return
	}
	s.metrics.RecordSent(ob.msg.Command().String(), n)
	s.logger.Debug().
		Stringer("to", ob.to).
		Stringer("operation", ob.msg.Operation).
		Int64("packet", ob.msg.PacketNumber).
		Msg("sent")
}
