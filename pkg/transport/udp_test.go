package transport

import (
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/aeolun/lanchat/pkg/event"
	"github.com/aeolun/lanchat/pkg/protocol"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const receiveTimeout = 2 * time.Second

func quietLogger() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

// startServer binds a server on an ephemeral loopback port and collects its datagrams
func startServer(t *testing.T, opts ...Option) (*UDPServer, <-chan Datagram) {
	t.Helper()

	bus := event.NewDispatcher(quietLogger())
	t.Cleanup(bus.Close)

	received := make(chan Datagram, 16)
	event.Subscribe(bus, func(d Datagram) { received <- d })

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	srv, err := NewUDPServer(bus, "127.0.0.1:0", opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	return srv, received
}

func buildMessage(t *testing.T, op protocol.Operation, payload string) protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessageBuilder(protocol.NewSequencer()).SetUpDefault(op, payload).Build()
	require.NoError(t, err)
	return msg
}

func waitDatagram(t *testing.T, ch <-chan Datagram) Datagram {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(receiveTimeout):
		t.Fatal("timed out waiting for datagram")
		return Datagram{}
	}
}

func TestUDPServer_SendToSelf(t *testing.T) {
	srv, received := startServer(t)

	msg := buildMessage(t, protocol.Of(protocol.NoOperation).Build(), protocol.DefaultUser)
	require.NoError(t, srv.Submit(msg, srv.LocalAddr()))

	d := waitDatagram(t, received)
	decoded, err := protocol.DecodeFrom(d.Data, d.From)
	require.NoError(t, err)

	assert.Equal(t, protocol.DefaultUser, decoded.Payload)
	assert.Equal(t, protocol.NoOperation, decoded.Command())
	assert.Equal(t, msg.PacketNumber, decoded.PacketNumber)
	assert.Equal(t, srv.LocalAddr().Port, decoded.Port)
	assert.False(t, d.ReceivedAt.IsZero())
}

func TestUDPServer_DeliversInOrder(t *testing.T) {
	srv, received := startServer(t)

	for _, payload := range []string{"one", "two", "three"} {
		require.NoError(t, srv.Submit(buildMessage(t, protocol.OfDefault(protocol.SendMsg).Build(), payload), srv.LocalAddr()))
	}

	var got []string
	for i := 0; i < 3; i++ {
		msg, err := protocol.Decode(waitDatagram(t, received).Data)
		require.NoError(t, err)
		got = append(got, msg.Payload)
	}
	// Loopback UDP preserves order for a single sender
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestUDPServer_MalformedDatagramDoesNotStopLoop(t *testing.T) {
	srv, received := startServer(t)

	raw, err := net.DialUDP("udp4", nil, srv.LocalAddr())
	require.NoError(t, err)
	defer raw.Close()

	_, err = raw.Write([]byte("garbage"))
	require.NoError(t, err)
	d := waitDatagram(t, received)
	_, err = protocol.Decode(d.Data)
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)

	require.NoError(t, srv.Submit(buildMessage(t, protocol.Of(protocol.NoOperation).Build(), "after"), srv.LocalAddr()))
	msg, err := protocol.Decode(waitDatagram(t, received).Data)
	require.NoError(t, err)
	assert.Equal(t, "after", msg.Payload)
}

func TestUDPServer_TruncatesToBufferSize(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("oversized datagrams are reported as errors on windows")
	}
	srv, received := startServer(t)

	raw, err := net.DialUDP("udp4", nil, srv.LocalAddr())
	require.NoError(t, err)
	defer raw.Close()

	_, err = raw.Write(make([]byte, MaxDatagramSize+500))
	require.NoError(t, err)

	d := waitDatagram(t, received)
	assert.Len(t, d.Data, MaxDatagramSize)
}

func TestUDPServer_ShutdownTwice(t *testing.T) {
	bus := event.NewDispatcher(quietLogger())
	defer bus.Close()

	srv, err := NewUDPServer(bus, "127.0.0.1:0", WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	first := srv.Shutdown()
	second := srv.Shutdown()
	assert.Same(t, first, second)

	done := make(chan error, 2)
	go func() { done <- first.Wait() }()
	go func() { done <- srv.Stop() }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(receiveTimeout):
			t.Fatal("shutdown hung")
		}
	}

	select {
	case <-first.Done():
	default:
		t.Fatal("handle not done after Wait returned")
	}
}

func TestUDPServer_SubmitAfterShutdown(t *testing.T) {
	srv, _ := startServer(t)
	require.NoError(t, srv.Stop())

	err := srv.Submit(buildMessage(t, protocol.OfDefault(protocol.BrExit).Build(), ""), srv.LocalAddr())
	assert.ErrorIs(t, err, ErrTransportClosed)
	assert.ErrorIs(t, srv.Start(), ErrTransportClosed)
}

func TestUDPServer_ShutdownFlushesQueuedMessages(t *testing.T) {
	receiver, received := startServer(t)

	bus := event.NewDispatcher(quietLogger())
	defer bus.Close()
	sender, err := NewUDPServer(bus, "127.0.0.1:0", WithLogger(quietLogger()))
	require.NoError(t, err)

	// Never started: the exit announcement still goes out on shutdown
	require.NoError(t, sender.Submit(buildMessage(t, protocol.OfDefault(protocol.BrExit).Build(), ""), receiver.LocalAddr()))
	require.NoError(t, sender.Shutdown().Wait())

	msg, err := protocol.Decode(waitDatagram(t, received).Data)
	require.NoError(t, err)
	assert.Equal(t, protocol.BrExit, msg.Command())
}

func TestUDPServer_SubmitValidation(t *testing.T) {
	srv, _ := startServer(t)

	err := srv.Submit(buildMessage(t, protocol.Of(protocol.SendMsg).Build(), "x"), nil)
	assert.Error(t, err)

	big := make([]byte, MaxDatagramSize)
	for i := range big {
		big[i] = 'a'
	}
	err = srv.Submit(buildMessage(t, protocol.Of(protocol.SendMsg).Build(), string(big)), srv.LocalAddr())
	assert.ErrorIs(t, err, ErrDatagramTooLarge)
}

func TestUDPServer_QueueFull(t *testing.T) {
	bus := event.NewDispatcher(quietLogger())
	defer bus.Close()

	// Not started, so nothing drains the queue
	srv, err := NewUDPServer(bus, "127.0.0.1:0", WithLogger(quietLogger()), WithQueueSize(1))
	require.NoError(t, err)
	defer srv.Stop()

	msg := buildMessage(t, protocol.Of(protocol.NoOperation).Build(), "")
	to := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
	require.NoError(t, srv.Submit(msg, to))
	assert.ErrorIs(t, srv.Submit(msg, to), ErrQueueFull)
}

func TestNewUDPServer_BindFailure(t *testing.T) {
	bus := event.NewDispatcher(quietLogger())
	defer bus.Close()

	_, err := NewUDPServer(bus, "127.0.0.1:99999", WithLogger(quietLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportInit)

	var initErr *TransportInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "127.0.0.1:99999", initErr.Addr)
	assert.NotNil(t, initErr.Unwrap())

	_, err = NewUDPServer(nil, "127.0.0.1:0")
	assert.ErrorIs(t, err, ErrTransportInit)
}

func TestUDPServer_AddressReuse(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("duplicate unicast binds with SO_REUSEADDR are linux-specific")
	}
	first, _ := startServer(t)

	bus := event.NewDispatcher(quietLogger())
	defer bus.Close()

	// A second socket may bind the same port while the first is open
	second, err := NewUDPServer(bus, first.LocalAddr().String(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, second.Stop())
}

func TestUDPServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	srv, received := startServer(t, WithMetrics(metrics))

	require.NoError(t, srv.Submit(buildMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), ""), srv.LocalAddr()))
	waitDatagram(t, received)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.datagramsSent.WithLabelValues("BR_ENTRY")) == 1
	}, receiveTimeout, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.datagramsReceived))
	assert.Greater(t, testutil.ToFloat64(metrics.bytesReceived), float64(0))

	metrics.RecordMalformed()
	metrics.RecordKnownUsers(3)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.malformedMessages))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.knownUsers))

	// A nil sink is valid
	var none *Metrics
	none.RecordReceived(1)
	none.RecordSent("X", 1)
	none.RecordMalformed()
}
