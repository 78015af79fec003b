package client

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aeolun/lanchat/pkg/event"
	"github.com/aeolun/lanchat/pkg/protocol"
	"github.com/aeolun/lanchat/pkg/state"
	"github.com/aeolun/lanchat/pkg/transport"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submitted struct {
	msg protocol.Message
	to  *net.UDPAddr
}

type fakeSender struct {
	mu   sync.Mutex
	sent []submitted
	err  error
}

func (s *fakeSender) Submit(msg protocol.Message, to *net.UDPAddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, submitted{msg: msg, to: to})
	return nil
}

func (s *fakeSender) all() []submitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submitted(nil), s.sent...)
}

type fakeNotifier struct {
	titles []string
	bodies []string
}

func (n *fakeNotifier) Notify(title, body string) error {
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	return nil
}

func quietLogger() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

type harness struct {
	client   *Client
	bus      *event.Dispatcher
	store    *state.Store
	sender   *fakeSender
	notifier *fakeNotifier
	settings *MockSettings
	metrics  *transport.Metrics
	registry *prometheus.Registry
	cfg      *TOMLConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := DefaultTOMLConfig()
	cfg.User.Username = "me"
	cfg.User.Hostname = "myhost"
	cfg.Network.BroadcastAddress = "192.168.0.255"

	bus := event.NewDispatcher(quietLogger())
	t.Cleanup(bus.Close)

	reg := prometheus.NewRegistry()
	h := &harness{
		registry: reg,
		bus:      bus,
		store:    state.NewStore(bus, quietLogger()),
		sender:   &fakeSender{},
		notifier: &fakeNotifier{},
		settings: NewMockSettings(),
		metrics:  transport.NewMetrics(reg),
		cfg:      &cfg,
	}

	c, err := New(h.cfg, bus, h.store, h.sender,
		WithLogger(quietLogger()),
		WithMetrics(h.metrics),
		WithSettings(h.settings),
		WithNotifier(h.notifier),
	)
	require.NoError(t, err)
	c.Register()
	t.Cleanup(c.Close)
	h.client = c
	return h
}

var peerAddr = &net.UDPAddr{IP: net.IPv4(192, 168, 0, 11), Port: protocol.DefaultPort}

func peerMessage(t *testing.T, op protocol.Operation, payload string) protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessageBuilder(nil).
		Version(protocol.Version).
		PacketNumber(1700000042).
		User("bob").
		Host("laptop").
		Operation(op).
		Payload(payload).
		Port(protocol.DefaultPort).
		Build()
	require.NoError(t, err)
	return msg
}

// metricValue reads a single-series gauge or counter from the registry
func (h *harness) metricValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		m := f.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
		return m.GetCounter().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// receive feeds msg through the decode controller as if it came off the wire
func (h *harness) receive(t *testing.T, msg protocol.Message, from *net.UDPAddr) {
	t.Helper()
	require.NoError(t, h.bus.Post(transport.Datagram{Data: msg.Encode(), From: from, ReceivedAt: time.Now()}))
	h.bus.Drain()
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cfg := DefaultTOMLConfig()
	_, err := New(&cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestClient_Announce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Announce())

	sent := h.sender.all()
	require.Len(t, sent, 2)

	assert.Equal(t, protocol.NoOperation, sent[0].msg.Command())
	assert.Equal(t, protocol.BrEntry, sent[1].msg.Command())
	assert.True(t, sent[1].msg.Operation.Has(protocol.FlagUTF8))
	assert.Equal(t, "me", sent[1].msg.Payload)
	assert.Equal(t, "myhost", sent[1].msg.Host)
	assert.Equal(t, "192.168.0.255:2425", sent[1].to.String())
	assert.Less(t, sent[0].msg.PacketNumber, sent[1].msg.PacketNumber)
}

func TestClient_Leave(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Leave())

	sent := h.sender.all()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.BrExit, sent[0].msg.Command())

	h.sender.err = transport.ErrTransportClosed
	assert.ErrorIs(t, h.client.Leave(), transport.ErrTransportClosed)
}

func TestClient_EntryAddsUserAndAnswers(t *testing.T) {
	h := newHarness(t)

	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), "Bobby"), peerAddr)

	users := h.store.Current().Users()
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Name)
	assert.Equal(t, "Bobby", users[0].DisplayName())

	sent := h.sender.all()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.AnsEntry, sent[0].msg.Command())
	assert.Equal(t, peerAddr.String(), sent[0].to.String())

	peers, err := h.settings.RecentPeers(10)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "bob", peers[0].Name)

	assert.Equal(t, float64(1), h.metricValue(t, "lanchat_known_users"))
}

func TestClient_RepeatedEntryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	entry := peerMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), "Bobby")

	h.receive(t, entry, peerAddr)
	h.receive(t, entry, peerAddr)

	assert.Equal(t, 1, h.store.Current().Len())
}

func TestClient_AbsenceUpdatesNickname(t *testing.T) {
	h := newHarness(t)
	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.AnsEntry).Build(), "Bobby"), peerAddr)
	h.receive(t, peerMessage(t, protocol.Of(protocol.BrAbsence).Build(), "Bobby (away)"), peerAddr)

	users := h.store.Current().Users()
	require.Len(t, users, 1)
	assert.Equal(t, "Bobby (away)", users[0].Nickname)
	assert.Empty(t, h.sender.all(), "answer entries are not answered")
}

func TestClient_EntryThenExit(t *testing.T) {
	h := newHarness(t)

	var snapshots []state.State
	event.Subscribe(h.bus, func(ev state.StateChanged) { snapshots = append(snapshots, ev.State) })

	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), "Bobby"), peerAddr)
	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.BrExit).Build(), ""), peerAddr)

	assert.Empty(t, h.store.Current().Users())
	_, selected := h.store.Current().SelectedUser()
	assert.False(t, selected)

	require.Len(t, snapshots, 2)
	assert.Equal(t, 1, snapshots[0].Len())
	assert.Equal(t, 0, snapshots[1].Len())
}

func TestClient_IgnoresOwnBroadcast(t *testing.T) {
	h := newHarness(t)

	own, err := protocol.NewMessageBuilder(nil).
		WithHostname(h.cfg.Hostname).
		SetUpCommand(h.cfg, protocol.BrEntry, "me").
		PacketNumber(1).
		Build()
	require.NoError(t, err)

	h.receive(t, own, &net.UDPAddr{IP: net.IPv4(192, 168, 0, 10), Port: h.cfg.Port()})

	assert.Zero(t, h.store.Current().Len())
	assert.Empty(t, h.sender.all())
}

func TestClient_ReceiveTextAcknowledgesAndNotifies(t *testing.T) {
	h := newHarness(t)

	msg := peerMessage(t, protocol.OfDefault(protocol.SendMsg).Build(), "hello there")
	h.receive(t, msg, peerAddr)

	users := h.store.Current().Users()
	require.Len(t, users, 1, "unknown senders are added")
	talk := users[0].Talk()
	require.Len(t, talk, 1)
	assert.Equal(t, "hello there", talk[0].Payload)
	assert.Equal(t, peerAddr.Port, talk[0].Port)

	sent := h.sender.all()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.RecvMsg, sent[0].msg.Command())
	assert.Equal(t, strconv.FormatInt(msg.PacketNumber, 10), sent[0].msg.Payload)

	assert.Equal(t, []string{"bob"}, h.notifier.titles)
	assert.Equal(t, []string{"hello there"}, h.notifier.bodies)
}

func TestClient_ReceiveTextWithoutSendCheck(t *testing.T) {
	h := newHarness(t)

	op := protocol.Of(protocol.SendMsg).Set(protocol.FlagNoPopup).Build()
	h.receive(t, peerMessage(t, op, "quiet"), peerAddr)

	assert.Empty(t, h.sender.all())
	assert.Empty(t, h.notifier.titles)
	assert.Equal(t, 1, h.store.Current().Len())
}

func TestClient_MutedNotifications(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.SetNotificationsMuted(true))

	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.SendMsg).Build(), "hi"), peerAddr)
	assert.Empty(t, h.notifier.titles)
}

func TestClient_MalformedDatagramIsCounted(t *testing.T) {
	h := newHarness(t)

	var received int
	event.Subscribe(h.bus, func(MessageReceived) { received++ })

	require.NoError(t, h.bus.Post(transport.Datagram{Data: []byte("not a message"), From: peerAddr}))
	h.bus.Drain()

	assert.Zero(t, received)
	assert.Zero(t, h.store.Current().Len())
	assert.Equal(t, float64(1), h.metricValue(t, "lanchat_malformed_messages_total"))
}

func TestClient_DeliveryConfirmation(t *testing.T) {
	h := newHarness(t)

	var confirmed []DeliveryConfirmed
	event.Subscribe(h.bus, func(ev DeliveryConfirmed) { confirmed = append(confirmed, ev) })

	h.receive(t, peerMessage(t, protocol.Of(protocol.RecvMsg).Build(), "1700000001"), peerAddr)
	h.receive(t, peerMessage(t, protocol.Of(protocol.RecvMsg).Build(), "garbage"), peerAddr)
	h.bus.Drain()

	require.Len(t, confirmed, 1)
	assert.Equal(t, int64(1700000001), confirmed[0].PacketNumber)
	assert.Equal(t, "bob", confirmed[0].From.Name)
}

func TestClient_Selection(t *testing.T) {
	h := newHarness(t)
	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), "Bobby"), peerAddr)
	bob := h.store.Current().Users()[0]

	require.NoError(t, h.bus.Post(UserSelectionRequested{User: bob}))
	h.bus.Drain()

	selected, ok := h.store.Current().SelectedUser()
	require.True(t, ok)
	assert.True(t, selected.Equal(bob))

	// Unknown users are rejected and the selection is kept
	stranger := state.NewUser("eve", "void", bob.Addr)
	require.NoError(t, h.bus.Post(UserSelectionRequested{User: stranger}))
	h.bus.Drain()

	selected, ok = h.store.Current().SelectedUser()
	require.True(t, ok)
	assert.True(t, selected.Equal(bob))
}

func TestClient_SendRequested(t *testing.T) {
	h := newHarness(t)
	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), "Bobby"), peerAddr)
	bob := h.store.Current().Users()[0]

	require.NoError(t, h.bus.Post(SendRequested{User: bob, Text: "hi bob"}))
	h.bus.Drain()

	sent := h.sender.all()
	require.Len(t, sent, 2)
	out := sent[1]
	assert.Equal(t, protocol.SendMsg, out.msg.Command())
	assert.True(t, out.msg.Operation.Has(protocol.FlagSendCheck))
	assert.Equal(t, "hi bob", out.msg.Payload)
	assert.Equal(t, peerAddr.String(), out.to.String())

	got, _ := h.store.Current().Find(bob.Identity)
	require.Equal(t, 1, got.TalkLen())
	assert.Equal(t, "me", got.Talk()[0].User)
}

func TestClient_SendFailure(t *testing.T) {
	h := newHarness(t)
	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.AnsEntry).Build(), "Bobby"), peerAddr)
	bob := h.store.Current().Users()[0]

	var failures []SendFailed
	event.Subscribe(h.bus, func(ev SendFailed) { failures = append(failures, ev) })

	h.sender.err = transport.ErrQueueFull
	require.NoError(t, h.bus.Post(SendRequested{User: bob, Text: "hi"}))
	h.bus.Drain()

	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0].Err, transport.ErrQueueFull))

	got, _ := h.store.Current().Find(bob.Identity)
	assert.Zero(t, got.TalkLen())
}

func TestClient_CloseStopsControllers(t *testing.T) {
	h := newHarness(t)
	h.client.Close()

	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), "Bobby"), peerAddr)
	assert.Zero(t, h.store.Current().Len())
}

func TestClient_SendToDepartedPeer(t *testing.T) {
	h := newHarness(t)
	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), "Bobby"), peerAddr)
	bob := h.store.Current().Users()[0]

	require.NoError(t, h.bus.Post(UserSelectionRequested{User: bob}))
	h.receive(t, peerMessage(t, protocol.Of(protocol.BrExit).Build(), "Bobby"), peerAddr)

	var failures []SendFailed
	event.Subscribe(h.bus, func(ev SendFailed) { failures = append(failures, ev) })

	before := len(h.sender.all())
	require.NoError(t, h.bus.Post(SendRequested{User: bob, Text: "hello"}))
	h.bus.Drain()

	assert.Len(t, h.sender.all(), before, "nothing is sent to a peer that left")
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, ErrPeerGone)
	assert.True(t, failures[0].User.Equal(bob))

	selected, ok := h.store.Current().SelectedUser()
	require.True(t, ok)
	assert.True(t, selected.Equal(bob))
}

func TestClient_ClearSelection(t *testing.T) {
	h := newHarness(t)
	h.receive(t, peerMessage(t, protocol.OfDefault(protocol.BrEntry).Build(), "Bobby"), peerAddr)
	bob := h.store.Current().Users()[0]

	require.NoError(t, h.bus.Post(UserSelectionRequested{User: bob}))
	require.NoError(t, h.bus.Post(SelectionClearRequested{}))
	h.bus.Drain()

	_, ok := h.store.Current().SelectedUser()
	assert.False(t, ok)
	assert.Equal(t, 1, h.store.Current().Len())
}

func TestClient_TalkEntriesCarryLocalTime(t *testing.T) {
	h := newHarness(t)
	sentAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	h.client.now = func() time.Time { return sentAt }

	receivedAt := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	msg := peerMessage(t, protocol.OfDefault(protocol.SendMsg).Build(), "morning")
	require.NoError(t, h.bus.Post(transport.Datagram{Data: msg.Encode(), From: peerAddr, ReceivedAt: receivedAt}))
	h.bus.Drain()

	bob := h.store.Current().Users()[0]
	require.NoError(t, h.bus.Post(SendRequested{User: bob, Text: "hi"}))
	h.bus.Drain()

	got, _ := h.store.Current().Find(bob.Identity)
	entries := got.TalkEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, receivedAt, entries[0].At, "received messages keep the receive time")
	assert.Equal(t, sentAt, entries[1].At, "sent messages keep the send time")
}
