package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/aeolun/lanchat/pkg/event"
	"github.com/aeolun/lanchat/pkg/protocol"
	"github.com/aeolun/lanchat/pkg/state"
	"github.com/aeolun/lanchat/pkg/transport"
	"github.com/phuslu/log"
)

// ErrPeerGone is reported when sending to a peer that has left the network
var ErrPeerGone = errors.New("peer has left")

// Client wires the protocol controllers between the transport, the event bus
// and the state store. All controllers run on the bus delivery goroutine, so
// transitions are applied one at a time in arrival order.
type Client struct {
	cfg      *TOMLConfig
	bus      *event.Dispatcher
	store    *state.Store
	sender   Sender
	seq      *protocol.Sequencer
	settings SettingsStore
	notifier Notifier
	metrics  *transport.Metrics
	logger   *log.Logger
	now      func() time.Time

	hostname string
	subs     []event.Subscription
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink used for malformed messages and user counts
func WithMetrics(m *transport.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSettings sets the settings store used to remember peers
func WithSettings(s SettingsStore) Option {
	return func(c *Client) { c.settings = s }
}

// WithNotifier sets the desktop notifier
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithSequencer sets the packet number source
func WithSequencer(seq *protocol.Sequencer) Option {
	return func(c *Client) {
		if seq != nil {
			c.seq = seq
		}
	}
}

// New creates a client. Controllers are not active until Register is called.
func New(cfg *TOMLConfig, bus *event.Dispatcher, store *state.Store, sender Sender, opts ...Option) (*Client, error) {
	if cfg == nil || bus == nil || store == nil || sender == nil {
		return nil, errors.New("client: config, bus, store and sender are required")
	}

	c := &Client{
		cfg:      cfg,
		bus:      bus,
		store:    store,
		sender:   sender,
		seq:      protocol.NewSequencer(),
		notifier: NopNotifier{},
		logger:   &log.DefaultLogger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	hostname, err := cfg.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostname: %w", err)
	}
	c.hostname = hostname

	return c, nil
}

// Register subscribes the decode, receive, selection and send controllers
func (c *Client) Register() {
	c.subs = append(c.subs,
		event.Subscribe(c.bus, c.onDatagram),
		event.Subscribe(c.bus, c.onMessage),
		event.Subscribe(c.bus, c.onSelection),
		event.Subscribe(c.bus, c.onClearSelection),
		event.Subscribe(c.bus, c.onSend),
	)
	for _, sub := range c.subs {
		c.logger.Trace().Str("subscription", sub.ID().String()).Msg("controller registered")
	}
}

// Close cancels the controller subscriptions
func (c *Client) Close() {
	for _, sub := range c.subs {
		sub.Cancel()
	}
	c.subs = nil
}

// Store returns the state store the controllers mutate
func (c *Client) Store() *state.Store {
	return c.store
}

func (c *Client) builder() *protocol.MessageBuilder {
	return protocol.NewMessageBuilder(c.seq).WithHostname(c.cfg.Hostname)
}

func (c *Client) build(cmd protocol.Command, payload string) (protocol.Message, error) {
	return c.builder().SetUpCommand(c.cfg, cmd, payload).Build()
}

func (c *Client) submit(cmd protocol.Command, payload string, to *net.UDPAddr) (protocol.Message, error) {
	msg, err := c.build(cmd, payload)
	if err != nil {
		return protocol.Message{}, err
	}
	if err := c.sender.Submit(msg, to); err != nil {
		return protocol.Message{}, err
	}
	return msg, nil
}

// Announce broadcasts our presence: a NOOPERATION probe followed by BR_ENTRY
func (c *Client) Announce() error {
	to := c.cfg.BroadcastAddr()
	if _, err := c.submit(protocol.NoOperation, c.cfg.Username(), to); err != nil {
		return fmt.Errorf("failed to send probe: %w", err)
	}
	if _, err := c.submit(protocol.BrEntry, c.cfg.Username(), to); err != nil {
		return fmt.Errorf("failed to announce entry: %w", err)
	}
	c.logger.Info().Stringer("to", to).Str("user", c.cfg.Username()).Msg("announced entry")
	return nil
}

// Leave broadcasts BR_EXIT. The message is flushed by the transport shutdown.
func (c *Client) Leave() error {
	to := c.cfg.BroadcastAddr()
	if _, err := c.submit(protocol.BrExit, c.cfg.Username(), to); err != nil {
		return fmt.Errorf("failed to announce exit: %w", err)
	}
	c.logger.Info().Stringer("to", to).Msg("announced exit")
	return nil
}

// onDatagram decodes raw bytes and reposts them as MessageReceived
func (c *Client) onDatagram(d transport.Datagram) {
	msg, err := protocol.DecodeFrom(d.Data, d.From)
	if err != nil {
		c.metrics.RecordMalformed()
		c.logger.Warn().Err(err).Stringer("from", d.From).Int("len", len(d.Data)).Msg("dropped malformed datagram")
		return
	}
	if err := c.bus.Post(MessageReceived{Message: msg, From: d.From, ReceivedAt: d.ReceivedAt}); err != nil {
		c.logger.Debug().Err(err).Msg("dropped message")
	}
}

// isSelf reports whether msg is our own broadcast coming back
func (c *Client) isSelf(msg protocol.Message, from *net.UDPAddr) bool {
	return msg.User == c.cfg.Username() &&
		msg.Host == c.hostname &&
		from != nil && from.Port == c.cfg.Port()
}

// onMessage reconciles a decoded message into the state store
func (c *Client) onMessage(ev MessageReceived) {
	msg := ev.Message
	logger := c.logger

	if c.isSelf(msg, ev.From) {
		logger.Trace().Stringer("operation", msg.Operation).Msg("ignoring own message")
		return
	}

	sender := state.UserFromMessage(msg, ev.From)

	switch msg.Command() {
	case protocol.BrEntry:
		c.addOrRename(sender)
		c.rememberPeer(sender, ev.ReceivedAt)
		if _, err := c.submit(protocol.AnsEntry, c.cfg.Username(), sender.UDPAddr()); err != nil {
			logger.Warn().Err(err).Str("user", sender.Name).Msg("failed to answer entry")
		}

	case protocol.AnsEntry, protocol.BrAbsence:
		c.addOrRename(sender)
		c.rememberPeer(sender, ev.ReceivedAt)

	case protocol.BrExit:
		c.store.RemoveUser(sender)
		logger.Info().Str("user", sender.Name).Str("host", sender.Host).Msg("user left")

	case protocol.SendMsg:
		c.receiveText(sender, msg, c.stamp(ev.ReceivedAt))

	case protocol.RecvMsg:
		packet, err := strconv.ParseInt(msg.Payload, 10, 64)
		if err != nil {
			logger.Debug().Err(err).Str("payload", msg.Payload).Msg("unparseable delivery confirmation")
			return
		}
		if err := c.bus.Post(DeliveryConfirmed{From: sender, PacketNumber: packet}); err != nil {
			logger.Debug().Err(err).Msg("dropped delivery confirmation")
		}

	default:
		if !msg.Command().Known() {
			logger.Debug().Stringer("operation", msg.Operation).Str("user", msg.User).Msg("unknown command")
			return
		}
		logger.Debug().Stringer("operation", msg.Operation).Str("user", msg.User).Msg("ignoring message")
		return
	}

	c.metrics.RecordKnownUsers(c.store.Current().Len())
}

// addOrRename adds u, or updates the nickname of the known user with u's identity
func (c *Client) addOrRename(u state.User) {
	known, ok := c.store.Current().Find(u.Identity)
	if !ok {
		c.store.AddUser(u)
		c.logger.Info().Str("user", u.Name).Str("host", u.Host).Str("nickname", u.Nickname).Msg("user joined")
		return
	}
	if known.Nickname == u.Nickname {
		return
	}

	c.store.SwapUsers(func(users []state.User) []state.User {
		for i := range users {
			if users[i].Equal(u) {
				users[i].Nickname = u.Nickname
			}
		}
		return users
	})
}

// stamp falls back to the local clock for events without a receive time
func (c *Client) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return c.now()
	}
	return at
}

func (c *Client) rememberPeer(u state.User, seen time.Time) {
	if c.settings == nil {
		return
	}
	if err := c.settings.RecordPeer(u.Name, u.Host, u.Addr.String(), c.stamp(seen)); err != nil {
		c.logger.Warn().Err(err).Msg("failed to record peer")
	}
}

func (c *Client) receiveText(sender state.User, msg protocol.Message, at time.Time) {
	current := c.store.Current()
	known, ok := current.Find(sender.Identity)
	if !ok {
		c.store.AddUser(sender)
		known = sender
	}
	c.store.AddTalkToUserAt(known, msg, at)

	if msg.Operation.Has(protocol.FlagSendCheck) && !msg.Operation.Has(protocol.FlagBroadcast) && !msg.Operation.Has(protocol.FlagAutoReturn) {
		ack := strconv.FormatInt(msg.PacketNumber, 10)
		if _, err := c.submit(protocol.RecvMsg, ack, sender.UDPAddr()); err != nil {
			c.logger.Warn().Err(err).Str("user", sender.Name).Msg("failed to confirm receipt")
		}
	}

	if !msg.Operation.Has(protocol.FlagNoPopup) && c.notificationsEnabled() {
		if err := c.notifier.Notify(known.DisplayName(), FormatNotificationBody(msg.Payload)); err != nil {
			c.logger.Debug().Err(err).Msg("notification failed")
		}
	}
}

func (c *Client) notificationsEnabled() bool {
	if !c.cfg.Local.Notifications {
		return false
	}
	return c.settings == nil || !c.settings.GetNotificationsMuted()
}

// onSelection applies a selection intent from the UI
func (c *Client) onSelection(ev UserSelectionRequested) {
	if _, err := c.store.SelectUser(ev.User); err != nil {
		c.logger.Warn().Err(err).Msg("selection rejected")
	}
}

// onClearSelection drops the selection on request from the UI
func (c *Client) onClearSelection(SelectionClearRequested) {
	c.store.ClearSelection()
}

// onSend sends a direct message and records it in the peer's talk log.
// A peer that has left keeps no talk log, so nothing is sent to it.
func (c *Client) onSend(ev SendRequested) {
	if !c.store.Current().Contains(ev.User) {
		c.sendFailed(ev.User, fmt.Errorf("%w: %s", ErrPeerGone, ev.User.DisplayName()))
		return
	}
	msg, err := c.submit(protocol.SendMsg, ev.Text, ev.User.UDPAddr())
	if err != nil {
		c.sendFailed(ev.User, err)
		return
	}
	c.store.AddTalkToUserAt(ev.User, msg, c.now())
}

func (c *Client) sendFailed(u state.User, err error) {
	c.logger.Warn().Err(err).Str("user", u.Name).Msg("send failed")
	if perr := c.bus.Post(SendFailed{User: u, Err: err}); perr != nil {
		c.logger.Debug().Err(perr).Msg("dropped send failure")
	}
}
