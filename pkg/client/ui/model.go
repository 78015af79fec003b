package ui

import (
	"strings"

	"github.com/aeolun/lanchat/pkg/client"
	"github.com/aeolun/lanchat/pkg/protocol"
	"github.com/aeolun/lanchat/pkg/state"
	"github.com/aeolun/lanchat/pkg/transport"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// unknownHostReserve stands in for the host name until WithHost is called
const unknownHostReserve = 64

// Poster accepts intent events; *event.Dispatcher implements it
type Poster interface {
	Post(ev any) error
}

// Focus is the pane receiving key input
type Focus int

const (
	FocusUsers Focus = iota
	FocusCompose
)

func (f Focus) String() string {
	switch f {
	case FocusUsers:
		return "Users"
	case FocusCompose:
		return "Compose"
	default:
		return "Unknown"
	}
}

// Model renders state snapshots and turns key presses into intent events.
// It never mutates state itself.
type Model struct {
	bus       Poster
	bridge    *Bridge
	settings  client.SettingsStore
	localUser string
	host      string
	version   string

	snapshot state.State
	cursor   int
	focus    Focus
	muted    bool

	input    textinput.Model
	talk     viewport.Model
	help     help.Model
	keys     keyMap
	showHelp bool

	width         int
	height        int
	statusMessage string
	errorMessage  string
}

// NewModel creates the UI model. bridge and settings may be nil.
func NewModel(bus Poster, bridge *Bridge, settings client.SettingsStore, localUser, version string) Model {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.Prompt = "> "

	m := Model{
		bus:       bus,
		bridge:    bridge,
		settings:  settings,
		localUser: localUser,
		version:   version,
		snapshot:  state.Initial(),
		input:     input,
		talk:      viewport.New(40, 10),
		help:      help.New(),
		keys:      defaultKeyMap(),
	}
	if settings != nil {
		m.muted = settings.GetNotificationsMuted()
	}
	m.input.CharLimit = m.maxTextBytes()
	return m
}

// WithHost sets the host name announced to peers, which sizes the compose limit
func (m Model) WithHost(host string) Model {
	m.host = host
	m.input.CharLimit = m.maxTextBytes()
	return m
}

// maxTextBytes is the largest message text that fits in one datagram.
// The input's rune limit is only a coarse bound; text is checked in bytes on send.
func (m Model) maxTextBytes() int {
	host := m.host
	if host == "" {
		host = strings.Repeat("x", unknownHostReserve)
	}
	return protocol.PayloadBudget(transport.MaxDatagramSize, m.localUser, host)
}

// Init starts listening for bus events
func (m Model) Init() tea.Cmd {
	return m.listen()
}

func (m Model) listen() tea.Cmd {
	if m.bridge == nil {
		return nil
	}
	return m.bridge.listen()
}

// Snapshot returns the snapshot being rendered
func (m Model) Snapshot() state.State {
	return m.snapshot
}

// Focus returns the pane receiving key input
func (m Model) Focus() Focus {
	return m.focus
}

// Cursor returns the highlighted row of the user list
func (m Model) Cursor() int {
	return m.cursor
}

// selectedUser returns the selected peer, if any
func (m Model) selectedUser() (state.User, bool) {
	return m.snapshot.SelectedUser()
}

// userAtCursor returns the highlighted user
func (m Model) userAtCursor() (state.User, bool) {
	users := m.snapshot.Users()
	if m.cursor < 0 || m.cursor >= len(users) {
		return state.User{}, false
	}
	return users[m.cursor], true
}
