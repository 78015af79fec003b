package ui

import (
	"github.com/aeolun/lanchat/pkg/client"
	"github.com/aeolun/lanchat/pkg/event"
	"github.com/aeolun/lanchat/pkg/state"
	tea "github.com/charmbracelet/bubbletea"
)

const noticeBuffer = 32

// Bridge forwards bus events to the bubbletea program. Handlers run on the
// bus delivery goroutine and never block it: only the newest snapshot is
// kept, and notices beyond the buffer are dropped.
type Bridge struct {
	snapshots chan state.State
	notices   chan tea.Msg
	subs      []event.Subscription
}

// NewBridge subscribes to the events the UI renders
func NewBridge(bus *event.Dispatcher) *Bridge {
	b := &Bridge{
		snapshots: make(chan state.State, 1),
		notices:   make(chan tea.Msg, noticeBuffer),
	}
	b.subs = append(b.subs,
		event.Subscribe(bus, func(ev state.StateChanged) { b.offerSnapshot(ev.State) }),
		event.Subscribe(bus, func(ev client.SendFailed) { b.offerNotice(SendFailedMsg(ev)) }),
		event.Subscribe(bus, func(ev client.DeliveryConfirmed) { b.offerNotice(DeliveredMsg(ev)) }),
	)
	return b
}

// offerSnapshot replaces any snapshot the UI has not picked up yet.
// Only the bus goroutine sends, so the drain-then-send cannot block.
func (b *Bridge) offerSnapshot(s state.State) {
	select {
	case <-b.snapshots:
	default:
	}
	b.snapshots <- s
}

func (b *Bridge) offerNotice(msg tea.Msg) {
	select {
	case b.notices <- msg:
	default:
	}
}

// Close cancels the subscriptions
func (b *Bridge) Close() {
	for _, sub := range b.subs {
		sub.Cancel()
	}
}

// listen waits for the next snapshot or notice
func (b *Bridge) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-b.snapshots:
			return SnapshotMsg{State: s}
		case n := <-b.notices:
			return n
		}
	}
}

// SnapshotMsg carries a new state snapshot
type SnapshotMsg struct {
	State state.State
}

// SendFailedMsg reports a message that was not sent
type SendFailedMsg client.SendFailed

// DeliveredMsg reports a delivery confirmation from a peer
type DeliveredMsg client.DeliveryConfirmed
