package client

import (
	"net"
	"time"

	"github.com/aeolun/lanchat/pkg/protocol"
	"github.com/aeolun/lanchat/pkg/state"
)

// MessageReceived is posted for every datagram that decodes successfully
type MessageReceived struct {
	Message    protocol.Message
	From       *net.UDPAddr
	ReceivedAt time.Time
}

// UserSelectionRequested is posted by the UI when the user picks a peer
type UserSelectionRequested struct {
	User state.User
}

// SelectionClearRequested is posted by the UI to drop the current selection
type SelectionClearRequested struct{}

// SendRequested is posted by the UI to send a direct message
type SendRequested struct {
	User state.User
	Text string
}

// SendFailed reports a message that could not be queued
type SendFailed struct {
	User state.User
	Err  error
}

// DeliveryConfirmed is posted when a peer acknowledges one of our messages
type DeliveryConfirmed struct {
	From         state.User
	PacketNumber int64
}
