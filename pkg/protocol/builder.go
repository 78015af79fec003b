package protocol

import (
	"os"
	"strings"
)

// DefaultUser is the identity used by SetUpDefault when no configuration is available
const DefaultUser = "default-user"

// Identity supplies the local user's name and listening port
type Identity interface {
	Username() string
	Port() int
}

const (
	fieldVersion = 1 << iota
	fieldPacketNumber
	fieldUser
	fieldHost
	fieldOperation
	fieldPayload
	fieldPort
)

var requiredFields = []struct {
	bit  int
	name string
}{
	{fieldVersion, "version"},
	{fieldPacketNumber, "packet number"},
	{fieldUser, "user"},
	{fieldHost, "host"},
	{fieldOperation, "operation"},
	{fieldPayload, "payload"},
	{fieldPort, "port"},
}

// MessageBuilder assembles a Message. A builder is not safe for concurrent use;
// the Sequencer it draws packet numbers from is.
type MessageBuilder struct {
	seq      *Sequencer
	hostname func() (string, error)

	msg Message
	set int
}

// NewMessageBuilder creates a builder drawing packet numbers from seq
func NewMessageBuilder(seq *Sequencer) *MessageBuilder {
	return &MessageBuilder{seq: seq, hostname: os.Hostname}
}

// WithHostname overrides how the local host name is resolved
func (b *MessageBuilder) WithHostname(fn func() (string, error)) *MessageBuilder {
	b.hostname = fn
	return b
}

// SetUp fills every field from the local identity, an operation and a payload
func (b *MessageBuilder) SetUp(id Identity, op Operation, payload string) *MessageBuilder {
	b.setUp(id.Username(), id.Port(), op, payload)
	return b
}

// SetUpCommand is SetUp with the command's default flags
func (b *MessageBuilder) SetUpCommand(id Identity, cmd Command, payload string) *MessageBuilder {
	return b.SetUp(id, OfDefault(cmd).Build(), payload)
}

// SetUpDefault fills every field using DefaultUser and DefaultPort.
//
// Deprecated: use SetUp with a configured Identity.
func (b *MessageBuilder) SetUpDefault(op Operation, payload string) *MessageBuilder {
	b.setUp(DefaultUser, DefaultPort, op, payload)
	return b
}

func (b *MessageBuilder) setUp(user string, port int, op Operation, payload string) {
	b.Version(Version)
	if b.seq != nil {
		b.PacketNumber(b.seq.Next())
	}
	b.User(user)
	b.Host(b.localHost())
	b.Operation(op)
	b.Payload(payload)
	b.Port(port)
	b.msg.Attachments = nil
}

func (b *MessageBuilder) localHost() string {
	if b.hostname != nil {
		if name, err := b.hostname(); err == nil && name != "" {
			return name
		}
	}
	return "localhost"
}

// Version sets the protocol version string
func (b *MessageBuilder) Version(v string) *MessageBuilder {
	b.msg.Version = v
	b.set |= fieldVersion
	return b
}

// PacketNumber sets the packet number, overriding the sequencer
func (b *MessageBuilder) PacketNumber(n int64) *MessageBuilder {
	b.msg.PacketNumber = n
	b.set |= fieldPacketNumber
	return b
}

// User sets the sender's login name
func (b *MessageBuilder) User(user string) *MessageBuilder {
	b.msg.User = user
	b.set |= fieldUser
	return b
}

// Host sets the sender's host name
func (b *MessageBuilder) Host(host string) *MessageBuilder {
	b.msg.Host = host
	b.set |= fieldHost
	return b
}

// Operation sets the command and flags
func (b *MessageBuilder) Operation(op Operation) *MessageBuilder {
	b.msg.Operation = op
	b.set |= fieldOperation
	return b
}

// Payload sets the message body
func (b *MessageBuilder) Payload(payload string) *MessageBuilder {
	b.msg.Payload = payload
	b.set |= fieldPayload
	return b
}

// Port sets the sender's reply port
func (b *MessageBuilder) Port(port int) *MessageBuilder {
	b.msg.Port = port
	b.set |= fieldPort
	return b
}

// Attachments replaces the attachment list. A non-empty list sets FILEATTACH on Build.
func (b *MessageBuilder) Attachments(attachments []Attachment) *MessageBuilder {
	b.msg.Attachments = attachments
	return b
}

// Build validates the builder state and returns the Message.
// It fails with *InvalidMessageError before any network I/O can happen.
func (b *MessageBuilder) Build() (Message, error) {
	for _, f := range requiredFields {
		if b.set&f.bit == 0 {
			return Message{}, invalid(f.name, "is not set")
		}
	}

	m := b.msg
	if m.Version == "" {
		return Message{}, invalid("version", "is empty")
	}
	for _, f := range []struct{ name, value string }{
		{"version", m.Version},
		{"user", m.User},
		{"host", m.Host},
	} {
		if strings.ContainsAny(f.value, ":\x00") {
			return Message{}, invalid(f.name, "contains a delimiter")
		}
	}
	if strings.ContainsRune(m.Payload, attachmentSectionSep) {
		return Message{}, invalid("payload", "contains NUL")
	}
	if m.Port < 0 || m.Port > 65535 {
		return Message{}, invalid("port", "is out of range")
	}

	if len(m.Attachments) > 0 {
		for _, a := range m.Attachments {
			if strings.ContainsAny(a.Name, "\x00\a") {
				return Message{}, invalid("attachment name", "contains a separator")
			}
		}
		m.Attachments = append([]Attachment(nil), m.Attachments...)
		m.Operation |= Operation(FlagFileAttach)
	} else {
		m.Attachments = nil
	}

	return m, nil
}
