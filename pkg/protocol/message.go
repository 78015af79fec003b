package protocol

import (
	"bytes"
	"net"
	"strconv"
	"strings"
)

const (
	// Version is the protocol version string sent in every message
	Version = "1"

	// DefaultPort is the well-known UDP port of the protocol
	DefaultPort = 2425

	// Delimiter separates the header segments of a message
	Delimiter = ':'

	// headerSegments is the number of delimited segments including the payload
	headerSegments = 6
)

// Separators for the attachment section following the payload
const (
	attachmentSectionSep = '\x00'
	attachmentSep        = '\a'
)

// Message is one wire-level protocol unit.
// Format: version:packetNumber:user:host:operationCode:payload[\0attachments]
//
// Messages are values: a Message obtained from Build or Decode is never
// modified by this package afterwards.
type Message struct {
	Version      string
	PacketNumber int64
	User         string
	Host         string
	Operation    Operation
	Payload      string
	Port         int // Sender's listening port, conveyed by the transport
	Attachments  []Attachment
}

// Attachment describes one file offered with a message
type Attachment struct {
	FileID     int64
	Name       string
	Size       int64
	ModTime    int64  // Unix seconds
	Attributes uint32 // File attribute bits
}

// Command returns the base command of the message's operation
func (m Message) Command() Command {
	return m.Operation.Command()
}

// Equal reports field-for-field equality
func (m Message) Equal(other Message) bool {
	if m.Version != other.Version ||
		m.PacketNumber != other.PacketNumber ||
		m.User != other.User ||
		m.Host != other.Host ||
		m.Operation != other.Operation ||
		m.Payload != other.Payload ||
		m.Port != other.Port ||
		len(m.Attachments) != len(other.Attachments) {
		return false
	}
	for i := range m.Attachments {
		if m.Attachments[i] != other.Attachments[i] {
			return false
		}
	}
	return true
}

// maxHeaderDigits is the widest decimal packet number plus operation code
const maxHeaderDigits = 19 + 10

// PayloadBudget returns how many payload bytes fit in a datagram of limit
// bytes sent by user from host, whatever the packet number and flags.
func PayloadBudget(limit int, user, host string) int {
	header := len(Version) + len(user) + len(host) + maxHeaderDigits + headerSegments - 1
	return max(0, limit-header)
}

// Encode serializes the message to the wire text format
func (m Message) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(m.Version)
	buf.WriteByte(Delimiter)
	buf.WriteString(strconv.FormatInt(m.PacketNumber, 10))
	buf.WriteByte(Delimiter)
	buf.WriteString(m.User)
	buf.WriteByte(Delimiter)
	buf.WriteString(m.Host)
	buf.WriteByte(Delimiter)
	buf.WriteString(strconv.FormatUint(uint64(m.Operation), 10))
	buf.WriteByte(Delimiter)
	buf.WriteString(m.Payload)

	if len(m.Attachments) > 0 {
		buf.WriteByte(attachmentSectionSep)
		for i, a := range m.Attachments {
			if i > 0 {
				buf.WriteByte(attachmentSep)
			}
			a.encodeTo(&buf)
		}
	}

	return buf.Bytes()
}

func (a Attachment) encodeTo(buf *bytes.Buffer) {
	buf.WriteString(strconv.FormatInt(a.FileID, 10))
	buf.WriteByte(Delimiter)
	// A literal ':' in the file name is doubled
	buf.WriteString(strings.ReplaceAll(a.Name, ":", "::"))
	buf.WriteByte(Delimiter)
	buf.WriteString(strconv.FormatInt(a.Size, 16))
	buf.WriteByte(Delimiter)
	buf.WriteString(strconv.FormatInt(a.ModTime, 16))
	buf.WriteByte(Delimiter)
	buf.WriteString(strconv.FormatUint(uint64(a.Attributes), 16))
	buf.WriteByte(Delimiter)
}

// Decode parses a received datagram into a Message. The port is not part of
// the text segments and is left at zero; see DecodeFrom.
func Decode(data []byte) (Message, error) {
	segments := strings.SplitN(string(data), string(Delimiter), headerSegments)
	if len(segments) < headerSegments {
		return Message{}, malformed("expected "+strconv.Itoa(headerSegments)+" segments, got "+strconv.Itoa(len(segments)), nil)
	}

	if segments[0] == "" {
		return Message{}, malformed("empty version", nil)
	}

	packetNumber, err := strconv.ParseInt(segments[1], 10, 64)
	if err != nil {
		return Message{}, malformed("non-numeric packet number", err)
	}

	code, err := strconv.ParseUint(segments[4], 10, 32)
	if err != nil {
		return Message{}, malformed("non-numeric operation code", err)
	}
	op := Operation(code)

	payload, rest, hasRest := strings.Cut(segments[5], string(attachmentSectionSep))

	msg := Message{
		Version:      segments[0],
		PacketNumber: packetNumber,
		User:         segments[2],
		Host:         segments[3],
		Operation:    op,
		Payload:      payload,
	}

	// Data after the NUL is only structured when FILEATTACH is set; other
	// extension sections are ignored.
	if hasRest && op.Has(FlagFileAttach) {
		attachments, err := decodeAttachments(strings.TrimRight(rest, "\x00"))
		if err != nil {
			return Message{}, err
		}
		msg.Attachments = attachments
	}

	return msg, nil
}

// DecodeFrom parses a datagram and takes the reply port from the sender's address
func DecodeFrom(data []byte, from net.Addr) (Message, error) {
	msg, err := Decode(data)
	if err != nil {
		return Message{}, err
	}
	if udp, ok := from.(*net.UDPAddr); ok && udp != nil {
		msg.Port = udp.Port
	}
	return msg, nil
}

func decodeAttachments(section string) ([]Attachment, error) {
	if section == "" {
		return nil, nil
	}

	var attachments []Attachment
	for _, entry := range strings.Split(section, string(attachmentSep)) {
		if entry == "" {
			continue
		}
		a, err := decodeAttachment(entry)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, nil
}

// decodeAttachment parses fileID:name:size:mtime:attr: where '::' in name is a literal ':'
func decodeAttachment(entry string) (Attachment, error) {
	id, rest, ok := strings.Cut(entry, string(Delimiter))
	if !ok {
		return Attachment{}, malformed("attachment without fields", nil)
	}
	fields := splitEscaped(rest)
	if len(fields) < 4 {
		return Attachment{}, malformed("attachment has "+strconv.Itoa(len(fields)+1)+" fields", nil)
	}

	fileID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Attachment{}, malformed("non-numeric attachment id", err)
	}
	size, err := strconv.ParseInt(fields[1], 16, 64)
	if err != nil {
		return Attachment{}, malformed("non-numeric attachment size", err)
	}
	mtime, err := strconv.ParseInt(fields[2], 16, 64)
	if err != nil {
		return Attachment{}, malformed("non-numeric attachment mtime", err)
	}
	attr, err := strconv.ParseUint(fields[3], 16, 32)
	if err != nil {
		return Attachment{}, malformed("non-numeric attachment attributes", err)
	}

	return Attachment{
		FileID:     fileID,
		Name:       fields[0],
		Size:       size,
		ModTime:    mtime,
		Attributes: uint32(attr),
	}, nil
}

// splitEscaped splits on ':' treating '::' as an escaped literal colon
func splitEscaped(s string) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != Delimiter {
			cur.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == Delimiter {
			cur.WriteByte(Delimiter)
			i++
			continue
		}
		fields = append(fields, cur.String())
		cur.Reset()
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}
