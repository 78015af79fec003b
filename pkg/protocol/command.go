package protocol

import "fmt"

// Command is the base operation code carried in the low byte of an operation code.
type Command uint32

// Command codes (low 8 bits of the operation code)
const (
	NoOperation     Command = 0x00
	BrEntry         Command = 0x01 // Broadcast entry announcement
	BrExit          Command = 0x02 // Broadcast exit announcement
	AnsEntry        Command = 0x03 // Reply to BR_ENTRY
	BrAbsence       Command = 0x04 // Absence mode changed
	SendMsg         Command = 0x20
	RecvMsg         Command = 0x21 // Receipt for a SENDCHECK message
	ReadMsg         Command = 0x30
	DelMsg          Command = 0x31
	AnsReadMsg      Command = 0x32
	GetInfo         Command = 0x40
	SendInfo        Command = 0x41
	GetAbsenceInfo  Command = 0x50
	SendAbsenceInfo Command = 0x51

	// Send is the generic direct payload delivery command.
	Send = SendMsg
)

// CommandMask selects the command portion of an operation code.
const CommandMask = 0x000000FF

var commandNames = map[Command]string{
	NoOperation:     "NOOPERATION",
	BrEntry:         "BR_ENTRY",
	BrExit:          "BR_EXIT",
	AnsEntry:        "ANSENTRY",
	BrAbsence:       "BR_ABSENCE",
	SendMsg:         "SENDMSG",
	RecvMsg:         "RECVMSG",
	ReadMsg:         "READMSG",
	DelMsg:          "DELMSG",
	AnsReadMsg:      "ANSREADMSG",
	GetInfo:         "GETINFO",
	SendInfo:        "SENDINFO",
	GetAbsenceInfo:  "GETABSENCEINFO",
	SendAbsenceInfo: "SENDABSENCEINFO",
}

// String returns the protocol name of the command
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint32(c))
}

// Code returns the integer wire code of the command
func (c Command) Code() uint32 {
	return uint32(c)
}

// DefaultFlags returns the flags a freshly built operation for this command carries
func (c Command) DefaultFlags() Flag {
	switch c {
	case SendMsg:
		return FlagSendCheck
	case BrEntry, AnsEntry:
		return FlagUTF8
	default:
		return 0
	}
}

// Known reports whether c is one of the defined commands
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}
