package protocol

import (
	"fmt"
	"strings"
)

// Flag is a bitfield of option modifiers carried above the command byte of an
// operation code. Flags are independent of the command and may be combined freely.
type Flag uint32

// Option flags for entry/absence commands
const (
	FlagAbsence Flag = 0x00000100
	FlagServer  Flag = 0x00000200
	FlagDialup  Flag = 0x00010000
)

// Option flags for send commands. SENDCHECK and SECRET share bits with
// ABSENCE and SERVER; the command decides which meaning applies.
const (
	FlagSendCheck  Flag = 0x00000100
	FlagSecret     Flag = 0x00000200
	FlagBroadcast  Flag = 0x00000400
	FlagMulticast  Flag = 0x00000800
	FlagNoPopup    Flag = 0x00001000
	FlagAutoReturn Flag = 0x00002000
	FlagRetry      Flag = 0x00004000
	FlagPassword   Flag = 0x00008000
	FlagNoLog      Flag = 0x00020000
	FlagNewMulti   Flag = 0x00040000
	FlagNoAddList  Flag = 0x00080000
	FlagReadCheck  Flag = 0x00100000
)

// Extension flags
const (
	FlagFileAttach Flag = 0x00200000
	FlagEncrypt    Flag = 0x00400000
	FlagUTF8       Flag = 0x00800000
)

// FlagMask selects the flag portion of an operation code.
const FlagMask = 0xFFFFFF00

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagSendCheck, "SENDCHECK"},
	{FlagSecret, "SECRET"},
	{FlagBroadcast, "BROADCAST"},
	{FlagMulticast, "MULTICAST"},
	{FlagNoPopup, "NOPOPUP"},
	{FlagAutoReturn, "AUTORET"},
	{FlagRetry, "RETRY"},
	{FlagPassword, "PASSWORD"},
	{FlagDialup, "DIALUP"},
	{FlagNoLog, "NOLOG"},
	{FlagNewMulti, "NEWMULTI"},
	{FlagNoAddList, "NOADDLIST"},
	{FlagReadCheck, "READCHECK"},
	{FlagFileAttach, "FILEATTACH"},
	{FlagEncrypt, "ENCRYPT"},
	{FlagUTF8, "UTF8"},
}

// Operation is a command combined with its option flags
type Operation uint32

// NewOperation combines a command and flags into one operation code
func NewOperation(cmd Command, flags Flag) Operation {
	return Operation((uint32(cmd) & CommandMask) | (uint32(flags) & FlagMask))
}

// Command returns the base command of the operation
func (o Operation) Command() Command {
	return Command(uint32(o) & CommandMask)
}

// Flags returns the option flags of the operation
func (o Operation) Flags() Flag {
	return Flag(uint32(o) & FlagMask)
}

// Has returns true if every bit of flag is set
func (o Operation) Has(flag Flag) bool {
	return Flag(o)&flag == flag
}

// Code returns the wire integer of the operation
func (o Operation) Code() uint32 {
	return uint32(o)
}

// String renders the operation as COMMAND|FLAG|FLAG
func (o Operation) String() string {
	parts := []string{o.Command().String()}
	for _, f := range flagNames {
		if o.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 1 && o.Flags() != 0 {
		parts = append(parts, fmt.Sprintf("0x%X", uint32(o.Flags())))
	}
	return strings.Join(parts, "|")
}

// OperationBuilder assembles an Operation starting from a command's default flags
type OperationBuilder struct {
	command Command
	flags   Flag
}

// OfDefault starts a builder from cmd with its default flags applied
func OfDefault(cmd Command) *OperationBuilder {
	return &OperationBuilder{command: cmd, flags: cmd.DefaultFlags()}
}

// Of starts a builder from cmd with no flags set
func Of(cmd Command) *OperationBuilder {
	return &OperationBuilder{command: cmd}
}

// Set turns flag on
func (b *OperationBuilder) Set(flag Flag) *OperationBuilder {
	b.flags |= flag
	return b
}

// Clear turns flag off
func (b *OperationBuilder) Clear(flag Flag) *OperationBuilder {
	b.flags &^= flag
	return b
}

// Build returns the combined operation
func (b *OperationBuilder) Build() Operation {
	return NewOperation(b.command, b.flags)
}
