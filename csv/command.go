package csv

import (
	"encoding/binary"
	"errors"
	"runtime"
	"unsafe"
)

// CommandSize is the size of the packed struct sev_issue_cmd.
const CommandSize = 16

// binding is implemented by the pointer type of every payload.
// Opcode must not depend on the payload's value.
type binding interface {
	Opcode() Opcode
	// marshal returns the packed kernel layout of the payload.
	// Buffers referenced by the payload are passed by address.
	marshal() []byte
	// unmarshal copies the firmware's writes back into the payload.
	unmarshal(raw []byte)
}

// Dispatcher sends a command to the firmware.
// It returns the firmware's status code, and an error if the command failed.
type Dispatcher interface {
	Dispatch(code Opcode, data uint64) (fwError uint32, err error)
}

// Command is the envelope passed to the kernel: an opcode, the address of the payload,
// and the firmware status once the command was issued.
//
// The opcode is set from the payload type by From and FromMut and can not be changed.
type Command[T any] struct {
	code    Opcode
	payload *T
	bound   binding
	wire    []byte
	mutable bool
	status  uint32
}

// FromMut binds a payload the firmware may write to.
// Writes of the firmware are copied into the payload when the command is issued.
// The payload is encoded when the command is built.
func FromMut[T any, P interface {
	*T
	binding
}](payload P) *Command[T] {
	return &Command[T]{
		code:    payload.Opcode(),
		payload: payload,
		bound:   payload,
		wire:    payload.marshal(),
		mutable: true,
	}
}

// From binds a copy of a payload the firmware is not expected to write to.
// Nothing stops the firmware from writing anyway, but its writes are discarded.
func From[T any, P interface {
	*T
	binding
}](payload T) *Command[T] {
	p := P(&payload)
	return &Command[T]{
		code:    p.Opcode(),
		payload: p,
		bound:   p,
		wire:    p.marshal(),
	}
}

// Code returns the command's opcode.
func (c *Command[T]) Code() Opcode {
	return c.code
}

// Data returns the address of the encoded payload, or 0 for commands without payload.
func (c *Command[T]) Data() uint64 {
	if len(c.wire) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&c.wire[0])))
}

// Status returns the firmware status code. It is 0 until the command failed.
func (c *Command[T]) Status() uint32 {
	return c.status
}

// Mutable reports whether firmware writes are copied back into the payload.
func (c *Command[T]) Mutable() bool {
	return c.mutable
}

// Payload returns the bound payload.
func (c *Command[T]) Payload() *T {
	return c.payload
}

// Marshal returns the packed struct sev_issue_cmd.
func (c *Command[T]) Marshal() [CommandSize]byte {
	return packCommand(c.code, c.Data(), c.status)
}

// Issue sends the command to the firmware.
// The firmware status is recorded in the command, and a failure is returned as *FirmwareError.
func Issue[T any](d Dispatcher, cmd *Command[T]) error {
	if cmd == nil || cmd.bound == nil {
		return errors.New("command was not built with From or FromMut")
	}

	fwError, err := d.Dispatch(cmd.code, cmd.Data())
	cmd.status = fwError
	if cmd.mutable {
		cmd.bound.unmarshal(cmd.wire)
	}
	runtime.KeepAlive(cmd.wire)

	if err != nil || fwError != 0 {
		return &FirmwareError{Code: fwError, Err: err}
	}
	return nil
}

func packCommand(code Opcode, data uint64, status uint32) [CommandSize]byte {
	var result [CommandSize]byte
	binary.LittleEndian.PutUint32(result[0:4], uint32(code))
	binary.LittleEndian.PutUint64(result[4:12], data)
	binary.LittleEndian.PutUint32(result[12:16], status)
	return result
}
