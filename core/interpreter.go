package core

import "iox16/protocol"

// InterpreterStats counts how frames were handled.
type InterpreterStats struct {
	Handled    uint32 // addressed requests answered
	Broadcasts uint32 // broadcast requests executed
	Foreign    uint32 // frames for other boards
	Responses  uint32 // responses of other boards seen on the bus
	Errors     uint32 // error responses sent
}

// Interpreter applies complete frames to the board state and produces the
// responses.
type Interpreter struct {
	address  uint8
	registry *CommandRegistry
	resp     [protocol.MaxPayload]byte
	stats    InterpreterStats

	// lastError is the code of the most recent failed request, including
	// broadcasts that are never answered.
	lastError uint8
}

// NewInterpreter creates an interpreter for the board at address.
func NewInterpreter(address uint8, registry *CommandRegistry) *Interpreter {
	return &Interpreter{address: address, registry: registry}
}

// Address returns the address the interpreter answers to.
func (in *Interpreter) Address() uint8 {
	return in.address
}

// Stats returns the interpreter counters.
func (in *Interpreter) Stats() InterpreterStats {
	return in.stats
}

// LastError returns the code of the most recent failed request.
func (in *Interpreter) LastError() uint8 {
	return in.lastError
}

// Handle executes a complete frame. It returns the response and true when
// one must be sent. The response payload is valid until the next call.
func (in *Interpreter) Handle(f protocol.Frame) (protocol.Frame, bool) {
	// responses, our own echo included, are never answered
	if f.IsResponse() {
		in.stats.Responses++
		return protocol.Frame{}, false
	}

	broadcast := f.Address == protocol.BroadcastAddress
	if !broadcast && f.Address != in.address {
		in.stats.Foreign++
		return protocol.Frame{}, false
	}

	RecordEvent(EvtFrame, f.Command, 0, uint32(f.Address))
	payload, err := in.registry.Dispatch(f.Command, f.Payload, in.resp[:0])
	if err != nil {
		in.lastError = ErrorCode(err)
		RecordEvent(EvtCmdError, f.Command, 0, uint32(in.lastError))
		DebugPrintln("[BUS] " + protocol.CommandName(f.Command) + " failed: " + err.Error())
	}

	if broadcast {
		in.stats.Broadcasts++
		return protocol.Frame{}, false
	}
	if err != nil {
		in.stats.Errors++
		return protocol.NewErrorResponse(in.address, f.Command, in.lastError), true
	}
	in.stats.Handled++
	return protocol.NewResponse(in.address, f.Command, payload), true
}
