package core

import (
	"errors"
	"sync"

	"iox16/protocol"
)

// CommandError carries the error code sent back to the master.
type CommandError struct {
	Code uint8
	Err  error
}

func (e *CommandError) Error() string {
	msg := protocol.ErrorCodeName(e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is matches any CommandError with the same code.
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	return ok && t.Code == e.Code
}

var (
	ErrBadLength      error = &CommandError{Code: protocol.ErrCodeBadLength}
	ErrUnknownCommand error = &CommandError{Code: protocol.ErrCodeUnknownCommand}
	ErrInvalidValue   error = &CommandError{Code: protocol.ErrCodeInvalidValue}
	ErrStorage        error = &CommandError{Code: protocol.ErrCodeStorage}
	ErrUnsupported    error = &CommandError{Code: protocol.ErrCodeUnsupported}

	ErrDuplicateCommand = errors.New("command already registered")
	ErrReservedCommand  = errors.New("command id reserved")
)

// ErrorCode returns the wire code for a handler error. Errors that are not
// CommandErrors are reported as invalid values.
func ErrorCode(err error) uint8 {
	if err == nil {
		return protocol.ErrCodeNone
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ce, ok := e.(*CommandError); ok {
			return ce.Code
		}
	}
	return protocol.ErrCodeInvalidValue
}

// AnyLength disables the payload length check of a command.
const AnyLength = -1

// CommandHandler handles one request. It appends the response payload to
// resp and returns it. resp has room for protocol.MaxPayload bytes.
type CommandHandler func(req []byte, resp []byte) ([]byte, error)

// Command is one entry of the command table.
type Command struct {
	ID      uint8
	Name    string
	Length  int // expected request payload length, or AnyLength
	Handler CommandHandler
}

// CommandRegistry holds all registered commands
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint8]*Command
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint8]*Command),
	}
}

// Register adds a command to the registry. Response codes (bit 7 set) and
// the reserved range cannot be registered.
func (r *CommandRegistry) Register(id uint8, name string, length int, handler CommandHandler) error {
	if id&protocol.ResponseFlag != 0 || (id >= protocol.CmdReservedFirst && id <= protocol.CmdReservedLast) {
		return ErrReservedCommand
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[id]; exists {
		return ErrDuplicateCommand
	}

	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Length:  length,
		Handler: handler,
	}
	return nil
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint8) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch checks the payload length and calls the command handler
func (r *CommandRegistry) Dispatch(id uint8, req []byte, resp []byte) ([]byte, error) {
	cmd, ok := r.GetCommand(id)
	if !ok {
		return nil, ErrUnknownCommand
	}
	if cmd.Length != AnyLength && len(req) != cmd.Length {
		return nil, ErrBadLength
	}
	return cmd.Handler(req, resp)
}
