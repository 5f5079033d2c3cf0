package core

import (
	"errors"
	"testing"

	"iox16/protocol"
)

func newTestInterpreter(t *testing.T, addr uint8) (*Interpreter, *int) {
	t.Helper()
	calls := 0
	reg := NewCommandRegistry()
	if err := reg.Register(protocol.CmdPing, "ping", 0, func(req, resp []byte) ([]byte, error) {
		calls++
		return resp, nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(protocol.CmdReadStats, "read_stats", 1, func(req, resp []byte) ([]byte, error) {
		calls++
		if req[0] >= NumInputs {
			return nil, ErrInvalidValue
		}
		return append(resp, req[0]), nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(protocol.CmdSetConfig, "set_config", 0, func(req, resp []byte) ([]byte, error) {
		return nil, &CommandError{Code: protocol.ErrCodeStorage, Err: errors.New("flash busy")}
	}); err != nil {
		t.Fatal(err)
	}
	return NewInterpreter(addr, reg), &calls
}

func TestInterpreterSuccessResponse(t *testing.T) {
	in, calls := newTestInterpreter(t, 5)

	resp, ok := in.Handle(protocol.Frame{Address: 5, Command: protocol.CmdReadStats, Payload: []byte{3}})
	if !ok {
		t.Fatal("Expected a response")
	}
	if resp.Address != 5 || resp.Command != protocol.CmdReadStats|protocol.ResponseFlag {
		t.Errorf("Unexpected response header %02X/%02X", resp.Address, resp.Command)
	}
	if len(resp.Payload) != 1 || resp.Payload[0] != 3 {
		t.Errorf("Expected payload [3], got %v", resp.Payload)
	}
	if *calls != 1 {
		t.Errorf("Expected 1 handler call, got %d", *calls)
	}
}

func TestInterpreterAddressFilter(t *testing.T) {
	in, calls := newTestInterpreter(t, 5)

	if _, ok := in.Handle(protocol.Frame{Address: 9, Command: protocol.CmdPing}); ok {
		t.Error("Expected no response for another address")
	}
	if *calls != 0 {
		t.Errorf("Expected no handler call, got %d", *calls)
	}
	if in.Stats().Foreign != 1 {
		t.Errorf("Expected 1 foreign frame, got %d", in.Stats().Foreign)
	}
}

func TestInterpreterBroadcast(t *testing.T) {
	in, calls := newTestInterpreter(t, 5)

	if _, ok := in.Handle(protocol.Frame{Address: protocol.BroadcastAddress, Command: protocol.CmdPing}); ok {
		t.Error("Expected broadcast to stay unanswered")
	}
	if *calls != 1 {
		t.Errorf("Expected broadcast to execute, got %d calls", *calls)
	}

	// failures are recorded but still not answered
	if _, ok := in.Handle(protocol.Frame{Address: protocol.BroadcastAddress, Command: 0x30}); ok {
		t.Error("Expected failed broadcast to stay unanswered")
	}
	if in.LastError() != protocol.ErrCodeUnknownCommand {
		t.Errorf("Expected last error %d, got %d", protocol.ErrCodeUnknownCommand, in.LastError())
	}
}

func TestInterpreterIgnoresResponses(t *testing.T) {
	in, calls := newTestInterpreter(t, 5)

	if _, ok := in.Handle(protocol.Frame{Address: 5, Command: protocol.CmdPing | protocol.ResponseFlag}); ok {
		t.Error("Expected response frames to be ignored")
	}
	if _, ok := in.Handle(protocol.Frame{Address: 5, Command: protocol.ErrorResponse, Payload: []byte{1, 0}}); ok {
		t.Error("Expected error responses to be ignored")
	}
	if *calls != 0 || in.Stats().Responses != 2 {
		t.Errorf("Expected 2 ignored responses, got calls=%d stats=%+v", *calls, in.Stats())
	}
}

func TestInterpreterErrorResponses(t *testing.T) {
	in, _ := newTestInterpreter(t, 5)

	tests := []struct {
		name  string
		frame protocol.Frame
		code  uint8
	}{
		{"unknown", protocol.Frame{Address: 5, Command: 0x20}, protocol.ErrCodeUnknownCommand},
		{"reserved", protocol.Frame{Address: 5, Command: 0x41}, protocol.ErrCodeUnknownCommand},
		{"length", protocol.Frame{Address: 5, Command: protocol.CmdPing, Payload: []byte{1}}, protocol.ErrCodeBadLength},
		{"value", protocol.Frame{Address: 5, Command: protocol.CmdReadStats, Payload: []byte{16}}, protocol.ErrCodeInvalidValue},
		{"storage", protocol.Frame{Address: 5, Command: protocol.CmdSetConfig}, protocol.ErrCodeStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := in.Handle(tt.frame)
			if !ok {
				t.Fatal("Expected an error response")
			}
			if !resp.IsError() {
				t.Errorf("Expected error command 0xFF, got 0x%02X", resp.Command)
			}
			want := []byte{tt.code, tt.frame.Command}
			if len(resp.Payload) != 2 || resp.Payload[0] != want[0] || resp.Payload[1] != want[1] {
				t.Errorf("Expected payload %v, got %v", want, resp.Payload)
			}
		})
	}
	if in.Stats().Errors != uint32(len(tests)) {
		t.Errorf("Expected %d errors, got %d", len(tests), in.Stats().Errors)
	}
}
