package core

import "iox16/protocol"

func (f *Firmware) registerOutputCommands() {
	r := f.registry
	if err := r.Register(protocol.CmdSetOutputs, "set_outputs", protocol.OutputsSize, f.handleSetOutputs); err != nil {
		panic(err)
	}
	if err := r.Register(protocol.CmdGetOutputs, "get_outputs", 0, f.handleGetOutputs); err != nil {
		panic(err)
	}
	if err := r.Register(protocol.CmdSetFrequencies, "set_frequencies", protocol.FrequenciesSize, f.handleSetFrequencies); err != nil {
		panic(err)
	}
}

// handleSetOutputs replaces all 16 duty cycles. The hardware is updated by
// the apply step of the same Poll.
func (f *Firmware) handleSetOutputs(req, resp []byte) ([]byte, error) {
	var duty [NumOutputs]uint16
	if err := protocol.DecodeUint16s(duty[:], req); err != nil {
		return nil, ErrBadLength
	}
	if err := f.outputs.SetDuty(&duty); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Firmware) handleGetOutputs(req, resp []byte) ([]byte, error) {
	return f.outputs.State().Append(resp), nil
}

func (f *Firmware) handleSetFrequencies(req, resp []byte) ([]byte, error) {
	if f.freq == nil {
		return nil, ErrUnsupported
	}
	var hz [NumOutputGroups]uint16
	if err := protocol.DecodeUint16s(hz[:], req); err != nil {
		return nil, ErrBadLength
	}
	if err := f.outputs.SetFrequencies(&hz); err != nil {
		return nil, err
	}
	return resp, nil
}
