package core

import "iox16/protocol"

func (f *Firmware) registerInputCommands() {
	r := f.registry
	cmds := []struct {
		id      uint8
		name    string
		length  int
		handler CommandHandler
	}{
		{protocol.CmdReadInputs, "read_inputs", 0, f.handleReadInputs},
		{protocol.CmdReadAverages, "read_averages", 0, f.handleReadAverages},
		{protocol.CmdReadStats, "read_stats", protocol.ChannelSize, f.handleReadStats},
		{protocol.CmdSetCalibration, "set_calibration", protocol.ChannelSize + protocol.CalibrationSize, f.handleSetCalibration},
		{protocol.CmdGetCalibration, "get_calibration", protocol.ChannelSize, f.handleGetCalibration},
		{protocol.CmdSetThreshold, "set_threshold", protocol.ChannelSize + protocol.ThresholdSize, f.handleSetThreshold},
		{protocol.CmdGetThreshold, "get_threshold", protocol.ChannelSize, f.handleGetThreshold},
		{protocol.CmdGetThresholdTimes, "get_threshold_times", protocol.ChannelSize, f.handleGetThresholdTimes},
		{protocol.CmdGetThresholdStates, "get_threshold_states", 0, f.handleGetThresholdStates},
	}
	for _, c := range cmds {
		if err := r.Register(c.id, c.name, c.length, c.handler); err != nil {
			panic("register command " + c.name + ": " + err.Error())
		}
	}
}

// inputChannel validates the channel byte that leads a per-channel request.
func inputChannel(req []byte) (int, error) {
	if len(req) < protocol.ChannelSize || int(req[0]) >= NumInputs {
		return 0, ErrInvalidValue
	}
	return int(req[0]), nil
}

func (f *Firmware) handleReadInputs(req, resp []byte) ([]byte, error) {
	v := f.inputs.Values()
	return protocol.AppendInt16s(resp, v[:]), nil
}

func (f *Firmware) handleReadAverages(req, resp []byte) ([]byte, error) {
	v := f.inputs.TakeAverages()
	return protocol.AppendInt16s(resp, v[:]), nil
}

func (f *Firmware) handleReadStats(req, resp []byte) ([]byte, error) {
	ch, err := inputChannel(req)
	if err != nil {
		return nil, err
	}
	return f.inputs.TakeStats(ch).Append(resp), nil
}

func (f *Firmware) handleSetCalibration(req, resp []byte) ([]byte, error) {
	ch, err := inputChannel(req)
	if err != nil {
		return nil, err
	}
	cal, err := protocol.DecodeCalibration(req[protocol.ChannelSize:])
	if err != nil || !cal.Valid() {
		return nil, ErrInvalidValue
	}

	next := f.settings
	next.Calibrations[ch] = cal
	if err := f.persist(&next); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Firmware) handleGetCalibration(req, resp []byte) ([]byte, error) {
	ch, err := inputChannel(req)
	if err != nil {
		return nil, err
	}
	return f.settings.Calibrations[ch].Append(resp), nil
}

func (f *Firmware) handleSetThreshold(req, resp []byte) ([]byte, error) {
	ch, err := inputChannel(req)
	if err != nil {
		return nil, err
	}
	th, err := protocol.DecodeThreshold(req[protocol.ChannelSize:])
	if err != nil {
		return nil, ErrInvalidValue
	}

	next := f.settings
	next.Thresholds[ch] = th
	if err := f.persist(&next); err != nil {
		return nil, err
	}
	f.inputs.ResetThreshold(ch, f.uptime.Micros())
	return resp, nil
}

func (f *Firmware) handleGetThreshold(req, resp []byte) ([]byte, error) {
	ch, err := inputChannel(req)
	if err != nil {
		return nil, err
	}
	return f.settings.Thresholds[ch].Append(resp), nil
}

func (f *Firmware) handleGetThresholdTimes(req, resp []byte) ([]byte, error) {
	ch, err := inputChannel(req)
	if err != nil {
		return nil, err
	}
	high, low := f.inputs.ThresholdTimes(ch)
	t := protocol.ThresholdTimes{
		Now:  uint32(f.uptime.Micros()),
		High: uint32(high),
		Low:  uint32(low),
	}
	return t.Append(resp), nil
}

func (f *Firmware) handleGetThresholdStates(req, resp []byte) ([]byte, error) {
	return f.inputs.ThresholdStates().Append(resp), nil
}
