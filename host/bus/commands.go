package bus

import (
	"context"
	"fmt"

	"iox16/protocol"
)

func checkChannel(ch int) error {
	if ch < 0 || ch >= protocol.NumInputs {
		return fmt.Errorf("channel %d out of range", ch)
	}
	return nil
}

// Ping checks that a board answers.
func (m *Master) Ping(ctx context.Context, addr uint8) error {
	_, err := m.Transact(ctx, addr, protocol.CmdPing, nil)
	return err
}

// Status reads GET_STATUS.
func (m *Master) Status(ctx context.Context, addr uint8) (protocol.Status, error) {
	p, err := m.Transact(ctx, addr, protocol.CmdGetStatus, nil)
	if err != nil {
		return protocol.Status{}, err
	}
	return protocol.DecodeStatus(p)
}

// Info reads GET_INFO.
func (m *Master) Info(ctx context.Context, addr uint8) (protocol.Info, error) {
	p, err := m.Transact(ctx, addr, protocol.CmdGetInfo, nil)
	if err != nil {
		return protocol.Info{}, err
	}
	return protocol.DecodeInfo(p)
}

// ReadInputs returns the latest calibrated value of every input.
func (m *Master) ReadInputs(ctx context.Context, addr uint8) ([protocol.NumInputs]int16, error) {
	return m.readValues(ctx, addr, protocol.CmdReadInputs)
}

// ReadAverages returns the average of every input since the previous call.
func (m *Master) ReadAverages(ctx context.Context, addr uint8) ([protocol.NumInputs]int16, error) {
	return m.readValues(ctx, addr, protocol.CmdReadAverages)
}

func (m *Master) readValues(ctx context.Context, addr, cmd uint8) ([protocol.NumInputs]int16, error) {
	var v [protocol.NumInputs]int16
	p, err := m.Transact(ctx, addr, cmd, nil)
	if err != nil {
		return v, err
	}
	if err := protocol.DecodeInt16s(v[:], p); err != nil {
		return v, fmt.Errorf("%s: %w", protocol.CommandName(cmd), err)
	}
	return v, nil
}

// ReadStats returns and resets the statistics of one input.
func (m *Master) ReadStats(ctx context.Context, addr uint8, ch int) (protocol.Stats, error) {
	if err := checkChannel(ch); err != nil {
		return protocol.Stats{}, err
	}
	p, err := m.Transact(ctx, addr, protocol.CmdReadStats, []byte{uint8(ch)})
	if err != nil {
		return protocol.Stats{}, err
	}
	return protocol.DecodeStats(p)
}

// SetOutputs writes all 16 duty cycles.
func (m *Master) SetOutputs(ctx context.Context, addr uint8, duty [protocol.NumOutputs]uint16) error {
	_, err := m.Transact(ctx, addr, protocol.CmdSetOutputs, protocol.AppendUint16s(nil, duty[:]))
	return err
}

// BroadcastOutputs writes the same duty cycles to every board.
func (m *Master) BroadcastOutputs(ctx context.Context, duty [protocol.NumOutputs]uint16) error {
	return m.Broadcast(ctx, protocol.CmdSetOutputs, protocol.AppendUint16s(nil, duty[:]))
}

// Outputs reads duty cycles and group frequencies.
func (m *Master) Outputs(ctx context.Context, addr uint8) (protocol.OutputState, error) {
	p, err := m.Transact(ctx, addr, protocol.CmdGetOutputs, nil)
	if err != nil {
		return protocol.OutputState{}, err
	}
	return protocol.DecodeOutputState(p)
}

// SetFrequencies writes the PWM frequency of all 8 output groups.
func (m *Master) SetFrequencies(ctx context.Context, addr uint8, hz [protocol.NumOutputGroups]uint16) error {
	_, err := m.Transact(ctx, addr, protocol.CmdSetFrequencies, protocol.AppendUint16s(nil, hz[:]))
	return err
}

// SetCalibration stores the calibration of one input.
func (m *Master) SetCalibration(ctx context.Context, addr uint8, ch int, c protocol.Calibration) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	_, err := m.Transact(ctx, addr, protocol.CmdSetCalibration, c.Append([]byte{uint8(ch)}))
	return err
}

// Calibration reads the calibration of one input.
func (m *Master) Calibration(ctx context.Context, addr uint8, ch int) (protocol.Calibration, error) {
	if err := checkChannel(ch); err != nil {
		return protocol.Calibration{}, err
	}
	p, err := m.Transact(ctx, addr, protocol.CmdGetCalibration, []byte{uint8(ch)})
	if err != nil {
		return protocol.Calibration{}, err
	}
	return protocol.DecodeCalibration(p)
}

// SetThreshold stores the threshold configuration of one input.
func (m *Master) SetThreshold(ctx context.Context, addr uint8, ch int, t protocol.Threshold) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	_, err := m.Transact(ctx, addr, protocol.CmdSetThreshold, t.Append([]byte{uint8(ch)}))
	return err
}

// Threshold reads the threshold configuration of one input.
func (m *Master) Threshold(ctx context.Context, addr uint8, ch int) (protocol.Threshold, error) {
	if err := checkChannel(ch); err != nil {
		return protocol.Threshold{}, err
	}
	p, err := m.Transact(ctx, addr, protocol.CmdGetThreshold, []byte{uint8(ch)})
	if err != nil {
		return protocol.Threshold{}, err
	}
	return protocol.DecodeThreshold(p)
}

// ThresholdTimes reads when one input last crossed its thresholds.
func (m *Master) ThresholdTimes(ctx context.Context, addr uint8, ch int) (protocol.ThresholdTimes, error) {
	if err := checkChannel(ch); err != nil {
		return protocol.ThresholdTimes{}, err
	}
	p, err := m.Transact(ctx, addr, protocol.CmdGetThresholdTimes, []byte{uint8(ch)})
	if err != nil {
		return protocol.ThresholdTimes{}, err
	}
	return protocol.DecodeThresholdTimes(p)
}

// ThresholdStates reads the above and below masks of all inputs.
func (m *Master) ThresholdStates(ctx context.Context, addr uint8) (protocol.ThresholdStates, error) {
	p, err := m.Transact(ctx, addr, protocol.CmdGetThresholdStates, nil)
	if err != nil {
		return protocol.ThresholdStates{}, err
	}
	return protocol.DecodeThresholdStates(p)
}

// BoardConfig reads the stored address and baud rate.
func (m *Master) BoardConfig(ctx context.Context, addr uint8) (protocol.BoardConfig, error) {
	p, err := m.Transact(ctx, addr, protocol.CmdGetConfig, nil)
	if err != nil {
		return protocol.BoardConfig{}, err
	}
	return protocol.DecodeBoardConfig(p)
}

// SetBoardConfig stores a new address and baud rate, effective after the
// board reboots. Use BroadcastAddress as addr to configure an unassigned
// board that is alone on the bus.
func (m *Master) SetBoardConfig(ctx context.Context, addr uint8, c protocol.BoardConfig) error {
	if !c.Valid() {
		return fmt.Errorf("invalid board config %+v", c)
	}
	if addr == protocol.BroadcastAddress {
		return m.Broadcast(ctx, protocol.CmdSetConfig, c.Append(nil))
	}
	_, err := m.Transact(ctx, addr, protocol.CmdSetConfig, c.Append(nil))
	return err
}

// Reboot restarts a board, or every board for BroadcastAddress.
func (m *Master) Reboot(ctx context.Context, addr uint8) error {
	if addr == protocol.BroadcastAddress {
		return m.Broadcast(ctx, protocol.CmdReboot, nil)
	}
	_, err := m.Transact(ctx, addr, protocol.CmdReboot, nil)
	return err
}
