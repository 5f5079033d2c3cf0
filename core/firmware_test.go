package core_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"iox16/core"
	"iox16/host/sim"
	"iox16/protocol"
)

type rig struct {
	t       *testing.T
	board   *sim.Board
	storage *core.MemoryStorage
	fw      *core.Firmware
}

func newRig(t *testing.T, address int, tune func(*core.Config)) *rig {
	t.Helper()
	r := &rig{t: t, board: sim.New(), storage: &core.MemoryStorage{}}
	cfg := core.DefaultConfig()
	cfg.Address = address
	if tune != nil {
		tune(&cfg)
	}
	r.fw = core.New(r.board, r.storage, cfg)
	r.fw.Poll() // first sample
	return r
}

// send encodes a request, runs one Poll and returns the frames transmitted
// in response.
func (r *rig) send(addr, cmd uint8, payload []byte) []protocol.Frame {
	r.t.Helper()
	data, err := protocol.Frame{Address: addr, Command: cmd, Payload: payload}.Encode()
	if err != nil {
		r.t.Fatalf("Encode failed: %v", err)
	}
	r.board.Inject(data)
	r.board.Advance(10)
	r.fw.Poll()
	return decodeAll(r.t, r.board.Transmitted())
}

// request expects exactly one success response and returns its payload.
func (r *rig) request(cmd uint8, payload []byte) []byte {
	r.t.Helper()
	frames := r.send(r.fw.Address(), cmd, payload)
	if len(frames) != 1 {
		r.t.Fatalf("Expected 1 response to %s, got %d", protocol.CommandName(cmd), len(frames))
	}
	f := frames[0]
	if f.IsError() {
		r.t.Fatalf("%s failed with %s", protocol.CommandName(cmd), protocol.ErrorCodeName(f.Payload[0]))
	}
	if f.Command != cmd|protocol.ResponseFlag {
		r.t.Fatalf("Expected command 0x%02X, got 0x%02X", cmd|protocol.ResponseFlag, f.Command)
	}
	return f.Payload
}

// requestError expects an error response and returns its code.
func (r *rig) requestError(cmd uint8, payload []byte) uint8 {
	r.t.Helper()
	frames := r.send(r.fw.Address(), cmd, payload)
	if len(frames) != 1 || !frames[0].IsError() {
		r.t.Fatalf("Expected 1 error response to 0x%02X, got %+v", cmd, frames)
	}
	if frames[0].Payload[1] != cmd {
		r.t.Errorf("Expected error for command 0x%02X, got 0x%02X", cmd, frames[0].Payload[1])
	}
	return frames[0].Payload[0]
}

// sample advances past one sampling period and polls.
func (r *rig) sample() {
	r.board.Advance(core.DefaultConfig().SamplePeriod)
	r.fw.Poll()
}

func decodeAll(t *testing.T, data []byte) []protocol.Frame {
	t.Helper()
	d := protocol.NewDecoder(0)
	in := protocol.NewSliceInputBuffer(data)
	var out []protocol.Frame
	for {
		f, ok := d.Receive(in, 0)
		if !ok {
			break
		}
		out = append(out, f)
	}
	if d.Stats().CRCErrors != 0 {
		t.Errorf("Expected clean response frames, got %d CRC errors", d.Stats().CRCErrors)
	}
	return out
}

func dutyPayload(duty []uint16) []byte {
	return protocol.AppendUint16s(nil, duty)
}

func TestFirmwareReadInputs(t *testing.T) {
	r := newRig(t, 5, nil)
	var raw [core.NumInputs]uint16
	raw[0] = sim.DefaultFullScale
	raw[1] = 2048
	raw[15] = 0
	r.board.SetInputs(raw)
	r.sample()

	frames := r.send(5, protocol.CmdReadInputs, nil)
	if len(frames) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(frames))
	}
	f := frames[0]
	if f.Address != 5 {
		t.Errorf("Expected response from address 5, got %d", f.Address)
	}
	if f.Command != protocol.CmdReadInputs|protocol.ResponseFlag {
		t.Errorf("Expected command 0x83, got 0x%02X", f.Command)
	}
	if len(f.Payload) != protocol.InputsSize {
		t.Fatalf("Expected 32 byte payload, got %d", len(f.Payload))
	}

	var values [core.NumInputs]int16
	if err := protocol.DecodeInt16s(values[:], f.Payload); err != nil {
		t.Fatal(err)
	}
	if values[0] != 3300 {
		t.Errorf("Expected 3300 mV on channel 0, got %d", values[0])
	}
	if values[1] != 1650 {
		t.Errorf("Expected 1650 mV on channel 1, got %d", values[1])
	}
	if values[15] != 0 {
		t.Errorf("Expected 0 mV on channel 15, got %d", values[15])
	}
	if r.board.Direction() != core.Receive {
		t.Error("Expected line back in receive after the response")
	}
}

func TestFirmwareIgnoresOtherAddress(t *testing.T) {
	r := newRig(t, 5, nil)

	frames := r.send(9, protocol.CmdReadInputs, nil)
	if len(frames) != 0 {
		t.Errorf("Expected no response for address 9, got %d", len(frames))
	}
	if n := r.board.DirectionChanges(); n != 0 {
		t.Errorf("Expected transceiver untouched, got %d switches", n)
	}
	if s := r.fw.InterpreterStats(); s.Foreign != 1 {
		t.Errorf("Expected 1 foreign frame, got %d", s.Foreign)
	}
}

func TestFirmwareSetOutputsBadLength(t *testing.T) {
	r := newRig(t, 5, nil)

	seventeen := make([]uint16, 17)
	for i := range seventeen {
		seventeen[i] = 0x1000
	}
	if code := r.requestError(protocol.CmdSetOutputs, dutyPayload(seventeen)); code != protocol.ErrCodeBadLength {
		t.Errorf("Expected bad length, got %s", protocol.ErrorCodeName(code))
	}
	if d := r.fw.Outputs().Channel(0).Duty; d != 0 {
		t.Errorf("Expected outputs unchanged, got 0x%X", d)
	}
}

func TestFirmwareSetOutputsInvalidThenValid(t *testing.T) {
	r := newRig(t, 5, nil)

	duty := make([]uint16, core.NumOutputs)
	for i := range duty {
		duty[i] = uint16(i) * 0x100
	}
	duty[4] = protocol.MaxDuty + 1
	if code := r.requestError(protocol.CmdSetOutputs, dutyPayload(duty)); code != protocol.ErrCodeInvalidValue {
		t.Errorf("Expected invalid value, got %s", protocol.ErrorCodeName(code))
	}
	if got := r.board.Duty(); got[1] != 0 {
		t.Errorf("Expected hardware unchanged, got 0x%X on channel 1", got[1])
	}

	duty[4] = protocol.MaxDuty
	r.request(protocol.CmdSetOutputs, dutyPayload(duty))

	got := r.board.Duty()
	for i := range duty {
		if got[i] != duty[i] {
			t.Errorf("Channel %d: expected 0x%X, got 0x%X", i, duty[i], got[i])
		}
	}

	state, err := protocol.DecodeOutputState(r.request(protocol.CmdGetOutputs, nil))
	if err != nil {
		t.Fatal(err)
	}
	if state.Duty[4] != protocol.MaxDuty {
		t.Errorf("Expected GET_OUTPUTS to report MaxDuty, got 0x%X", state.Duty[4])
	}
}

func TestFirmwareSetOutputsIdempotent(t *testing.T) {
	r := newRig(t, 5, nil)
	duty := make([]uint16, core.NumOutputs)
	duty[0] = 0x2000

	first := r.request(protocol.CmdSetOutputs, dutyPayload(duty))
	writes := r.board.OutputWrites()
	second := r.request(protocol.CmdSetOutputs, dutyPayload(duty))

	if len(first) != 0 || len(second) != 0 {
		t.Errorf("Expected empty acknowledgements, got %v and %v", first, second)
	}
	if r.board.OutputWrites() != writes {
		t.Errorf("Expected no hardware write for an unchanged state")
	}
	if r.board.Duty()[0] != 0x2000 {
		t.Errorf("Expected duty 0x2000, got 0x%X", r.board.Duty()[0])
	}
}

func TestFirmwareBroadcast(t *testing.T) {
	r := newRig(t, 5, nil)
	duty := make([]uint16, core.NumOutputs)
	duty[7] = 0x4000

	frames := r.send(protocol.BroadcastAddress, protocol.CmdSetOutputs, dutyPayload(duty))
	if len(frames) != 0 {
		t.Errorf("Expected broadcast to stay unanswered, got %d frames", len(frames))
	}
	if r.board.Duty()[7] != 0x4000 {
		t.Errorf("Expected broadcast to set channel 7, got 0x%X", r.board.Duty()[7])
	}
}

func TestFirmwareInterByteTimeout(t *testing.T) {
	r := newRig(t, 5, nil)
	data, _ := protocol.Frame{Address: 5, Command: protocol.CmdPing}.Encode()

	r.board.Inject(data[:3])
	r.fw.Poll()
	r.board.Advance(protocol.DefaultInterByteTimeout + 1)
	r.fw.Poll()

	if n := r.fw.DecoderStats().Timeouts; n != 1 {
		t.Errorf("Expected 1 timeout, got %d", n)
	}
	if len(r.board.Transmitted()) != 0 {
		t.Error("Expected nothing transmitted for a partial frame")
	}

	r.request(protocol.CmdPing, nil)
}

func TestFirmwareCorruptFrame(t *testing.T) {
	r := newRig(t, 5, nil)
	data, _ := protocol.Frame{Address: 5, Command: protocol.CmdPing}.Encode()
	data[len(data)-1] ^= 0x40

	r.board.Inject(data)
	r.fw.Poll()
	if len(r.board.Transmitted()) != 0 {
		t.Error("Expected corrupt frame to stay unanswered")
	}

	st, err := protocol.DecodeStatus(r.request(protocol.CmdGetStatus, nil))
	if err != nil {
		t.Fatal(err)
	}
	if st.CRCErrors != 1 {
		t.Errorf("Expected 1 CRC error in status, got %d", st.CRCErrors)
	}
}

func TestFirmwareStatusAndInfo(t *testing.T) {
	r := newRig(t, 5, nil)
	r.board.Advance(2000000)
	r.fw.Poll()

	st, err := protocol.DecodeStatus(r.request(protocol.CmdGetStatus, nil))
	if err != nil {
		t.Fatal(err)
	}
	if st.Address != 5 || st.ProtocolVersion != protocol.ProtocolVersion {
		t.Errorf("Unexpected status %+v", st)
	}
	if st.Flags&protocol.StatusDefaults == 0 {
		t.Error("Expected defaults flag on a blank board")
	}
	if st.Uptime != 2 {
		t.Errorf("Expected uptime 2 s, got %d", st.Uptime)
	}

	info, err := protocol.DecodeInfo(r.request(protocol.CmdGetInfo, nil))
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != core.DefaultConfig().Name {
		t.Errorf("Expected name %q, got %q", core.DefaultConfig().Name, info.Name)
	}
	if info.Version != [3]uint8{protocol.VersionMajor, protocol.VersionMinor, protocol.VersionPatch} {
		t.Errorf("Unexpected version %v", info.Version)
	}
}

func TestFirmwareStaleInputs(t *testing.T) {
	r := newRig(t, 5, nil)
	r.board.SetInput(2, sim.DefaultFullScale)
	r.sample()

	r.board.FailSampling(errors.New("adc timeout"))
	r.sample()

	st, _ := protocol.DecodeStatus(r.request(protocol.CmdGetStatus, nil))
	if st.Flags&protocol.StatusStale == 0 || st.StaleMask != 0xFFFF {
		t.Errorf("Expected all inputs stale, got flags 0x%02X mask 0x%04X", st.Flags, st.StaleMask)
	}

	var values [core.NumInputs]int16
	_ = protocol.DecodeInt16s(values[:], r.request(protocol.CmdReadInputs, nil))
	if values[2] != 3300 {
		t.Errorf("Expected last good value 3300, got %d", values[2])
	}

	// partial failure
	r.board.FailSampling(nil)
	r.board.FailChannels(1 << 9)
	r.sample()
	st, _ = protocol.DecodeStatus(r.request(protocol.CmdGetStatus, nil))
	if st.StaleMask != 1<<9 {
		t.Errorf("Expected stale mask 0x0200, got 0x%04X", st.StaleMask)
	}
}

func TestFirmwareOutputFault(t *testing.T) {
	r := newRig(t, 5, nil)
	r.board.FailOutputs(errors.New("i2c nack"))

	duty := make([]uint16, core.NumOutputs)
	duty[0] = 0x100
	r.request(protocol.CmdSetOutputs, dutyPayload(duty))

	st, _ := protocol.DecodeStatus(r.request(protocol.CmdGetStatus, nil))
	if st.Flags&protocol.StatusOutputFault == 0 || st.OutputFaults == 0 {
		t.Errorf("Expected output fault, got flags 0x%02X faults %d", st.Flags, st.OutputFaults)
	}

	r.board.FailOutputs(nil)
	r.fw.Poll()
	if r.board.Duty()[0] != 0x100 {
		t.Errorf("Expected retried write, got 0x%X", r.board.Duty()[0])
	}
}

func TestFirmwareFrequencies(t *testing.T) {
	r := newRig(t, 5, nil)
	hz := make([]uint16, core.NumOutputGroups)
	for i := range hz {
		hz[i] = 200 * uint16(i+1)
	}
	r.request(protocol.CmdSetFrequencies, protocol.AppendUint16s(nil, hz))
	if got := r.board.Frequencies(); got[7] != 1600 {
		t.Errorf("Expected 1600 Hz on group 7, got %d", got[7])
	}

	hz[0] = 60000
	if code := r.requestError(protocol.CmdSetFrequencies, protocol.AppendUint16s(nil, hz)); code != protocol.ErrCodeInvalidValue {
		t.Errorf("Expected invalid value, got %s", protocol.ErrorCodeName(code))
	}
}

func TestFirmwareUnknownCommand(t *testing.T) {
	r := newRig(t, 5, nil)
	for _, cmd := range []uint8{0x12, protocol.CmdReservedFirst, protocol.CmdReservedLast} {
		if code := r.requestError(cmd, nil); code != protocol.ErrCodeUnknownCommand {
			t.Errorf("Command 0x%02X: expected unknown command, got %s", cmd, protocol.ErrorCodeName(code))
		}
	}
}

func TestFirmwareCalibration(t *testing.T) {
	r := newRig(t, 5, nil)
	cal := protocol.Calibration{Multiply: 1, Divide: 2, Add: 10, Min: 0, Max: 3000}
	r.request(protocol.CmdSetCalibration, cal.Append([]byte{3}))

	got, err := protocol.DecodeCalibration(r.request(protocol.CmdGetCalibration, []byte{3}))
	if err != nil {
		t.Fatal(err)
	}
	if got != cal {
		t.Errorf("Expected %+v, got %+v", cal, got)
	}

	r.board.SetInput(3, sim.DefaultFullScale)
	r.sample()
	var values [core.NumInputs]int16
	_ = protocol.DecodeInt16s(values[:], r.request(protocol.CmdReadInputs, nil))
	if values[3] != 1660 {
		t.Errorf("Expected calibrated 1660, got %d", values[3])
	}

	stored, found, _ := core.LoadSettings(r.storage)
	if !found || stored.Calibrations[3] != cal {
		t.Error("Expected calibration persisted")
	}

	bad := cal
	bad.Divide = 0
	if code := r.requestError(protocol.CmdSetCalibration, bad.Append([]byte{3})); code != protocol.ErrCodeInvalidValue {
		t.Errorf("Expected invalid value for divide 0, got %s", protocol.ErrorCodeName(code))
	}
	if code := r.requestError(protocol.CmdGetCalibration, []byte{16}); code != protocol.ErrCodeInvalidValue {
		t.Errorf("Expected invalid value for channel 16, got %s", protocol.ErrorCodeName(code))
	}
}

func TestFirmwareStorageFailure(t *testing.T) {
	r := newRig(t, 5, nil)
	r.storage.FailWith = errors.New("flash busy")

	cal := protocol.Calibration{Multiply: 5, Divide: 1, Min: -100, Max: 100}
	if code := r.requestError(protocol.CmdSetCalibration, cal.Append([]byte{0})); code != protocol.ErrCodeStorage {
		t.Errorf("Expected storage error, got %s", protocol.ErrorCodeName(code))
	}
	if got := r.fw.Settings().Calibrations[0]; got != protocol.DefaultCalibration() {
		t.Errorf("Expected calibration unchanged, got %+v", got)
	}
}

func TestFirmwareThresholds(t *testing.T) {
	r := newRig(t, 5, nil)
	th := protocol.Threshold{High: 1000, Low: 100}
	r.request(protocol.CmdSetThreshold, th.Append([]byte{0}))

	got, _ := protocol.DecodeThreshold(r.request(protocol.CmdGetThreshold, []byte{0}))
	if got != th {
		t.Errorf("Expected %+v, got %+v", th, got)
	}

	r.board.SetInput(0, sim.DefaultFullScale)
	r.sample()
	r.sample()

	states, _ := protocol.DecodeThresholdStates(r.request(protocol.CmdGetThresholdStates, nil))
	if states.Above&1 == 0 || states.Below&1 != 0 {
		t.Errorf("Expected channel 0 above, got %+v", states)
	}

	times, _ := protocol.DecodeThresholdTimes(r.request(protocol.CmdGetThresholdTimes, []byte{0}))
	if times.High == 0 || times.High > times.Now {
		t.Errorf("Expected a rise before now, got %+v", times)
	}
}

func TestFirmwareAveragesAndStats(t *testing.T) {
	r := newRig(t, 5, nil)
	_ = r.request(protocol.CmdReadAverages, nil) // drop the start-up sample
	_ = r.request(protocol.CmdReadStats, []byte{1})

	for _, raw := range []uint16{0, sim.DefaultFullScale} {
		r.board.SetInput(1, raw)
		r.sample()
	}

	stats, err := protocol.DecodeStats(r.request(protocol.CmdReadStats, []byte{1}))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 2 || stats.Min != 0 || stats.Max != 3300 || stats.Sum != 3300 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	var avg [core.NumInputs]int16
	_ = protocol.DecodeInt16s(avg[:], r.request(protocol.CmdReadAverages, nil))
	if avg[1] != 1650 {
		t.Errorf("Expected average 1650, got %d", avg[1])
	}
}

func TestFirmwareSetConfig(t *testing.T) {
	r := newRig(t, core.AddressFromSettings, nil)
	if r.fw.Address() != protocol.BroadcastAddress {
		t.Fatalf("Expected unassigned board, got address %d", r.fw.Address())
	}

	// an unassigned board answers to nothing but takes broadcasts
	cfg := protocol.BoardConfig{Address: 7, Baud: 57600}
	r.send(protocol.BroadcastAddress, protocol.CmdSetConfig, cfg.Append(nil))

	if r.fw.Address() != protocol.BroadcastAddress {
		t.Error("Expected address change to wait for a reboot")
	}

	restarted := core.New(r.board, r.storage, core.DefaultConfig())
	if restarted.Address() != 7 {
		t.Errorf("Expected address 7 after restart, got %d", restarted.Address())
	}
	if restarted.ActiveConfig().Baud != 57600 {
		t.Errorf("Expected baud 57600 after restart, got %d", restarted.ActiveConfig().Baud)
	}
}

func TestFirmwareConfigPending(t *testing.T) {
	r := newRig(t, 5, nil)
	cfg := protocol.BoardConfig{Address: 6, Baud: protocol.DefaultBaud}
	r.request(protocol.CmdSetConfig, cfg.Append(nil))

	got, _ := protocol.DecodeBoardConfig(r.request(protocol.CmdGetConfig, nil))
	if got != cfg {
		t.Errorf("Expected stored config %+v, got %+v", cfg, got)
	}
	st, _ := protocol.DecodeStatus(r.request(protocol.CmdGetStatus, nil))
	if st.Flags&protocol.StatusConfigPending == 0 {
		t.Error("Expected config pending flag")
	}
	if st.Flags&protocol.StatusDefaults != 0 {
		t.Error("Expected defaults flag cleared once settings are stored")
	}

	bad := protocol.BoardConfig{Address: 6, Baud: 300}
	if code := r.requestError(protocol.CmdSetConfig, bad.Append(nil)); code != protocol.ErrCodeInvalidValue {
		t.Errorf("Expected invalid value for 300 baud, got %s", protocol.ErrorCodeName(code))
	}
}

func TestFirmwareReboot(t *testing.T) {
	r := newRig(t, 5, nil)
	r.board.SetByteTime(100)

	data, _ := protocol.Frame{Address: 5, Command: protocol.CmdReboot}.Encode()
	r.board.Inject(data)
	r.fw.Poll()
	if len(decodeAll(t, r.board.Transmitted())) != 1 {
		t.Fatal("Expected a response to REBOOT")
	}
	if r.board.Direction() != core.Transmit {
		t.Fatal("Expected the response still on the wire")
	}

	r.board.Advance(protocol.FrameMin * 100)
	r.fw.Poll()
	if r.board.Reboots() != 0 {
		t.Error("Expected reboot to wait for the reboot delay")
	}

	r.board.Advance(core.DefaultConfig().RebootDelay)
	r.fw.Poll()
	if r.board.Reboots() != 1 {
		t.Errorf("Expected 1 reboot, got %d", r.board.Reboots())
	}
}

func TestFirmwareTurnaround(t *testing.T) {
	r := newRig(t, 5, func(c *core.Config) {
		c.Turnaround = 50
		c.Preamble = 2
	})

	data, _ := protocol.Frame{Address: 5, Command: protocol.CmdPing}.Encode()
	r.board.Inject(data)
	r.fw.Poll()
	if r.board.Direction() != core.Transmit {
		t.Error("Expected transmitter enabled")
	}
	if len(r.board.Transmitted()) != 0 {
		t.Error("Expected no bytes before the turnaround elapsed")
	}

	r.board.Advance(50)
	r.fw.Poll()
	out := r.board.Transmitted()
	if len(out) != 2+protocol.FrameMin || out[0] != protocol.PreambleByte || out[1] != protocol.PreambleByte {
		t.Errorf("Expected preamble and frame, got % X", out)
	}
	if r.board.Direction() != core.Receive {
		t.Error("Expected receive after transmit")
	}
}

func TestFirmwareDiscardsEcho(t *testing.T) {
	r := newRig(t, 5, nil)
	r.board.SetEcho(true)

	r.request(protocol.CmdPing, nil)
	r.request(protocol.CmdPing, nil)

	if s := r.fw.Stats(); s.EchoBytes != 2*protocol.FrameMin {
		t.Errorf("Expected %d echo bytes, got %d", 2*protocol.FrameMin, s.EchoBytes)
	}
	if s := r.fw.InterpreterStats(); s.Responses != 0 {
		t.Errorf("Expected echo never decoded, got %d responses", s.Responses)
	}
}

func TestFirmwareBackToBackRequests(t *testing.T) {
	r := newRig(t, 5, nil)
	a, _ := protocol.Frame{Address: 5, Command: protocol.CmdPing}.Encode()
	b, _ := protocol.Frame{Address: 5, Command: protocol.CmdGetConfig}.Encode()
	r.board.Inject(append(a, b...))

	r.fw.Poll()
	r.fw.Poll()
	frames := decodeAll(t, r.board.Transmitted())
	if len(frames) != 2 {
		t.Fatalf("Expected 2 responses, got %d", len(frames))
	}
	if frames[0].Command != protocol.CmdPing|protocol.ResponseFlag || frames[1].Command != protocol.CmdGetConfig|protocol.ResponseFlag {
		t.Errorf("Expected responses in request order, got 0x%02X 0x%02X", frames[0].Command, frames[1].Command)
	}
}

func TestFirmwareHoldsRequestsDuringTurnaround(t *testing.T) {
	r := newRig(t, 5, func(c *core.Config) { c.Turnaround = 50 })
	a, _ := protocol.Frame{Address: 5, Command: protocol.CmdPing}.Encode()
	b, _ := protocol.Frame{Address: 5, Command: protocol.CmdGetConfig}.Encode()

	r.board.Inject(a)
	r.fw.Poll()
	r.board.Inject(b)
	r.fw.Poll()

	r.board.Advance(50)
	r.fw.Poll()
	r.board.Advance(50)
	r.fw.Poll()

	frames := decodeAll(t, r.board.Transmitted())
	if len(frames) != 2 {
		t.Fatalf("Expected 2 responses, got %d", len(frames))
	}
	if frames[1].Command != protocol.CmdGetConfig|protocol.ResponseFlag {
		t.Errorf("Expected GET_CONFIG response second, got 0x%02X", frames[1].Command)
	}
	if s := r.fw.Stats(); s.EchoBytes != 0 {
		t.Errorf("Expected no echo bytes, got %d", s.EchoBytes)
	}
}

func TestFirmwareEchoWithQueuedRequest(t *testing.T) {
	r := newRig(t, 5, nil)
	r.board.SetEcho(true)
	a, _ := protocol.Frame{Address: 5, Command: protocol.CmdPing}.Encode()
	b, _ := protocol.Frame{Address: 5, Command: protocol.CmdGetConfig}.Encode()
	r.board.Inject(append(a, b...))

	r.fw.Poll()
	r.fw.Poll()

	out := r.board.Transmitted()
	if frames := decodeAll(t, out); len(frames) != 2 {
		t.Fatalf("Expected 2 responses, got %d", len(frames))
	}
	if s := r.fw.Stats(); s.EchoBytes != uint32(len(out)) {
		t.Errorf("Expected %d echo bytes, got %d", len(out), s.EchoBytes)
	}
	if s := r.fw.InterpreterStats(); s.Handled != 2 || s.Responses != 0 {
		t.Errorf("Expected 2 handled requests and no responses seen, got %+v", s)
	}
}

func TestFirmwareIgnoresOwnResponse(t *testing.T) {
	r := newRig(t, 5, nil)
	data, _ := protocol.Frame{Address: 5, Command: protocol.CmdPing | protocol.ResponseFlag}.Encode()
	r.board.Inject(data)
	r.fw.Poll()

	if out := r.board.Transmitted(); len(out) != 0 {
		t.Errorf("Expected no answer to a response frame, got % X", out)
	}
	if s := r.fw.InterpreterStats(); s.Responses != 1 {
		t.Errorf("Expected 1 response seen, got %d", s.Responses)
	}
}

func TestFirmwareHeartbeat(t *testing.T) {
	r := newRig(t, 5, nil)
	on := r.board.LED()
	r.board.Advance(core.DefaultConfig().LEDPeriod)
	r.fw.Poll()
	if r.board.LED() == on {
		t.Error("Expected LED to toggle")
	}
}

func TestFirmwareStatusLayout(t *testing.T) {
	r := newRig(t, 0x21, nil)
	p := r.request(protocol.CmdGetStatus, nil)
	if len(p) != protocol.StatusSize {
		t.Fatalf("Expected %d byte status, got %d", protocol.StatusSize, len(p))
	}
	if p[4] != 0x21 {
		t.Errorf("Expected address at offset 4, got 0x%02X", p[4])
	}
	if up := binary.LittleEndian.Uint32(p[8:]); up != 0 {
		t.Errorf("Expected zero uptime, got %d", up)
	}
}
