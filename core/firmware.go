// Package core is the board firmware: the command interpreter, the input
// and output banks and the cooperative control loop that drives them
// through the hardware capability interfaces.
package core

import (
	"context"
	"time"

	"iox16/protocol"
)

// AddressFromSettings makes the firmware use the persisted address.
const AddressFromSettings = -1

// Config holds the firmware tuning. Times are microseconds.
type Config struct {
	Address          int    // AddressFromSettings or a fixed address 0..255
	InterByteTimeout uint32 // gap that abandons a partial frame
	SamplePeriod     uint32 // input sampling cadence
	Turnaround       uint32 // settle time after enabling the transmitter
	Preamble         int    // 0xFF bytes sent ahead of each response
	MaxDrain         int    // received bytes consumed per Poll
	LEDPeriod        uint32 // heartbeat half period, 0 disables
	RebootDelay      uint32 // delay between REBOOT response and restart
	Name             string // GET_INFO board name, at most 32 bytes
}

// DefaultConfig returns the configuration of the reference board.
func DefaultConfig() Config {
	return Config{
		Address:          AddressFromSettings,
		InterByteTimeout: protocol.DefaultInterByteTimeout,
		SamplePeriod:     1000,
		Turnaround:       0,
		Preamble:         0,
		MaxDrain:         protocol.FrameMax,
		LEDPeriod:        500000,
		RebootDelay:      1000,
		Name:             "Pico I∴O×16 v1.0",
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.InterByteTimeout == 0 {
		c.InterByteTimeout = d.InterByteTimeout
	}
	if c.SamplePeriod == 0 {
		c.SamplePeriod = d.SamplePeriod
	}
	if c.MaxDrain <= 0 {
		c.MaxDrain = d.MaxDrain
	}
	if c.RebootDelay == 0 {
		c.RebootDelay = d.RebootDelay
	}
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Preamble < 0 {
		c.Preamble = 0
	}
	if c.Preamble > protocol.ScratchSize-protocol.FrameMax {
		c.Preamble = protocol.ScratchSize - protocol.FrameMax
	}
}

// txPhase tracks a response through the half-duplex turnaround.
type txPhase uint8

const (
	txIdle       txPhase = iota
	txTurnaround         // transmitter enabled, waiting for the line to settle
	txSending            // bytes written, waiting for the last stop bit
)

// heldSize bounds the requests queued while a response owns the line.
const heldSize = 256

// FirmwareStats counts loop level events.
type FirmwareStats struct {
	Polls        uint32
	BytesRead    uint32
	EchoBytes    uint32 // own bytes read back while transmitting
	HeldDropped  uint32 // received bytes lost while a response was in flight
	Responses    uint32
	LineErrors   uint32
	SampleErrors uint32
}

// Firmware is one board instance. It is driven by Poll from a single
// goroutine and never blocks.
type Firmware struct {
	cfg      Config
	board    Board
	freq     FrequencyDriver
	rebooter Rebooter
	led      StatusLED
	storage  Storage

	settings      Settings
	settingsFound bool
	activeConfig  protocol.BoardConfig
	configPending bool
	address       uint8

	decoder  *protocol.Decoder
	registry *CommandRegistry
	interp   *Interpreter
	inputs   *InputBank
	outputs  *OutputBank

	sched       Scheduler
	sampleTimer Timer
	ledTimer    Timer
	rebootTimer Timer

	now    protocol.Ticks
	uptime Uptime

	direction     Direction
	tx            txPhase
	txStart       protocol.Ticks
	txBuf         *protocol.ScratchOutput
	echo          []byte // bytes on the wire that may read back
	echoPos       int
	held          *protocol.FifoBuffer
	rebootPending bool
	ledOn         bool

	raw   [NumInputs]uint16
	stats FirmwareStats
}

// New creates the firmware for a board. Settings are loaded from storage;
// a nil storage keeps them in memory only.
func New(board Board, storage Storage, cfg Config) *Firmware {
	cfg.applyDefaults()
	if storage == nil {
		storage = &MemoryStorage{}
	}

	f := &Firmware{
		cfg:      cfg,
		board:    board,
		storage:  storage,
		decoder:  protocol.NewDecoder(cfg.InterByteTimeout),
		registry: NewCommandRegistry(),
		outputs:  NewOutputBank(),
		txBuf:    protocol.NewScratchOutput(),
		held:     protocol.NewFifoBuffer(heldSize),
	}
	f.freq, _ = board.(FrequencyDriver)
	f.rebooter, _ = board.(Rebooter)
	f.led, _ = board.(StatusLED)

	settings, found, err := LoadSettings(storage)
	if err != nil {
		DebugPrintln("[FW] settings load failed: " + err.Error())
	}
	f.settings = settings
	f.settingsFound = found

	f.activeConfig = settings.Config
	if cfg.Address >= 0 && cfg.Address <= 0xFF {
		f.activeConfig.Address = uint8(cfg.Address)
	}
	f.address = f.activeConfig.Address

	f.now = board.Now()
	f.uptime.Update(f.now)
	f.inputs = NewInputBank(&f.settings, board.InputFullScale(), f.uptime.Micros())
	f.interp = NewInterpreter(f.address, f.registry)
	f.registerCommands()

	f.board.SetDirection(Receive)
	f.direction = Receive

	f.sampleTimer = Timer{WakeTime: f.now, Handler: f.sampleEvent}
	f.sched.Schedule(&f.sampleTimer)
	if f.led != nil && cfg.LEDPeriod > 0 {
		f.ledTimer = Timer{WakeTime: f.now, Handler: f.ledEvent}
		f.sched.Schedule(&f.ledTimer)
	}
	f.rebootTimer = Timer{Handler: f.rebootEvent}

	DebugPrintln("[FW] address " + itoa(int(f.address)) + ", settings found: " + boolString(found))
	return f
}

// Poll runs one non-blocking pass of the control loop.
func (f *Firmware) Poll() {
	f.now = f.board.Now()
	f.uptime.Update(f.now)
	f.stats.Polls++

	// 1. a response in flight owns the line
	f.serviceTransmit()

	// 2. receive and interpret
	if f.tx == txIdle {
		f.drain()
		f.serviceTransmit()
	}

	// 3. periodic work
	f.sched.Dispatch(f.now)

	// 4. outputs
	if f.outputs.Dirty() {
		if err := f.outputs.Apply(f.board, f.freq); err != nil {
			RecordEvent(EvtOutputFault, 0, uint32(f.now), 0)
			DebugPrintln("[FW] output update failed: " + err.Error())
		}
	}

	// 5. abandon stale partial frames
	if f.decoder.Expire(f.now) {
		RecordEvent(EvtTimeout, 0, uint32(f.now), 0)
	}
}

// Run polls until ctx is done. Used by hosted boards; TinyGo mains call
// Poll from their own loop.
func (f *Firmware) Run(ctx context.Context, idle time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		f.Poll()
		if idle > 0 {
			time.Sleep(idle)
		}
	}
}

func (f *Firmware) drain() {
	for i := 0; i < f.cfg.MaxDrain; i++ {
		b, ok := f.nextByte()
		if !ok {
			return
		}

		switch f.decoder.Feed(b, f.now) {
		case protocol.StateComplete:
			frame := f.decoder.Frame()
			resp, send := f.interp.Handle(frame)
			if send {
				f.beginTransmit(resp)
				return
			}
			if f.rebootPending {
				f.scheduleReboot()
			}
		case protocol.StateError:
			f.decoderError()
		}
	}
}

// nextByte returns the bytes held during the last response before new
// ones from the line.
func (f *Firmware) nextByte() (byte, bool) {
	if b, ok := f.held.TryReadByte(); ok {
		return b, true
	}
	b, ok := f.board.TryReadByte()
	if ok {
		f.stats.BytesRead++
	}
	return b, ok
}

// hold moves everything waiting on the line into the held queue. Bytes
// there arrived before the response was written and are never echo.
func (f *Firmware) hold() {
	for {
		b, ok := f.board.TryReadByte()
		if !ok {
			return
		}
		f.stats.BytesRead++
		if f.held.Write([]byte{b}) == 0 {
			f.stats.HeldDropped++
		}
	}
}

// discardEcho drops bytes that read back as the response being sent. The
// first byte that differs ends echo matching; it and everything after it
// are held for the decoder.
func (f *Firmware) discardEcho() {
	for f.echoPos < len(f.echo) {
		b, ok := f.board.TryReadByte()
		if !ok {
			return
		}
		if b == f.echo[f.echoPos] {
			f.echoPos++
			f.stats.EchoBytes++
			continue
		}
		f.echoPos = len(f.echo)
		f.stats.BytesRead++
		if f.held.Write([]byte{b}) == 0 {
			f.stats.HeldDropped++
		}
	}
	f.hold()
}

func (f *Firmware) decoderError() {
	err := f.decoder.Err()
	if err == protocol.ErrBadCRC {
		RecordEvent(EvtCRCError, 0, uint32(f.now), 0)
	} else {
		RecordEvent(EvtOversize, 0, uint32(f.now), 0)
	}
	DebugPrintln("[BUS] frame dropped: " + err.Error())
}

func (f *Firmware) beginTransmit(resp protocol.Frame) {
	f.txBuf.Reset()
	for i := 0; i < f.cfg.Preamble; i++ {
		f.txBuf.Output([]byte{protocol.PreambleByte})
	}
	if err := resp.EncodeTo(f.txBuf); err != nil {
		// handlers never build oversize payloads; drop rather than answer garbage
		DebugPrintln("[FW] response encode failed: " + err.Error())
		return
	}
	f.board.SetDirection(Transmit)
	f.direction = Transmit
	f.tx = txTurnaround
	f.txStart = f.now
	RecordEvent(EvtResponse, resp.Command, uint32(f.now), uint32(len(resp.Payload)))
}

func (f *Firmware) serviceTransmit() {
	switch f.tx {
	case txTurnaround:
		f.hold()
		if protocol.Elapsed(f.now, f.txStart) < f.cfg.Turnaround {
			return
		}
		if err := f.board.WriteBytes(f.txBuf.Result()); err != nil {
			f.stats.LineErrors++
			RecordEvent(EvtLineError, 0, uint32(f.now), 0)
			DebugPrintln("[BUS] write failed: " + err.Error())
			f.endTransmit()
			return
		}
		f.echo = f.txBuf.Result()
		f.echoPos = 0
		f.tx = txSending
		fallthrough

	case txSending:
		f.discardEcho()
		if !f.board.TransmitComplete() {
			return
		}
		f.stats.Responses++
		f.endTransmit()
	}
}

func (f *Firmware) endTransmit() {
	f.board.SetDirection(Receive)
	f.direction = Receive
	f.tx = txIdle
	f.echo = nil
	f.txBuf.Reset()
	if f.rebootPending {
		f.scheduleReboot()
	}
}

func (f *Firmware) scheduleReboot() {
	f.rebootPending = false
	f.rebootTimer.WakeTime = f.now.Add(f.cfg.RebootDelay)
	f.sched.Schedule(&f.rebootTimer)
}

func (f *Firmware) sampleEvent(t *Timer) uint8 {
	var stale uint16
	err := f.board.SampleInputs(&f.raw)
	if err != nil {
		f.stats.SampleErrors++
		se, partial := err.(*StaleChannelsError)
		if !partial {
			f.inputs.MarkStale()
			RecordEvent(EvtSampleFail, 0, uint32(f.now), 0xFFFF)
			DebugPrintln("[ADC] sampling failed: " + err.Error())
			return f.nextSample(t)
		}
		stale = se.Mask
		RecordEvent(EvtSampleFail, 0, uint32(f.now), uint32(stale))
	}
	f.inputs.Update(&f.raw, stale, f.now, f.uptime.Micros())
	return f.nextSample(t)
}

func (f *Firmware) nextSample(t *Timer) uint8 {
	t.WakeTime = t.WakeTime.Add(f.cfg.SamplePeriod)
	if protocol.Reached(f.now, t.WakeTime) {
		// fell behind, skip the missed samples
		t.WakeTime = f.now.Add(f.cfg.SamplePeriod)
	}
	return SF_RESCHEDULE
}

func (f *Firmware) ledEvent(t *Timer) uint8 {
	f.ledOn = !f.ledOn
	f.led.SetLED(f.ledOn)
	t.WakeTime = f.now.Add(f.cfg.LEDPeriod)
	return SF_RESCHEDULE
}

func (f *Firmware) rebootEvent(t *Timer) uint8 {
	RecordEvent(EvtReboot, 0, uint32(f.now), 0)
	DebugPrintln("[FW] rebooting")
	if f.rebooter != nil {
		f.rebooter.Reboot()
	}
	return SF_DONE
}

// Address returns the address the board answers to.
func (f *Firmware) Address() uint8 {
	return f.address
}

// ActiveConfig returns the configuration the board booted with.
func (f *Firmware) ActiveConfig() protocol.BoardConfig {
	return f.activeConfig
}

// Direction returns the current transceiver direction.
func (f *Firmware) Direction() Direction {
	return f.direction
}

// Inputs returns the input bank.
func (f *Firmware) Inputs() *InputBank {
	return f.inputs
}

// Outputs returns the output bank.
func (f *Firmware) Outputs() *OutputBank {
	return f.outputs
}

// Settings returns a copy of the current settings.
func (f *Firmware) Settings() Settings {
	return f.settings
}

// Stats returns the loop counters.
func (f *Firmware) Stats() FirmwareStats {
	return f.stats
}

// DecoderStats returns the frame decoder counters.
func (f *Firmware) DecoderStats() protocol.DecoderStats {
	return f.decoder.Stats()
}

// InterpreterStats returns the command interpreter counters.
func (f *Firmware) InterpreterStats() InterpreterStats {
	return f.interp.Stats()
}

// Uptime returns the board uptime in microseconds.
func (f *Firmware) Uptime() uint64 {
	return f.uptime.Micros()
}

func boolString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
