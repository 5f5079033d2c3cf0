// Package sim provides an in-memory board that implements every hardware
// capability of core.Board. It backs the firmware tests and the simulate
// command of the host tool.
package sim

import (
	"errors"
	"sync"

	"iox16/core"
	"iox16/protocol"
)

// DefaultFullScale is the simulated converter resolution (12 bit).
const DefaultFullScale = 4095

// ErrWrongDirection is returned by WriteBytes while the transceiver receives.
var ErrWrongDirection = errors.New("write while transceiver is receiving")

// Board is a simulated I/O board. All methods are safe for concurrent use;
// the firmware polls it from one goroutine while tests or a bus master
// drive the other side.
type Board struct {
	mu sync.Mutex

	clock   core.Clock // nil for a manual clock
	now     protocol.Ticks
	rx      *protocol.FifoBuffer
	sink    func([]byte)
	written []byte

	direction  core.Direction
	dirChanges int
	byteTime   uint32
	txDoneAt   protocol.Ticks
	txBusy     bool
	echo       bool

	fullScale uint16
	inputs    [core.NumInputs]uint16
	sampleErr error
	staleMask uint16
	samples   int
	loopback  bool

	duty      [core.NumOutputs]uint16
	hz        [core.NumOutputGroups]uint16
	outputErr error
	writes    int

	led     bool
	reboots int
	onBoot  func()
}

// New creates a board with a manual clock starting at tick zero.
func New() *Board {
	return &Board{
		rx:        protocol.NewFifoBuffer(1024),
		fullScale: DefaultFullScale,
	}
}

// NewRealtime creates a board that reads the host monotonic clock.
func NewRealtime() *Board {
	b := New()
	b.clock = core.NewSystemClock()
	return b
}

// Advance moves the manual clock forward.
func (b *Board) Advance(us uint32) {
	b.mu.Lock()
	b.now = b.now.Add(us)
	b.mu.Unlock()
}

// SetTime sets the manual clock.
func (b *Board) SetTime(t protocol.Ticks) {
	b.mu.Lock()
	b.now = t
	b.mu.Unlock()
}

// Now implements core.Clock.
func (b *Board) Now() protocol.Ticks {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nowLocked()
}

func (b *Board) nowLocked() protocol.Ticks {
	if b.clock != nil {
		return b.clock.Now()
	}
	return b.now
}

// Line side

// Inject queues bytes as if they arrived from the bus. It returns the
// number of bytes accepted.
func (b *Board) Inject(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rx.Write(p)
}

// TryReadByte implements core.Line.
func (b *Board) TryReadByte() (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rx.TryReadByte()
}

// WriteBytes implements core.Line. Written bytes go to the attached bus, or
// are collected for Transmitted when the board is standalone.
func (b *Board) WriteBytes(p []byte) error {
	b.mu.Lock()
	if b.direction != core.Transmit {
		b.mu.Unlock()
		return ErrWrongDirection
	}
	b.txBusy = true
	b.txDoneAt = b.nowLocked().Add(uint32(len(p)) * b.byteTime)
	if b.echo {
		b.rx.Write(p)
	}
	sink := b.sink
	if sink == nil {
		b.written = append(b.written, p...)
	}
	b.mu.Unlock()

	if sink != nil {
		sink(p)
	}
	return nil
}

// SetDirection implements core.Line.
func (b *Board) SetDirection(d core.Direction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d != b.direction {
		b.dirChanges++
	}
	b.direction = d
}

// TransmitComplete implements core.Line.
func (b *Board) TransmitComplete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.txBusy {
		return true
	}
	if protocol.Reached(b.nowLocked(), b.txDoneAt) {
		b.txBusy = false
	}
	return !b.txBusy
}

// SetByteTime sets the simulated wire time per byte in microseconds.
func (b *Board) SetByteTime(us uint32) {
	b.mu.Lock()
	b.byteTime = us
	b.mu.Unlock()
}

// SetEcho makes transmitted bytes appear on the receive side, as on a
// transceiver whose receiver is never disabled.
func (b *Board) SetEcho(on bool) {
	b.mu.Lock()
	b.echo = on
	b.mu.Unlock()
}

// Transmitted returns and clears the bytes written by a standalone board.
func (b *Board) Transmitted() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.written
	b.written = nil
	return out
}

// Direction returns the transceiver direction.
func (b *Board) Direction() core.Direction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.direction
}

// DirectionChanges returns how often the transceiver was switched.
func (b *Board) DirectionChanges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirChanges
}

// Inputs

// SampleInputs implements core.InputSampler.
func (b *Board) SampleInputs(dst *[core.NumInputs]uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples++
	if b.sampleErr != nil {
		return b.sampleErr
	}
	if b.loopback {
		for i := range dst {
			dst[i] = uint16(uint32(b.duty[i]) * uint32(b.fullScale) / protocol.MaxDuty)
		}
	} else {
		*dst = b.inputs
	}
	if b.staleMask != 0 {
		return &core.StaleChannelsError{Mask: b.staleMask}
	}
	return nil
}

// InputFullScale implements core.InputSampler.
func (b *Board) InputFullScale() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fullScale
}

// SetFullScale changes the converter full scale count. It must be called
// before the firmware is created.
func (b *Board) SetFullScale(fs uint16) {
	b.mu.Lock()
	b.fullScale = fs
	b.mu.Unlock()
}

// SetInput sets the raw converter reading of one channel.
func (b *Board) SetInput(ch int, raw uint16) {
	b.mu.Lock()
	b.inputs[ch] = raw
	b.mu.Unlock()
}

// SetInputs sets all raw converter readings.
func (b *Board) SetInputs(raw [core.NumInputs]uint16) {
	b.mu.Lock()
	b.inputs = raw
	b.mu.Unlock()
}

// FailSampling makes every sampling attempt fail with err until cleared
// with nil.
func (b *Board) FailSampling(err error) {
	b.mu.Lock()
	b.sampleErr = err
	b.mu.Unlock()
}

// FailChannels reports the channels in mask as stale on every sample.
func (b *Board) FailChannels(mask uint16) {
	b.mu.Lock()
	b.staleMask = mask
	b.mu.Unlock()
}

// SetLoopback feeds every output duty back into the input of the same
// channel.
func (b *Board) SetLoopback(on bool) {
	b.mu.Lock()
	b.loopback = on
	b.mu.Unlock()
}

// Samples returns the number of sampling attempts.
func (b *Board) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// Outputs

// SetOutputs implements core.OutputDriver.
func (b *Board) SetOutputs(duty *[core.NumOutputs]uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.outputErr != nil {
		return b.outputErr
	}
	b.duty = *duty
	b.writes++
	return nil
}

// SetFrequencies implements core.FrequencyDriver.
func (b *Board) SetFrequencies(hz *[core.NumOutputGroups]uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.outputErr != nil {
		return b.outputErr
	}
	b.hz = *hz
	return nil
}

// FailOutputs makes every output update fail with err until cleared with nil.
func (b *Board) FailOutputs(err error) {
	b.mu.Lock()
	b.outputErr = err
	b.mu.Unlock()
}

// Duty returns the duty cycles last applied to the hardware.
func (b *Board) Duty() [core.NumOutputs]uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duty
}

// Frequencies returns the group frequencies last applied to the hardware.
func (b *Board) Frequencies() [core.NumOutputGroups]uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hz
}

// OutputWrites returns the number of successful duty updates.
func (b *Board) OutputWrites() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Misc

// SetLED implements core.StatusLED.
func (b *Board) SetLED(on bool) {
	b.mu.Lock()
	b.led = on
	b.mu.Unlock()
}

// LED returns the heartbeat LED state.
func (b *Board) LED() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.led
}

// Reboot implements core.Rebooter. The receive buffer is cleared and the
// OnReboot hook, if any, is called to restart the firmware.
func (b *Board) Reboot() {
	b.mu.Lock()
	b.reboots++
	b.rx.Reset()
	b.direction = core.Receive
	hook := b.onBoot
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// OnReboot installs a hook that runs after every Reboot.
func (b *Board) OnReboot(fn func()) {
	b.mu.Lock()
	b.onBoot = fn
	b.mu.Unlock()
}

// Reboots returns the number of reboot requests.
func (b *Board) Reboots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reboots
}

var (
	_ core.Board           = (*Board)(nil)
	_ core.FrequencyDriver = (*Board)(nil)
	_ core.Rebooter        = (*Board)(nil)
	_ core.StatusLED       = (*Board)(nil)
)
