// Analog input bank: scaling, calibration, statistics and threshold
// tracking for the 16 inputs.

package core

import "iox16/protocol"

// FullScaleMillivolts is the input voltage at converter full scale.
const FullScaleMillivolts = 3300

// InputChannelState is the most recent sample of one input.
type InputChannelState struct {
	Raw        uint16         // converter counts
	Millivolts uint16         // Raw scaled to 0..3300 mV
	Value      int16          // Millivolts after calibration
	Tick       protocol.Ticks // when the sample was taken
	Stale      bool           // the last sampling attempt failed
}

// inputAccumulator collects samples between two reads by the master.
type inputAccumulator struct {
	previous int16 // average at the previous read
	sum      int32
	sumSq    uint64
	min      int16
	max      int16
	count    uint16
}

func newAccumulator(previous int16) inputAccumulator {
	return inputAccumulator{previous: previous, min: 32767, max: -32768}
}

func (a *inputAccumulator) add(v int16) {
	a.sum += int32(v)
	a.sumSq += uint64(int32(v) * int32(v))
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.count++
	if a.count == 0 {
		// count overflowed: halve sums, continue at half count
		a.sum = (a.sum + 1 - (1 - a.sum%2)) / 2
		a.sumSq = (a.sumSq + 2 - (1 - a.sumSq/2%2)) / 4
		a.count = 0x8000
	}
}

func (a *inputAccumulator) average() int16 {
	if a.count == 0 {
		return a.previous
	}
	return int16(a.sum / int32(a.count))
}

func (a *inputAccumulator) stats() protocol.Stats {
	return protocol.Stats{Sum: a.sum, SumSq: a.sumSq, Min: a.min, Max: a.max, Count: a.count}
}

// thresholdTrack follows the crossings of one input. Times are 64-bit
// uptime microseconds.
type thresholdTrack struct {
	lastAbove          uint64
	lastBelow          uint64
	aboveCount         uint16
	belowCount         uint16
	lastAboveDebounced uint64
	lastBelowDebounced uint64
}

func newThresholdTrack(now uint64) thresholdTrack {
	return thresholdTrack{
		lastAbove:          now,
		lastBelow:          now,
		lastAboveDebounced: now,
		lastBelowDebounced: now,
	}
}

func (t *thresholdTrack) update(v int16, now uint64, th *protocol.Threshold) {
	if v > th.High {
		if t.aboveCount == 0 {
			t.lastAbove = now
		}
		if t.aboveCount >= th.DebounceCount && now-t.lastAbove >= uint64(th.DebounceTime) {
			t.lastAboveDebounced = t.lastAbove
		}
		if t.aboveCount < 0xFFFF {
			t.aboveCount++
		}
	} else {
		t.aboveCount = 0
	}

	if v < th.Low {
		if t.belowCount == 0 {
			t.lastBelow = now
		}
		if t.belowCount >= th.DebounceCount && now-t.lastBelow >= uint64(th.DebounceTime) {
			t.lastBelowDebounced = t.lastBelow
		}
		if t.belowCount < 0xFFFF {
			t.belowCount++
		}
	} else {
		t.belowCount = 0
	}
}

// InputBank holds the state of all analog inputs. It is mutated only by
// the sampling step and by the read commands that reset accumulators.
type InputBank struct {
	settings  *Settings
	fullScale uint16

	channels   [NumInputs]InputChannelState
	acc        [NumInputs]inputAccumulator
	thresholds [NumInputs]thresholdTrack

	samples      uint32
	sampleErrors uint32
}

// NewInputBank creates a bank that calibrates with the given settings.
// A fullScale of zero means 16-bit converter counts.
func NewInputBank(settings *Settings, fullScale uint16, now uint64) *InputBank {
	if fullScale == 0 {
		fullScale = 0xFFFF
	}
	b := &InputBank{settings: settings, fullScale: fullScale}
	for i := range b.acc {
		b.acc[i] = newAccumulator(0)
		b.thresholds[i] = newThresholdTrack(now)
	}
	return b
}

// Millivolts scales raw converter counts to 0..3300 mV.
func (b *InputBank) Millivolts(raw uint16) uint16 {
	if raw >= b.fullScale {
		return FullScaleMillivolts
	}
	return uint16(uint32(raw) * FullScaleMillivolts / uint32(b.fullScale))
}

// Update stores a new sample of every channel not set in staleMask.
// tick is the board tick of the sample and now the 64-bit uptime in µs.
func (b *InputBank) Update(raw *[NumInputs]uint16, staleMask uint16, tick protocol.Ticks, now uint64) {
	b.samples++
	for i := range b.channels {
		ch := &b.channels[i]
		if staleMask&(1<<i) != 0 {
			ch.Stale = true
			continue
		}
		mv := b.Millivolts(raw[i])
		v := b.settings.Calibrations[i].Apply(int32(mv))
		ch.Raw = raw[i]
		ch.Millivolts = mv
		ch.Value = v
		ch.Tick = tick
		ch.Stale = false

		b.acc[i].add(v)
		b.thresholds[i].update(v, now, &b.settings.Thresholds[i])
	}
}

// MarkStale flags every channel after a failed sample. Values are kept.
func (b *InputBank) MarkStale() {
	b.sampleErrors++
	for i := range b.channels {
		b.channels[i].Stale = true
	}
}

// Channel returns the state of one input.
func (b *InputBank) Channel(ch int) InputChannelState {
	return b.channels[ch]
}

// StaleMask returns one bit per stale input.
func (b *InputBank) StaleMask() uint16 {
	var mask uint16
	for i := range b.channels {
		if b.channels[i].Stale {
			mask |= 1 << i
		}
	}
	return mask
}

// Values returns the most recent calibrated value of every input.
func (b *InputBank) Values() [NumInputs]int16 {
	var v [NumInputs]int16
	for i := range b.channels {
		v[i] = b.channels[i].Value
	}
	return v
}

// TakeAverages returns the average of every input since the previous read
// and starts new accumulation. An input without new samples repeats its
// previous average.
func (b *InputBank) TakeAverages() [NumInputs]int16 {
	var v [NumInputs]int16
	for i := range b.acc {
		v[i] = b.acc[i].average()
		b.acc[i] = newAccumulator(v[i])
	}
	return v
}

// TakeStats returns the statistics of one input since its previous read
// and starts new accumulation.
func (b *InputBank) TakeStats(ch int) protocol.Stats {
	s := b.acc[ch].stats()
	b.acc[ch] = newAccumulator(b.acc[ch].average())
	return s
}

// ThresholdTimes returns the last debounced rise and fall of one input in
// uptime microseconds.
func (b *InputBank) ThresholdTimes(ch int) (high, low uint64) {
	t := &b.thresholds[ch]
	return t.lastAboveDebounced, t.lastBelowDebounced
}

// ThresholdStates returns which inputs were last debounced above their high
// threshold and which below their low threshold. An input that never
// crossed reports both.
func (b *InputBank) ThresholdStates() protocol.ThresholdStates {
	var s protocol.ThresholdStates
	for i := range b.thresholds {
		t := &b.thresholds[i]
		if t.lastAboveDebounced >= t.lastBelowDebounced {
			s.Above |= 1 << i
		}
		if t.lastBelowDebounced >= t.lastAboveDebounced {
			s.Below |= 1 << i
		}
	}
	return s
}

// ResetThreshold restarts crossing detection of one input, used after its
// threshold configuration changed.
func (b *InputBank) ResetThreshold(ch int, now uint64) {
	b.thresholds[ch] = newThresholdTrack(now)
}

// Samples returns the number of sampling passes and failed passes.
func (b *InputBank) Samples() (ok, failed uint32) {
	return b.samples, b.sampleErrors
}
