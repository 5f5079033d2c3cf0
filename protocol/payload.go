package protocol

import (
	"encoding/binary"
	"errors"
)

// ErrShortPayload is returned when a payload is smaller than its layout.
var ErrShortPayload = errors.New("payload too short")

// InfoNameSize is the fixed width of the zero padded board name in GET_INFO.
const InfoNameSize = 32

// Payload sizes
const (
	StatusSize          = 18
	InfoSize            = InfoNameSize + 8
	InputsSize          = NumInputs * 2
	OutputsSize         = NumOutputs * 2
	FrequenciesSize     = NumOutputGroups * 2
	OutputStateSize     = OutputsSize + FrequenciesSize
	StatsSize           = 18
	CalibrationSize     = 10
	ThresholdSize       = 10
	ThresholdTimesSize  = 12
	ThresholdStatesSize = 4
	BoardConfigSize     = 5
	ChannelSize         = 1
)

// Status flags
const (
	StatusDefaults      = 1 << 0 // settings were not found in storage
	StatusConfigPending = 1 << 1 // SET_CONFIG stored, effective after reboot
	StatusOutputFault   = 1 << 2 // last output update failed
	StatusStale         = 1 << 3 // at least one input is stale
)

var le = binary.LittleEndian

// Status is the GET_STATUS response.
type Status struct {
	ProtocolVersion uint8
	Version         [3]uint8
	Address         uint8
	Flags           uint8
	StaleMask       uint16
	Uptime          uint32 // seconds
	CRCErrors       uint16
	Timeouts        uint16
	OutputFaults    uint16
}

func (s Status) Append(dst []byte) []byte {
	dst = append(dst, s.ProtocolVersion, s.Version[0], s.Version[1], s.Version[2], s.Address, s.Flags)
	dst = le.AppendUint16(dst, s.StaleMask)
	dst = le.AppendUint32(dst, s.Uptime)
	dst = le.AppendUint16(dst, s.CRCErrors)
	dst = le.AppendUint16(dst, s.Timeouts)
	return le.AppendUint16(dst, s.OutputFaults)
}

func DecodeStatus(p []byte) (Status, error) {
	if len(p) < StatusSize {
		return Status{}, ErrShortPayload
	}
	return Status{
		ProtocolVersion: p[0],
		Version:         [3]uint8{p[1], p[2], p[3]},
		Address:         p[4],
		Flags:           p[5],
		StaleMask:       le.Uint16(p[6:]),
		Uptime:          le.Uint32(p[8:]),
		CRCErrors:       le.Uint16(p[12:]),
		Timeouts:        le.Uint16(p[14:]),
		OutputFaults:    le.Uint16(p[16:]),
	}, nil
}

// Info is the GET_INFO response.
type Info struct {
	Name            string
	ProtocolVersion uint8
	Version         [3]uint8
	Uptime          uint32
}

func (i Info) Append(dst []byte) []byte {
	var name [InfoNameSize]byte
	copy(name[:], i.Name)
	dst = append(dst, name[:]...)
	dst = append(dst, i.ProtocolVersion, i.Version[0], i.Version[1], i.Version[2])
	return le.AppendUint32(dst, i.Uptime)
}

func DecodeInfo(p []byte) (Info, error) {
	if len(p) < InfoSize {
		return Info{}, ErrShortPayload
	}
	name := p[:InfoNameSize]
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}
	return Info{
		Name:            string(name),
		ProtocolVersion: p[InfoNameSize],
		Version:         [3]uint8{p[InfoNameSize+1], p[InfoNameSize+2], p[InfoNameSize+3]},
		Uptime:          le.Uint32(p[InfoNameSize+4:]),
	}, nil
}

// AppendUint16s appends values little-endian.
func AppendUint16s(dst []byte, values []uint16) []byte {
	for _, v := range values {
		dst = le.AppendUint16(dst, v)
	}
	return dst
}

// AppendInt16s appends values little-endian.
func AppendInt16s(dst []byte, values []int16) []byte {
	for _, v := range values {
		dst = le.AppendUint16(dst, uint16(v))
	}
	return dst
}

// DecodeUint16s fills dst from p. p must hold exactly len(dst) values.
func DecodeUint16s(dst []uint16, p []byte) error {
	if len(p) != len(dst)*2 {
		return ErrShortPayload
	}
	for i := range dst {
		dst[i] = le.Uint16(p[i*2:])
	}
	return nil
}

// DecodeInt16s fills dst from p. p must hold exactly len(dst) values.
func DecodeInt16s(dst []int16, p []byte) error {
	if len(p) != len(dst)*2 {
		return ErrShortPayload
	}
	for i := range dst {
		dst[i] = int16(le.Uint16(p[i*2:]))
	}
	return nil
}

// OutputState is the GET_OUTPUTS response.
type OutputState struct {
	Duty        [NumOutputs]uint16
	Frequencies [NumOutputGroups]uint16
}

func (o OutputState) Append(dst []byte) []byte {
	dst = AppendUint16s(dst, o.Duty[:])
	return AppendUint16s(dst, o.Frequencies[:])
}

func DecodeOutputState(p []byte) (OutputState, error) {
	var o OutputState
	if len(p) < OutputStateSize {
		return o, ErrShortPayload
	}
	_ = DecodeUint16s(o.Duty[:], p[:OutputsSize])
	_ = DecodeUint16s(o.Frequencies[:], p[OutputsSize:OutputStateSize])
	return o, nil
}

// Stats is the READ_STATS response: accumulated samples of one input since
// the previous READ_STATS.
type Stats struct {
	Sum   int32
	SumSq uint64
	Min   int16
	Max   int16
	Count uint16
}

// Mean returns Sum/Count, or zero without samples.
func (s Stats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Sum) / float64(s.Count)
}

func (s Stats) Append(dst []byte) []byte {
	dst = le.AppendUint32(dst, uint32(s.Sum))
	dst = le.AppendUint64(dst, s.SumSq)
	dst = le.AppendUint16(dst, uint16(s.Min))
	dst = le.AppendUint16(dst, uint16(s.Max))
	return le.AppendUint16(dst, s.Count)
}

func DecodeStats(p []byte) (Stats, error) {
	if len(p) < StatsSize {
		return Stats{}, ErrShortPayload
	}
	return Stats{
		Sum:   int32(le.Uint32(p)),
		SumSq: le.Uint64(p[4:]),
		Min:   int16(le.Uint16(p[12:])),
		Max:   int16(le.Uint16(p[14:])),
		Count: le.Uint16(p[16:]),
	}, nil
}

// Calibration maps a millivolt reading v to clamp(v*Multiply/Divide+Add, Min, Max).
type Calibration struct {
	Multiply int16
	Divide   int16
	Add      int16
	Min      int16
	Max      int16
}

// DefaultCalibration passes readings through unchanged.
func DefaultCalibration() Calibration {
	return Calibration{Multiply: 1, Divide: 1, Add: 0, Min: -32768, Max: 32767}
}

// Valid reports whether the calibration can be applied.
func (c Calibration) Valid() bool {
	return c.Divide != 0 && c.Min <= c.Max
}

// Apply maps a reading through the calibration.
func (c Calibration) Apply(v int32) int16 {
	div := int32(c.Divide)
	if div == 0 {
		div = 1
	}
	r := v*int32(c.Multiply)/div + int32(c.Add)
	if r < int32(c.Min) {
		return c.Min
	}
	if r > int32(c.Max) {
		return c.Max
	}
	return int16(r)
}

func (c Calibration) Append(dst []byte) []byte {
	return AppendInt16s(dst, []int16{c.Multiply, c.Divide, c.Add, c.Min, c.Max})
}

func DecodeCalibration(p []byte) (Calibration, error) {
	var v [5]int16
	if len(p) < CalibrationSize {
		return Calibration{}, ErrShortPayload
	}
	_ = DecodeInt16s(v[:], p[:CalibrationSize])
	return Calibration{Multiply: v[0], Divide: v[1], Add: v[2], Min: v[3], Max: v[4]}, nil
}

// Threshold configures the debounced above/below detection of one input.
// A crossing counts once it persisted for more than DebounceCount samples
// and at least DebounceTime microseconds.
type Threshold struct {
	High          int16
	Low           int16
	DebounceTime  uint32
	DebounceCount uint16
}

// DefaultThreshold never triggers.
func DefaultThreshold() Threshold {
	return Threshold{High: 32767, Low: -32768}
}

func (t Threshold) Append(dst []byte) []byte {
	dst = le.AppendUint16(dst, uint16(t.High))
	dst = le.AppendUint16(dst, uint16(t.Low))
	dst = le.AppendUint32(dst, t.DebounceTime)
	return le.AppendUint16(dst, t.DebounceCount)
}

func DecodeThreshold(p []byte) (Threshold, error) {
	if len(p) < ThresholdSize {
		return Threshold{}, ErrShortPayload
	}
	return Threshold{
		High:          int16(le.Uint16(p)),
		Low:           int16(le.Uint16(p[2:])),
		DebounceTime:  le.Uint32(p[4:]),
		DebounceCount: le.Uint16(p[8:]),
	}, nil
}

// ThresholdTimes is the GET_THRESHOLD_TIMES response. Values are the low
// 32 bits of the board uptime in microseconds.
type ThresholdTimes struct {
	Now  uint32
	High uint32 // last debounced rise above High
	Low  uint32 // last debounced fall below Low
}

func (t ThresholdTimes) Append(dst []byte) []byte {
	dst = le.AppendUint32(dst, t.Now)
	dst = le.AppendUint32(dst, t.High)
	return le.AppendUint32(dst, t.Low)
}

func DecodeThresholdTimes(p []byte) (ThresholdTimes, error) {
	if len(p) < ThresholdTimesSize {
		return ThresholdTimes{}, ErrShortPayload
	}
	return ThresholdTimes{Now: le.Uint32(p), High: le.Uint32(p[4:]), Low: le.Uint32(p[8:])}, nil
}

// ThresholdStates is the GET_THRESHOLD_STATES response, one bit per input.
type ThresholdStates struct {
	Above uint16
	Below uint16
}

func (t ThresholdStates) Append(dst []byte) []byte {
	dst = le.AppendUint16(dst, t.Above)
	return le.AppendUint16(dst, t.Below)
}

func DecodeThresholdStates(p []byte) (ThresholdStates, error) {
	if len(p) < ThresholdStatesSize {
		return ThresholdStates{}, ErrShortPayload
	}
	return ThresholdStates{Above: le.Uint16(p), Below: le.Uint16(p[2:])}, nil
}

// Baud rate limits accepted by SET_CONFIG.
const (
	MinBaud     = 1200
	MaxBaud     = 4000000
	DefaultBaud = 115200
)

// BoardConfig is the persisted bus configuration of a board.
type BoardConfig struct {
	Address uint8
	Baud    uint32
}

// Valid reports whether the configuration can be stored.
func (c BoardConfig) Valid() bool {
	return c.Baud >= MinBaud && c.Baud <= MaxBaud
}

func (c BoardConfig) Append(dst []byte) []byte {
	dst = append(dst, c.Address)
	return le.AppendUint32(dst, c.Baud)
}

func DecodeBoardConfig(p []byte) (BoardConfig, error) {
	if len(p) < BoardConfigSize {
		return BoardConfig{}, ErrShortPayload
	}
	return BoardConfig{Address: p[0], Baud: le.Uint32(p[1:])}, nil
}
