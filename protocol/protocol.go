// Package protocol implements the IOX16 bus protocol: framing, checksums,
// the byte-wise frame decoder and the payload layouts of every command.
package protocol

// Version is the firmware version reported by GET_INFO and GET_STATUS.
const Version = "0.1.0"

// Firmware version components, kept in sync with Version.
const (
	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0
)

// ProtocolVersion is bumped whenever the frame layout or a payload layout changes.
const ProtocolVersion = 1

// Frame constants
const (
	StartByte        = 0x7E
	BroadcastAddress = 0xFF // also the address of an unassigned board
	MaxPayload       = 64

	FrameHeader  = 4 // start, address, command, length
	FrameTrailer = 2 // CRC16, little-endian
	FrameMin     = FrameHeader + FrameTrailer
	FrameMax     = FrameMin + MaxPayload

	// PreambleByte is sent ahead of a response when the board is configured to
	// give slow transceivers time to settle. The decoder discards it while idle.
	PreambleByte = 0xFF

	// ResponseFlag is ORed into the command byte of a success response.
	ResponseFlag = 0x80
	// ErrorResponse is the command byte of an error response.
	ErrorResponse = 0xFF
)

// Channel counts
const (
	NumInputs       = 16
	NumOutputs      = 16
	NumOutputGroups = NumOutputs / 2 // two outputs share one PWM slice
)

// Output limits
const (
	MaxDuty          = 0x8000 // 100% duty
	MinFrequency     = 10
	MaxFrequency     = 50000
	DefaultFrequency = 1000
)

// Command codes. Codes 0x40-0x7F are reserved for board specific extensions.
const (
	CmdPing               = 0x00
	CmdGetStatus          = 0x01
	CmdGetInfo            = 0x02
	CmdReadInputs         = 0x03
	CmdSetOutputs         = 0x04
	CmdGetOutputs         = 0x05
	CmdSetFrequencies     = 0x06
	CmdReadAverages       = 0x07
	CmdReadStats          = 0x08
	CmdSetCalibration     = 0x09
	CmdGetCalibration     = 0x0A
	CmdSetThreshold       = 0x0B
	CmdGetThreshold       = 0x0C
	CmdGetThresholdTimes  = 0x0D
	CmdGetThresholdStates = 0x0E
	CmdGetConfig          = 0x0F
	CmdSetConfig          = 0x10
	CmdReboot             = 0x11

	CmdReservedFirst = 0x40
	CmdReservedLast  = 0x7F
)

// Error codes carried in the first byte of an error response payload.
const (
	ErrCodeNone           = 0
	ErrCodeBadLength      = 1
	ErrCodeUnknownCommand = 2
	ErrCodeInvalidValue   = 3
	ErrCodeStorage        = 4
	ErrCodeUnsupported    = 5
)

// CommandName returns a printable name for a command code.
func CommandName(cmd uint8) string {
	switch cmd {
	case CmdPing:
		return "ping"
	case CmdGetStatus:
		return "get_status"
	case CmdGetInfo:
		return "get_info"
	case CmdReadInputs:
		return "read_inputs"
	case CmdSetOutputs:
		return "set_outputs"
	case CmdGetOutputs:
		return "get_outputs"
	case CmdSetFrequencies:
		return "set_frequencies"
	case CmdReadAverages:
		return "read_averages"
	case CmdReadStats:
		return "read_stats"
	case CmdSetCalibration:
		return "set_calibration"
	case CmdGetCalibration:
		return "get_calibration"
	case CmdSetThreshold:
		return "set_threshold"
	case CmdGetThreshold:
		return "get_threshold"
	case CmdGetThresholdTimes:
		return "get_threshold_times"
	case CmdGetThresholdStates:
		return "get_threshold_states"
	case CmdGetConfig:
		return "get_config"
	case CmdSetConfig:
		return "set_config"
	case CmdReboot:
		return "reboot"
	}
	return "unknown"
}

// ErrorCodeName returns a printable name for an error code.
func ErrorCodeName(code uint8) string {
	switch code {
	case ErrCodeNone:
		return "none"
	case ErrCodeBadLength:
		return "bad length"
	case ErrCodeUnknownCommand:
		return "unknown command"
	case ErrCodeInvalidValue:
		return "invalid value"
	case ErrCodeStorage:
		return "storage failure"
	case ErrCodeUnsupported:
		return "unsupported"
	}
	return "unknown error"
}
