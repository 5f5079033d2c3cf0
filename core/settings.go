package core

import (
	"errors"

	"iox16/protocol"
)

// Settings is the persistent state of a board. It is stored as a fixed
// little-endian image so flash and file storage share one format.
type Settings struct {
	Config       protocol.BoardConfig
	Calibrations [NumInputs]protocol.Calibration
	Thresholds   [NumInputs]protocol.Threshold
}

// Settings image layout
const (
	settingsMagic   = "IOXS"
	settingsVersion = 1

	SettingsImageSize = len(settingsMagic) + 1 + protocol.BoardConfigSize +
		NumInputs*protocol.CalibrationSize + NumInputs*protocol.ThresholdSize + 2
)

var (
	ErrSettingsBlank   = errors.New("settings storage is blank")
	ErrSettingsCorrupt = errors.New("settings image is corrupt")
)

// DefaultSettings returns the settings of a blank board: unassigned
// address, pass-through calibrations and thresholds that never trigger.
func DefaultSettings() Settings {
	s := Settings{
		Config: protocol.BoardConfig{
			Address: protocol.BroadcastAddress,
			Baud:    protocol.DefaultBaud,
		},
	}
	for i := range s.Calibrations {
		s.Calibrations[i] = protocol.DefaultCalibration()
		s.Thresholds[i] = protocol.DefaultThreshold()
	}
	return s
}

// MarshalBinary encodes the settings image.
func (s *Settings) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, SettingsImageSize)
	buf = append(buf, settingsMagic...)
	buf = append(buf, settingsVersion)
	buf = s.Config.Append(buf)
	for i := range s.Calibrations {
		buf = s.Calibrations[i].Append(buf)
	}
	for i := range s.Thresholds {
		buf = s.Thresholds[i].Append(buf)
	}
	crc := protocol.CRC16(buf)
	return append(buf, uint8(crc), uint8(crc>>8)), nil
}

// UnmarshalBinary decodes a settings image. Erased flash (all 0xFF) yields
// ErrSettingsBlank; any other mismatch yields ErrSettingsCorrupt. s is only
// modified on success.
func (s *Settings) UnmarshalBinary(data []byte) error {
	if isBlank(data) {
		return ErrSettingsBlank
	}
	if len(data) < SettingsImageSize {
		return ErrSettingsCorrupt
	}
	data = data[:SettingsImageSize]
	if string(data[:len(settingsMagic)]) != settingsMagic || data[len(settingsMagic)] != settingsVersion {
		return ErrSettingsCorrupt
	}
	crc := uint16(data[SettingsImageSize-2]) | uint16(data[SettingsImageSize-1])<<8
	if protocol.CRC16(data[:SettingsImageSize-2]) != crc {
		return ErrSettingsCorrupt
	}

	var out Settings
	p := data[len(settingsMagic)+1:]
	out.Config, _ = protocol.DecodeBoardConfig(p)
	p = p[protocol.BoardConfigSize:]
	for i := range out.Calibrations {
		out.Calibrations[i], _ = protocol.DecodeCalibration(p)
		p = p[protocol.CalibrationSize:]
	}
	for i := range out.Thresholds {
		out.Thresholds[i], _ = protocol.DecodeThreshold(p)
		p = p[protocol.ThresholdSize:]
	}
	if !out.Config.Valid() {
		return ErrSettingsCorrupt
	}
	for i := range out.Calibrations {
		if !out.Calibrations[i].Valid() {
			return ErrSettingsCorrupt
		}
	}
	*s = out
	return nil
}

func isBlank(data []byte) bool {
	for _, b := range data {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// Storage persists the settings image.
type Storage interface {
	// Load returns the stored image. Blank storage returns an image of
	// 0xFF bytes or an empty slice.
	Load() ([]byte, error)

	// Store replaces the stored image.
	Store(image []byte) error
}

// LoadSettings reads settings from storage. found is false when defaults
// were used because the storage was blank, corrupt or unreadable; only a
// storage failure is returned as an error.
func LoadSettings(st Storage) (s Settings, found bool, err error) {
	s = DefaultSettings()
	if st == nil {
		return s, false, nil
	}
	image, err := st.Load()
	if err != nil {
		return s, false, err
	}
	if err := s.UnmarshalBinary(image); err != nil {
		return DefaultSettings(), false, nil
	}
	return s, true, nil
}

// SaveSettings writes settings to storage.
func SaveSettings(st Storage, s *Settings) error {
	if st == nil {
		return ErrUnsupported
	}
	image, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	return st.Store(image)
}

// MemoryStorage keeps the settings image in RAM. It starts blank.
type MemoryStorage struct {
	image []byte

	// FailWith makes every Store return the given error.
	FailWith error
}

func (m *MemoryStorage) Load() ([]byte, error) {
	return append([]byte(nil), m.image...), nil
}

func (m *MemoryStorage) Store(image []byte) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.image = append(m.image[:0], image...)
	return nil
}
