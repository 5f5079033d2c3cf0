package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iox16/core"
	"iox16/host/serial"
	"iox16/protocol"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 115200, cfg.Port.Baud)
	assert.Equal(t, serial.BackendTarm, cfg.Port.Backend)
	assert.Equal(t, 50, cfg.Bus.TimeoutMS)
	assert.Equal(t, uint(3), cfg.Bus.Attempts)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, core.AddressFromSettings, cfg.Simulate.Address)
	assert.Equal(t, core.DefaultConfig().Name, cfg.Simulate.Name)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	data := []byte(`
port:
  device: /dev/ttyUSB1
  baud: 57600
  backend: bugst
  rts_transmit: true
bus:
  timeout_ms: 120
logging:
  level: debug
  file:
    filename: /tmp/iox16.log
simulate:
  address: 12
  loopback: true
`)
	cfg, err := Load(data, "yaml")
	require.NoError(t, err)

	sc := cfg.SerialConfig()
	assert.Equal(t, "/dev/ttyUSB1", sc.Device)
	assert.Equal(t, 57600, sc.Baud)
	assert.Equal(t, serial.BackendBugst, sc.Backend)
	assert.True(t, sc.RTSTransmit)

	mc := cfg.MasterConfig()
	assert.Equal(t, 120*time.Millisecond, mc.Timeout)
	assert.Equal(t, uint(3), mc.Attempts)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Logging.File.MaxSizeMB)

	fw := cfg.FirmwareConfig()
	assert.Equal(t, 12, fw.Address)
	assert.True(t, cfg.Simulate.Loopback)
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load([]byte(`{"port": {"device": "COM3"}, "simulate": {"name": "bench"}}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "COM3", cfg.Port.Device)
	assert.Equal(t, 115200, cfg.Port.Baud)
	assert.Equal(t, "bench", cfg.FirmwareConfig().Name)
	assert.Equal(t, core.AddressFromSettings, cfg.FirmwareConfig().Address)
}

func TestLoadRejects(t *testing.T) {
	_, err := Load([]byte(`port: {baud: 300}`), "yaml")
	assert.Error(t, err)

	_, err = Load([]byte(`port: {backend: usb}`), "yaml")
	assert.Error(t, err)

	_, err = Load([]byte(`simulate: {address: 256}`), "yaml")
	assert.Error(t, err)

	_, err = Load([]byte(`{}`), "toml")
	assert.Error(t, err)

	_, err = Load([]byte(`port: [`), "yaml")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iox16.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": {"baud": 9600}}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.Port.Baud)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFileStorage(t *testing.T) {
	st := &FileStorage{Path: filepath.Join(t.TempDir(), "board.bin")}

	image, err := st.Load()
	require.NoError(t, err)
	assert.Empty(t, image)

	s, found, err := core.LoadSettings(st)
	require.NoError(t, err)
	assert.False(t, found)

	s.Config.Address = 42
	s.Calibrations[3] = protocol.Calibration{Multiply: 2, Divide: 1, Min: -100, Max: 100}
	require.NoError(t, core.SaveSettings(st, &s))

	got, found, err := core.LoadSettings(st)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, s, got)
}
