package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"iox16/core"
	"iox16/host/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}

func TestDebugWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	w := DebugWriter(log)
	w("frame crc error\r\n")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "frame crc error", entry["msg"])
	assert.Equal(t, "firmware", entry["logger"])
}

func TestLogEvents(t *testing.T) {
	core.ClearEvents()
	core.RecordEvent(core.EvtCRCError, 0x01, 100, 0)
	defer core.ClearEvents()

	var buf bytes.Buffer
	LogEvents(NewWriter(config.LoggingConfig{Format: "json"}, &buf))
	assert.Contains(t, buf.String(), `"type":"`+core.EventName(core.EvtCRCError)+`"`)
}

func TestNewWithFile(t *testing.T) {
	cfg := config.LoggingConfig{Level: "info", File: config.FileConfig{
		Filename: filepath.Join(t.TempDir(), "iox16.log"),
	}}
	log, err := New(cfg)
	require.NoError(t, err)
	log.Info("to file")
	_ = log.Sync()
}
