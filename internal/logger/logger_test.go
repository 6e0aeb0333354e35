package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/config"
)

func TestJSONToStdout(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(config.LogConfig{Level: "info", Format: "json", Output: "stdout"}, &buf)
	require.NoError(t, err)

	log.Named("coin").Debug("hidden")
	log.Named("coin").Info("coin accepted", zap.String("value", "5"))
	require.NoError(t, log.Sync())

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), "exactly one line: %s", buf.String())
	assert.Equal(t, "coin accepted", line["msg"])
	assert.Equal(t, "coin", line["logger"])
	assert.Equal(t, "5", line["value"])
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vendo.log")
	var buf bytes.Buffer
	log, err := newLogger(config.LogConfig{
		Level:  "debug",
		Format: "console",
		Output: "file",
		File:   config.LogFileConfig{Path: path, MaxSize: 1},
	}, &buf)
	require.NoError(t, err)

	log.Warn("remote unavailable")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "remote unavailable")
	assert.Empty(t, buf.String(), "file output only")
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = New(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
	_, err = New(config.LogConfig{Level: "info", Output: "syslog"})
	assert.Error(t, err)
}
