package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("INFO")
		SetFormat("text")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel("warn")

	Debug("hidden %d", 1)
	Info("hidden %d", 2)
	Warn("shown %d", 3)
	Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 3")
	assert.Contains(t, out, "[ERROR] shown 4")
}

func TestUnknownLevelIsIgnored(t *testing.T) {
	buf := capture(t)
	SetLevel("ERROR")
	SetLevel("verbose")

	Warn("still hidden")
	assert.Empty(t, buf.String())
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t)
	SetFormat("json")

	Info("created %s", "ns")

	var line struct {
		Time  string `json:"time"`
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "INFO", line.Level)
	assert.Equal(t, "created ns", line.Msg)
	assert.NotEmpty(t, line.Time)
}

func TestOutputPathFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellfs.log")
	require.NoError(t, SetOutputPath(path))
	t.Cleanup(func() { SetOutput(os.Stdout) })

	Info("to file")
	SetOutput(os.Stdout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[INFO] to file"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}
