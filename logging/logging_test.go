package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{"", InfoLevel, true},
		{"warning", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"verbose", InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestDefaultLoggerFormatsSortedFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.WithFields(Fields{"component": "writer"}).Info("block written", Fields{"offset": 12, "file": 3})

	assert.Equal(t, "[INFO] block written component=writer file=3 offset=12\n", buf.String())
}

func TestDefaultLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)
	l.SetLevel(WarnLevel)

	l.Info("hidden")
	l.Error(errors.New("boom"), "read failed")

	assert.Equal(t, "[ERROR] read failed: boom\n", buf.String())
}

func TestDefaultLoggerFatalExits(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal(errors.New("bad"), "abort")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[FATAL] abort: bad")
}

func TestWithContextPicksUpFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	ctx := ContextWithFields(context.Background(), Fields{"run": "abc"})
	ctx = ContextWithFields(ctx, Fields{"part": 2})
	l.WithContext(ctx).Info("part done")

	assert.Equal(t, "[INFO] part done part=2 run=abc\n", buf.String())
}

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	l := LoggerFromAppLogger(base)
	require.IsType(t, &LogrusLogger{}, l)

	l.WithFields(Fields{"component": "cube"}).Error(errors.New("short file"), "kernel failed", Fields{"file": 7})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kernel failed", line["msg"])
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "cube", line["component"])
	assert.Equal(t, float64(7), line["file"])
	assert.Equal(t, "short file", line["error"])
}

func TestLogrusSetLevel(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)

	l := NewLogrusLogger(base)
	l.SetLevel(ErrorLevel)
	l.Info("dropped")

	assert.Empty(t, buf.String())
	assert.Equal(t, logrus.ErrorLevel, base.GetLevel())
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	SetGlobalLogger(nil)
	assert.IsType(t, &NoOpLogger{}, GetGlobalLogger())
}
