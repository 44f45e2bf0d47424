package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("climatequery", "test", InfoLevel)
	logger.SetOutput(&buf)

	ctx := WithRequestID(context.Background(), "req-1")
	logger.Info(ctx, "[BUILD] Dataset built", Fields{"stations": 3})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "[BUILD] Dataset built", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "climatequery", entry["service"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, map[string]any{"stations": float64(3)}, entry["fields"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("climatequery", "test", WarnLevel)
	logger.SetOutput(&buf)

	logger.Debug(context.Background(), "debug", nil)
	logger.Info(context.Background(), "info", nil)
	assert.Empty(t, buf.String())

	logger.Error(context.Background(), "failed", Fields{}, errors.New("boom"))
	assert.Contains(t, buf.String(), `"error":"boom"`)
	assert.Contains(t, buf.String(), `"function"`)

	buf.Reset()
	logger.SetLevel(DebugLevel)
	logger.Debug(context.Background(), "debug", nil)
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
}

func TestContextLogger_MergesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("climatequery", "test", DebugLevel)
	logger.SetOutput(&buf)

	logger.WithFields(Fields{"dataset": "abc", "code": 136}).Info(context.Background(), "merged", Fields{"code": 193})

	var entry struct {
		Fields map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc", entry.Fields["dataset"])
	assert.Equal(t, float64(193), entry.Fields["code"])
}

func TestStructuredLogger_DevFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("climatequery", "test", InfoLevel)
	logger.SetOutput(&buf)
	logger.SetFormat(FormatDev)

	logger.Info(context.Background(), "human readable", nil)

	assert.Contains(t, buf.String(), "human readable")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "debug", want: DebugLevel},
		{input: "INFO", want: InfoLevel},
		{input: "", want: InfoLevel},
		{input: "warning", want: WarnLevel},
		{input: "Error", want: ErrorLevel},
		{input: "verbose", want: InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
