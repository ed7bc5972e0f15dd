package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level string, format OutputFormat, fn func()) string {
	t.Helper()
	buf := &bytes.Buffer{}
	SetTestOutput(buf)
	t.Cleanup(UnsetTestOutput)

	InitLogger(level, format)
	fn()
	return buf.String()
}

func TestTextOutput(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFn    func()
		contains []string
		excludes []string
	}{
		{
			name:     "info",
			level:    "info",
			logFn:    func() { Info("importing source", Fields{"source": "local:/tmp/apps.yaml"}) },
			contains: []string{"level=INFO", "importing source", "source=local:/tmp/apps.yaml"},
		},
		{
			name:     "debug hidden at info",
			level:    "info",
			logFn:    func() { Debug("resolved candidate") },
			excludes: []string{"resolved candidate"},
		},
		{
			name:     "debug shown at debug",
			level:    "DEBUG",
			logFn:    func() { Debug("calling install", Fields{"module": "appimage"}) },
			contains: []string{"level=DEBUG", "calling install", "module=appimage"},
		},
		{
			name:     "warn",
			level:    "warning",
			logFn:    func() { Warnf("skipping %s", "krita") },
			contains: []string{"level=WARN", "skipping krita"},
		},
		{
			name:     "error only",
			level:    "error",
			logFn:    func() { Warn("hidden"); Error("failed", Fields{"code": 1}) },
			contains: []string{"level=ERROR", "failed", "code=1"},
			excludes: []string{"hidden"},
		},
		{
			name:     "success",
			level:    "info",
			logFn:    func() { Success("installed", Fields{"package": "krita"}) },
			contains: []string{"installed", "package=krita", "status=success"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := capture(t, tt.level, FormatText, tt.logFn)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, notWant := range tt.excludes {
				assert.NotContains(t, out, notWant)
			}
		})
	}
}

func TestJSONOutput(t *testing.T) {
	out := capture(t, "info", FormatJSON, func() {
		Info("upgraded", Fields{"package": "krita", "count": 2, "locked": false})
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
	assert.Equal(t, "upgraded", line["msg"])
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "krita", line["package"])
	assert.Equal(t, float64(2), line["count"])
	assert.Equal(t, false, line["locked"])
}

func TestCharmHandlerNotUsedForCapturedOutput(t *testing.T) {
	out := capture(t, "info", FormatText, func() { Info("plain") })
	assert.True(t, strings.HasPrefix(out, "time="), out)
}

func TestGetLoggerInitializesIfNil(t *testing.T) {
	logger = nil
	assert.NotPanics(t, func() {
		assert.NotNil(t, GetLogger())
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("Debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMergeFields(t *testing.T) {
	attrs := mergeFields(Fields{"a": 1}, Fields{"a": 2, "b": "x"})
	result := make(map[string]interface{})
	for i := 0; i < len(attrs); i += 2 {
		result[attrs[i].(string)] = attrs[i+1]
	}
	assert.Equal(t, map[string]interface{}{"a": 2, "b": "x"}, result)
}
