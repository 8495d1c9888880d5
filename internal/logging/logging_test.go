package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{
			name:   "text",
			format: "text",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "msg=hello")
				assert.Contains(t, out, "key=abc")
			},
		},
		{
			name:   "json",
			format: "JSON",
			check: func(t *testing.T, out string) {
				var record map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &record))
				assert.Equal(t, "hello", record["msg"])
				assert.Equal(t, "abc", record["key"])
			},
		},
		{
			name:   "auto on a buffer is json",
			format: "auto",
			check: func(t *testing.T, out string) {
				assert.True(t, json.Valid([]byte(out)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger, err := New(slog.LevelInfo, tt.format, &buf)
			require.NoError(t, err)

			logger.Debug("hidden")
			logger.Info("hello", "key", "abc")

			assert.NotContains(t, buf.String(), "hidden")
			tt.check(t, buf.String())
		})
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(slog.LevelInfo, "xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTerminal(f))
}
