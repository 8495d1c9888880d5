package origin

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_WriterReader(t *testing.T) {
	f := NewFactory("1.2.3")
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	var buf bytes.Buffer
	require.NoError(t, f.Writer(1500*time.Millisecond)(&buf))
	assert.Contains(t, buf.String(), `"executionDurationMs":1500`)

	var got Metadata
	require.NoError(t, NewFactory("other").Reader(&got)(&buf))

	assert.Equal(t, f.InvocationID(), got.InvocationID)
	assert.True(t, fixed.Equal(got.CreationTime))
	assert.Equal(t, 1500*time.Millisecond, got.ExecutionDuration)
	assert.Equal(t, "1.2.3", got.ToolVersion)
	assert.NotEmpty(t, got.Host)
}

func TestFactory_UniqueInvocations(t *testing.T) {
	assert.NotEqual(t, NewFactory("v").InvocationID(), NewFactory("v").InvocationID())
}

func TestRead_Invalid(t *testing.T) {
	_, err := Read(strings.NewReader("not json"))
	assert.Error(t, err)

	_, err = Read(strings.NewReader(`{"host":"h"}`))
	assert.ErrorContains(t, err, "no invocation id")

	var dst Metadata
	err = NewFactory("v").Reader(&dst)(strings.NewReader(""))
	assert.Error(t, err)
	assert.Empty(t, dst.InvocationID)
}
