package bucselog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: WARN, Output: &buf, Format: FormatText})

	l.Debug("should not appear")
	assert.Empty(t, buf.String())

	l.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
	assert.Contains(t, buf.String(), "[WARN]")
}

func TestLogger_ComponentOverride(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: ERROR, Output: &buf, Format: FormatText})
	l.SetComponentLevel("reconciler", DEBUG)

	comp := l.WithComponent("reconciler")
	comp.Debug("tick processed")
	assert.Contains(t, buf.String(), "tick processed")

	other := l.WithComponent("block")
	other.Debug("should be gated")
	assert.NotContains(t, buf.String(), "should be gated")
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: NOTE, Output: &buf, Format: FormatJSON, IncludeCaller: false})
	l.WithField("path", "/a/b").Note("ingested action")

	var entry Entry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "NOTE", entry.Level)
	assert.Equal(t, "ingested action", entry.Message)
	assert.Equal(t, "/a/b", entry.Fields["path"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"verbose_debug": TRACE,
		"debug":         DEBUG,
		"note":          NOTE,
		"warning":       WARN,
		"error":         ERROR,
		"FATAL":         FATAL,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("nonsense")
	require.Error(t, err)
}

func TestFromVerbosity(t *testing.T) {
	assert.Equal(t, NOTE, FromVerbosity(0))
	assert.Equal(t, DEBUG, FromVerbosity(1))
	assert.Equal(t, TRACE, FromVerbosity(2))
	assert.Equal(t, TRACE, FromVerbosity(5))
}

func TestWithFieldImmutability(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: NOTE, Output: &buf, Format: FormatText, IncludeCaller: false})
	derived := base.WithField("a", 1)
	derived.WithField("b", 2).Note("msg")

	out := buf.String()
	assert.True(t, strings.Contains(out, "a=1"))
	assert.True(t, strings.Contains(out, "b=2"))

	buf.Reset()
	base.Note("base msg")
	assert.NotContains(t, buf.String(), "a=1")
}
