package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", false)
	require.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	l.Warn().Str("component", "test").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["message"])
	require.Equal(t, "test", line["component"])
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "loud", false)
	require.Equal(t, zerolog.InfoLevel, l.GetLevel())

	l = NewWithWriter(&buf, "", true)
	require.Equal(t, zerolog.InfoLevel, l.GetLevel())
}
