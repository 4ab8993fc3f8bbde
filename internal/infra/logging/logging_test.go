package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter("debug", "json", &buf)
	require.NoError(t, err)

	log.Info("assessment completed")
	require.NoError(t, log.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "assessment completed", line["msg"])
	assert.Equal(t, "automaton-risk", line["service"])
	assert.Contains(t, line, "timestamp")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter("warn", "console", &buf)
	require.NoError(t, err)
	log.Info("hidden")
	assert.Zero(t, buf.Len())
}

func TestRejectsUnknownSettings(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)
	_, err = New("info", "xml")
	assert.Error(t, err)
}
