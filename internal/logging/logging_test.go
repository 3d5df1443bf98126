package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restore(t *testing.T) {
	prev, lvl := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(lvl)
	})
}

func TestSetupJSON(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	require.NoError(t, setup(&buf, "warn", "json"))

	log.Info().Msg("dropped")
	log.Warn().Str("route", "R1").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "R1", line["route"])
	assert.Equal(t, "warn", line["level"])
}

func TestSetupConsole(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	require.NoError(t, setup(&buf, "debug", "console"))
	log.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupRejectsUnknown(t *testing.T) {
	restore(t)
	assert.Error(t, setup(&bytes.Buffer{}, "loud", "json"))
	assert.Error(t, setup(&bytes.Buffer{}, "info", "xml"))
}
