package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
)

func TestInitWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	t.Cleanup(func() { InitWithWriter(config.LoggingConfig{Level: "info"}, &bytes.Buffer{}) })

	log := Get()
	log.Info().Msg("dropped")
	log.Warn().Int64("exam_id", 1).Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, float64(1), entry["exam_id"])
	assert.Contains(t, entry, "time")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "error", parseLevel("error").String())
	assert.Equal(t, "info", parseLevel("verbose").String())
}
