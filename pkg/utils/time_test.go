package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDay(t *testing.T) {
	input := time.Date(2026, 8, 30, 15, 42, 7, 123, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), StartOfDay(input))

	// Offsets are normalized to UTC before truncation.
	saoPaulo := time.FixedZone("BRT", -3*3600)
	late := time.Date(2026, 8, 30, 22, 30, 0, 0, saoPaulo)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), StartOfDay(late))
}

func TestUnixToTime(t *testing.T) {
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), UnixToTime(1788048000))
	assert.True(t, UnixToTime(0).IsZero())
	assert.True(t, UnixToTime(-5).IsZero())
}

func TestFormatISO8601(t *testing.T) {
	input := time.Date(2026, 8, 30, 15, 42, 7, 0, time.UTC)
	assert.Equal(t, "2026-08-30T15:42:07Z", FormatISO8601(input))
}
