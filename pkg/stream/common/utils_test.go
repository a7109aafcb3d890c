package common

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500ms", FormatDuration(500*time.Millisecond))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m", FormatDuration(2*time.Minute))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
}

func TestFormatBitrate(t *testing.T) {
	assert.Equal(t, "2.50M", FormatBitrate(2.5e6))
	assert.Equal(t, "270k", FormatBitrate(270000))
	assert.Equal(t, "800", FormatBitrate(800))
}

func TestParseMediaType(t *testing.T) {
	assert.Equal(t, MediaTypeVideo, ParseMediaType("video/mp4"))
	assert.Equal(t, MediaTypeAudio, ParseMediaType(" Audio "))
	assert.Equal(t, MediaTypeUnsupported, ParseMediaType("text/vtt"))
}

func TestStreamErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStreamError(MediaTypeVideo, "http://x/1.m4s", ErrCodeConnection, "download failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, ErrCodeConnection))
	assert.False(t, HasCode(cause, ErrCodeConnection))
}
