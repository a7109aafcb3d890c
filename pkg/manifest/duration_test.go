package manifest

import (
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"PT0S", 0},
		{"PT2S", 2 * time.Second},
		{"PT1M30.5S", 90*time.Second + 500*time.Millisecond},
		{"P1DT2H", 26 * time.Hour},
		{"PT1H2M3S", time.Hour + 2*time.Minute + 3*time.Second},
		{"P1Y", 365 * 24 * time.Hour},
		{"P2M", 60 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, input := range []string{"", "P", "PT", "1H", "-PT1S", "P1DT", "PT1X"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDuration(input)
			assert.Error(t, err)
		})
	}
}

func TestDurationString(t *testing.T) {
	assert.Equal(t, "PT0S", Duration(0).String())
	assert.Equal(t, "PT2.5S", Duration(2500*time.Millisecond).String())
}

func TestDateTimeUnmarshal(t *testing.T) {
	type holder struct {
		XMLName xml.Name `xml:"X"`
		At      DateTime `xml:"at,attr"`
	}

	var withZone holder
	require.NoError(t, xml.Unmarshal([]byte(`<X at="2024-01-01T10:00:00Z"/>`), &withZone))
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), withZone.At.UTC())

	var withoutZone holder
	require.NoError(t, xml.Unmarshal([]byte(`<X at="2024-01-01T10:00:00.5"/>`), &withoutZone))
	assert.Equal(t, 500*time.Millisecond, time.Duration(withoutZone.At.Nanosecond()))

	var invalid holder
	assert.Error(t, xml.Unmarshal([]byte(`<X at="yesterday"/>`), &invalid))
}
