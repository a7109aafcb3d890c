package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandTemplate(t *testing.T) {
	values := templateValues{
		RepresentationID: "video-1",
		Number:           42,
		Bandwidth:        800000,
		Time:             90000,
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"plain", "seg.m4s", "seg.m4s"},
		{"representation", "$RepresentationID$/init.mp4", "video-1/init.mp4"},
		{"number", "seg-$Number$.m4s", "seg-42.m4s"},
		{"padded number", "seg-$Number%05d$.m4s", "seg-00042.m4s"},
		{"bandwidth", "$Bandwidth$/$Number$.m4s", "800000/42.m4s"},
		{"time", "t/$Time$.m4s", "t/90000.m4s"},
		{"escaped dollar", "a$$b-$Number$", "a$b-42"},
		{"unknown identifier", "$Foo$-$Number$", "$Foo$-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandTemplate(tt.template, values))
		})
	}
}

func TestPadNumber(t *testing.T) {
	assert.Equal(t, "7", padNumber(7, 0))
	assert.Equal(t, "007", padNumber(7, 3))
	assert.Equal(t, "12345", padNumber(12345, 3))
}
