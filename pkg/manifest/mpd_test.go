package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

func TestParseTemplateMPD(t *testing.T) {
	mpd, err := Parse([]byte(staticTemplateMPD))
	require.NoError(t, err)

	assert.False(t, mpd.IsDynamic())
	assert.Equal(t, 10*time.Second, mpd.MediaPresentationDuration.Std())
	assert.Equal(t, 2*time.Second, mpd.MinBufferTime.Std())
	require.Len(t, mpd.Periods, 1)

	period := mpd.Periods[0]
	require.Len(t, period.AdaptationSets, 2)
	assert.Equal(t, common.MediaTypeVideo, period.AdaptationSets[0].MediaType())
	assert.Equal(t, common.MediaTypeAudio, period.AdaptationSets[1].MediaType())

	tmpl := period.AdaptationSets[0].SegmentTemplate
	require.NotNil(t, tmpl)
	require.NotNil(t, tmpl.Timescale)
	require.NotNil(t, tmpl.Duration)
	require.NotNil(t, tmpl.StartNumber)
	assert.Equal(t, uint64(1000), *tmpl.Timescale)
	assert.Equal(t, uint64(2000), *tmpl.Duration)
	assert.Equal(t, uint64(1), *tmpl.StartNumber)
	assert.Equal(t, "$RepresentationID$/init.mp4", tmpl.InitializationAttr)

	reps := period.AdaptationSets[0].Representations
	require.Len(t, reps, 3)
	assert.Equal(t, "720p", reps[0].ID)
	assert.Equal(t, 3000000, reps[0].Bandwidth)
	assert.Equal(t, 1280, reps[0].Width)

	assert.Equal(t, 10*time.Second, mpd.PeriodDuration(0).Std())
}

func TestParseSegmentListMPD(t *testing.T) {
	mpd, err := Parse([]byte(segmentListMPD))
	require.NoError(t, err)

	assert.Equal(t, TypeStatic, mpd.Type)
	assert.Equal(t, []string{"http://media.example.com/content/"}, baseURLStrings(mpd.BaseURLs))

	list := mpd.Periods[0].AdaptationSets[0].Representations[0].SegmentList
	require.NotNil(t, list)
	require.Len(t, list.SegmentURLs, 3)
	assert.Equal(t, "100-199", list.SegmentURLs[1].MediaRange)
	require.NotNil(t, list.Initialization)
	assert.Equal(t, "init-1.mp4", list.Initialization.SourceURL)
}

func TestParseSingleSegmentMPD(t *testing.T) {
	mpd, err := Parse([]byte(singleSegmentMPD))
	require.NoError(t, err)

	rep := mpd.Periods[0].AdaptationSets[0].Representations[0]
	require.NotNil(t, rep.SegmentBase)
	assert.Equal(t, "800-1200", rep.SegmentBase.IndexRange)
	assert.Equal(t, "0-799", rep.SegmentBase.Initialization.Range)
	assert.Equal(t, []string{"audio-64k.mp4"}, baseURLStrings(rep.BaseURLs))
}

func TestParseLiveMPD(t *testing.T) {
	mpd, err := Parse([]byte(liveTimelineMPD))
	require.NoError(t, err)

	assert.True(t, mpd.IsDynamic())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), mpd.AvailabilityStartTime.UTC())
	assert.Equal(t, 2*time.Second, mpd.MinimumUpdatePeriod.Std())
	assert.Equal(t, 30*time.Second, mpd.TimeShiftBufferDepth.Std())

	tl := mpd.Periods[0].AdaptationSets[0].SegmentTemplate.SegmentTimeline
	require.NotNil(t, tl)
	require.Len(t, tl.Segments, 1)
	assert.Equal(t, 2, tl.Segments[0].RepeatCount)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		code string
	}{
		{"not xml", "this is not xml", common.ErrCodeInvalidFormat},
		{"no periods", `<MPD type="static"></MPD>`, common.ErrCodeManifest},
		{"unknown type", `<MPD type="sometimes"><Period/></MPD>`, common.ErrCodeInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, common.HasCode(err, tt.code), "unexpected error: %v", err)
		})
	}
}

func TestAdaptationSetMediaType(t *testing.T) {
	tests := []struct {
		name     string
		as       *AdaptationSet
		expected common.MediaType
	}{
		{"content type", &AdaptationSet{ContentType: "video"}, common.MediaTypeVideo},
		{"mime type", &AdaptationSet{MimeType: "audio/mp4"}, common.MediaTypeAudio},
		{"representation mime type", &AdaptationSet{Representations: []*Representation{{MimeType: "video/webm"}}}, common.MediaTypeVideo},
		{"text", &AdaptationSet{ContentType: "text"}, common.MediaTypeUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.as.MediaType())
		})
	}
}
