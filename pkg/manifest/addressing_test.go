package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

func addressingFor(t *testing.T, data string, asIdx, repIdx int, chain []string) *Addressing {
	t.Helper()
	mpd, err := Parse([]byte(data))
	require.NoError(t, err)

	as := mpd.Periods[0].AdaptationSets[asIdx]
	a := newAddressing(mpd, 0, as, as.Representations[repIdx], chain, as.MediaType())
	require.NotNil(t, a)
	return a
}

func TestTemplateAddressing(t *testing.T) {
	a := addressingFor(t, staticTemplateMPD, 0, 1, []string{"http://cdn.example.com/vod/"})

	assert.Equal(t, AddressingTemplate, a.Kind)
	assert.Equal(t, 5, a.Count())
	assert.Equal(t, 2*time.Second, a.SegmentDuration())

	ref, ok := a.MediaSegment(0)
	require.True(t, ok)
	assert.Equal(t, "http://cdn.example.com/vod/360p/seg-00001.m4s", ref.URL)
	assert.Equal(t, time.Duration(0), ref.Start)
	assert.Equal(t, 2*time.Second, ref.Duration)
	assert.Equal(t, 800000, ref.Bandwidth)

	ref, ok = a.MediaSegment(3)
	require.True(t, ok)
	assert.Equal(t, "http://cdn.example.com/vod/360p/seg-00004.m4s", ref.URL)
	assert.Equal(t, 6*time.Second, ref.Start)

	init, ok := a.InitSegment()
	require.True(t, ok)
	assert.Equal(t, SegmentInit, init.Kind)
	assert.Equal(t, "http://cdn.example.com/vod/360p/init.mp4", init.URL)

	_, ok = a.IndexSegment()
	assert.False(t, ok)
}

func TestTemplateAddressingBandwidth(t *testing.T) {
	a := addressingFor(t, staticTemplateMPD, 1, 0, []string{"http://cdn.example.com/vod/"})

	assert.Equal(t, common.MediaTypeAudio, a.mediaType)
	assert.Equal(t, 5, a.Count())

	ref, ok := a.MediaSegment(0)
	require.True(t, ok)
	assert.Equal(t, "http://cdn.example.com/vod/audio/128000/1.m4s", ref.URL)
}

func TestListAddressing(t *testing.T) {
	a := addressingFor(t, segmentListMPD, 0, 0, []string{"http://media.example.com/content/", "video/"})

	assert.Equal(t, AddressingList, a.Kind)
	assert.Equal(t, 3, a.Count())
	assert.Equal(t, 2*time.Second, a.SegmentDuration())

	ref, ok := a.MediaSegment(1)
	require.True(t, ok)
	assert.Equal(t, "http://media.example.com/content/video/s2.m4s", ref.URL)
	assert.Equal(t, "100-199", ref.Range)
	assert.Equal(t, 2*time.Second, ref.Start)

	_, ok = a.MediaSegment(3)
	assert.False(t, ok)

	init, ok := a.InitSegment()
	require.True(t, ok)
	assert.Equal(t, "http://media.example.com/content/video/init-1.mp4", init.URL)
}

func TestSingleAddressing(t *testing.T) {
	a := addressingFor(t, singleSegmentMPD, 0, 0, []string{"http://host/dir/"})

	assert.Equal(t, AddressingSingle, a.Kind)
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 30*time.Second, a.SegmentDuration())

	ref, ok := a.MediaSegment(0)
	require.True(t, ok)
	assert.Equal(t, "http://host/dir/audio-64k.mp4", ref.URL)
	assert.Equal(t, 30*time.Second, ref.Duration)

	_, ok = a.MediaSegment(1)
	assert.False(t, ok)

	init, ok := a.InitSegment()
	require.True(t, ok)
	assert.Equal(t, "http://host/dir/audio-64k.mp4", init.URL)
	assert.Equal(t, "0-799", init.Range)

	index, ok := a.IndexSegment()
	require.True(t, ok)
	assert.Equal(t, "800-1200", index.Range)
}

func TestUndefinedAddressing(t *testing.T) {
	mpd := &MPD{Periods: []*Period{{AdaptationSets: []*AdaptationSet{{
		ContentType:     "video",
		Representations: []*Representation{{ID: "1", Bandwidth: 1}},
	}}}}}
	as := mpd.Periods[0].AdaptationSets[0]
	assert.Nil(t, newAddressing(mpd, 0, as, as.Representations[0], nil, common.MediaTypeVideo))
}

func TestAddressingLevelOrder(t *testing.T) {
	// A representation-level list wins over an adaptation set template
	duration := uint64(4)
	mpd := &MPD{Periods: []*Period{{AdaptationSets: []*AdaptationSet{{
		ContentType:     "video",
		SegmentTemplate: &SegmentTemplate{Media: "$Number$.m4s"},
		Representations: []*Representation{{
			ID:        "1",
			Bandwidth: 1,
			SegmentList: &SegmentList{
				MultipleSegmentBase: MultipleSegmentBase{Duration: &duration},
				SegmentURLs:         []*SegmentURL{{Media: "a.m4s"}},
			},
		}},
	}}}}}
	as := mpd.Periods[0].AdaptationSets[0]
	a := newAddressing(mpd, 0, as, as.Representations[0], []string{"http://h/"}, common.MediaTypeVideo)
	require.NotNil(t, a)
	assert.Equal(t, AddressingList, a.Kind)
}

func TestTimelineAddressing(t *testing.T) {
	a := addressingFor(t, liveTimelineMPD, 0, 0, []string{"http://live.example.com/"})

	assert.True(t, a.HasTimeline())
	assert.False(t, a.clockDriven())
	assert.Equal(t, 3, a.Count())

	ref, ok := a.MediaSegment(2)
	require.True(t, ok)
	assert.Equal(t, "http://live.example.com/1/14000.m4s", ref.URL)
	assert.Equal(t, 14*time.Second, ref.Start)

	_, ok = a.MediaSegment(3)
	assert.False(t, ok)
}

func TestTimelineTimeRoundTrip(t *testing.T) {
	a := addressingFor(t, liveTimelineMPD, 0, 0, []string{"http://live.example.com/"})

	for position := 0; position <= a.Count(); position++ {
		assert.Equal(t, position, a.PositionAt(a.TimeOf(position)), "position %d", position)
	}

	assert.Equal(t, 1, a.PositionAt(13*time.Second))
	assert.Equal(t, 0, a.PositionAt(-time.Second))
	assert.Equal(t, 3, a.PositionAt(time.Hour))
}

func TestDurationTimeRoundTrip(t *testing.T) {
	a := addressingFor(t, staticTemplateMPD, 1, 0, []string{"http://h/"})

	for position := 0; position < 10; position++ {
		assert.Equal(t, position, a.PositionAt(a.TimeOf(position)), "position %d", position)
	}
	assert.Equal(t, 2, a.PositionAt(5*time.Second))
}

func TestExpandTimelineNegativeRepeat(t *testing.T) {
	zero := uint64(0)
	tl := &SegmentTimeline{Segments: []*SegmentTimelineSegment{
		{StartTime: &zero, Duration: 2, RepeatCount: -1},
	}}

	entries := expandTimeline(tl, 0, 10*time.Second, 1)
	require.Len(t, entries, 5)
	assert.Equal(t, uint64(8), entries[4].start)

	startAt := uint64(20)
	tl.Segments = append(tl.Segments, &SegmentTimelineSegment{StartTime: &startAt, Duration: 5})
	entries = expandTimeline(tl, 0, 0, 1)
	require.Len(t, entries, 11)
	assert.Equal(t, uint64(18), entries[9].start)
	assert.Equal(t, uint64(20), entries[10].start)
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		name     string
		chain    []string
		path     string
		expected string
	}{
		{"single base", []string{"http://h/a/"}, "s.m4s", "http://h/a/s.m4s"},
		{"base without slash", []string{"http://h/a"}, "s.m4s", "http://h/a/s.m4s"},
		{"relative chain", []string{"http://h/a/", "b", "c/"}, "s.m4s", "http://h/a/b/c/s.m4s"},
		{"absolute override", []string{"http://h/a/", "https://other/x/"}, "s.m4s", "https://other/x/s.m4s"},
		{"absolute path", []string{"http://h/a/"}, "http://z/s.m4s", "http://z/s.m4s"},
		{"file as last base", []string{"http://h/a/", "b", "f.mp4"}, "", "http://h/a/b/f.mp4"},
		{"empty chain", nil, "s.m4s", "s.m4s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, joinURL(tt.chain, tt.path))
		})
	}
}

func TestUnitConversion(t *testing.T) {
	assert.Equal(t, uint64(90000), toUnits(time.Second, 90000))
	assert.Equal(t, uint64(1), toUnits(time.Nanosecond, 1))
	assert.Equal(t, uint64(0), toFloorUnits(time.Nanosecond, 1))
	assert.Equal(t, 1500*time.Millisecond, fromUnits(135000, 90000))
	assert.Equal(t, uint64(0), toUnits(-time.Second, 1000))
}
