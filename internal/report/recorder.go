package report

import (
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

// BufferSample is one buffer fill observation
type BufferSample struct {
	MediaType   common.MediaType `json:"media_type"`
	FillPercent int              `json:"fill_percent"`
	At          time.Time        `json:"at"`
}

// StallEvent is one rebuffering interval
type StallEvent struct {
	MediaType common.MediaType `json:"media_type"`
	Duration  time.Duration    `json:"duration"`
	At        time.Time        `json:"at"`
}

// Recorder keeps the trace of a session. It satisfies the player observer contract.
type Recorder struct {
	mu       sync.Mutex
	segments []common.SegmentStats
	changes  []common.QualityChange
	buffer   []BufferSample
	stalls   []StallEvent
	now      func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

func (r *Recorder) OnSegmentDownloaded(stats common.SegmentStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = append(r.segments, stats)
}

func (r *Recorder) OnQualityChange(change common.QualityChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *Recorder) OnBufferLevel(mediaType common.MediaType, fillPercent, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, BufferSample{MediaType: mediaType, FillPercent: fillPercent, At: r.now()})
}

func (r *Recorder) OnStall(mediaType common.MediaType, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stalls = append(r.stalls, StallEvent{MediaType: mediaType, Duration: duration, At: r.now()})
}

// Trace is a copy of everything recorded so far
type Trace struct {
	Segments []common.SegmentStats  `json:"segments"`
	Changes  []common.QualityChange `json:"changes"`
	Buffer   []BufferSample         `json:"buffer"`
	Stalls   []StallEvent           `json:"stalls"`
}

func (r *Recorder) Trace() *Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Trace{
		Segments: append([]common.SegmentStats(nil), r.segments...),
		Changes:  append([]common.QualityChange(nil), r.changes...),
		Buffer:   append([]BufferSample(nil), r.buffer...),
		Stalls:   append([]StallEvent(nil), r.stalls...),
	}
}
