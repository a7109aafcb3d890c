package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/segment"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// Observer receives the fill level after every change
type Observer func(mediaType common.MediaType, fillPercent int, capacity int)

// PlaybackBuffer is a bounded FIFO of downloaded segments for one stream. Once EOS is set
// no further pushes are accepted until Clear.
type PlaybackBuffer struct {
	mu              sync.Mutex
	mediaType       common.MediaType
	capacity        int
	segmentDuration time.Duration
	queue           []*segment.Task
	queued          time.Duration
	eos             bool
	changed         chan struct{}

	observer Observer
	logger   logging.Logger
}

// New creates a buffer holding up to capacity segments
func New(mediaType common.MediaType, capacity int, observer Observer, logger logging.Logger) *PlaybackBuffer {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if capacity < 1 {
		capacity = 1
	}

	return &PlaybackBuffer{
		mediaType: mediaType,
		capacity:  capacity,
		changed:   make(chan struct{}),
		observer:  observer,
		logger: logger.WithFields(logging.Fields{
			"component":  "playback_buffer",
			"media_type": mediaType,
		}),
	}
}

// SetSegmentDuration sets the nominal segment duration the fill level is measured against
func (b *PlaybackBuffer) SetSegmentDuration(d time.Duration) {
	b.mu.Lock()
	b.segmentDuration = d
	fill := b.fillLocked()
	b.mu.Unlock()

	b.notify(fill)
}

// Push appends a completed task. It returns false when the buffer is full or at EOS.
func (b *PlaybackBuffer) Push(task *segment.Task) bool {
	b.mu.Lock()
	if b.eos || len(b.queue) >= b.capacity {
		b.logger.Debug("Rejected segment", logging.Fields{
			"number": task.Ref.Number,
			"eos":    b.eos,
			"length": len(b.queue),
		})
		b.mu.Unlock()
		return false
	}

	b.queue = append(b.queue, task)
	b.queued += task.Ref.Duration
	fill := b.fillLocked()
	b.signalLocked()
	b.mu.Unlock()

	b.notify(fill)
	return true
}

// PopFront removes the oldest segment, blocking until one is available. It returns false
// once the buffer is empty and at EOS, or when ctx is done.
func (b *PlaybackBuffer) PopFront(ctx context.Context) (*segment.Task, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			task := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.queued -= task.Ref.Duration
			if len(b.queue) == 0 {
				b.queued = 0
			}
			fill := b.fillLocked()
			b.signalLocked()
			b.mu.Unlock()

			b.notify(fill)
			return task, true
		}
		if b.eos {
			b.mu.Unlock()
			return nil, false
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-changed:
		}
	}
}

// WaitForSpace blocks until a push would be accepted. It returns false at EOS or when ctx
// is done.
func (b *PlaybackBuffer) WaitForSpace(ctx context.Context) bool {
	for {
		b.mu.Lock()
		if b.eos {
			b.mu.Unlock()
			return false
		}
		if len(b.queue) < b.capacity {
			b.mu.Unlock()
			return true
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-changed:
		}
	}
}

// FrontDuration returns the duration of the oldest segment, or 0 when empty
func (b *PlaybackBuffer) FrontDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return 0
	}
	return b.queue[0].Ref.Duration
}

func (b *PlaybackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *PlaybackBuffer) Capacity() int {
	return b.capacity
}

func (b *PlaybackBuffer) MediaType() common.MediaType {
	return b.mediaType
}

// Level returns the playable duration held in the buffer
func (b *PlaybackBuffer) Level() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queued
}

// FillPercent returns the fill level in [0, 100]
func (b *PlaybackBuffer) FillPercent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fillLocked()
}

// SetEOS marks the end of the stream. EOS is terminal: once set, only Clear resets it and
// SetEOS(false) has no effect.
func (b *PlaybackBuffer) SetEOS(eos bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !eos || b.eos {
		return
	}
	b.eos = true
	b.signalLocked()
}

func (b *PlaybackBuffer) EOS() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eos
}

// Clear drops all segments and resets EOS
func (b *PlaybackBuffer) Clear() {
	b.mu.Lock()
	for i := range b.queue {
		b.queue[i] = nil
	}
	b.queue = b.queue[:0]
	b.queued = 0
	b.eos = false
	b.signalLocked()
	b.mu.Unlock()

	b.notify(0)
}

func (b *PlaybackBuffer) fillLocked() int {
	var fill float64
	if b.segmentDuration > 0 {
		fill = float64(b.queued) / (float64(b.capacity) * float64(b.segmentDuration)) * 100
	} else {
		fill = float64(len(b.queue)) / float64(b.capacity) * 100
	}
	return int(max(0, min(100, fill)))
}

// signalLocked wakes everyone waiting for a change
func (b *PlaybackBuffer) signalLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *PlaybackBuffer) notify(fill int) {
	if b.observer != nil {
		b.observer(b.mediaType, fill, b.capacity)
	}
}
