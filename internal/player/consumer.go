package player

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/buffer"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// StallHandler is called when playback resumes after the buffer ran dry
type StallHandler func(mediaType common.MediaType, duration time.Duration)

// Consumer plays a playback buffer out in real time without decoding it. It stands in for
// a renderer: segments are held for their duration, divided by Speed.
type Consumer struct {
	buffer   *buffer.PlaybackBuffer
	speed    float64
	observer Observer
	onStall  StallHandler
	gate     *gate

	mu         sync.Mutex
	started    time.Time
	firstFrame time.Time
	played     time.Duration
	segments   int
	stalls     int
	stalled    time.Duration

	logger logging.Logger
}

// NewConsumer creates a consumer for buf. A speed of 0 plays in real time and an infinite
// speed discards segments as they arrive, without stall accounting.
func NewConsumer(buf *buffer.PlaybackBuffer, speed float64, observer Observer, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if speed <= 0 {
		speed = 1
	}

	return &Consumer{
		buffer:   buf,
		speed:    speed,
		observer: observer,
		gate:     newGate(),
		logger: logger.WithFields(logging.Fields{
			"component":  "consumer",
			"media_type": buf.MediaType(),
		}),
	}
}

// OnStall registers the handler for rebuffer events. Call it before Run.
func (c *Consumer) OnStall(handler StallHandler) {
	c.onStall = handler
}

// CanPush blocks while the buffer is full
func (c *Consumer) CanPush(ctx context.Context) bool {
	return c.buffer.WaitForSpace(ctx)
}

func (c *Consumer) Pause() {
	c.gate.Pause()
}

func (c *Consumer) Resume() {
	c.gate.Resume()
}

// Run plays segments until the buffer reaches end of stream or ctx is done
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	c.started = time.Now()
	c.mu.Unlock()

	c.logger.Debug("Consumer started")

	for {
		if !c.gate.Wait(ctx) {
			return nil
		}

		starving := !math.IsInf(c.speed, 1) && c.hasPlayed() && c.buffer.Len() == 0 && !c.buffer.EOS()
		waitStart := time.Now()

		task, ok := c.buffer.PopFront(ctx)
		if !ok {
			c.logger.Info("Playback finished", logging.Fields{
				"segments":    c.Segments(),
				"played":      common.FormatDuration(c.Played()),
				"stall_count": c.StallCount(),
			})
			return nil
		}

		if starving {
			c.recordStall(time.Since(waitStart))
		}

		c.mu.Lock()
		if c.firstFrame.IsZero() {
			c.firstFrame = time.Now()
		}
		c.mu.Unlock()

		duration := task.Ref.Duration
		task.Release()

		if !c.hold(ctx, duration) {
			return nil
		}

		c.mu.Lock()
		c.played += duration
		c.segments++
		c.mu.Unlock()
	}
}

func (c *Consumer) hold(ctx context.Context, d time.Duration) bool {
	wait := time.Duration(float64(d) / c.speed)
	if wait <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) recordStall(d time.Duration) {
	c.mu.Lock()
	c.stalls++
	c.stalled += d
	c.mu.Unlock()

	mt := c.buffer.MediaType()
	c.logger.Warn("Playback stalled", logging.Fields{
		"duration_ms": d.Milliseconds(),
	})
	c.observer.OnStall(mt, d)
	if c.onStall != nil {
		c.onStall(mt, d)
	}
}

func (c *Consumer) hasPlayed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.firstFrame.IsZero()
}

// Buffered returns the media held in the buffer and the duration of the segment that plays
// next, or 0 when the buffer is empty
func (c *Consumer) Buffered() (level, next time.Duration) {
	return c.buffer.Level(), c.buffer.FrontDuration()
}

// StartupDelay returns the time from Run until the first segment was available
func (c *Consumer) StartupDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firstFrame.IsZero() {
		return 0
	}
	return c.firstFrame.Sub(c.started)
}

// Played returns the media duration played so far
func (c *Consumer) Played() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.played
}

func (c *Consumer) Segments() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.segments
}

func (c *Consumer) StallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalls
}

func (c *Consumer) StallDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalled
}
