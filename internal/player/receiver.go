package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/adaptation"
	"github.com/RyanBlaney/dash-abr-client/pkg/buffer"
	"github.com/RyanBlaney/dash-abr-client/pkg/manifest"
	"github.com/RyanBlaney/dash-abr-client/pkg/segment"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// ReceiverState is the lifecycle state of a download loop
type ReceiverState int

const (
	ReceiverIdle ReceiverState = iota
	ReceiverBuffering
	ReceiverPaused
	ReceiverStopped
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverIdle:
		return "idle"
	case ReceiverBuffering:
		return "buffering"
	case ReceiverPaused:
		return "paused"
	case ReceiverStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sink provides backpressure from the consumer of the playback buffer
type Sink interface {
	// CanPush blocks until the consumer accepts another segment. It returns false when
	// the consumer is gone.
	CanPush(ctx context.Context) bool
}

// ReceiverOptions wires a download loop to its collaborators. Engine, Sink and Observer
// are optional.
type ReceiverOptions struct {
	View      *manifest.View
	Transport transport.Transport
	Buffer    *buffer.PlaybackBuffer
	Engine    *adaptation.Engine
	Sink      Sink
	Observer  Observer
}

// Receiver is the download loop of one stream. It resolves the next segment, downloads it,
// pushes it to the playback buffer and feeds the measured throughput to the adaptation
// engine.
type Receiver struct {
	mediaType common.MediaType
	view      *manifest.View
	transport transport.Transport
	buffer    *buffer.PlaybackBuffer
	engine    *adaptation.Engine
	sink      Sink
	observer  Observer
	gate      *gate

	mu           sync.Mutex
	state        ReceiverState
	current      *segment.Task
	initCache    map[string]*segment.Task
	noInit       map[string]bool
	pacing       time.Duration
	lastDownload time.Time
	cancel       context.CancelFunc
	done         chan struct{}

	segments int
	bytes    int64
	aborts   int
	lastErr  error

	logger logging.Logger
}

// NewReceiver creates an idle download loop for mediaType
func NewReceiver(mediaType common.MediaType, opts ReceiverOptions, logger logging.Logger) (*Receiver, error) {
	if opts.View == nil || opts.Transport == nil || opts.Buffer == nil {
		return nil, fmt.Errorf("receiver requires a view, a transport and a buffer")
	}
	if !opts.View.HasStream(mediaType) {
		return nil, common.NewStreamError(mediaType, "", common.ErrCodeManifest,
			"manifest has no stream of this type", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Receiver{
		mediaType: mediaType,
		view:      opts.View,
		transport: opts.Transport,
		buffer:    opts.Buffer,
		engine:    opts.Engine,
		sink:      opts.Sink,
		observer:  observer,
		gate:      newGate(),
		initCache: make(map[string]*segment.Task),
		noInit:    make(map[string]bool),
		logger: logger.WithFields(logging.Fields{
			"component":  "receiver",
			"media_type": mediaType,
		}),
	}, nil
}

func (r *Receiver) MediaType() common.MediaType {
	return r.mediaType
}

func (r *Receiver) State() ReceiverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ReceiverBuffering && r.gate.Paused() {
		return ReceiverPaused
	}
	return r.state
}

// Start spawns the download loop. It fails if the loop is already running.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == ReceiverBuffering {
		return common.NewStreamError(r.mediaType, "", common.ErrCodeState, "receiver is already buffering", nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.state = ReceiverBuffering
	r.cancel = cancel
	r.done = make(chan struct{})
	r.lastErr = nil

	r.logger.Info("Starting download loop", logging.Fields{
		"segment_number": r.view.SegmentNumber(r.mediaType),
		"quality":        r.view.Quality(r.mediaType),
	})

	go r.loop(ctx, r.done)
	return nil
}

// Stop ends the loop and waits for it. It does nothing unless the loop is running.
func (r *Receiver) Stop() {
	r.mu.Lock()
	if r.state != ReceiverBuffering {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	r.buffer.SetEOS(true)
	cancel()
	r.gate.Resume()
	<-done
}

// Done is closed when the loop exits
func (r *Receiver) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return r.done
}

// Err returns the failure that ended the loop, if any
func (r *Receiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Pause holds the loop before its next segment
func (r *Receiver) Pause() {
	r.gate.Pause()
}

func (r *Receiver) Resume() {
	r.gate.Resume()
}

// ShouldAbort gives up the in-flight segment. The stream cursor is stepped back and the
// download cancelled, so the same segment is requested again at the current quality.
// It returns false when nothing was in flight.
func (r *Receiver) ShouldAbort() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.current
	if task == nil || task.Ref.Kind != manifest.SegmentMedia || task.State() != segment.StateInProgress {
		return false
	}

	task.Abort()
	if !task.WasAborted() {
		return false
	}

	r.view.RewindSegment(r.mediaType)
	r.aborts++

	r.logger.Info("Aborted in-flight segment", logging.Fields{
		"number":    task.Ref.Number,
		"bandwidth": task.Ref.Bandwidth,
	})
	return true
}

// InFlight returns the segment being downloaded, if any
func (r *Receiver) InFlight() (manifest.SegmentReference, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return manifest.SegmentReference{}, false
	}
	return r.current.Ref, true
}

// RequestPacing asks the loop to space the next request at least d after the previous
// download finished. The largest request since the last download wins.
func (r *Receiver) RequestPacing(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pacing = max(r.pacing, d)
}

// Stats returns the number of pushed segments and bytes, and the aborted downloads
func (r *Receiver) Stats() (segments int, bytes int64, aborts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segments, r.bytes, r.aborts
}

func (r *Receiver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		r.mu.Lock()
		r.state = ReceiverStopped
		r.current = nil
		r.mu.Unlock()
	}()

	for {
		if !r.gate.Wait(ctx) || ctx.Err() != nil {
			return
		}

		if err := r.downloadInitSegment(ctx); err != nil {
			r.fail(ctx, err)
			return
		}

		ref, ok := r.view.NextSegment(ctx, r.mediaType)
		if !ok {
			if ctx.Err() == nil {
				r.logger.Info("Reached end of stream", logging.Fields{
					"segments": r.segmentCount(),
				})
			}
			r.endOfStream()
			return
		}

		if ref.Kind == manifest.SegmentMedia && !r.initReady(ref.RepresentationID) {
			// switched after the init segment was fetched
			r.logger.Debug("Representation changed before its init segment, re-resolving", logging.Fields{
				"number":         ref.Number,
				"representation": ref.RepresentationID,
			})
			r.view.RewindSegment(r.mediaType)
			continue
		}

		if !r.pace(ctx) {
			return
		}

		task := segment.NewTask(ref, r.logger)
		r.setCurrent(task)

		err := task.StartDownload(ctx, r.transport)
		if err == nil {
			err = task.WaitFinished(ctx)
		}
		aborted := task.WasAborted()
		r.finishDownload()

		if ctx.Err() != nil {
			return
		}
		if aborted {
			continue
		}
		if err != nil {
			r.fail(ctx, err)
			return
		}

		if r.sink != nil && !r.sink.CanPush(ctx) {
			r.logger.Debug("Consumer gone, dropping segment", logging.Fields{"number": ref.Number})
			return
		}
		if !r.buffer.Push(task) {
			r.logger.Warn("Playback buffer rejected segment", logging.Fields{"number": ref.Number})
			r.mu.Lock()
			r.lastErr = common.NewStreamError(r.mediaType, ref.URL, common.ErrCodeBufferRejected,
				"playback buffer rejected segment", nil)
			r.mu.Unlock()
			return
		}

		r.record(task)
		r.feedEngine(task)
	}
}

// downloadInitSegment fetches the initialization segment of the active representation once
// per representation id
func (r *Receiver) downloadInitSegment(ctx context.Context) error {
	ref, ok := r.view.InitSegment(r.mediaType)
	if !ok {
		r.mu.Lock()
		r.noInit[ref.RepresentationID] = true
		r.mu.Unlock()
		return nil
	}

	r.mu.Lock()
	cached, exists := r.initCache[ref.RepresentationID]
	r.mu.Unlock()
	if exists && cached.State() == segment.StateCompleted {
		return nil
	}

	task := segment.NewTask(ref, r.logger)
	r.setCurrent(task)
	err := task.StartDownload(ctx, r.transport)
	if err == nil {
		err = task.WaitFinished(ctx)
	}
	r.finishDownload()
	if err != nil {
		return fmt.Errorf("failed to download init segment: %w", err)
	}

	r.mu.Lock()
	r.initCache[ref.RepresentationID] = task
	r.mu.Unlock()

	r.logger.Debug("Downloaded init segment", logging.Fields{
		"representation": ref.RepresentationID,
		"bytes":          task.Size(),
	})
	return nil
}

// initReady reports whether media segments of a representation can be pushed: its init
// segment is cached or it has none
func (r *Receiver) initReady(representationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.noInit[representationID] {
		return true
	}
	task, ok := r.initCache[representationID]
	return ok && task.State() == segment.StateCompleted
}

// InitSegment returns the cached initialization payload of a representation
func (r *Receiver) InitSegment(representationID string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.initCache[representationID]
	if !ok {
		return nil, false
	}
	return task.Data(), true
}

// pace sleeps out the requested pacing delay. It returns false when ctx is done.
func (r *Receiver) pace(ctx context.Context) bool {
	r.mu.Lock()
	target := r.pacing
	last := r.lastDownload
	r.pacing = 0
	r.mu.Unlock()

	if target <= 0 || last.IsZero() {
		return true
	}
	wait := target - time.Since(last)
	if wait <= 0 {
		return true
	}

	r.logger.Debug("Pacing next request", logging.Fields{"wait_ms": wait.Milliseconds()})

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Receiver) setCurrent(task *segment.Task) {
	r.mu.Lock()
	r.current = task
	r.mu.Unlock()
}

func (r *Receiver) finishDownload() {
	r.mu.Lock()
	r.current = nil
	r.lastDownload = time.Now()
	r.mu.Unlock()
}

func (r *Receiver) segmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segments
}

func (r *Receiver) record(task *segment.Task) {
	r.mu.Lock()
	r.segments++
	r.bytes += task.Size()
	r.mu.Unlock()

	quality := r.view.Quality(r.mediaType)
	if r.engine != nil {
		quality = r.engine.Quality()
	}

	r.observer.OnSegmentDownloaded(common.SegmentStats{
		MediaType:      r.mediaType,
		SegmentNumber:  task.Ref.Number,
		Bitrate:        task.Ref.Bandwidth,
		Quality:        quality,
		BufferFill:     r.buffer.FillPercent(),
		Bytes:          task.Size(),
		ThroughputBps:  task.Bps(),
		DownloadTimeMs: task.ElapsedTime().Milliseconds(),
	})
}

// feedEngine reports the download time before the throughput so pacing strategies see the
// sample that produced the throughput
func (r *Receiver) feedEngine(task *segment.Task) {
	if r.engine == nil || !r.engine.IsRateBased() {
		return
	}
	r.engine.DownloadTimeUpdate(task.ElapsedTime())
	r.engine.BitrateUpdate(task.Bps(), task.Ref.Number)
}

func (r *Receiver) endOfStream() {
	r.buffer.SetEOS(true)
	if r.engine != nil {
		r.engine.OnEOS(true)
	}
}

func (r *Receiver) fail(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
	case segment.IsAborted(err):
		r.logger.Warn("Segment download cancelled", logging.Fields{
			"segments": r.segmentCount(),
			"error":    err.Error(),
		})
	default:
		r.logger.Error(err, "Segment download failed", logging.Fields{
			"segments": r.segmentCount(),
		})
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
	}
	r.endOfStream()
}
