package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/manifest"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// State is the lifecycle of a segment download
type State int

const (
	StatePending State = iota
	StateInProgress
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Task is one segment download. The payload belongs to the task until it is pushed to a
// playback buffer, after which the buffer's consumer owns it.
type Task struct {
	Ref manifest.SegmentReference

	mu      sync.Mutex
	state   State
	data    []byte
	err     error
	bps     float64
	elapsed time.Duration
	conn    transport.Connection
	cancel  context.CancelFunc
	aborted bool
	done    chan struct{}

	logger logging.Logger
}

// NewTask creates a pending task for ref
func NewTask(ref manifest.SegmentReference, logger logging.Logger) *Task {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &Task{
		Ref:   ref,
		state: StatePending,
		done:  make(chan struct{}),
		logger: logger.WithFields(logging.Fields{
			"component":  "segment_task",
			"media_type": ref.MediaType,
			"number":     ref.Number,
		}),
	}
}

// NewCompletedTask wraps an already available payload
func NewCompletedTask(ref manifest.SegmentReference, data []byte) *Task {
	t := NewTask(ref, nil)
	t.state = StateCompleted
	t.data = data
	close(t.done)
	return t
}

// StartDownload opens the segment on tr and reads it in the background. It fails if the
// task is not pending.
func (t *Task) StartDownload(ctx context.Context, tr transport.Transport) error {
	t.mu.Lock()
	if t.state != StatePending {
		state := t.state
		t.mu.Unlock()
		return common.NewStreamError(t.Ref.MediaType, t.Ref.URL, common.ErrCodeState,
			fmt.Sprintf("cannot start download in state %s", state), nil)
	}
	if t.aborted {
		t.mu.Unlock()
		t.finish(nil, common.NewStreamError(t.Ref.MediaType, t.Ref.URL,
			common.ErrCodeAborted, "aborted before start", nil))
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	t.state = StateInProgress
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx, tr)
	return nil
}

func (t *Task) run(ctx context.Context, tr transport.Transport) {
	defer t.cancel()

	conn, err := tr.Open(ctx, transport.Request{URL: t.Ref.URL, Range: t.Ref.Range})
	if err != nil {
		t.finish(nil, err)
		return
	}
	defer conn.Close()

	t.mu.Lock()
	t.conn = conn
	aborted := t.aborted
	t.mu.Unlock()
	if aborted {
		conn.Abort()
	}

	var buf bytes.Buffer
	_, err = io.Copy(&buf, conn)

	t.mu.Lock()
	t.bps = conn.AverageSpeed()
	t.elapsed = conn.ElapsedTime()
	t.mu.Unlock()

	if err != nil {
		t.finish(nil, err)
		return
	}
	t.finish(buf.Bytes(), nil)
}

func (t *Task) finish(data []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateCompleted || t.state == StateAborted {
		return
	}

	if err != nil || t.aborted {
		if err == nil {
			err = common.NewStreamError(t.Ref.MediaType, t.Ref.URL, common.ErrCodeAborted, "download aborted", nil)
		}
		t.state = StateAborted
		t.err = err
		t.logger.Debug("Segment download aborted", logging.Fields{
			"url":   t.Ref.URL,
			"error": err.Error(),
		})
	} else {
		t.state = StateCompleted
		t.data = data
	}
	close(t.done)
}

// Abort stops the download. A pending task is aborted as soon as it is started.
func (t *Task) Abort() {
	t.mu.Lock()
	if t.state == StateCompleted || t.state == StateAborted {
		t.mu.Unlock()
		return
	}
	t.aborted = true
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()

	if conn != nil {
		conn.Abort()
	}
	if cancel != nil {
		cancel()
	}
}

// WaitFinished blocks until the download completes or aborts, or ctx is done.
// It returns the download error, if any.
func (t *Task) WaitFinished(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the task reaches a terminal state
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// WasAborted reports whether the task ended through an explicit Abort
func (t *Task) WasAborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// Bps returns the measured throughput of the finished download in bits per second
func (t *Task) Bps() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bps
}

// ElapsedTime returns the wall time of the finished download
func (t *Task) ElapsedTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Data returns the payload of a completed task
func (t *Task) Data() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// Size returns the payload length in bytes
func (t *Task) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.data))
}

// Release drops the payload once the consumer has read it
func (t *Task) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = nil
}

// IsAborted reports whether err came from an aborted download
func IsAborted(err error) bool {
	return common.HasCode(err, common.ErrCodeAborted) || errors.Is(err, context.Canceled)
}
