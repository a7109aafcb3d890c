package segment

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/dash-abr-client/pkg/manifest"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
)

// mockConnection serves a fixed payload, optionally blocking until aborted
type mockConnection struct {
	reader  *bytes.Reader
	block   bool
	abortCh chan struct{}
	once    sync.Once
}

func (c *mockConnection) Read(p []byte) (int, error) {
	if c.block {
		<-c.abortCh
		return 0, common.NewStreamError(common.MediaTypeVideo, "", common.ErrCodeAborted, "aborted", nil)
	}
	return c.reader.Read(p)
}

func (c *mockConnection) Abort()                     { c.once.Do(func() { close(c.abortCh) }) }
func (c *mockConnection) AverageSpeed() float64      { return 4_000_000 }
func (c *mockConnection) ElapsedTime() time.Duration { return 250 * time.Millisecond }
func (c *mockConnection) Close() error               { return nil }

type mockTransport struct {
	payload []byte
	block   bool
	err     error
}

func (m *mockTransport) Open(ctx context.Context, req transport.Request) (transport.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &mockConnection{
		reader:  bytes.NewReader(m.payload),
		block:   m.block,
		abortCh: make(chan struct{}),
	}, nil
}

func (m *mockTransport) Type() string { return "mock" }

func testRef() manifest.SegmentReference {
	return manifest.SegmentReference{
		MediaType: common.MediaTypeVideo,
		Number:    3,
		URL:       "http://cdn.example.com/seg-3.m4s",
		Duration:  2 * time.Second,
		Bandwidth: 1_000_000,
	}
}

func TestTaskDownload(t *testing.T) {
	task := NewTask(testRef(), nil)
	assert.Equal(t, StatePending, task.State())

	require.NoError(t, task.StartDownload(context.Background(), &mockTransport{payload: []byte("segment payload")}))
	require.NoError(t, task.WaitFinished(context.Background()))

	assert.Equal(t, StateCompleted, task.State())
	assert.Equal(t, "segment payload", string(task.Data()))
	assert.Equal(t, int64(15), task.Size())
	assert.Equal(t, 4_000_000.0, task.Bps())
	assert.Equal(t, 250*time.Millisecond, task.ElapsedTime())
	assert.False(t, task.WasAborted())

	task.Release()
	assert.Nil(t, task.Data())
}

func TestTaskStartTwice(t *testing.T) {
	task := NewTask(testRef(), nil)
	require.NoError(t, task.StartDownload(context.Background(), &mockTransport{payload: []byte("x")}))

	err := task.StartDownload(context.Background(), &mockTransport{payload: []byte("x")})
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeState))
}

func TestTaskTransportFailure(t *testing.T) {
	failure := errors.New("connection refused")
	task := NewTask(testRef(), nil)

	require.NoError(t, task.StartDownload(context.Background(), &mockTransport{err: failure}))
	err := task.WaitFinished(context.Background())

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, StateAborted, task.State())
	assert.False(t, task.WasAborted())
	assert.Nil(t, task.Data())
}

func TestTaskAbortInProgress(t *testing.T) {
	task := NewTask(testRef(), nil)
	require.NoError(t, task.StartDownload(context.Background(), &mockTransport{block: true}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		task.Abort()
	}()

	err := task.WaitFinished(context.Background())
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.Equal(t, StateAborted, task.State())
	assert.True(t, task.WasAborted())

	// aborting a finished task is a no-op
	task.Abort()
	assert.Equal(t, StateAborted, task.State())
}

func TestTaskAbortBeforeStart(t *testing.T) {
	task := NewTask(testRef(), nil)
	task.Abort()

	require.NoError(t, task.StartDownload(context.Background(), &mockTransport{payload: []byte("x")}))
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("aborted task never finished")
	}
	assert.Equal(t, StateAborted, task.State())
	assert.True(t, IsAborted(task.Err()))
}

func TestTaskWaitFinishedContext(t *testing.T) {
	task := NewTask(testRef(), nil)
	require.NoError(t, task.StartDownload(context.Background(), &mockTransport{block: true}))
	defer task.Abort()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, task.WaitFinished(ctx), context.DeadlineExceeded)
	assert.Equal(t, StateInProgress, task.State())
}

func TestNewCompletedTask(t *testing.T) {
	task := NewCompletedTask(testRef(), []byte("init"))
	assert.Equal(t, StateCompleted, task.State())
	assert.NoError(t, task.WaitFinished(context.Background()))
	assert.Equal(t, "init", string(task.Data()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "in_progress", StateInProgress.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "unknown", State(42).String())
}
