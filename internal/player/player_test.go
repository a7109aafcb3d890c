package player

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/dash-abr-client/pkg/adaptation"
	"github.com/RyanBlaney/dash-abr-client/pkg/buffer"
	"github.com/RyanBlaney/dash-abr-client/pkg/manifest"
	"github.com/RyanBlaney/dash-abr-client/pkg/segment"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

const testLocation = "http://test.local/vod/manifest.mpd"

const vodMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT10S">
  <Period id="0">
    <AdaptationSet id="1" contentType="video" mimeType="video/mp4">
      <SegmentTemplate timescale="1000" duration="2000" startNumber="1" media="$RepresentationID$/$Number$.m4s" initialization="$RepresentationID$/init.mp4"/>
      <Representation id="v1000" bandwidth="1000000"/>
      <Representation id="v500" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`

const liveMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2024-01-01T00:00:00Z" minimumUpdatePeriod="PT0.05S" timeShiftBufferDepth="PT30S">
  <Period id="1" start="PT0S">
    <AdaptationSet id="v" contentType="video">
      <SegmentTemplate timescale="1000" media="$RepresentationID$/$Time$.m4s">
        <SegmentTimeline>
          <S t="10000" d="2000" r="%d"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="1" bandwidth="1000000"/>
    </AdaptationSet>
  </Period>
</MPD>`

// fakeConnection serves a payload, or blocks until aborted
type fakeConnection struct {
	ctx     context.Context
	reader  *bytes.Reader
	block   bool
	abortCh chan struct{}
	once    sync.Once
	bps     float64
	elapsed time.Duration
}

func (c *fakeConnection) Read(p []byte) (int, error) {
	if c.block {
		select {
		case <-c.abortCh:
		case <-c.ctx.Done():
		}
		return 0, common.NewStreamError(common.MediaTypeVideo, "", common.ErrCodeAborted, "aborted", nil)
	}
	return c.reader.Read(p)
}

func (c *fakeConnection) Abort()                     { c.once.Do(func() { close(c.abortCh) }) }
func (c *fakeConnection) AverageSpeed() float64      { return c.bps }
func (c *fakeConnection) ElapsedTime() time.Duration { return c.elapsed }
func (c *fakeConnection) Close() error               { return nil }

// fakeTransport serves any URL. Documents registered by URL are served verbatim.
type fakeTransport struct {
	mu        sync.Mutex
	bps       float64
	documents map[string]string
	fail      map[string]bool
	blockOnce map[string]bool
	blockAll  bool
	onOpen    func(url string)
	requests  []string
	opened    []time.Time
}

func newFakeTransport(bps float64) *fakeTransport {
	return &fakeTransport{
		bps:       bps,
		documents: make(map[string]string),
		fail:      make(map[string]bool),
		blockOnce: make(map[string]bool),
	}
}

func (f *fakeTransport) Open(ctx context.Context, req transport.Request) (transport.Connection, error) {
	if f.onOpen != nil {
		f.onOpen(req.URL)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req.URL)
	f.opened = append(f.opened, time.Now())

	if f.fail[req.URL] {
		return nil, common.NewStreamError(common.MediaTypeVideo, req.URL, common.ErrCodeConnection, "connection refused", nil)
	}

	block := f.blockAll || f.blockOnce[req.URL]
	delete(f.blockOnce, req.URL)

	payload := "payload:" + req.URL
	if doc, ok := f.documents[req.URL]; ok {
		payload = doc
	}

	return &fakeConnection{
		ctx:     ctx,
		reader:  bytes.NewReader([]byte(payload)),
		block:   block,
		abortCh: make(chan struct{}),
		bps:     f.bps,
		elapsed: 100 * time.Millisecond,
	}, nil
}

func (f *fakeTransport) Type() string { return "fake" }

func (f *fakeTransport) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeTransport) count(url string) int {
	n := 0
	for _, r := range f.Requests() {
		if r == url {
			n++
		}
	}
	return n
}

// recorder collects observer events
type recorder struct {
	mu       sync.Mutex
	segments []common.SegmentStats
	changes  []common.QualityChange
	levels   []int
	stalls   []time.Duration
	onSeg    func(common.SegmentStats)
}

func (r *recorder) OnSegmentDownloaded(stats common.SegmentStats) {
	r.mu.Lock()
	r.segments = append(r.segments, stats)
	hook := r.onSeg
	r.mu.Unlock()
	if hook != nil {
		hook(stats)
	}
}

func (r *recorder) OnQualityChange(change common.QualityChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recorder) OnBufferLevel(_ common.MediaType, fillPercent, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, fillPercent)
}

func (r *recorder) OnStall(_ common.MediaType, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stalls = append(r.stalls, d)
}

func (r *recorder) Segments() []common.SegmentStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]common.SegmentStats(nil), r.segments...)
}

func (r *recorder) Changes() []common.QualityChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]common.QualityChange(nil), r.changes...)
}

func newTestView(t *testing.T, doc string) *manifest.View {
	t.Helper()
	mpd, err := manifest.Parse([]byte(doc))
	require.NoError(t, err)
	view, err := manifest.NewView(mpd, testLocation, logging.NewDefaultLogger())
	require.NoError(t, err)
	return view
}

type receiverFixture struct {
	view      *manifest.View
	transport *fakeTransport
	buffer    *buffer.PlaybackBuffer
	engine    *adaptation.Engine
	receiver  *Receiver
	observer  *recorder
}

func newReceiverFixture(t *testing.T, kind adaptation.Kind, bps float64) *receiverFixture {
	t.Helper()
	f := &receiverFixture{
		view:      newTestView(t, vodMPD),
		transport: newFakeTransport(bps),
		observer:  &recorder{},
	}

	f.buffer = buffer.New(common.MediaTypeVideo, 10, nil, nil)
	f.buffer.SetSegmentDuration(f.view.SegmentDuration(common.MediaTypeVideo))

	engine, err := adaptation.NewFactory(nil, nil).Create(kind, common.MediaTypeVideo, f.view.Bitrates(common.MediaTypeVideo))
	require.NoError(t, err)
	f.engine = engine

	f.receiver, err = NewReceiver(common.MediaTypeVideo, ReceiverOptions{
		View:      f.view,
		Transport: f.transport,
		Buffer:    f.buffer,
		Engine:    engine,
		Observer:  f.observer,
	}, logging.NewDefaultLogger())
	require.NoError(t, err)
	return f
}

func waitDone(t *testing.T, r *Receiver) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not finish")
	}
}

func drainNumbers(t *testing.T, b *buffer.PlaybackBuffer) []int {
	t.Helper()
	var numbers []int
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		task, ok := b.PopFront(ctx)
		if !ok {
			return numbers
		}
		numbers = append(numbers, task.Ref.Number)
	}
}

func TestReceiverStaticContentReachesEOS(t *testing.T) {
	f := newReceiverFixture(t, adaptation.KindAlwaysLowest, 2_000_000)

	assert.Equal(t, ReceiverIdle, f.receiver.State())
	require.NoError(t, f.receiver.Start(context.Background()))
	waitDone(t, f.receiver)

	assert.Equal(t, ReceiverStopped, f.receiver.State())
	assert.True(t, f.buffer.EOS())
	assert.NoError(t, f.receiver.Err())

	segments, size, aborts := f.receiver.Stats()
	assert.Equal(t, 5, segments)
	assert.Positive(t, size)
	assert.Zero(t, aborts)

	assert.Equal(t, 1, f.transport.count("http://test.local/vod/v500/init.mp4"))
	init, ok := f.receiver.InitSegment("v500")
	require.True(t, ok)
	assert.Equal(t, "payload:http://test.local/vod/v500/init.mp4", string(init))

	numbers := drainNumbers(t, f.buffer)
	require.Len(t, numbers, 5)
	for i := 1; i < len(numbers); i++ {
		assert.Greater(t, numbers[i], numbers[i-1])
	}

	stats := f.observer.Segments()
	require.Len(t, stats, 5)
	assert.Equal(t, 500_000, stats[0].Bitrate)
	assert.Equal(t, 0, stats[0].Quality)
	assert.Equal(t, int64(100), stats[0].DownloadTimeMs)
	assert.Equal(t, 2_000_000.0, stats[0].ThroughputBps)
}

func TestReceiverFetchesInitAfterLateSwitch(t *testing.T) {
	f := newReceiverFixture(t, adaptation.KindAlwaysLowest, 2_000_000)

	const lowInit = "http://test.local/vod/v500/init.mp4"
	const highInit = "http://test.local/vod/v1000/init.mp4"

	// the switch lands while the low init segment is downloading, before the first
	// media segment is resolved
	f.transport.onOpen = func(url string) {
		if url == lowInit {
			f.view.SelectRepresentation(common.MediaTypeVideo, 1)
		}
	}

	require.NoError(t, f.receiver.Start(context.Background()))
	waitDone(t, f.receiver)
	require.NoError(t, f.receiver.Err())

	requests := f.transport.Requests()
	initAt := -1
	for i, url := range requests {
		if url == highInit {
			initAt = i
			break
		}
	}
	require.GreaterOrEqual(t, initAt, 0, "init segment of the new representation was never fetched")

	for i, url := range requests {
		if strings.HasPrefix(url, "http://test.local/vod/v1000/") && strings.HasSuffix(url, ".m4s") {
			assert.Greater(t, i, initAt, "media %s requested before its init segment", url)
		}
	}
	assert.Equal(t, 1, f.transport.count(highInit))

	numbers := drainNumbers(t, f.buffer)
	require.Len(t, numbers, 5)
	for i := 1; i < len(numbers); i++ {
		assert.Greater(t, numbers[i], numbers[i-1])
	}
}

func TestReceiverFeedsRateBasedEngine(t *testing.T) {
	f := newReceiverFixture(t, adaptation.KindRateBased, 2_000_000)

	require.NoError(t, f.receiver.Start(context.Background()))
	waitDone(t, f.receiver)

	assert.Equal(t, 1, f.engine.Quality())
	assert.Equal(t, 1_000_000, f.engine.Bitrate())
}

func TestReceiverStartTwice(t *testing.T) {
	f := newReceiverFixture(t, adaptation.KindAlwaysLowest, 1_000_000)
	f.transport.blockAll = true

	require.NoError(t, f.receiver.Start(context.Background()))
	err := f.receiver.Start(context.Background())
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeState))

	f.receiver.Stop()
	assert.Equal(t, ReceiverStopped, f.receiver.State())
	assert.True(t, f.buffer.EOS())
	assert.NoError(t, f.receiver.Err())

	// stopping again is a no-op
	f.receiver.Stop()
}

func TestReceiverTransportFailure(t *testing.T) {
	f := newReceiverFixture(t, adaptation.KindAlwaysLowest, 1_000_000)
	f.transport.fail["http://test.local/vod/v500/3.m4s"] = true

	require.NoError(t, f.receiver.Start(context.Background()))
	waitDone(t, f.receiver)

	require.Error(t, f.receiver.Err())
	assert.True(t, common.HasCode(f.receiver.Err(), common.ErrCodeConnection))
	assert.True(t, f.buffer.EOS())

	segments, _, _ := f.receiver.Stats()
	assert.Equal(t, 2, segments)
	assert.Len(t, f.observer.Segments(), 2)
}

func TestReceiverShouldAbortRequestsSegmentAgain(t *testing.T) {
	f := newReceiverFixture(t, adaptation.KindAlwaysLowest, 1_000_000)
	blocked := "http://test.local/vod/v500/2.m4s"
	f.transport.blockOnce[blocked] = true

	assert.False(t, f.receiver.ShouldAbort(), "nothing in flight before start")

	require.NoError(t, f.receiver.Start(context.Background()))
	require.Eventually(t, func() bool {
		ref, ok := f.receiver.InFlight()
		return ok && ref.URL == blocked && f.transport.count(blocked) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, f.receiver.ShouldAbort())
	waitDone(t, f.receiver)

	assert.NoError(t, f.receiver.Err())
	assert.Equal(t, 2, f.transport.count(blocked))

	segments, _, aborts := f.receiver.Stats()
	assert.Equal(t, 5, segments)
	assert.Equal(t, 1, aborts)

	numbers := drainNumbers(t, f.buffer)
	require.Len(t, numbers, 5)
	for i := 1; i < len(numbers); i++ {
		assert.Equal(t, numbers[i-1]+1, numbers[i])
	}
}

func TestReceiverPacing(t *testing.T) {
	f := newReceiverFixture(t, adaptation.KindAlwaysLowest, 1_000_000)
	f.observer.onSeg = func(stats common.SegmentStats) {
		if len(f.observer.Segments()) == 1 {
			f.receiver.RequestPacing(150 * time.Millisecond)
		}
	}

	require.NoError(t, f.receiver.Start(context.Background()))
	waitDone(t, f.receiver)

	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	// init, 1, 2, ...
	require.GreaterOrEqual(t, len(f.transport.opened), 3)
	assert.GreaterOrEqual(t, f.transport.opened[2].Sub(f.transport.opened[1]), 150*time.Millisecond)
}

func TestReceiverPauseResume(t *testing.T) {
	f := newReceiverFixture(t, adaptation.KindAlwaysLowest, 1_000_000)

	f.receiver.Pause()
	require.NoError(t, f.receiver.Start(context.Background()))
	assert.Equal(t, ReceiverPaused, f.receiver.State())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.transport.Requests())

	f.receiver.Resume()
	waitDone(t, f.receiver)

	segments, _, _ := f.receiver.Stats()
	assert.Equal(t, 5, segments)
}

func TestReceiverRejectsUnknownStream(t *testing.T) {
	view := newTestView(t, vodMPD)
	_, err := NewReceiver(common.MediaTypeAudio, ReceiverOptions{
		View:      view,
		Transport: newFakeTransport(1),
		Buffer:    buffer.New(common.MediaTypeAudio, 1, nil, nil),
	}, nil)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeManifest))

	_, err = NewReceiver(common.MediaTypeVideo, ReceiverOptions{View: view}, nil)
	assert.Error(t, err)
}

func segmentTask(number int, d time.Duration) *segment.Task {
	return segment.NewCompletedTask(manifest.SegmentReference{
		MediaType: common.MediaTypeVideo,
		Number:    number,
		Duration:  d,
	}, []byte("media"))
}

func TestConsumerPlaysBufferOut(t *testing.T) {
	b := buffer.New(common.MediaTypeVideo, 5, nil, nil)
	consumer := NewConsumer(b, 1, nil, nil)

	for i := 0; i < 3; i++ {
		require.True(t, b.Push(segmentTask(i, 10*time.Millisecond)))
	}
	b.SetEOS(true)

	require.NoError(t, consumer.Run(context.Background()))
	assert.Equal(t, 3, consumer.Segments())
	assert.Equal(t, 30*time.Millisecond, consumer.Played())
	assert.Zero(t, consumer.StallCount())
	assert.Equal(t, 0, b.Len())
}

func TestConsumerRecordsStall(t *testing.T) {
	b := buffer.New(common.MediaTypeVideo, 5, nil, nil)
	obs := &recorder{}
	consumer := NewConsumer(b, 1, obs, nil)

	var mu sync.Mutex
	var handled []time.Duration
	consumer.OnStall(func(_ common.MediaType, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, d)
	})

	require.True(t, b.Push(segmentTask(1, 10*time.Millisecond)))

	done := make(chan error, 1)
	go func() { done <- consumer.Run(context.Background()) }()

	time.Sleep(60 * time.Millisecond)
	require.True(t, b.Push(segmentTask(2, 10*time.Millisecond)))
	b.SetEOS(true)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not finish")
	}

	assert.Equal(t, 1, consumer.StallCount())
	assert.GreaterOrEqual(t, consumer.StallDuration(), 20*time.Millisecond)
	assert.Equal(t, 2, consumer.Segments())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, handled, 1)
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Len(t, obs.stalls, 1)
}

func TestConsumerBuffered(t *testing.T) {
	b := buffer.New(common.MediaTypeVideo, 5, nil, nil)
	consumer := NewConsumer(b, 1, nil, nil)

	level, next := consumer.Buffered()
	assert.Zero(t, level)
	assert.Zero(t, next)

	require.True(t, b.Push(segmentTask(1, 2*time.Second)))
	require.True(t, b.Push(segmentTask(2, 3*time.Second)))

	level, next = consumer.Buffered()
	assert.Equal(t, 5*time.Second, level)
	assert.Equal(t, 2*time.Second, next)
}

func TestConsumerBackpressure(t *testing.T) {
	b := buffer.New(common.MediaTypeVideo, 1, nil, nil)
	consumer := NewConsumer(b, 1, nil, nil)
	require.True(t, b.Push(segmentTask(1, time.Second)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, consumer.CanPush(ctx))

	_, ok := b.PopFront(context.Background())
	require.True(t, ok)
	assert.True(t, consumer.CanPush(context.Background()))
}

func TestConsumerStopsOnContext(t *testing.T) {
	b := buffer.New(common.MediaTypeVideo, 1, nil, nil)
	consumer := NewConsumer(b, 1, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, consumer.Run(ctx))
	assert.Zero(t, consumer.StartupDelay())
}

func TestManagerRunsStaticSession(t *testing.T) {
	view := newTestView(t, vodMPD)
	tr := newFakeTransport(5_000_000)
	obs := &recorder{}

	config := DefaultConfig()
	config.Logic = adaptation.KindRateBased
	config.Drain = true
	config.SegmentBufferSize = 4

	m, err := NewManager(view, tr, config, logging.NewDefaultLogger(), obs)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID())
	assert.Equal(t, []common.MediaType{common.MediaTypeVideo}, m.MediaTypes())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Run(ctx))

	changes := obs.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, 0, changes[0].From)
	assert.Equal(t, 1, changes[0].To)
	assert.Equal(t, 1_000_000, changes[0].Bitrate)

	// the first segment is fetched at the lowest quality, the rest after the switch
	requests := tr.Requests()
	assert.Contains(t, requests, "http://test.local/vod/v500/1.m4s")
	assert.Contains(t, requests, "http://test.local/vod/v1000/init.mp4")
	assert.Contains(t, requests, "http://test.local/vod/v1000/5.m4s")

	result := m.Result()
	require.Len(t, result.Streams, 1)
	assert.Equal(t, m.ID(), result.SessionID)
	assert.Equal(t, adaptation.KindRateBased, result.Logic)
	assert.Equal(t, 5, result.Streams[0].Segments)
	assert.Equal(t, 1, result.Streams[0].FinalQuality)
	assert.Equal(t, 2, result.Streams[0].Representations)
	assert.Empty(t, result.Streams[0].Error)
	assert.Positive(t, result.Elapsed)
}

func TestManagerStop(t *testing.T) {
	view := newTestView(t, vodMPD)
	tr := newFakeTransport(1_000_000)
	tr.blockAll = true

	config := DefaultConfig()
	config.Logic = adaptation.KindBufferBased
	m, err := NewManager(view, tr, config, nil)
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))

	m.Pause()
	m.Resume()

	stopped := make(chan error, 1)
	go func() { stopped <- m.Stop() }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}

	assert.NoError(t, m.Stop())
}

func TestManagerUnsupportedLogic(t *testing.T) {
	config := DefaultConfig()
	config.Logic = adaptation.Kind("Fastest")
	_, err := NewManager(newTestView(t, vodMPD), newFakeTransport(1), config, nil)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeUnsupported))
}

func TestManagerNoSelectedStreams(t *testing.T) {
	config := DefaultConfig()
	config.MediaTypes = []common.MediaType{common.MediaTypeAudio}
	_, err := NewManager(newTestView(t, vodMPD), newFakeTransport(1), config, nil)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeManifest))
}

func TestRefresherPublishesUpdates(t *testing.T) {
	mpd, err := manifest.Parse([]byte(fmt.Sprintf(liveMPD, 2)))
	require.NoError(t, err)
	view, err := manifest.NewView(mpd, "http://test.local/live/manifest.mpd", nil)
	require.NoError(t, err)
	require.Equal(t, 3, view.LastSegmentNumber(common.MediaTypeVideo))

	tr := newFakeTransport(1)
	tr.documents["http://test.local/live/manifest.mpd"] = fmt.Sprintf(liveMPD, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRefresher(view, tr, time.Second, nil).Run(ctx) }()

	require.Eventually(t, func() bool {
		return view.LastSegmentNumber(common.MediaTypeVideo) == 6
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop")
	}
	assert.True(t, strings.HasSuffix(tr.Requests()[0], "manifest.mpd"))
}

func TestRefresherIgnoresStaticManifest(t *testing.T) {
	tr := newFakeTransport(1)
	assert.NoError(t, NewRefresher(newTestView(t, vodMPD), tr, 0, nil).Run(context.Background()))
	assert.Empty(t, tr.Requests())
}

func TestGate(t *testing.T) {
	g := newGate()
	assert.True(t, g.Wait(context.Background()))

	g.Pause()
	assert.True(t, g.Paused())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.False(t, g.Wait(ctx))

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Resume()
	}()
	assert.True(t, g.Wait(context.Background()))
	assert.False(t, g.Paused())
}
