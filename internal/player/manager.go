package player

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/dash-abr-client/pkg/adaptation"
	"github.com/RyanBlaney/dash-abr-client/pkg/buffer"
	"github.com/RyanBlaney/dash-abr-client/pkg/manifest"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// Config controls one playback session
type Config struct {
	// Adaptation strategy used for every stream
	Logic  adaptation.Kind    `json:"logic"`
	Params *adaptation.Params `json:"params"`
	// Capacity of each playback buffer, in segments
	SegmentBufferSize int `json:"segment_buffer_size"`
	// Restart static content from the first segment when it ends
	Looping bool `json:"looping"`
	// Start live streams two buffers behind the live edge instead of at the edge
	LiveStartOffset bool `json:"live_start_offset"`
	// Manifest refresh period when the MPD has no minimumUpdatePeriod
	RefreshInterval time.Duration `json:"refresh_interval"`
	// Playback speed of the headless consumer; 1 is real time
	PlaybackSpeed float64 `json:"playback_speed"`
	// Discard segments as soon as they are buffered instead of playing them out
	Drain bool `json:"drain"`
	// Abort an in-flight segment above the current quality when the buffer runs dry
	AbortOnStall bool `json:"abort_on_stall"`
	// Stop the session after this long; 0 runs until the content ends
	MaxDuration time.Duration `json:"max_duration"`
	// Streams to play; empty plays every stream in the manifest
	MediaTypes []common.MediaType `json:"media_types,omitempty"`
}

// DefaultConfig returns a real time BOLA session
func DefaultConfig() *Config {
	return &Config{
		Logic:             adaptation.KindBola,
		Params:            adaptation.DefaultParams(),
		SegmentBufferSize: 20,
		LiveStartOffset:   true,
		RefreshInterval:   2 * time.Second,
		PlaybackSpeed:     1,
		AbortOnStall:      true,
	}
}

// stream groups the per media type collaborators of a session
type stream struct {
	mediaType common.MediaType
	engine    *adaptation.Engine
	buffer    *buffer.PlaybackBuffer
	receiver  *Receiver
	consumer  *Consumer
}

// Manager runs a playback session: one download loop, playback buffer, adaptation engine
// and consumer per stream, plus the live manifest refresher.
type Manager struct {
	id        string
	config    *Config
	view      *manifest.View
	transport transport.Transport
	observers Observers
	refresher *Refresher

	streams map[common.MediaType]*stream
	order   []common.MediaType

	mu      sync.Mutex
	running bool
	started time.Time
	ended   time.Time
	cancel  context.CancelFunc
	group   errgroup.Group

	logger logging.Logger
}

// NewManager prepares a session over view. Observers receive statistics of every stream.
func NewManager(view *manifest.View, t transport.Transport, config *Config, logger logging.Logger, observers ...Observer) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if config.Params == nil {
		config.Params = adaptation.DefaultParams()
	}
	if config.SegmentBufferSize <= 0 {
		config.SegmentBufferSize = config.Params.SegmentBufferSize
	}

	id := uuid.NewString()
	m := &Manager{
		id:        id,
		config:    config,
		view:      view,
		transport: t,
		observers: Observers(observers),
		streams:   make(map[common.MediaType]*stream),
		logger: logger.WithFields(logging.Fields{
			"component":  "player_manager",
			"session_id": id,
		}),
	}

	view.SetLooping(config.Looping)

	for _, mt := range m.selectedMediaTypes() {
		st, err := m.newStream(mt)
		if err != nil {
			return nil, fmt.Errorf("failed to set up %s stream: %w", mt, err)
		}
		m.streams[mt] = st
		m.order = append(m.order, mt)
	}
	if len(m.order) == 0 {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, view.Snapshot().Location,
			common.ErrCodeManifest, "no playable streams selected", nil)
	}

	if view.IsDynamic() {
		m.refresher = NewRefresher(view, t, config.RefreshInterval, m.logger)
	}

	return m, nil
}

func (m *Manager) selectedMediaTypes() []common.MediaType {
	available := m.view.MediaTypes()
	if len(m.config.MediaTypes) == 0 {
		return available
	}

	var selected []common.MediaType
	for _, mt := range available {
		for _, want := range m.config.MediaTypes {
			if mt == want {
				selected = append(selected, mt)
				break
			}
		}
	}
	return selected
}

func (m *Manager) newStream(mt common.MediaType) (*stream, error) {
	st := &stream{mediaType: mt}
	segmentDuration := m.view.SegmentDuration(mt)

	params := *m.config.Params
	params.SegmentBufferSize = m.config.SegmentBufferSize
	if segmentDuration > 0 {
		params.SegmentDuration = segmentDuration
	}

	engine, err := adaptation.NewFactory(&params, m.logger).Create(m.config.Logic, mt, m.view.Bitrates(mt))
	if err != nil {
		return nil, err
	}

	st.buffer = buffer.New(mt, m.config.SegmentBufferSize, m.bufferObserver(st), m.logger)
	st.buffer.SetSegmentDuration(segmentDuration)

	// the buffer observer only reaches the engine once it is assigned, so the segment
	// duration notification above is not taken for a playback sample
	st.engine = engine
	engine.OnDecision(m.decisionHandler(st))

	speed := m.config.PlaybackSpeed
	if m.config.Drain {
		speed = math.Inf(1)
	}
	st.consumer = NewConsumer(st.buffer, speed, m.observers, m.logger)

	st.receiver, err = NewReceiver(mt, ReceiverOptions{
		View:      m.view,
		Transport: m.transport,
		Buffer:    st.buffer,
		Engine:    engine,
		Sink:      st.consumer,
		Observer:  m.observers,
	}, m.logger)
	if err != nil {
		return nil, err
	}

	if m.view.IsDynamic() {
		start := m.view.CurrentSegmentNumber(mt)
		if m.config.LiveStartOffset {
			start = m.view.StartOffset(mt, m.config.SegmentBufferSize)
		}
		m.view.SetSegmentNumber(mt, start)
		m.logger.Info("Live start position", logging.Fields{
			"media_type": mt,
			"position":   start,
			"live_edge":  m.view.CurrentSegmentNumber(mt),
		})
	}

	return st, nil
}

// bufferObserver forwards buffer fill changes to the observers and to buffer aware
// strategies
func (m *Manager) bufferObserver(st *stream) buffer.Observer {
	return func(mt common.MediaType, fillPercent, capacity int) {
		m.observers.OnBufferLevel(mt, fillPercent, capacity)

		if st.engine == nil {
			return
		}
		if st.engine.IsBufferBased() {
			st.engine.BufferUpdate(fillPercent, capacity)
		}
		if fillPercent == 0 && m.config.AbortOnStall && st.receiver != nil {
			m.abortAboveQuality(st)
		}
	}
}

// abortAboveQuality gives up an in-flight segment whose bitrate is above the one the
// engine selects now
func (m *Manager) abortAboveQuality(st *stream) {
	ref, ok := st.receiver.InFlight()
	if !ok || ref.Kind != manifest.SegmentMedia {
		return
	}
	if ref.Bandwidth > st.engine.Bitrate() && st.receiver.ShouldAbort() {
		m.logger.Debug("Re-requesting segment at lower quality", logging.Fields{
			"media_type": st.mediaType,
			"number":     ref.Number,
			"from":       ref.Bandwidth,
			"to":         st.engine.Bitrate(),
		})
	}
}

// decisionHandler applies engine decisions: switches the active representation and
// passes pacing requests to the download loop
func (m *Manager) decisionHandler(st *stream) adaptation.DecisionHandler {
	return func(mt common.MediaType, previous int, d adaptation.Decision) {
		if d.Delay > 0 && st.receiver != nil {
			st.receiver.RequestPacing(d.Delay)
		}
		if !d.Switched {
			return
		}

		info, ok := m.view.SelectRepresentation(mt, d.Quality)
		if !ok {
			return
		}

		m.logger.Info("Quality changed", logging.Fields{
			"media_type":     mt,
			"from":           previous,
			"to":             info.Quality,
			"representation": info.ID,
			"bandwidth":      common.FormatBitrate(float64(info.Bandwidth)),
		})

		m.observers.OnQualityChange(common.QualityChange{
			MediaType: mt,
			From:      previous,
			To:        info.Quality,
			Bitrate:   info.Bandwidth,
			At:        time.Now(),
		})
	}
}

func (m *Manager) ID() string {
	return m.id
}

func (m *Manager) Config() *Config {
	return m.config
}

// MediaTypes returns the streams of the session in start order
func (m *Manager) MediaTypes() []common.MediaType {
	return append([]common.MediaType(nil), m.order...)
}

func (m *Manager) Engine(mt common.MediaType) (*adaptation.Engine, bool) {
	st, ok := m.streams[mt]
	if !ok {
		return nil, false
	}
	return st.engine, true
}

func (m *Manager) Receiver(mt common.MediaType) (*Receiver, bool) {
	st, ok := m.streams[mt]
	if !ok {
		return nil, false
	}
	return st.receiver, true
}

func (m *Manager) Consumer(mt common.MediaType) (*Consumer, bool) {
	st, ok := m.streams[mt]
	if !ok {
		return nil, false
	}
	return st.consumer, true
}

// Start launches every stream and, for live content, the manifest refresher
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return common.NewStreamError(common.MediaTypeUnsupported, "", common.ErrCodeState, "session already running", nil)
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if m.config.MaxDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, m.config.MaxDuration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	refreshCtx, stopRefresh := context.WithCancel(runCtx)

	m.running = true
	m.started = time.Now()
	m.cancel = cancel

	m.logger.Info("Starting session", logging.Fields{
		"logic":        m.config.Logic,
		"streams":      m.order,
		"dynamic":      m.view.IsDynamic(),
		"buffer_size":  m.config.SegmentBufferSize,
		"max_duration": m.config.MaxDuration.String(),
	})

	var streams errgroup.Group
	for _, mt := range m.order {
		st := m.streams[mt]
		if err := st.receiver.Start(runCtx); err != nil {
			cancel()
			stopRefresh()
			m.running = false
			return fmt.Errorf("failed to start %s receiver: %w", mt, err)
		}
		streams.Go(func() error {
			<-st.receiver.Done()
			return nil
		})
		streams.Go(func() error {
			return st.consumer.Run(runCtx)
		})
	}

	m.group.Go(func() error {
		err := streams.Wait()
		stopRefresh()
		return err
	})
	if m.refresher != nil {
		m.group.Go(func() error {
			return m.refresher.Run(refreshCtx)
		})
	} else {
		stopRefresh()
	}

	return nil
}

// Wait blocks until every stream has ended and returns the stream failures
func (m *Manager) Wait() error {
	err := m.group.Wait()

	m.mu.Lock()
	if m.running {
		m.running = false
		m.ended = time.Now()
		if m.cancel != nil {
			m.cancel()
		}
	}
	started, ended := m.started, m.ended
	m.mu.Unlock()

	for _, mt := range m.order {
		err = multierr.Append(err, m.streams[mt].receiver.Err())
	}

	m.logger.Info("Session ended", logging.Fields{
		"duration": common.FormatDuration(ended.Sub(started)),
		"failed":   err != nil,
	})
	return err
}

// Run starts the session and waits for it to end
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	return m.Wait()
}

// Stop ends every stream and waits for the session
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	running := m.running
	m.mu.Unlock()

	if !running {
		return nil
	}

	m.view.Stop()
	if cancel != nil {
		cancel()
	}
	for _, mt := range m.order {
		m.streams[mt].receiver.Stop()
	}
	return m.Wait()
}

// Pause holds every download loop and consumer
func (m *Manager) Pause() {
	for _, mt := range m.order {
		m.streams[mt].receiver.Pause()
		m.streams[mt].consumer.Pause()
	}
	m.logger.Info("Session paused")
}

// Resume wakes every paused download loop and consumer
func (m *Manager) Resume() {
	for _, mt := range m.order {
		m.streams[mt].receiver.Resume()
		m.streams[mt].consumer.Resume()
	}
	m.logger.Info("Session resumed")
}

// Elapsed returns the wall time of the session so far, or its total once ended
func (m *Manager) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started.IsZero() {
		return 0
	}
	if m.ended.IsZero() {
		return time.Since(m.started)
	}
	return m.ended.Sub(m.started)
}

// StreamResult summarises one stream of a finished session
type StreamResult struct {
	MediaType       common.MediaType `json:"media_type"`
	Representations int              `json:"representations"`
	FinalQuality    int              `json:"final_quality"`
	FinalBitrate    int              `json:"final_bitrate"`
	Segments        int              `json:"segments"`
	Bytes           int64            `json:"bytes"`
	Aborts          int              `json:"aborts"`
	Played          time.Duration    `json:"played"`
	StartupDelay    time.Duration    `json:"startup_delay"`
	Stalls          int              `json:"stalls"`
	StallDuration   time.Duration    `json:"stall_duration"`
	Error           string           `json:"error,omitempty"`
}

// Result is the outcome of a session
type Result struct {
	SessionID string          `json:"session_id"`
	Manifest  string          `json:"manifest"`
	Logic     adaptation.Kind `json:"logic"`
	Dynamic   bool            `json:"dynamic"`
	Started   time.Time       `json:"started"`
	Elapsed   time.Duration   `json:"elapsed"`
	Streams   []StreamResult  `json:"streams"`
}

// Result collects the per stream counters. Call it after Wait.
func (m *Manager) Result() *Result {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	result := &Result{
		SessionID: m.id,
		Manifest:  m.view.Snapshot().Location,
		Logic:     m.config.Logic,
		Dynamic:   m.view.IsDynamic(),
		Started:   started,
		Elapsed:   m.Elapsed(),
	}

	for _, mt := range m.order {
		st := m.streams[mt]
		segments, bytes, aborts := st.receiver.Stats()
		sr := StreamResult{
			MediaType:       mt,
			Representations: len(m.view.Bitrates(mt)),
			FinalQuality:    st.engine.Quality(),
			FinalBitrate:    st.engine.Bitrate(),
			Segments:        segments,
			Bytes:           bytes,
			Aborts:          aborts,
			Played:          st.consumer.Played(),
			StartupDelay:    st.consumer.StartupDelay(),
			Stalls:          st.consumer.StallCount(),
			StallDuration:   st.consumer.StallDuration(),
		}
		if err := st.receiver.Err(); err != nil {
			sr.Error = err.Error()
		}
		result.Streams = append(result.Streams, sr)
	}
	return result
}
