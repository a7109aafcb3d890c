package adaptation

import (
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// Kind names an adaptation strategy
type Kind string

const (
	KindAlwaysLowest              Kind = "AlwaysLowest"
	KindRateBased                 Kind = "RateBased"
	KindBufferBased               Kind = "BufferBased"
	KindBufferBasedThreeThreshold Kind = "BufferBasedThreeThreshold"
	KindAdapTech                  Kind = "AdapTech"
	KindPanda                     Kind = "Panda"
	KindBola                      Kind = "Bola"
)

// Kinds lists every strategy in display order
var Kinds = []Kind{
	KindAlwaysLowest,
	KindRateBased,
	KindBufferBased,
	KindBufferBasedThreeThreshold,
	KindAdapTech,
	KindPanda,
	KindBola,
}

// ParseKind accepts a strategy name ignoring case, spaces, dashes and underscores, so
// "Buffer Based", "buffer-based" and "BufferBased" are the same.
func ParseKind(s string) (Kind, bool) {
	normalize := func(v string) string {
		return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(v)))
	}
	want := normalize(s)
	for _, k := range Kinds {
		if normalize(string(k)) == want {
			return k, true
		}
	}
	return "", false
}

// Decision is the outcome of one feedback event
type Decision struct {
	Quality  int           `json:"quality"`
	Switched bool          `json:"switched"`
	Delay    time.Duration `json:"delay,omitempty"`
}

// strategy is implemented by the strategies of this package only
type strategy interface {
	kind() Kind
	rateBased() bool
	bufferBased() bool

	bitrateUpdate(bps float64, segmentNumber int) Decision
	bufferUpdate(fillPercent, capacity int) Decision
	downloadTimeUpdate(d time.Duration) Decision
	onEOS(eos bool) Decision
}

// ladder holds the bitrate ladder and current quality shared by all strategies
type ladder struct {
	bitrates   []int
	quality    int
	degenerate bool
}

func newLadder(bitrates []int) ladder {
	l := ladder{bitrates: append([]int(nil), bitrates...)}
	l.degenerate = len(bitrates) < 2
	for i := 1; i < len(bitrates) && !l.degenerate; i++ {
		if bitrates[i] <= bitrates[i-1] {
			l.degenerate = true
		}
	}
	return l
}

func (l *ladder) top() int {
	return max(len(l.bitrates)-1, 0)
}

func (l *ladder) hold() Decision {
	return Decision{Quality: l.quality}
}

// sustainable returns the highest quality whose bitrate does not exceed bps
func (l *ladder) sustainable(bps float64) int {
	q := 0
	for i, b := range l.bitrates {
		if float64(b) > bps {
			break
		}
		q = i
	}
	return q
}

// DecisionHandler receives every decision of an engine, in the order the engine made them.
// Handlers must not feed the engine they are registered on.
type DecisionHandler func(mediaType common.MediaType, previous int, decision Decision)

// Engine serialises feedback into one strategy instance
type Engine struct {
	// dispatch is held from the decision until the last handler returns
	dispatch sync.Mutex

	mu        sync.Mutex
	strategy  strategy
	mediaType common.MediaType
	bitrates  []int
	quality   int
	handlers  []DecisionHandler
	logger    logging.Logger
}

func newEngine(mediaType common.MediaType, s strategy, bitrates []int, logger logging.Logger) *Engine {
	return &Engine{
		strategy:  s,
		mediaType: mediaType,
		bitrates:  append([]int(nil), bitrates...),
		logger: logger.WithFields(logging.Fields{
			"component":  "adaptation_engine",
			"logic":      s.kind(),
			"media_type": mediaType,
		}),
	}
}

// OnDecision registers a handler for decisions. Register handlers before feeding the engine.
func (e *Engine) OnDecision(handler DecisionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

func (e *Engine) Kind() Kind {
	return e.strategy.kind()
}

func (e *Engine) MediaType() common.MediaType {
	return e.mediaType
}

// IsRateBased reports whether the strategy consumes throughput and download time samples
func (e *Engine) IsRateBased() bool {
	return e.strategy.rateBased()
}

// IsBufferBased reports whether the strategy consumes buffer fill samples
func (e *Engine) IsBufferBased() bool {
	return e.strategy.bufferBased()
}

// Quality returns the index of the last selected representation
func (e *Engine) Quality() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quality
}

// Bitrate returns the bandwidth of the last selected representation
func (e *Engine) Bitrate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.bitrates) == 0 {
		return 0
	}
	return e.bitrates[e.quality]
}

// BitrateUpdate feeds a throughput sample in bits per second. Non-positive samples are ignored.
func (e *Engine) BitrateUpdate(bps float64, segmentNumber int) Decision {
	return e.apply(func(s strategy) Decision {
		if bps <= 0 {
			return Decision{Quality: e.quality}
		}
		return s.bitrateUpdate(bps, segmentNumber)
	})
}

// BufferUpdate feeds the buffer fill level in percent of capacity segments
func (e *Engine) BufferUpdate(fillPercent, capacity int) Decision {
	fillPercent = max(0, min(100, fillPercent))
	return e.apply(func(s strategy) Decision {
		return s.bufferUpdate(fillPercent, capacity)
	})
}

// DownloadTimeUpdate feeds the wall time of the last segment download
func (e *Engine) DownloadTimeUpdate(d time.Duration) Decision {
	return e.apply(func(s strategy) Decision {
		if d <= 0 {
			return Decision{Quality: e.quality}
		}
		return s.downloadTimeUpdate(d)
	})
}

// OnEOS tells the strategy that the buffer reached or left end of stream
func (e *Engine) OnEOS(eos bool) Decision {
	return e.apply(func(s strategy) Decision {
		return s.onEOS(eos)
	})
}

func (e *Engine) apply(update func(s strategy) Decision) Decision {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()

	e.mu.Lock()
	previous := e.quality
	decision := update(e.strategy)
	decision.Quality = max(0, min(decision.Quality, len(e.bitrates)-1))
	decision.Switched = decision.Quality != previous
	e.quality = decision.Quality
	handlers := e.handlers
	e.mu.Unlock()

	if decision.Switched {
		e.logger.Debug("Quality switch", logging.Fields{
			"from":    previous,
			"to":      decision.Quality,
			"bitrate": e.bitrates[decision.Quality],
		})
	}

	for _, handler := range handlers {
		handler(e.mediaType, previous, decision)
	}
	return decision
}
