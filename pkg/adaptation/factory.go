package adaptation

import (
	"fmt"
	"sync"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

type constructor func(bitrates []int, params *Params, logger logging.Logger) strategy

// Factory builds engines for the registered strategies
type Factory struct {
	strategies map[Kind]constructor
	params     *Params
	logger     logging.Logger
	mu         sync.RWMutex
}

// NewFactory creates a factory with every strategy of this package registered
func NewFactory(params *Params, logger logging.Logger) *Factory {
	if params == nil {
		params = DefaultParams()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	f := &Factory{
		strategies: make(map[Kind]constructor),
		params:     params,
		logger:     logger,
	}

	f.register(KindAlwaysLowest, newAlwaysLowest)
	f.register(KindRateBased, newRateBased)
	f.register(KindBufferBased, newBufferBased)
	f.register(KindBufferBasedThreeThreshold, newThreeThreshold)
	f.register(KindAdapTech, newAdapTech)
	f.register(KindPanda, newPanda)
	f.register(KindBola, newBola)

	return f
}

func (f *Factory) register(kind Kind, c constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies[kind] = c
}

// Create builds an engine for one stream. bitrates must be in ascending order.
func (f *Factory) Create(kind Kind, mediaType common.MediaType, bitrates []int) (*Engine, error) {
	f.mu.RLock()
	c, exists := f.strategies[kind]
	f.mu.RUnlock()

	if !exists {
		return nil, common.NewStreamError(mediaType, "", common.ErrCodeUnsupported,
			fmt.Sprintf("unsupported adaptation logic: %s", kind), nil)
	}
	if len(bitrates) == 0 {
		return nil, common.NewStreamError(mediaType, "", common.ErrCodeManifest,
			"no representations to adapt over", nil)
	}

	logger := f.logger.WithFields(logging.Fields{
		"component":  "adaptation",
		"logic":      kind,
		"media_type": mediaType,
	})
	return newEngine(mediaType, c(bitrates, f.params, logger), bitrates, logger), nil
}

// SupportedKinds returns the registered strategies in display order
func (f *Factory) SupportedKinds() []Kind {
	f.mu.RLock()
	defer f.mu.RUnlock()

	kinds := make([]Kind, 0, len(f.strategies))
	for _, k := range Kinds {
		if _, ok := f.strategies[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Params returns the parameters engines are built with
func (f *Factory) Params() *Params {
	return f.params
}
