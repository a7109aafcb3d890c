package player

import (
	"context"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/manifest"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// Refresher refetches a dynamic manifest every minimumUpdatePeriod and publishes it to the
// view
type Refresher struct {
	view      *manifest.View
	transport transport.Transport
	fallback  time.Duration
	logger    logging.Logger
}

// NewRefresher creates a refresher. fallback is used when the manifest does not carry a
// minimumUpdatePeriod.
func NewRefresher(view *manifest.View, t transport.Transport, fallback time.Duration, logger logging.Logger) *Refresher {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if fallback <= 0 {
		fallback = 2 * time.Second
	}

	return &Refresher{
		view:      view,
		transport: t,
		fallback:  fallback,
		logger: logger.WithFields(logging.Fields{
			"component": "manifest_refresher",
		}),
	}
}

// Run refreshes until ctx is done or the view is stopped. Static manifests return at once.
// Failed refreshes are logged and retried on the next tick.
func (r *Refresher) Run(ctx context.Context) error {
	if !r.view.IsDynamic() {
		return nil
	}

	for {
		period := r.view.MinimumUpdatePeriod()
		if period <= 0 {
			period = r.fallback
		}

		timer := time.NewTimer(period)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-r.view.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if err := manifest.Refresh(ctx, r.transport, r.view); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("Manifest refresh failed", logging.Fields{
				"error": err.Error(),
			})
			continue
		}

		r.logger.Debug("Manifest refreshed", logging.Fields{
			"next_in_ms": r.view.MinimumUpdatePeriod().Milliseconds(),
		})

		if !r.view.IsDynamic() {
			r.logger.Info("Manifest became static, refresh stopped")
			return nil
		}
	}
}
