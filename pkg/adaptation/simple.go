package adaptation

import (
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// alwaysLowest pins the first representation
type alwaysLowest struct {
	ladder
}

func newAlwaysLowest(bitrates []int, _ *Params, _ logging.Logger) strategy {
	return &alwaysLowest{ladder: newLadder(bitrates)}
}

func (s *alwaysLowest) kind() Kind        { return KindAlwaysLowest }
func (s *alwaysLowest) rateBased() bool   { return false }
func (s *alwaysLowest) bufferBased() bool { return false }

func (s *alwaysLowest) bitrateUpdate(float64, int) Decision       { return s.hold() }
func (s *alwaysLowest) bufferUpdate(int, int) Decision            { return s.hold() }
func (s *alwaysLowest) downloadTimeUpdate(time.Duration) Decision { return s.hold() }
func (s *alwaysLowest) onEOS(bool) Decision                       { return s.hold() }

// rateBasedLogic picks the highest bitrate below an exponentially weighted throughput average
type rateBasedLogic struct {
	ladder
	alpha   float64
	average float64
	logger  logging.Logger
}

func newRateBased(bitrates []int, params *Params, logger logging.Logger) strategy {
	return &rateBasedLogic{
		ladder: newLadder(bitrates),
		alpha:  params.Rate.Alpha,
		logger: logger,
	}
}

func (s *rateBasedLogic) kind() Kind        { return KindRateBased }
func (s *rateBasedLogic) rateBased() bool   { return true }
func (s *rateBasedLogic) bufferBased() bool { return false }

func (s *rateBasedLogic) bitrateUpdate(bps float64, segmentNumber int) Decision {
	if s.average == 0 {
		s.average = bps
	} else {
		s.average = s.alpha*s.average + (1-s.alpha)*bps
	}

	if s.degenerate {
		s.quality = 0
		return s.hold()
	}

	s.quality = s.sustainable(s.average)
	s.logger.Debug("Rate based decision", logging.Fields{
		"segment":     segmentNumber,
		"sample_bps":  bps,
		"average_bps": s.average,
		"quality":     s.quality,
	})
	return s.hold()
}

func (s *rateBasedLogic) bufferUpdate(int, int) Decision            { return s.hold() }
func (s *rateBasedLogic) downloadTimeUpdate(time.Duration) Decision { return s.hold() }
func (s *rateBasedLogic) onEOS(bool) Decision                       { return s.hold() }
