package adaptation

import (
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// bufferBased maps buffer occupancy linearly onto the ladder between a reservoir and an
// upper threshold
type bufferBased struct {
	ladder
	reservoir    int
	maxThreshold int
	logger       logging.Logger
}

func newBufferBased(bitrates []int, params *Params, logger logging.Logger) strategy {
	return &bufferBased{
		ladder:       newLadder(bitrates),
		reservoir:    params.Buffer.ReservoirThreshold,
		maxThreshold: params.Buffer.MaxThreshold,
		logger:       logger,
	}
}

func (s *bufferBased) kind() Kind        { return KindBufferBased }
func (s *bufferBased) rateBased() bool   { return false }
func (s *bufferBased) bufferBased() bool { return true }

func (s *bufferBased) bufferUpdate(fillPercent, capacity int) Decision {
	if s.degenerate {
		s.quality = 0
		return s.hold()
	}

	step := float64(s.maxThreshold-s.reservoir) / float64(len(s.bitrates)-1)
	quality := 0
	for i := range s.bitrates {
		if float64(fillPercent) > float64(s.reservoir)+float64(i)*step {
			quality = i
		}
	}
	s.quality = quality

	s.logger.Debug("Buffer based decision", logging.Fields{
		"fill":    fillPercent,
		"quality": s.quality,
	})
	return s.hold()
}

func (s *bufferBased) bitrateUpdate(float64, int) Decision       { return s.hold() }
func (s *bufferBased) downloadTimeUpdate(time.Duration) Decision { return s.hold() }
func (s *bufferBased) onEOS(bool) Decision                       { return s.hold() }

// threeThreshold steps down below the second threshold when throughput cannot sustain the
// current bitrate, holds in the middle band and steps up above the third threshold.
type threeThreshold struct {
	ladder
	first, second, third int
	lastBps              float64
	logger               logging.Logger
}

func newThreeThreshold(bitrates []int, params *Params, logger logging.Logger) strategy {
	return &threeThreshold{
		ladder: newLadder(bitrates),
		first:  params.ThreeThreshold.FirstThreshold,
		second: params.ThreeThreshold.SecondThreshold,
		third:  params.ThreeThreshold.ThirdThreshold,
		logger: logger,
	}
}

func (s *threeThreshold) kind() Kind        { return KindBufferBasedThreeThreshold }
func (s *threeThreshold) rateBased() bool   { return true }
func (s *threeThreshold) bufferBased() bool { return true }

func (s *threeThreshold) bitrateUpdate(bps float64, _ int) Decision {
	s.lastBps = bps
	return s.hold()
}

func (s *threeThreshold) bufferUpdate(fillPercent, capacity int) Decision {
	if s.degenerate {
		s.quality = 0
		return s.hold()
	}

	switch {
	case fillPercent < s.first:
		s.quality = 0
	case fillPercent < s.second:
		if s.lastBps > 0 && float64(s.bitrates[s.quality]) > s.lastBps {
			s.quality = max(s.quality-1, 0)
		}
	case fillPercent < s.third:
	default:
		next := s.quality + 1
		if next < len(s.bitrates) && (s.lastBps == 0 || float64(s.bitrates[next]) <= s.lastBps) {
			s.quality = next
		}
	}

	s.logger.Debug("Three threshold decision", logging.Fields{
		"fill":     fillPercent,
		"last_bps": s.lastBps,
		"quality":  s.quality,
	})
	return s.hold()
}

func (s *threeThreshold) downloadTimeUpdate(time.Duration) Decision { return s.hold() }
func (s *threeThreshold) onEOS(bool) Decision                       { return s.hold() }

// adapTech combines two buffer thresholds with a smoothed throughput estimate. Above the
// upper threshold it only steps up after switchUpMargin consecutive decisions.
type adapTech struct {
	ladder
	first, second  int
	switchUpMargin int
	slack          float64
	alpha          float64
	average        float64
	switchUpCount  int
	logger         logging.Logger
}

func newAdapTech(bitrates []int, params *Params, logger logging.Logger) strategy {
	return &adapTech{
		ladder:         newLadder(bitrates),
		first:          params.AdapTech.FirstThreshold,
		second:         params.AdapTech.SecondThreshold,
		switchUpMargin: params.AdapTech.SwitchUpMargin,
		slack:          params.AdapTech.Slack,
		alpha:          params.AdapTech.Alpha,
		logger:         logger,
	}
}

func (s *adapTech) kind() Kind        { return KindAdapTech }
func (s *adapTech) rateBased() bool   { return true }
func (s *adapTech) bufferBased() bool { return true }

func (s *adapTech) bitrateUpdate(bps float64, _ int) Decision {
	if s.average == 0 {
		s.average = bps
	} else {
		s.average = s.alpha*s.average + (1-s.alpha)*bps
	}
	return s.hold()
}

func (s *adapTech) bufferUpdate(fillPercent, capacity int) Decision {
	if s.degenerate {
		s.quality = 0
		return s.hold()
	}

	budget := s.slack * s.average
	switch {
	case fillPercent < s.first:
		s.switchUpCount = 0
		s.quality = min(s.sustainable(budget), s.quality)
	case fillPercent < s.second:
		s.switchUpCount = 0
	default:
		s.switchUpCount++
		next := s.quality + 1
		if s.switchUpCount >= s.switchUpMargin && next < len(s.bitrates) && float64(s.bitrates[next]) <= budget {
			s.quality = next
			s.switchUpCount = 0
		}
	}

	s.logger.Debug("AdapTech decision", logging.Fields{
		"fill":        fillPercent,
		"average_bps": s.average,
		"switch_up":   s.switchUpCount,
		"quality":     s.quality,
	})
	return s.hold()
}

func (s *adapTech) downloadTimeUpdate(time.Duration) Decision { return s.hold() }
func (s *adapTech) onEOS(bool) Decision                       { return s.hold() }
