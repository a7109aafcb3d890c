package adaptation

import (
	"math"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// maxPandaInterTime caps the pacing delay requested by panda
const maxPandaInterTime = 3 * time.Second

// panda probes for bandwidth with an additive-increase, multiplicative-decrease target,
// smooths it, quantizes the smoothed estimate through a dead zone and paces requests.
type panda struct {
	ladder
	params          PandaParams
	segmentDuration float64
	bufferParams    *Params

	targetBps        float64
	smoothBps        float64
	bufferSeconds    float64
	lastDownloadTime float64
	targetInterTime  float64

	logger logging.Logger
}

func newPanda(bitrates []int, params *Params, logger logging.Logger) strategy {
	return &panda{
		ladder:          newLadder(bitrates),
		params:          params.Panda,
		segmentDuration: params.segmentSeconds(),
		bufferParams:    params,
		logger:          logger,
	}
}

func (s *panda) kind() Kind        { return KindPanda }
func (s *panda) rateBased() bool   { return true }
func (s *panda) bufferBased() bool { return true }

func (s *panda) bufferUpdate(fillPercent, capacity int) Decision {
	s.bufferSeconds = s.bufferParams.bufferSeconds(fillPercent, capacity)
	return s.paced()
}

func (s *panda) downloadTimeUpdate(d time.Duration) Decision {
	s.lastDownloadTime = d.Seconds()
	return s.paced()
}

func (s *panda) onEOS(bool) Decision {
	return s.hold()
}

func (s *panda) bitrateUpdate(bps float64, segmentNumber int) Decision {
	if s.targetBps == 0 {
		s.targetBps = bps
		s.smoothBps = bps
	} else {
		dt := math.Max(s.lastDownloadTime, s.targetInterTime)
		if dt <= 0 {
			dt = s.segmentDuration
		}

		w := s.params.W
		s.targetBps += s.params.K * dt * (w - math.Max(0, s.targetBps-bps+w))
		s.targetBps = math.Max(s.targetBps, 0)

		gain := math.Min(s.params.Alpha*dt, 1)
		s.smoothBps += gain * (s.targetBps - s.smoothBps)
	}

	if s.degenerate {
		s.quality = 0
	} else {
		up := s.quantize(s.smoothBps * (1 - s.params.Epsilon))
		down := s.quantize(s.smoothBps)

		switch {
		case s.quality < up:
			s.quality++
		case s.quality > down:
			s.quality--
		}
	}

	s.targetInterTime = s.interTime()

	s.logger.Debug("PANDA decision", logging.Fields{
		"segment":           segmentNumber,
		"sample_bps":        bps,
		"target_bps":        s.targetBps,
		"smooth_bps":        s.smoothBps,
		"buffer_seconds":    s.bufferSeconds,
		"target_inter_time": s.targetInterTime,
		"quality":           s.quality,
	})

	return s.paced()
}

// quantize returns the highest quality whose bitrate does not exceed bps
func (s *panda) quantize(bps float64) int {
	return s.sustainable(bps)
}

// interTime is the request spacing that keeps the buffer near Bmin at the current bitrate
func (s *panda) interTime() float64 {
	if s.smoothBps <= 0 {
		return 0
	}
	bitrate := float64(s.bitrates[s.quality])
	t := bitrate*s.segmentDuration/s.smoothBps + s.params.Beta*(s.bufferSeconds-s.params.Bmin)
	t = math.Max(t, 0)
	t = math.Max(t, s.lastDownloadTime)
	return math.Min(t, maxPandaInterTime.Seconds())
}

func (s *panda) paced() Decision {
	return Decision{
		Quality: s.quality,
		Delay:   time.Duration(s.targetInterTime * float64(time.Second)),
	}
}
