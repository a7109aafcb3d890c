package adaptation

import (
	"math"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"gonum.org/v1/gonum/stat"
)

const (
	// minimumBufferLevelSpacing is the minimum distance between buffer levels, in seconds
	minimumBufferLevelSpacing = 5.0
	// throughputSamples is the batch size of the throughput estimate
	throughputSamples = 3
	// safetyFactor discounts the throughput estimate
	safetyFactor = 0.9
	// maxRTT is the round trip budget of the safety guarantee, in seconds
	maxRTT = 0.2
)

type bolaState int

const (
	bolaStartup bolaState = iota
	bolaStartupNoIncrease
	bolaSteady
	bolaOneBitrate
)

func (s bolaState) String() string {
	switch s {
	case bolaStartup:
		return "startup"
	case bolaStartupNoIncrease:
		return "startup_no_increase"
	case bolaSteady:
		return "steady"
	default:
		return "one_bitrate"
	}
}

// bola selects the representation maximising a Lyapunov utility of the buffer level
type bola struct {
	ladder
	params *Params

	segmentDuration float64
	bufferTarget    float64
	utilities       []float64
	vp, gp          float64
	safetyGuarantee bool
	bufferMax       float64

	state         bolaState
	initial       bool
	virtualBuffer float64

	averageBps   float64
	batchBps     float64
	batchSamples []float64
	alpha        float64

	lastDownloadEnd time.Time
	idleSinceLast   float64

	now    func() time.Time
	logger logging.Logger
}

// bolaParameters returns Vp and gp for a ladder, a buffer target and a segment duration,
// before any safety adjustment
func bolaParameters(utilities []float64, bufferTarget, segmentDuration float64) (float64, float64) {
	top := utilities[len(utilities)-1]
	vp := (bufferTarget - segmentDuration) / top
	gp := 1 + top/(bufferTarget/segmentDuration-1)
	return vp, gp
}

func newBola(bitrates []int, params *Params, logger logging.Logger) strategy {
	s := &bola{
		ladder:          newLadder(bitrates),
		params:          params,
		segmentDuration: params.segmentSeconds(),
		alpha:           params.Bola.Alpha,
		state:           bolaStartup,
		initial:         true,
		now:             time.Now,
		logger:          logger,
	}

	if s.degenerate {
		s.state = bolaOneBitrate
		return s
	}

	configuredTarget := params.Bola.BufferTarget.Seconds()
	s.bufferTarget = math.Max(configuredTarget, s.segmentDuration+minimumBufferLevelSpacing)

	s.utilities = make([]float64, len(s.bitrates))
	for i, b := range s.bitrates {
		s.utilities[i] = math.Log(float64(b) / float64(s.bitrates[0]))
	}

	s.vp, s.gp = bolaParameters(s.utilities, s.bufferTarget, s.segmentDuration)

	// With a large enough configured target, Vp and gp can be tightened so the real buffer
	// never runs dry unless bandwidth drops below the lowest bitrate.
	if s.bufferTarget == configuredTarget {
		s.applySafetyGuarantee(configuredTarget)
	}

	s.bufferMax = s.vp * (s.utilities[len(s.utilities)-1] + s.gp)

	logger.Debug("BOLA parameters", logging.Fields{
		"buffer_target":    s.bufferTarget,
		"vp":               s.vp,
		"gp":               s.gp,
		"safety_guarantee": s.safetyGuarantee,
		"buffer_max":       s.bufferMax,
	})
	return s
}

func (s *bola) applySafetyGuarantee(target float64) {
	vp, gp := s.vp, s.gp
	b0 := float64(s.bitrates[0])

	for i := 1; i < len(s.bitrates); i++ {
		bi := float64(s.bitrates[i])
		threshold := vp * (gp - b0*s.utilities[i]/(bi-b0))
		minThreshold := s.segmentDuration*(2-b0/bi) + maxRTT
		if minThreshold >= target {
			return
		}
		if threshold < minThreshold {
			vp = vp * (target - minThreshold) / (target - threshold)
			gp = minThreshold/vp + s.utilities[i]*b0/(bi-b0)
		}
	}

	if (target-s.segmentDuration)*vp/s.vp < minimumBufferLevelSpacing {
		return
	}

	s.safetyGuarantee = true
	s.vp, s.gp = vp, gp
}

func (s *bola) kind() Kind        { return KindBola }
func (s *bola) rateBased() bool   { return true }
func (s *bola) bufferBased() bool { return true }

// qualityFromBufferLevel maximises (utility + gp - level/Vp) / bitrate. When every score is
// non-positive the top quality is returned.
func (s *bola) qualityFromBufferLevel(level float64) int {
	quality := s.top()
	score := 0.0
	for i, b := range s.bitrates {
		v := (s.utilities[i] + s.gp - level/s.vp) / float64(b)
		if v > score {
			score = v
			quality = i
		}
	}
	return quality
}

func (s *bola) bitrateUpdate(bps float64, _ int) Decision {
	if s.averageBps == 0 {
		s.averageBps = bps
	} else {
		s.averageBps = s.alpha*s.averageBps + (1-s.alpha)*bps
	}

	s.batchSamples = append(s.batchSamples, bps)
	if len(s.batchSamples) == throughputSamples {
		s.batchBps = stat.Mean(s.batchSamples, nil)
		s.batchSamples = s.batchSamples[:0]
	}
	return s.hold()
}

// downloadTimeUpdate records the idle gap between the previous download and this one,
// which inflates the virtual buffer
func (s *bola) downloadTimeUpdate(d time.Duration) Decision {
	end := s.now()
	if !s.lastDownloadEnd.IsZero() {
		gap := end.Sub(s.lastDownloadEnd) - d
		if gap > 0 {
			s.idleSinceLast += gap.Seconds()
		}
	}
	s.lastDownloadEnd = end
	return s.hold()
}

func (s *bola) onEOS(bool) Decision {
	return s.hold()
}

func (s *bola) bufferUpdate(fillPercent, capacity int) Decision {
	if s.initial {
		s.initial = false
		if s.state != bolaOneBitrate && s.batchBps != 0 {
			s.quality = s.sustainable(s.batchBps * safetyFactor)
		}
		return s.hold()
	}

	if s.state == bolaOneBitrate {
		s.quality = 0
		return s.hold()
	}

	level := s.params.bufferSeconds(fillPercent, capacity)
	quality := s.qualityFromBufferLevel(level)

	if level <= 0.1 {
		s.virtualBuffer = 0
	}

	if !s.safetyGuarantee {
		quality = s.applyVirtualBuffer(level, quality)
	}

	if s.state == bolaStartup || s.state == bolaStartupNoIncrease {
		startup := s.sustainable(s.batchBps * safetyFactor)

		if s.batchBps <= 0 {
			s.state = bolaSteady
		}
		if s.state == bolaStartup && startup < s.quality {
			s.state = bolaStartupNoIncrease
		}
		if s.state == bolaStartupNoIncrease && startup > s.quality {
			startup = s.quality
		}
		if startup <= quality {
			s.state = bolaSteady
		}
		if s.state != bolaSteady {
			s.quality = startup
			s.logDecision(fillPercent, level, 0)
			return s.hold()
		}
	}

	// BOLA-O: when bandwidth lies between two bitrates, stay on the lower one and turn the
	// excess buffer into a pacing delay
	delay := 0.0
	if quality > s.quality {
		sustainable := s.sustainable(s.batchBps)
		if quality > sustainable {
			if sustainable < s.quality {
				sustainable = s.quality
			} else {
				delay = level - s.vp*(s.utilities[sustainable]+s.gp)
			}
			quality = sustainable
		}
	}

	if delay > 0 {
		if delay > s.virtualBuffer {
			delay -= s.virtualBuffer
			s.virtualBuffer = 0
		} else {
			s.virtualBuffer -= delay
			delay = 0
		}
	}

	s.quality = quality
	s.logDecision(fillPercent, level, delay)

	return Decision{
		Quality: s.quality,
		Delay:   time.Duration(math.Max(delay, 0) * float64(time.Second)),
	}
}

// applyVirtualBuffer lets availability stalls count as buffered media, as long as the
// throughput can still fetch the higher quality before the real buffer runs out
func (s *bola) applyVirtualBuffer(level float64, quality int) int {
	if s.idleSinceLast > 0 {
		s.virtualBuffer += s.idleSinceLast
		s.idleSinceLast = 0
	}
	if level+s.virtualBuffer > s.bufferMax {
		s.virtualBuffer = s.bufferMax - level
	}
	s.virtualBuffer = math.Max(s.virtualBuffer, 0)

	virtual := s.qualityFromBufferLevel(level + s.virtualBuffer)
	if virtual <= quality {
		return quality
	}

	current := float64(s.bitrates[s.quality])
	maxQuality := quality
	for maxQuality < virtual && float64(s.bitrates[maxQuality+1])*s.segmentDuration/(current*safetyFactor) < level {
		maxQuality++
	}
	if maxQuality <= quality {
		return quality
	}
	if virtual <= maxQuality {
		return virtual
	}

	target := s.vp * (s.gp + s.utilities[maxQuality])
	if level+s.virtualBuffer > target {
		s.virtualBuffer = math.Max(target-level, 0)
	}
	return maxQuality
}

func (s *bola) logDecision(fillPercent int, level, delay float64) {
	s.logger.Debug("BOLA decision", logging.Fields{
		"state":          s.state.String(),
		"fill":           fillPercent,
		"buffer_seconds": level,
		"virtual_buffer": s.virtualBuffer,
		"batch_bps":      s.batchBps,
		"average_bps":    s.averageBps,
		"delay_seconds":  delay,
		"quality":        s.quality,
	})
}
