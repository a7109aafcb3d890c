package adaptation

import (
	"fmt"
	"time"
)

// Params holds the tuning constants of every strategy. Only the section of the selected
// strategy is read.
type Params struct {
	SegmentBufferSize int           `json:"segment_buffer_size" yaml:"segment_buffer_size"`
	SegmentDuration   time.Duration `json:"segment_duration" yaml:"segment_duration"`

	Rate           RateParams           `json:"rate" yaml:"rate"`
	Buffer         BufferParams         `json:"buffer" yaml:"buffer"`
	ThreeThreshold ThreeThresholdParams `json:"three_threshold" yaml:"three_threshold"`
	AdapTech       AdapTechParams       `json:"adaptech" yaml:"adaptech"`
	Panda          PandaParams          `json:"panda" yaml:"panda"`
	Bola           BolaParams           `json:"bola" yaml:"bola"`
}

type RateParams struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// BufferParams thresholds are buffer fill percentages
type BufferParams struct {
	ReservoirThreshold int `json:"reservoir_threshold" yaml:"reservoir_threshold"`
	MaxThreshold       int `json:"max_threshold" yaml:"max_threshold"`
}

type ThreeThresholdParams struct {
	FirstThreshold  int `json:"first_threshold" yaml:"first_threshold"`
	SecondThreshold int `json:"second_threshold" yaml:"second_threshold"`
	ThirdThreshold  int `json:"third_threshold" yaml:"third_threshold"`
}

type AdapTechParams struct {
	FirstThreshold  int     `json:"first_threshold" yaml:"first_threshold"`
	SecondThreshold int     `json:"second_threshold" yaml:"second_threshold"`
	SwitchUpMargin  int     `json:"switch_up_margin" yaml:"switch_up_margin"`
	Slack           float64 `json:"slack" yaml:"slack"`
	Alpha           float64 `json:"alpha" yaml:"alpha"`
}

// PandaParams follows the probe-and-adapt controller. W is in bits per second and Bmin in
// seconds of buffered media.
type PandaParams struct {
	Alpha   float64 `json:"alpha" yaml:"alpha"`
	Beta    float64 `json:"beta" yaml:"beta"`
	Bmin    float64 `json:"bmin" yaml:"bmin"`
	K       float64 `json:"k" yaml:"k"`
	W       float64 `json:"w" yaml:"w"`
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
}

type BolaParams struct {
	Alpha        float64       `json:"alpha" yaml:"alpha"`
	BufferTarget time.Duration `json:"buffer_target" yaml:"buffer_target"`
}

// DefaultParams returns the stock tuning of every strategy
func DefaultParams() *Params {
	return &Params{
		SegmentBufferSize: 20,
		SegmentDuration:   2 * time.Second,
		Rate: RateParams{
			Alpha: 0.8,
		},
		Buffer: BufferParams{
			ReservoirThreshold: 20,
			MaxThreshold:       80,
		},
		ThreeThreshold: ThreeThresholdParams{
			FirstThreshold:  15,
			SecondThreshold: 35,
			ThirdThreshold:  75,
		},
		AdapTech: AdapTechParams{
			FirstThreshold:  30,
			SecondThreshold: 70,
			SwitchUpMargin:  5,
			Slack:           0.8,
			Alpha:           0.8,
		},
		Panda: PandaParams{
			Alpha:   0.4,
			Beta:    0.6,
			Bmin:    67,
			K:       0.5,
			W:       270000,
			Epsilon: 0.19,
		},
		Bola: BolaParams{
			Alpha:        0.8,
			BufferTarget: 23 * time.Second,
		},
	}
}

// Validate checks the parameters the strategies divide by or compare against
func (p *Params) Validate() error {
	if p.SegmentBufferSize <= 0 {
		return fmt.Errorf("segment buffer size must be positive, got %d", p.SegmentBufferSize)
	}
	if p.SegmentDuration < 0 {
		return fmt.Errorf("segment duration cannot be negative")
	}
	if p.Rate.Alpha < 0 || p.Rate.Alpha >= 1 {
		return fmt.Errorf("rate alpha must be in [0, 1), got %g", p.Rate.Alpha)
	}
	if p.Buffer.ReservoirThreshold < 0 || p.Buffer.MaxThreshold > 100 || p.Buffer.ReservoirThreshold >= p.Buffer.MaxThreshold {
		return fmt.Errorf("buffer thresholds must satisfy 0 <= reservoir < max <= 100, got %d/%d",
			p.Buffer.ReservoirThreshold, p.Buffer.MaxThreshold)
	}
	tt := p.ThreeThreshold
	if tt.FirstThreshold < 0 || tt.FirstThreshold > tt.SecondThreshold || tt.SecondThreshold > tt.ThirdThreshold || tt.ThirdThreshold > 100 {
		return fmt.Errorf("three threshold values must be increasing percentages, got %d/%d/%d",
			tt.FirstThreshold, tt.SecondThreshold, tt.ThirdThreshold)
	}
	at := p.AdapTech
	if at.FirstThreshold < 0 || at.FirstThreshold > at.SecondThreshold || at.SecondThreshold > 100 {
		return fmt.Errorf("adaptech thresholds must be increasing percentages, got %d/%d", at.FirstThreshold, at.SecondThreshold)
	}
	if at.Slack <= 0 || at.Alpha < 0 || at.Alpha >= 1 {
		return fmt.Errorf("adaptech slack must be positive and alpha in [0, 1)")
	}
	if p.Panda.Alpha <= 0 || p.Panda.K <= 0 || p.Panda.W <= 0 || p.Panda.Epsilon < 0 || p.Panda.Epsilon >= 1 {
		return fmt.Errorf("panda alpha, k and w must be positive and epsilon in [0, 1)")
	}
	if p.Bola.Alpha < 0 || p.Bola.Alpha >= 1 {
		return fmt.Errorf("bola alpha must be in [0, 1), got %g", p.Bola.Alpha)
	}
	if p.Bola.BufferTarget <= 0 {
		return fmt.Errorf("bola buffer target must be positive")
	}
	return nil
}

// bufferSeconds converts a fill percentage into seconds of media
func (p *Params) bufferSeconds(fillPercent, capacity int) float64 {
	if capacity <= 0 {
		capacity = p.SegmentBufferSize
	}
	return float64(fillPercent) / 100 * float64(capacity) * p.segmentSeconds()
}

func (p *Params) segmentSeconds() float64 {
	if p.SegmentDuration <= 0 {
		return 2
	}
	return p.SegmentDuration.Seconds()
}
