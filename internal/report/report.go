package report

import (
	"math"
	"sort"
	"time"

	"github.com/RyanBlaney/dash-abr-client/internal/player"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"gonum.org/v1/gonum/stat"
)

// Calculator turns a session result and its trace into a report
type Calculator struct {
	logger logging.Logger
}

// NewCalculator creates a new report calculator
func NewCalculator(logger logging.Logger) *Calculator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &Calculator{
		logger: logger,
	}
}

// Stats represents statistical measures of a series
type Stats struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	P95    float64 `json:"p95" yaml:"p95"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Count  int     `json:"count" yaml:"count"`
}

// StreamReport summarises one stream of a session
type StreamReport struct {
	MediaType      common.MediaType `json:"media_type" yaml:"media_type"`
	Segments       int              `json:"segments" yaml:"segments"`
	Bytes          int64            `json:"bytes" yaml:"bytes"`
	Representation int              `json:"representations" yaml:"representations"`
	FinalQuality   int              `json:"final_quality" yaml:"final_quality"`
	FinalBitrate   int              `json:"final_bitrate" yaml:"final_bitrate"`
	Switches       int              `json:"switches" yaml:"switches"`
	SwitchesDown   int              `json:"switches_down" yaml:"switches_down"`
	Aborts         int              `json:"aborts" yaml:"aborts"`
	Stalls         int              `json:"stalls" yaml:"stalls"`
	StallSeconds   float64          `json:"stall_seconds" yaml:"stall_seconds"`
	StartupMs      int64            `json:"startup_ms" yaml:"startup_ms"`
	PlayedSeconds  float64          `json:"played_seconds" yaml:"played_seconds"`
	Throughput     *Stats           `json:"throughput_bps" yaml:"throughput_bps"`
	Bitrate        *Stats           `json:"bitrate_bps" yaml:"bitrate_bps"`
	Quality        *Stats           `json:"quality" yaml:"quality"`
	BufferFill     *Stats           `json:"buffer_fill" yaml:"buffer_fill"`
	DownloadTimeMs *Stats           `json:"download_time_ms" yaml:"download_time_ms"`
	Error          string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the summary of one playback session
type Report struct {
	SessionID      string          `json:"session_id" yaml:"session_id"`
	Manifest       string          `json:"manifest" yaml:"manifest"`
	Logic          string          `json:"logic" yaml:"logic"`
	Dynamic        bool            `json:"dynamic" yaml:"dynamic"`
	Started        time.Time       `json:"started" yaml:"started"`
	ElapsedSeconds float64         `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Streams        []*StreamReport `json:"streams" yaml:"streams"`
}

// Calculate builds the report of a finished session. trace may be nil.
func (c *Calculator) Calculate(result *player.Result, trace *Trace) *Report {
	if trace == nil {
		trace = &Trace{}
	}

	report := &Report{
		SessionID:      result.SessionID,
		Manifest:       result.Manifest,
		Logic:          string(result.Logic),
		Dynamic:        result.Dynamic,
		Started:        result.Started,
		ElapsedSeconds: result.Elapsed.Seconds(),
	}

	for _, sr := range result.Streams {
		report.Streams = append(report.Streams, c.calculateStream(sr, trace))
	}

	c.logger.Debug("Calculated session report", logging.Fields{
		"session_id": result.SessionID,
		"streams":    len(report.Streams),
		"segments":   len(trace.Segments),
	})

	return report
}

func (c *Calculator) calculateStream(sr player.StreamResult, trace *Trace) *StreamReport {
	var throughput, bitrate, quality, downloadTime, fill []float64
	for _, s := range trace.Segments {
		if s.MediaType != sr.MediaType {
			continue
		}
		throughput = append(throughput, s.ThroughputBps)
		bitrate = append(bitrate, float64(s.Bitrate))
		quality = append(quality, float64(s.Quality))
		downloadTime = append(downloadTime, float64(s.DownloadTimeMs))
	}
	for _, b := range trace.Buffer {
		if b.MediaType == sr.MediaType {
			fill = append(fill, float64(b.FillPercent))
		}
	}

	report := &StreamReport{
		MediaType:      sr.MediaType,
		Segments:       sr.Segments,
		Bytes:          sr.Bytes,
		Representation: sr.Representations,
		FinalQuality:   sr.FinalQuality,
		FinalBitrate:   sr.FinalBitrate,
		Aborts:         sr.Aborts,
		Stalls:         sr.Stalls,
		StallSeconds:   sr.StallDuration.Seconds(),
		StartupMs:      sr.StartupDelay.Milliseconds(),
		PlayedSeconds:  sr.Played.Seconds(),
		Throughput:     c.calculateStats(throughput),
		Bitrate:        c.calculateStats(bitrate),
		Quality:        c.calculateStats(quality),
		BufferFill:     c.calculateStats(fill),
		DownloadTimeMs: c.calculateStats(downloadTime),
		Error:          sr.Error,
	}

	for _, change := range trace.Changes {
		if change.MediaType != sr.MediaType {
			continue
		}
		report.Switches++
		if change.To < change.From {
			report.SwitchesDown++
		}
	}

	return report
}

// calculateStats calculates statistical measures for a dataset
func (c *Calculator) calculateStats(data []float64) *Stats {
	if len(data) == 0 {
		return &Stats{Count: 0}
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	mean, stdDev := stat.PopMeanStdDev(sorted, nil)

	return sanitizeStats(&Stats{
		Count:  len(data),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		Mean:   mean,
		StdDev: stdDev,
	})
}

// sanitizeStats replaces infinite and NaN values, which the JSON encoder rejects
func sanitizeStats(s *Stats) *Stats {
	for _, v := range []*float64{&s.Mean, &s.Median, &s.P95, &s.Min, &s.Max, &s.StdDev} {
		if math.IsInf(*v, 0) || math.IsNaN(*v) {
			*v = 0
		}
	}
	return s
}

// percentile interpolates linearly between the closest ranks of sorted data
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
