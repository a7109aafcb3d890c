package common

import (
	"strings"
	"time"
)

// MediaType identifies one of the independently adapted streams of a session
type MediaType string

const (
	MediaTypeVideo       MediaType = "video"
	MediaTypeAudio       MediaType = "audio"
	MediaTypeUnsupported MediaType = "unsupported"
)

// MediaTypes lists the stream types a session can drive, in start order
var MediaTypes = []MediaType{MediaTypeVideo, MediaTypeAudio}

// ParseMediaType maps a contentType or mimeType attribute to a MediaType
func ParseMediaType(s string) MediaType {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "video" || strings.HasPrefix(s, "video/"):
		return MediaTypeVideo
	case s == "audio" || strings.HasPrefix(s, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeUnsupported
	}
}

// SegmentStats is reported to statistics observers for every pushed segment
type SegmentStats struct {
	MediaType      MediaType `json:"media_type"`
	SegmentNumber  int       `json:"segment_number"`
	Bitrate        int       `json:"bitrate"`
	Quality        int       `json:"quality"`
	BufferFill     int       `json:"buffer_fill"`
	Bytes          int64     `json:"bytes"`
	ThroughputBps  float64   `json:"throughput_bps"`
	DownloadTimeMs int64     `json:"download_time_ms"`
}

// QualityChange is reported whenever a stream switches representation
type QualityChange struct {
	MediaType MediaType `json:"media_type"`
	From      int       `json:"from"`
	To        int       `json:"to"`
	Bitrate   int       `json:"bitrate"`
	At        time.Time `json:"at"`
}
