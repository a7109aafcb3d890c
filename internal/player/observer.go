package player

import (
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

// Observer receives playback statistics. Implementations must not block.
type Observer interface {
	OnSegmentDownloaded(stats common.SegmentStats)
	OnQualityChange(change common.QualityChange)
	OnBufferLevel(mediaType common.MediaType, fillPercent, capacity int)
	OnStall(mediaType common.MediaType, duration time.Duration)
}

// Observers fans every event out to each observer in order
type Observers []Observer

func (o Observers) OnSegmentDownloaded(stats common.SegmentStats) {
	for _, obs := range o {
		obs.OnSegmentDownloaded(stats)
	}
}

func (o Observers) OnQualityChange(change common.QualityChange) {
	for _, obs := range o {
		obs.OnQualityChange(change)
	}
}

func (o Observers) OnBufferLevel(mediaType common.MediaType, fillPercent, capacity int) {
	for _, obs := range o {
		obs.OnBufferLevel(mediaType, fillPercent, capacity)
	}
}

func (o Observers) OnStall(mediaType common.MediaType, duration time.Duration) {
	for _, obs := range o {
		obs.OnStall(mediaType, duration)
	}
}

// NopObserver ignores every event. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnSegmentDownloaded(common.SegmentStats)  {}
func (NopObserver) OnQualityChange(common.QualityChange)     {}
func (NopObserver) OnBufferLevel(common.MediaType, int, int) {}
func (NopObserver) OnStall(common.MediaType, time.Duration)  {}
