package app

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/dash-abr-client/pkg/manifest"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// ManifestSummary describes the streams a session would play
type ManifestSummary struct {
	Location            string          `json:"location" yaml:"location"`
	Type                string          `json:"type" yaml:"type"`
	Dynamic             bool            `json:"dynamic" yaml:"dynamic"`
	DurationSeconds     float64         `json:"duration_seconds" yaml:"duration_seconds"`
	MinBufferSeconds    float64         `json:"min_buffer_seconds" yaml:"min_buffer_seconds"`
	UpdatePeriodSeconds float64         `json:"update_period_seconds,omitempty" yaml:"update_period_seconds,omitempty"`
	Periods             int             `json:"periods" yaml:"periods"`
	Streams             []StreamSummary `json:"streams" yaml:"streams"`
}

// StreamSummary describes the first playable adaptation set of one media type
type StreamSummary struct {
	MediaType              string                        `json:"media_type" yaml:"media_type"`
	DisplayName            string                        `json:"display_name" yaml:"display_name"`
	Addressing             string                        `json:"addressing" yaml:"addressing"`
	SegmentDurationSeconds float64                       `json:"segment_duration_seconds" yaml:"segment_duration_seconds"`
	FirstSegment           int                           `json:"first_segment" yaml:"first_segment"`
	Segments               int                           `json:"segments" yaml:"segments"`
	InitURL                string                        `json:"init_url,omitempty" yaml:"init_url,omitempty"`
	FirstSegmentURL        string                        `json:"first_segment_url,omitempty" yaml:"first_segment_url,omitempty"`
	Representations        []manifest.RepresentationInfo `json:"representations" yaml:"representations"`
}

// InspectManifest loads the manifest at location and summarises its streams
func InspectManifest(ctx context.Context, t transport.Transport, location string, logger logging.Logger) (*ManifestSummary, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	mpd, err := manifest.Load(ctx, t, location)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	view, err := manifest.NewView(mpd, location, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer view.Stop()

	summary := &ManifestSummary{
		Location:            location,
		Type:                mpd.Type,
		Dynamic:             view.IsDynamic(),
		DurationSeconds:     mpd.MediaPresentationDuration.Seconds(),
		MinBufferSeconds:    mpd.MinBufferTime.Seconds(),
		UpdatePeriodSeconds: view.MinimumUpdatePeriod().Seconds(),
		Periods:             len(mpd.Periods),
	}
	if summary.Type == "" {
		summary.Type = "static"
	}

	for _, mt := range view.MediaTypes() {
		stream := StreamSummary{
			MediaType:              string(mt),
			DisplayName:            titleCaser.String(string(mt)),
			SegmentDurationSeconds: view.SegmentDuration(mt).Seconds(),
			FirstSegment:           view.FirstSegmentNumber(mt),
			Segments:               view.LastSegmentNumber(mt),
			Representations:        view.Representations(mt),
		}

		if addressing, ok := view.Addressing(mt); ok {
			stream.Addressing = addressing.Kind.String()
			if ref, ok := addressing.MediaSegment(stream.FirstSegment); ok {
				stream.FirstSegmentURL = ref.URL
			}
		}
		if ref, ok := view.InitSegment(mt); ok {
			stream.InitURL = ref.URL
		}

		summary.Streams = append(summary.Streams, stream)
	}

	logger.Debug("Manifest inspected", logging.Fields{
		"location": location,
		"streams":  len(summary.Streams),
		"dynamic":  summary.Dynamic,
	})

	return summary, nil
}

// Inspect prints the manifest summary with the configured formatter
func (app *PlayerApp) Inspect(ctx context.Context) error {
	summary, err := InspectManifest(ctx, app.factory, app.manifestURL(), app.logger)
	if err != nil {
		return err
	}

	return app.emit(map[string]any{
		"manifest": summary,
	})
}
