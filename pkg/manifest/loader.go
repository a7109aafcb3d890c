package manifest

import (
	"context"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
)

// Load fetches and parses the MPD at location
func Load(ctx context.Context, t transport.Transport, location string) (*MPD, error) {
	data, err := transport.ReadAll(ctx, t, transport.Request{URL: location})
	if err != nil {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, location,
			common.ErrCodeManifest, "failed to fetch MPD", err)
	}

	mpd, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return mpd, nil
}

// Refresh fetches a new copy of the manifest behind v and publishes it. The first
// Location element of the current manifest takes precedence over the original URL.
func Refresh(ctx context.Context, t transport.Transport, v *View) error {
	snap := v.Snapshot()
	location := snap.Location
	if len(snap.MPD.Locations) > 0 && snap.MPD.Locations[0] != "" {
		location = snap.MPD.Locations[0]
	}

	mpd, err := Load(ctx, t, location)
	if err != nil {
		return err
	}
	return v.UpdateManifest(mpd)
}
