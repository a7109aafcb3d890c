package manifest

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// RepresentationInfo describes one selectable quality of a stream
type RepresentationInfo struct {
	Quality   int    `json:"quality"`
	ID        string `json:"id"`
	Bandwidth int    `json:"bandwidth"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Codecs    string `json:"codecs,omitempty"`
}

// Snapshot is an immutable handle on the manifest that was current when it was taken.
// Callers must not modify the MPD it points to.
type Snapshot struct {
	MPD       *MPD
	Location  string
	UpdatedAt time.Time
}

type cursor struct {
	periodIdx  int
	asIdx      int
	quality    int
	position   int
	addressing *Addressing
}

// View is the lock-guarded accessor over the current manifest. All exported methods take
// the lock themselves and never call back into the view while holding it.
type View struct {
	mu        sync.Mutex
	mpd       *MPD
	location  string
	updatedAt time.Time
	looping   bool
	streams   map[common.MediaType]*cursor
	updated   chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once

	now    func() time.Time
	logger logging.Logger
}

// NewView creates a view over mpd, which was fetched from location
func NewView(mpd *MPD, location string, logger logging.Logger) (*View, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	v := &View{
		mpd:       mpd,
		location:  location,
		updatedAt: time.Now(),
		streams:   make(map[common.MediaType]*cursor),
		updated:   make(chan struct{}),
		stopCh:    make(chan struct{}),
		now:       time.Now,
		logger: logger.WithFields(logging.Fields{
			"component": "manifest_view",
		}),
	}

	for _, mt := range common.MediaTypes {
		if periodIdx, asIdx, ok := findAdaptationSet(mpd, 0, mt, ""); ok {
			v.streams[mt] = &cursor{periodIdx: periodIdx, asIdx: asIdx}
		}
	}

	if len(v.streams) == 0 {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, location,
			common.ErrCodeManifest, "MPD has no audio or video adaptation set", nil)
	}

	return v, nil
}

// findAdaptationSet looks for an adaptation set of the given media type in a period,
// preferring one whose id matches.
func findAdaptationSet(mpd *MPD, periodIdx int, mt common.MediaType, id string) (int, int, bool) {
	if periodIdx < 0 || periodIdx >= len(mpd.Periods) {
		periodIdx = 0
	}
	period := mpd.Periods[periodIdx]

	first := -1
	for i, as := range period.AdaptationSets {
		if as.MediaType() != mt || len(as.Representations) == 0 {
			continue
		}
		if first < 0 {
			first = i
		}
		if id != "" && as.ID == id {
			return periodIdx, i, true
		}
	}

	if first < 0 {
		return 0, 0, false
	}
	return periodIdx, first, true
}

// sortedRepresentations returns the representations ordered by ascending bandwidth
func sortedRepresentations(as *AdaptationSet) []*Representation {
	reps := make([]*Representation, len(as.Representations))
	copy(reps, as.Representations)
	sort.SliceStable(reps, func(i, j int) bool {
		return reps[i].Bandwidth < reps[j].Bandwidth
	})
	return reps
}

// Snapshot copies out the current manifest handle
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{MPD: v.mpd, Location: v.location, UpdatedAt: v.updatedAt}
}

// IsDynamic reports whether the current manifest describes live content
func (v *View) IsDynamic() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mpd.IsDynamic()
}

// MinimumUpdatePeriod returns the manifest refresh interval of live content
func (v *View) MinimumUpdatePeriod() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mpd.MinimumUpdatePeriod.Std()
}

// HasStream reports whether the manifest carries the media type
func (v *View) HasStream(mt common.MediaType) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.streams[mt]
	return ok
}

// MediaTypes returns the streams present in the manifest
func (v *View) MediaTypes() []common.MediaType {
	v.mu.Lock()
	defer v.mu.Unlock()

	var types []common.MediaType
	for _, mt := range common.MediaTypes {
		if _, ok := v.streams[mt]; ok {
			types = append(types, mt)
		}
	}
	return types
}

// SetLooping makes static content wrap around at its end
func (v *View) SetLooping(looping bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.looping = looping
}

// ResolveBaseURLs returns the chain of base URLs for a stream: the selected MPD, Period and
// AdaptationSet level BaseURL, each index falling back to 0 when out of range. The manifest
// location anchors the chain when its first element is relative.
func (v *View) ResolveBaseURLs(mt common.MediaType, mpdIdx, periodIdx, asIdx int) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolveBaseURLsLocked(mt, mpdIdx, periodIdx, asIdx)
}

func (v *View) resolveBaseURLsLocked(mt common.MediaType, mpdIdx, periodIdx, asIdx int) []string {
	return baseURLChain(v.mpd, v.location, v.streams[mt], mpdIdx, periodIdx, asIdx)
}

// baseURLChain collects one BaseURL per level for the stream at c. A nil cursor resolves
// only the MPD level.
func baseURLChain(mpd *MPD, location string, c *cursor, mpdIdx, periodIdx, asIdx int) []string {
	var chain []string
	pick := func(urls []*BaseURL, idx int) {
		list := baseURLStrings(urls)
		if len(list) == 0 {
			return
		}
		if idx < 0 || idx >= len(list) {
			idx = 0
		}
		chain = append(chain, list[idx])
	}

	pick(mpd.BaseURLs, mpdIdx)
	if c != nil {
		period := mpd.Periods[c.periodIdx]
		pick(period.BaseURLs, periodIdx)
		pick(period.AdaptationSets[c.asIdx].BaseURLs, asIdx)
	}

	dir := manifestDirectory(location)
	if len(chain) == 0 {
		return []string{dir}
	}
	if !common.IsAbsoluteURL(chain[0]) && dir != "" {
		chain = append([]string{dir}, chain...)
	}
	return chain
}

// manifestDirectory returns the location with its last path element removed
func manifestDirectory(location string) string {
	u, err := url.Parse(location)
	if err != nil || location == "" {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	dir := path.Dir(u.Path)
	if dir == "." {
		dir = ""
	}
	if len(dir) == 0 || dir[len(dir)-1] != '/' {
		dir += "/"
	}
	u.Path = dir
	return u.String()
}

// Representations lists the stream's qualities in ascending bandwidth order
func (v *View) Representations(mt common.MediaType) []RepresentationInfo {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, ok := v.streams[mt]
	if !ok {
		return nil
	}
	reps := sortedRepresentations(v.adaptationSetLocked(c))
	infos := make([]RepresentationInfo, len(reps))
	for i, rep := range reps {
		infos[i] = RepresentationInfo{
			Quality:   i,
			ID:        rep.ID,
			Bandwidth: rep.Bandwidth,
			Width:     rep.Width,
			Height:    rep.Height,
			Codecs:    rep.Codecs,
		}
	}
	return infos
}

// Bitrates returns the ascending bandwidth ladder of a stream
func (v *View) Bitrates(mt common.MediaType) []int {
	reps := v.Representations(mt)
	bitrates := make([]int, len(reps))
	for i, rep := range reps {
		bitrates[i] = rep.Bandwidth
	}
	return bitrates
}

// Quality returns the index of the active representation
func (v *View) Quality(mt common.MediaType) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.streams[mt]; ok {
		return c.quality
	}
	return 0
}

// SelectRepresentation activates the representation at quality, clamped to the ladder
func (v *View) SelectRepresentation(mt common.MediaType, quality int) (RepresentationInfo, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, ok := v.streams[mt]
	if !ok {
		return RepresentationInfo{}, false
	}

	reps := sortedRepresentations(v.adaptationSetLocked(c))
	quality = max(0, min(quality, len(reps)-1))
	if quality != c.quality {
		c.quality = quality
		c.addressing = nil
	}

	rep := reps[quality]
	return RepresentationInfo{
		Quality:   quality,
		ID:        rep.ID,
		Bandwidth: rep.Bandwidth,
		Width:     rep.Width,
		Height:    rep.Height,
		Codecs:    rep.Codecs,
	}, true
}

// SegmentDuration returns the nominal segment duration of the active representation
func (v *View) SegmentDuration(mt common.MediaType) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()

	if a := v.addressingFor(mt); a != nil {
		return a.SegmentDuration()
	}
	return 0
}

// Addressing returns the resolved addressing of the active representation
func (v *View) Addressing(mt common.MediaType) (*Addressing, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	a := v.addressingFor(mt)
	return a, a != nil
}

// FirstSegmentNumber returns the earliest segment position that can be requested
func (v *View) FirstSegmentNumber(mt common.MediaType) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	a := v.addressingFor(mt)
	if a == nil || !v.mpd.IsDynamic() {
		return 0
	}
	return v.firstAvailableLocked(a)
}

// CurrentSegmentNumber returns the live edge position, or the segment count of static content
func (v *View) CurrentSegmentNumber(mt common.MediaType) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sizeLocked(v.addressingFor(mt))
}

// LastSegmentNumber returns the exclusive upper bound of available segment positions
func (v *View) LastSegmentNumber(mt common.MediaType) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sizeLocked(v.addressingFor(mt))
}

// StartOffset returns the position a stream should start from. Live streams start two
// buffers behind the live edge, without going below the first available segment.
func (v *View) StartOffset(mt common.MediaType, bufferSegments int) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	a := v.addressingFor(mt)
	if a == nil || !v.mpd.IsDynamic() {
		return 0
	}
	start := v.sizeLocked(a) - 2*bufferSegments
	return max(start, v.firstAvailableLocked(a))
}

// SegmentNumber returns the position the next call to NextSegment will resolve
func (v *View) SegmentNumber(mt common.MediaType) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.streams[mt]; ok {
		return c.position
	}
	return 0
}

// SetSegmentNumber moves the stream cursor
func (v *View) SetSegmentNumber(mt common.MediaType, position int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.streams[mt]; ok {
		c.position = max(position, 0)
	}
}

// RewindSegment steps the cursor back by one so the last segment is requested again
func (v *View) RewindSegment(mt common.MediaType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.streams[mt]; ok && c.position > 0 {
		c.position--
	}
}

// InitSegment resolves the initialization segment of the active representation. When the
// representation has none, ok is false and only the reference's RepresentationID is set.
func (v *View) InitSegment(mt common.MediaType) (SegmentReference, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	a := v.addressingFor(mt)
	if a == nil {
		return SegmentReference{}, false
	}
	if ref, ok := a.InitSegment(); ok {
		return ref, true
	}
	return SegmentReference{Kind: SegmentInit, MediaType: mt, RepresentationID: a.rep.ID}, false
}

// NextSegment resolves the segment at the stream cursor and advances it. Static content
// ends (ok=false) after the last segment unless looping. Live content blocks until the
// segment becomes available, the manifest is updated, the view is stopped or ctx is done.
func (v *View) NextSegment(ctx context.Context, mt common.MediaType) (SegmentReference, bool) {
	for {
		v.mu.Lock()
		select {
		case <-v.stopCh:
			v.mu.Unlock()
			return SegmentReference{}, false
		default:
		}

		c, ok := v.streams[mt]
		a := v.addressingFor(mt)
		if !ok || a == nil {
			v.mu.Unlock()
			return SegmentReference{}, false
		}

		dynamic := v.mpd.IsDynamic()
		size := v.sizeLocked(a)

		if dynamic && c.position < size {
			if first := v.firstAvailableLocked(a); c.position < first {
				v.logger.Warn("Stream fell behind the time shift buffer", logging.Fields{
					"media_type": mt,
					"position":   c.position,
					"first":      first,
				})
				c.position = first
			}
		}

		if c.position >= size {
			if !dynamic {
				if !v.looping || size == 0 {
					v.mu.Unlock()
					return SegmentReference{}, false
				}
				c.position = 0
			} else {
				updated := v.updated
				var timer *time.Timer
				var wait <-chan time.Time
				if a.clockDriven() && !v.mpd.AvailabilityStartTime.IsZero() {
					timer = time.NewTimer(a.untilAvailable(c.position, v.now(), v.mpd.AvailabilityStartTime.Time))
					wait = timer.C
				}
				v.mu.Unlock()

				woken := true
				select {
				case <-ctx.Done():
					woken = false
				case <-v.stopCh:
					woken = false
				case <-updated:
				case <-wait:
				}
				if timer != nil {
					timer.Stop()
				}
				if !woken {
					return SegmentReference{}, false
				}
				continue
			}
		}

		ref, ok := a.MediaSegment(c.position)
		if ok {
			c.position++
		}
		v.mu.Unlock()

		return ref, ok
	}
}

// UpdateManifest replaces the manifest. Each stream keeps its adaptation set and
// representation when their ids still exist; the cursor is carried over by presentation
// time, since segment numbers are not stable across republication. Blocked NextSegment
// callers are woken only after all streams are re-resolved.
func (v *View) UpdateManifest(mpd *MPD) error {
	if mpd == nil || len(mpd.Periods) == 0 {
		return common.NewStreamError(common.MediaTypeUnsupported, v.location,
			common.ErrCodeManifest, "refusing to publish an empty MPD", nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	old := v.mpd
	streams := make(map[common.MediaType]*cursor, len(v.streams))

	for mt, c := range v.streams {
		oldAS := old.Periods[c.periodIdx].AdaptationSets[c.asIdx]
		oldRep := sortedRepresentations(oldAS)[c.quality]

		var t time.Duration
		if a := v.addressingFor(mt); a != nil {
			t = a.TimeOf(c.position)
		}

		periodIdx, asIdx, ok := findAdaptationSet(mpd, c.periodIdx, mt, oldAS.ID)
		if !ok {
			v.logger.Warn("Stream disappeared from updated MPD", logging.Fields{"media_type": mt})
			continue
		}

		next := &cursor{periodIdx: periodIdx, asIdx: asIdx}
		reps := sortedRepresentations(mpd.Periods[periodIdx].AdaptationSets[asIdx])
		for i, rep := range reps {
			if !sameRepresentationID(rep.ID, oldRep.ID) {
				continue
			}
			next.quality = i
			if a := v.buildAddressing(mpd, mt, next); a != nil {
				next.position = a.PositionAt(t)
				next.addressing = a
			}
			break
		}
		streams[mt] = next

		v.logger.Debug("Re-resolved stream after MPD update", logging.Fields{
			"media_type":     mt,
			"representation": reps[next.quality].ID,
			"old_position":   c.position,
			"new_position":   next.position,
		})
	}

	v.mpd = mpd
	v.streams = streams
	v.updatedAt = time.Now()

	close(v.updated)
	v.updated = make(chan struct{})

	return nil
}

// Stop wakes every blocked NextSegment caller and makes further calls return ok=false
func (v *View) Stop() {
	v.stopOnce.Do(func() {
		close(v.stopCh)
	})
}

// Done is closed once Stop has been called
func (v *View) Done() <-chan struct{} {
	return v.stopCh
}

func sameRepresentationID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na == nb
	}
	return a == b
}

func (v *View) adaptationSetLocked(c *cursor) *AdaptationSet {
	return v.mpd.Periods[c.periodIdx].AdaptationSets[c.asIdx]
}

// addressingFor returns the cached addressing of the stream's active representation
func (v *View) addressingFor(mt common.MediaType) *Addressing {
	c, ok := v.streams[mt]
	if !ok {
		return nil
	}
	if c.addressing == nil {
		c.addressing = v.buildAddressing(v.mpd, mt, c)
		if c.addressing == nil {
			v.logger.Warn("Representation has no usable segment addressing", logging.Fields{
				"media_type": mt,
				"quality":    c.quality,
			})
		}
	}
	return c.addressing
}

func (v *View) buildAddressing(mpd *MPD, mt common.MediaType, c *cursor) *Addressing {
	as := mpd.Periods[c.periodIdx].AdaptationSets[c.asIdx]
	reps := sortedRepresentations(as)
	if c.quality >= len(reps) {
		c.quality = len(reps) - 1
	}
	chain := baseURLChain(mpd, v.location, c, 0, 0, 0)
	return newAddressing(mpd, c.periodIdx, as, reps[c.quality], chain, mt)
}

// sizeLocked returns the exclusive upper bound of positions available right now
func (v *View) sizeLocked(a *Addressing) int {
	if a == nil {
		return 0
	}
	if v.mpd.IsDynamic() && a.clockDriven() && !v.mpd.AvailabilityStartTime.IsZero() {
		return a.availableCount(v.now(), v.mpd.AvailabilityStartTime.Time)
	}
	return a.Count()
}

func (v *View) firstAvailableLocked(a *Addressing) int {
	size := v.sizeLocked(a)
	depth := v.mpd.TimeShiftBufferDepth.Std()
	segDur := a.SegmentDuration()
	if depth <= 0 || segDur <= 0 {
		return 0
	}
	return max(0, size-int(depth/segDur))
}

func (v *View) String() string {
	snap := v.Snapshot()
	return fmt.Sprintf("View{location=%s type=%s periods=%d}", snap.Location, snap.MPD.Type, len(snap.MPD.Periods))
}
