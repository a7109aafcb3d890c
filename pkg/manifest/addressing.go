package manifest

import (
	"math"
	"math/bits"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

// AddressingKind selects how a representation's segments are located
type AddressingKind int

const (
	AddressingUndefined AddressingKind = iota
	AddressingSingle
	AddressingList
	AddressingTemplate
)

func (k AddressingKind) String() string {
	switch k {
	case AddressingSingle:
		return "single"
	case AddressingList:
		return "list"
	case AddressingTemplate:
		return "template"
	default:
		return "undefined"
	}
}

// SegmentKind distinguishes initialization, index and media segments
type SegmentKind int

const (
	SegmentMedia SegmentKind = iota
	SegmentInit
	SegmentIndex
)

// SegmentReference locates one downloadable segment
type SegmentReference struct {
	Kind             SegmentKind      `json:"kind"`
	MediaType        common.MediaType `json:"media_type"`
	RepresentationID string           `json:"representation_id"`
	Bandwidth        int              `json:"bandwidth"`
	Number           int              `json:"number"`
	URL              string           `json:"url"`
	Range            string           `json:"range,omitempty"`
	Start            time.Duration    `json:"start"`
	Duration         time.Duration    `json:"duration"`
}

type timelineEntry struct {
	start    uint64
	duration uint64
}

// Addressing is the resolved segment addressing of one representation. It is built once
// per representation and snapshot and never mutated afterwards.
type Addressing struct {
	Kind AddressingKind

	mediaType      common.MediaType
	rep            *Representation
	baseURLs       []string
	timescale      uint64
	pto            uint64
	startNumber    uint64
	duration       uint64
	periodStart    time.Duration
	periodDuration time.Duration

	base     *SegmentBase
	list     *SegmentList
	template *SegmentTemplate
	timeline []timelineEntry
}

// newAddressing inspects Representation, then AdaptationSet, then Period for a segment
// list, a segment template or a single segment. Returns nil when nothing matches.
func newAddressing(m *MPD, periodIdx int, as *AdaptationSet, rep *Representation, baseURLs []string, mediaType common.MediaType) *Addressing {
	period := m.Periods[periodIdx]
	a := &Addressing{
		mediaType:      mediaType,
		rep:            rep,
		baseURLs:       append(append([]string{}, baseURLs...), baseURLStrings(rep.BaseURLs)...),
		timescale:      1,
		startNumber:    1,
		periodStart:    period.Start.Std(),
		periodDuration: m.PeriodDuration(periodIdx).Std(),
	}

	type level struct {
		list     *SegmentList
		template *SegmentTemplate
		base     *SegmentBase
		single   bool
	}
	levels := []level{
		{rep.SegmentList, rep.SegmentTemplate, rep.SegmentBase, rep.SegmentBase != nil || len(rep.BaseURLs) > 0},
		{as.SegmentList, as.SegmentTemplate, as.SegmentBase, as.SegmentBase != nil},
		{period.SegmentList, period.SegmentTemplate, period.SegmentBase, period.SegmentBase != nil},
	}

	for _, l := range levels {
		switch {
		case l.list != nil:
			a.Kind = AddressingList
			a.list = l.list
			a.applyMultipleBase(&l.list.MultipleSegmentBase)
			return a
		case l.template != nil:
			a.Kind = AddressingTemplate
			a.template = l.template
			a.applyMultipleBase(&l.template.MultipleSegmentBase)
			return a
		case l.single:
			a.Kind = AddressingSingle
			a.base = l.base
			if l.base != nil {
				a.applyBase(l.base)
			}
			return a
		}
	}

	return nil
}

func (a *Addressing) applyBase(b *SegmentBase) {
	if b.Timescale != nil && *b.Timescale > 0 {
		a.timescale = *b.Timescale
	}
	a.pto = b.PresentationTimeOffset
	a.base = b
}

func (a *Addressing) applyMultipleBase(mb *MultipleSegmentBase) {
	a.applyBase(&mb.SegmentBase)
	if mb.StartNumber != nil {
		a.startNumber = *mb.StartNumber
	}
	if mb.Duration != nil {
		a.duration = *mb.Duration
	}
	if mb.SegmentTimeline != nil {
		a.timeline = expandTimeline(mb.SegmentTimeline, a.pto, a.periodDuration, a.timescale)
	}
}

// expandTimeline precomputes absolute start times, expanding repeat counts. A negative
// repeat count repeats until the next S element or the end of the period.
func expandTimeline(tl *SegmentTimeline, pto uint64, periodDuration time.Duration, timescale uint64) []timelineEntry {
	var entries []timelineEntry
	var next uint64 = pto

	for i, s := range tl.Segments {
		if s.StartTime != nil {
			next = *s.StartTime
		}
		if s.Duration == 0 {
			continue
		}

		repeat := s.RepeatCount
		if repeat < 0 {
			var end uint64
			switch {
			case i+1 < len(tl.Segments) && tl.Segments[i+1].StartTime != nil:
				end = *tl.Segments[i+1].StartTime
			case periodDuration > 0:
				end = pto + toUnits(periodDuration, timescale)
			default:
				end = next + s.Duration
			}
			repeat = int((end-min(end, next)+s.Duration-1)/s.Duration) - 1
			if repeat < 0 {
				repeat = 0
			}
		}

		for r := 0; r <= repeat; r++ {
			entries = append(entries, timelineEntry{start: next, duration: s.Duration})
			next += s.Duration
		}
	}

	return entries
}

// Representation returns the representation this addressing belongs to
func (a *Addressing) Representation() *Representation {
	return a.rep
}

// HasTimeline reports whether segment times come from an explicit timeline
func (a *Addressing) HasTimeline() bool {
	return len(a.timeline) > 0
}

// SegmentDuration returns the nominal duration of one media segment
func (a *Addressing) SegmentDuration() time.Duration {
	switch {
	case a.Kind == AddressingSingle:
		return a.periodDuration
	case len(a.timeline) > 0:
		return fromUnits(a.timeline[0].duration, a.timescale)
	case a.duration > 0:
		return fromUnits(a.duration, a.timescale)
	default:
		return 0
	}
}

// Count returns the number of media segments known from the manifest alone. Duration
// based templates of live presentations depend on the clock; see availableCount.
func (a *Addressing) Count() int {
	switch a.Kind {
	case AddressingSingle:
		return 1
	case AddressingList:
		return len(a.list.SegmentURLs)
	case AddressingTemplate:
		if len(a.timeline) > 0 {
			return len(a.timeline)
		}
		if a.duration == 0 || a.periodDuration <= 0 {
			return 0
		}
		units := toUnits(a.periodDuration, a.timescale)
		return int((units + a.duration - 1) / a.duration)
	default:
		return 0
	}
}

// clockDriven reports whether live availability is computed from wall-clock time
func (a *Addressing) clockDriven() bool {
	return a.Kind == AddressingTemplate && len(a.timeline) == 0 && a.duration > 0
}

// availableCount returns how many segments of a live presentation are fully available at now
func (a *Addressing) availableCount(now, availabilityStart time.Time) int {
	if !a.clockDriven() {
		return a.Count()
	}
	elapsed := now.Sub(availabilityStart) - a.periodStart
	if elapsed <= 0 {
		return 0
	}
	return int(toFloorUnits(elapsed, a.timescale) / a.duration)
}

// untilAvailable returns how long to wait for segment position to become available
func (a *Addressing) untilAvailable(position int, now, availabilityStart time.Time) time.Duration {
	if !a.clockDriven() {
		return 0
	}
	end := availabilityStart.Add(a.periodStart + a.TimeOf(position+1))
	if d := end.Sub(now); d > 0 {
		return d
	}
	return 0
}

// TimeOf returns the presentation time of a segment position relative to the period start.
// The position one past the last timeline entry maps to the end of the timeline.
func (a *Addressing) TimeOf(position int) time.Duration {
	if position <= 0 {
		if len(a.timeline) > 0 {
			return fromUnits(a.timeline[0].start-min(a.pto, a.timeline[0].start), a.timescale)
		}
		return 0
	}

	if len(a.timeline) > 0 {
		if position >= len(a.timeline) {
			last := a.timeline[len(a.timeline)-1]
			end := last.start + last.duration
			return fromUnits(end-min(a.pto, end), a.timescale)
		}
		start := a.timeline[position].start
		return fromUnits(start-min(a.pto, start), a.timescale)
	}

	if a.duration > 0 {
		return fromUnits(uint64(position)*a.duration, a.timescale)
	}

	return 0
}

// PositionAt returns the segment position covering presentation time t
func (a *Addressing) PositionAt(t time.Duration) int {
	if t <= 0 {
		return 0
	}
	units := toUnits(t, a.timescale)

	if n := len(a.timeline); n > 0 {
		last := a.timeline[n-1]
		if units+a.pto >= last.start+last.duration {
			return n
		}
		idx := sort.Search(n, func(i int) bool {
			return a.timeline[i].start > units+a.pto
		})
		return max(idx-1, 0)
	}

	if a.duration > 0 {
		return int(units / a.duration)
	}

	return 0
}

// MediaSegment resolves the media segment at position
func (a *Addressing) MediaSegment(position int) (SegmentReference, bool) {
	if position < 0 {
		return SegmentReference{}, false
	}

	ref := SegmentReference{
		Kind:             SegmentMedia,
		MediaType:        a.mediaType,
		RepresentationID: a.rep.ID,
		Bandwidth:        a.rep.Bandwidth,
		Number:           position,
		Start:            a.TimeOf(position),
	}

	switch a.Kind {
	case AddressingSingle:
		if position != 0 {
			return SegmentReference{}, false
		}
		ref.URL = joinURL(a.baseURLs, "")
		ref.Duration = a.periodDuration
		return ref, true

	case AddressingList:
		if position >= len(a.list.SegmentURLs) {
			return SegmentReference{}, false
		}
		su := a.list.SegmentURLs[position]
		ref.URL = joinURL(a.baseURLs, su.Media)
		ref.Range = su.MediaRange
		ref.Duration = a.durationAt(position)
		return ref, true

	case AddressingTemplate:
		if len(a.timeline) > 0 && position >= len(a.timeline) {
			return SegmentReference{}, false
		}
		values := templateValues{
			RepresentationID: a.rep.ID,
			Number:           a.startNumber + uint64(position),
			Bandwidth:        a.rep.Bandwidth,
			Time:             a.pto + toUnits(ref.Start, a.timescale),
		}
		if len(a.timeline) > 0 {
			values.Time = a.timeline[position].start
		}
		ref.URL = joinURL(a.baseURLs, expandTemplate(a.template.Media, values))
		ref.Duration = a.durationAt(position)
		return ref, true
	}

	return SegmentReference{}, false
}

// InitSegment resolves the initialization segment, if the representation has one
func (a *Addressing) InitSegment() (SegmentReference, bool) {
	ref := SegmentReference{
		Kind:             SegmentInit,
		MediaType:        a.mediaType,
		RepresentationID: a.rep.ID,
		Bandwidth:        a.rep.Bandwidth,
		Number:           -1,
	}

	if a.Kind == AddressingTemplate && a.template.InitializationAttr != "" {
		ref.URL = joinURL(a.baseURLs, expandTemplate(a.template.InitializationAttr, templateValues{
			RepresentationID: a.rep.ID,
			Bandwidth:        a.rep.Bandwidth,
		}))
		return ref, true
	}

	if a.base != nil && a.base.Initialization != nil {
		source := a.base.Initialization.SourceURL
		if a.Kind == AddressingTemplate {
			source = expandTemplate(source, templateValues{RepresentationID: a.rep.ID, Bandwidth: a.rep.Bandwidth})
		}
		ref.URL = joinURL(a.baseURLs, source)
		ref.Range = a.base.Initialization.Range
		return ref, true
	}

	return SegmentReference{}, false
}

// IndexSegment resolves the segment index, if the representation has one
func (a *Addressing) IndexSegment() (SegmentReference, bool) {
	ref := SegmentReference{
		Kind:             SegmentIndex,
		MediaType:        a.mediaType,
		RepresentationID: a.rep.ID,
		Bandwidth:        a.rep.Bandwidth,
		Number:           -1,
	}

	switch {
	case a.Kind == AddressingTemplate && a.template.Index != "":
		ref.URL = joinURL(a.baseURLs, expandTemplate(a.template.Index, templateValues{
			RepresentationID: a.rep.ID,
			Bandwidth:        a.rep.Bandwidth,
		}))
		return ref, true
	case a.base != nil && a.base.RepresentationIndex != nil:
		ref.URL = joinURL(a.baseURLs, a.base.RepresentationIndex.SourceURL)
		ref.Range = a.base.RepresentationIndex.Range
		return ref, true
	case a.base != nil && a.base.IndexRange != "":
		ref.URL = joinURL(a.baseURLs, "")
		ref.Range = a.base.IndexRange
		return ref, true
	}

	return SegmentReference{}, false
}

func (a *Addressing) durationAt(position int) time.Duration {
	if position < len(a.timeline) {
		return fromUnits(a.timeline[position].duration, a.timescale)
	}
	if a.duration > 0 {
		return fromUnits(a.duration, a.timescale)
	}
	return 0
}

// joinURL resolves path against a chain of base URLs. Every base is treated as a directory
// except the last one when path is empty, which then names the file itself.
func joinURL(chain []string, path string) string {
	var resolved *url.URL
	for i, base := range chain {
		ref, err := url.Parse(strings.TrimSpace(base))
		if err != nil {
			continue
		}
		if resolved == nil || ref.IsAbs() {
			resolved = ref
		} else {
			resolved = resolved.ResolveReference(ref)
		}
		isFile := i == len(chain)-1 && path == ""
		if !isFile && !strings.HasSuffix(resolved.Path, "/") {
			dir := *resolved
			dir.Path += "/"
			resolved = &dir
		}
	}

	if path == "" {
		if resolved == nil {
			return ""
		}
		return resolved.String()
	}

	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	if resolved == nil || ref.IsAbs() {
		return ref.String()
	}
	return resolved.ResolveReference(ref).String()
}

// toUnits converts d to timescale units, rounding up so that conversions of values produced
// by fromUnits are exact.
func toUnits(d time.Duration, timescale uint64) uint64 {
	if d <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(d), timescale)
	lo, carry := bits.Add64(lo, uint64(time.Second)-1, 0)
	hi += carry
	if hi >= uint64(time.Second) {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, uint64(time.Second))
	return q
}

func toFloorUnits(d time.Duration, timescale uint64) uint64 {
	if d <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(d), timescale)
	if hi >= uint64(time.Second) {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, uint64(time.Second))
	return q
}

func fromUnits(units, timescale uint64) time.Duration {
	if timescale == 0 {
		timescale = 1
	}
	hi, lo := bits.Mul64(units, uint64(time.Second))
	if hi >= timescale {
		return time.Duration(math.MaxInt64)
	}
	q, _ := bits.Div64(hi, lo, timescale)
	if q > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(q)
}
