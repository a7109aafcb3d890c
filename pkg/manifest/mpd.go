package manifest

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

// Presentation types
const (
	TypeStatic  = "static"
	TypeDynamic = "dynamic"
)

// MPD is the subset of the DASH media presentation description the client consumes
type MPD struct {
	XMLName  xml.Name `xml:"MPD"`
	ID       string   `xml:"id,attr,omitempty"`
	Profiles string   `xml:"profiles,attr,omitempty"`
	Type     string   `xml:"type,attr,omitempty"`

	AvailabilityStartTime      DateTime `xml:"availabilityStartTime,attr,omitempty"`
	PublishTime                DateTime `xml:"publishTime,attr,omitempty"`
	MediaPresentationDuration  Duration `xml:"mediaPresentationDuration,attr,omitempty"`
	MinimumUpdatePeriod        Duration `xml:"minimumUpdatePeriod,attr,omitempty"`
	MinBufferTime              Duration `xml:"minBufferTime,attr,omitempty"`
	TimeShiftBufferDepth       Duration `xml:"timeShiftBufferDepth,attr,omitempty"`
	SuggestedPresentationDelay Duration `xml:"suggestedPresentationDelay,attr,omitempty"`
	MaxSegmentDuration         Duration `xml:"maxSegmentDuration,attr,omitempty"`

	Locations []string   `xml:"Location,omitempty"`
	BaseURLs  []*BaseURL `xml:"BaseURL,omitempty"`
	Periods   []*Period  `xml:"Period,omitempty"`
}

// BaseURL is one BaseURL element at any level of the tree
type BaseURL struct {
	URL                    string `xml:",chardata"`
	ServiceLocation        string `xml:"serviceLocation,attr,omitempty"`
	ByteRange              string `xml:"byteRange,attr,omitempty"`
	AvailabilityTimeOffset string `xml:"availabilityTimeOffset,attr,omitempty"`
}

type Period struct {
	ID       string   `xml:"id,attr,omitempty"`
	Start    Duration `xml:"start,attr,omitempty"`
	Duration Duration `xml:"duration,attr,omitempty"`

	BaseURLs        []*BaseURL       `xml:"BaseURL,omitempty"`
	SegmentBase     *SegmentBase     `xml:"SegmentBase,omitempty"`
	SegmentList     *SegmentList     `xml:"SegmentList,omitempty"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate,omitempty"`
	AdaptationSets  []*AdaptationSet `xml:"AdaptationSet,omitempty"`
}

type AdaptationSet struct {
	ID          string `xml:"id,attr,omitempty"`
	ContentType string `xml:"contentType,attr,omitempty"`
	MimeType    string `xml:"mimeType,attr,omitempty"`
	Lang        string `xml:"lang,attr,omitempty"`
	Codecs      string `xml:"codecs,attr,omitempty"`

	BaseURLs        []*BaseURL        `xml:"BaseURL,omitempty"`
	SegmentBase     *SegmentBase      `xml:"SegmentBase,omitempty"`
	SegmentList     *SegmentList      `xml:"SegmentList,omitempty"`
	SegmentTemplate *SegmentTemplate  `xml:"SegmentTemplate,omitempty"`
	Representations []*Representation `xml:"Representation,omitempty"`
}

type Representation struct {
	ID        string `xml:"id,attr"`
	Bandwidth int    `xml:"bandwidth,attr"`
	Width     int    `xml:"width,attr,omitempty"`
	Height    int    `xml:"height,attr,omitempty"`
	FrameRate string `xml:"frameRate,attr,omitempty"`
	Codecs    string `xml:"codecs,attr,omitempty"`
	MimeType  string `xml:"mimeType,attr,omitempty"`
	SAR       string `xml:"sar,attr,omitempty"`
	Quality   int    `xml:"qualityRanking,attr,omitempty"`

	BaseURLs        []*BaseURL       `xml:"BaseURL,omitempty"`
	SegmentBase     *SegmentBase     `xml:"SegmentBase,omitempty"`
	SegmentList     *SegmentList     `xml:"SegmentList,omitempty"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate,omitempty"`
}

// URLType is an Initialization or RepresentationIndex element
type URLType struct {
	SourceURL string `xml:"sourceURL,attr,omitempty"`
	Range     string `xml:"range,attr,omitempty"`
}

type SegmentBase struct {
	Timescale              *uint64  `xml:"timescale,attr,omitempty"`
	PresentationTimeOffset uint64   `xml:"presentationTimeOffset,attr,omitempty"`
	IndexRange             string   `xml:"indexRange,attr,omitempty"`
	Initialization         *URLType `xml:"Initialization,omitempty"`
	RepresentationIndex    *URLType `xml:"RepresentationIndex,omitempty"`
}

type MultipleSegmentBase struct {
	SegmentBase
	Duration        *uint64          `xml:"duration,attr,omitempty"`
	StartNumber     *uint64          `xml:"startNumber,attr,omitempty"`
	SegmentTimeline *SegmentTimeline `xml:"SegmentTimeline,omitempty"`
}

type SegmentList struct {
	MultipleSegmentBase
	SegmentURLs []*SegmentURL `xml:"SegmentURL,omitempty"`
}

type SegmentURL struct {
	Media      string `xml:"media,attr,omitempty"`
	MediaRange string `xml:"mediaRange,attr,omitempty"`
	Index      string `xml:"index,attr,omitempty"`
	IndexRange string `xml:"indexRange,attr,omitempty"`
}

type SegmentTemplate struct {
	MultipleSegmentBase
	Media              string `xml:"media,attr,omitempty"`
	Index              string `xml:"index,attr,omitempty"`
	InitializationAttr string `xml:"initialization,attr,omitempty"`
	BitstreamSwitching string `xml:"bitstreamSwitching,attr,omitempty"`
}

type SegmentTimeline struct {
	Segments []*SegmentTimelineSegment `xml:"S,omitempty"`
}

type SegmentTimelineSegment struct {
	StartTime   *uint64 `xml:"t,attr,omitempty"`
	Duration    uint64  `xml:"d,attr"`
	RepeatCount int     `xml:"r,attr,omitempty"`
}

// Parse decodes an MPD document
func Parse(data []byte) (*MPD, error) {
	mpd := &MPD{}
	if err := xml.Unmarshal(data, mpd); err != nil {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, "",
			common.ErrCodeInvalidFormat, "failed to parse MPD", err)
	}

	if len(mpd.Periods) == 0 {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, "",
			common.ErrCodeManifest, "MPD has no periods", nil)
	}

	if mpd.Type == "" {
		mpd.Type = TypeStatic
	}
	if mpd.Type != TypeStatic && mpd.Type != TypeDynamic {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, "",
			common.ErrCodeInvalidFormat, fmt.Sprintf("unknown MPD type %q", mpd.Type), nil)
	}

	return mpd, nil
}

// IsDynamic reports whether the presentation is live
func (m *MPD) IsDynamic() bool {
	return m.Type == TypeDynamic
}

// MediaType reports which stream an adaptation set carries
func (as *AdaptationSet) MediaType() common.MediaType {
	if mt := common.ParseMediaType(as.ContentType); mt != common.MediaTypeUnsupported {
		return mt
	}
	if mt := common.ParseMediaType(as.MimeType); mt != common.MediaTypeUnsupported {
		return mt
	}
	for _, rep := range as.Representations {
		if mt := common.ParseMediaType(rep.MimeType); mt != common.MediaTypeUnsupported {
			return mt
		}
	}
	return common.MediaTypeUnsupported
}

// PeriodDuration returns the period length, derived from the next period or the presentation
// duration when the attribute is absent. Zero means unknown.
func (m *MPD) PeriodDuration(periodIdx int) Duration {
	if periodIdx < 0 || periodIdx >= len(m.Periods) {
		return 0
	}
	p := m.Periods[periodIdx]
	if p.Duration > 0 {
		return p.Duration
	}
	if periodIdx+1 < len(m.Periods) && m.Periods[periodIdx+1].Start > p.Start {
		return m.Periods[periodIdx+1].Start - p.Start
	}
	if m.MediaPresentationDuration > p.Start {
		return m.MediaPresentationDuration - p.Start
	}
	return 0
}

func baseURLStrings(urls []*BaseURL) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if s := strings.TrimSpace(u.URL); s != "" {
			out = append(out, s)
		}
	}
	return out
}
