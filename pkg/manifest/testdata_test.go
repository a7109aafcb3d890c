package manifest

const testManifestURL = "http://cdn.example.com/vod/stream/manifest.mpd"

const staticTemplateMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT10S" minBufferTime="PT2S" profiles="urn:mpeg:dash:profile:isoff-live:2011">
  <Period id="p0" start="PT0S">
    <AdaptationSet id="1" contentType="video" mimeType="video/mp4">
      <SegmentTemplate timescale="1000" duration="2000" startNumber="1" media="$RepresentationID$/seg-$Number%05d$.m4s" initialization="$RepresentationID$/init.mp4"/>
      <Representation id="720p" bandwidth="3000000" width="1280" height="720"/>
      <Representation id="360p" bandwidth="800000" width="640" height="360"/>
      <Representation id="1080p" bandwidth="6000000" width="1920" height="1080"/>
    </AdaptationSet>
    <AdaptationSet id="2" contentType="audio" mimeType="audio/mp4">
      <SegmentTemplate timescale="48000" duration="96000" media="audio/$Bandwidth$/$Number$.m4s" initialization="audio/$Bandwidth$/init.mp4"/>
      <Representation id="a1" bandwidth="128000"/>
    </AdaptationSet>
  </Period>
</MPD>`

const segmentListMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT6S">
  <BaseURL>http://media.example.com/content/</BaseURL>
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <BaseURL>video/</BaseURL>
      <Representation id="1" bandwidth="500000">
        <SegmentList timescale="90000" duration="180000">
          <Initialization sourceURL="init-1.mp4"/>
          <SegmentURL media="s1.m4s"/>
          <SegmentURL media="s2.m4s" mediaRange="100-199"/>
          <SegmentURL media="s3.m4s"/>
        </SegmentList>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

const singleSegmentMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT30S">
  <Period>
    <AdaptationSet contentType="audio">
      <Representation id="10" bandwidth="64000">
        <BaseURL>audio-64k.mp4</BaseURL>
        <SegmentBase indexRange="800-1200">
          <Initialization range="0-799"/>
        </SegmentBase>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

const liveTimelineMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2024-01-01T00:00:00Z" minimumUpdatePeriod="PT2S" timeShiftBufferDepth="PT30S">
  <Period id="1" start="PT0S">
    <AdaptationSet id="v" contentType="video">
      <SegmentTemplate timescale="1000" media="$RepresentationID$/$Time$.m4s">
        <SegmentTimeline>
          <S t="10000" d="2000" r="2"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="1" bandwidth="1000000"/>
      <Representation id="2" bandwidth="2000000"/>
    </AdaptationSet>
  </Period>
</MPD>`

const liveTimelineUpdatedMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2024-01-01T00:00:00Z" minimumUpdatePeriod="PT2S" timeShiftBufferDepth="PT30S">
  <Period id="1" start="PT0S">
    <AdaptationSet id="v" contentType="video">
      <SegmentTemplate timescale="1000" media="$RepresentationID$/$Time$.m4s">
        <SegmentTimeline>
          <S t="12000" d="2000" r="3"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="1" bandwidth="1000000"/>
      <Representation id="2" bandwidth="2000000"/>
    </AdaptationSet>
  </Period>
</MPD>`

const liveClockMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2024-01-01T00:00:00Z" minimumUpdatePeriod="PT4S" timeShiftBufferDepth="PT10S">
  <Period id="1" start="PT0S">
    <AdaptationSet id="v" contentType="video">
      <SegmentTemplate timescale="1" duration="2" startNumber="100" media="live-$Number$.m4s"/>
      <Representation id="1" bandwidth="1000000"/>
    </AdaptationSet>
  </Period>
</MPD>`
