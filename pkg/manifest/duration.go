package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is an xs:duration attribute value
type Duration time.Duration

var (
	rStart   = "^P"          // Must start with a 'P'
	rYears   = "(\\d+Y)?"    // Years are accepted as 365 days
	rMonths  = "(\\d+M)?"    // Months are accepted as 30 days
	rDays    = "(\\d+D)?"    // Days
	rTime    = "(?:T"        // If there's any 'time' units then they must be preceded by a 'T'
	rHours   = "(\\d+H)?"    // Hours
	rMinutes = "(\\d+M)?"    // Minutes
	rSeconds = "([\\d.]+S)?" // Seconds (Potentially decimal)
	rEnd     = ")?$"         // end of regex must close "T" capture group
)

var xmlDurationRegex = regexp.MustCompile(rStart + rYears + rMonths + rDays + rTime + rHours + rMinutes + rSeconds + rEnd)

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Seconds returns the duration as a floating point number of seconds.
func (d Duration) Seconds() float64 { return time.Duration(d).Seconds() }

func (d Duration) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: d.String()}, nil
}

func (d *Duration) UnmarshalXMLAttr(attr xml.Attr) error {
	dur, err := ParseDuration(attr.Value)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String renders the duration as PT<seconds>S
func (d Duration) String() string {
	if d == 0 {
		return "PT0S"
	}
	return "PT" + strconv.FormatFloat(time.Duration(d).Seconds(), 'f', -1, 64) + "S"
}

// ParseDuration parses an xs:duration such as PT1M30.5S or P1DT2H
func ParseDuration(str string) (time.Duration, error) {
	str = strings.TrimSpace(str)
	if len(str) < 3 {
		return 0, errors.New("at least one number and designator are required")
	}

	if strings.Contains(str, "-") {
		return 0, errors.New("duration cannot be negative")
	}

	// Check that only the parts we expect exist and that everything's in the correct order
	if !xmlDurationRegex.MatchString(str) || strings.HasSuffix(str, "T") {
		return 0, fmt.Errorf("duration %q must be in the format: P[nY][nM][nD][T[nH][nM][nS]]", str)
	}

	parts := xmlDurationRegex.FindStringSubmatch(str)
	units := []struct {
		suffix string
		unit   time.Duration
	}{
		{"Y", 365 * 24 * time.Hour},
		{"M", 30 * 24 * time.Hour},
		{"D", 24 * time.Hour},
		{"H", time.Hour},
		{"M", time.Minute},
	}

	var total time.Duration
	for i, u := range units {
		part := parts[i+1]
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(part, u.suffix))
		if err != nil {
			return 0, fmt.Errorf("error parsing %q: %w", part, err)
		}
		total += time.Duration(n) * u.unit
	}

	if parts[6] != "" {
		secs, err := strconv.ParseFloat(strings.TrimSuffix(parts[6], "S"), 64)
		if err != nil {
			return 0, fmt.Errorf("error parsing seconds: %w", err)
		}
		total += time.Duration(secs * float64(time.Second))
	}

	return total, nil
}

// DateTime is an xs:dateTime attribute value
type DateTime struct {
	time.Time
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *DateTime) UnmarshalXMLAttr(attr xml.Attr) error {
	value := strings.TrimSpace(attr.Value)
	for _, layout := range dateTimeLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid dateTime %q", attr.Value)
}

func (t DateTime) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: t.UTC().Format(time.RFC3339Nano)}, nil
}
