package manifest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var templateIdentifier = regexp.MustCompile(`\$(RepresentationID|Number|Bandwidth|Time)(%0(\d+)d)?\$`)

// templateValues holds the substitutions for one segment URL
type templateValues struct {
	RepresentationID string
	Number           uint64
	Bandwidth        int
	Time             uint64
}

// expandTemplate substitutes the DASH template identifiers in tmpl. $$ is an escaped dollar.
func expandTemplate(tmpl string, values templateValues) string {
	parts := strings.Split(tmpl, "$$")
	for i, part := range parts {
		parts[i] = templateIdentifier.ReplaceAllStringFunc(part, func(match string) string {
			sub := templateIdentifier.FindStringSubmatch(match)
			width := 0
			if sub[3] != "" {
				width, _ = strconv.Atoi(sub[3])
			}

			switch sub[1] {
			case "RepresentationID":
				return values.RepresentationID
			case "Number":
				return padNumber(values.Number, width)
			case "Bandwidth":
				return padNumber(uint64(values.Bandwidth), width)
			case "Time":
				return padNumber(values.Time, width)
			}
			return match
		})
	}
	return strings.Join(parts, "$")
}

func padNumber(n uint64, width int) string {
	if width <= 0 {
		return strconv.FormatUint(n, 10)
	}
	return fmt.Sprintf("%0*d", width, n)
}
