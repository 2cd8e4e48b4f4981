package parse

import "time"

// Accepted wire timestamp layouts. The API mixes second and sub-second
// precision and occasionally drops the Z suffix.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// parseTime parses an ISO-8601 wire timestamp into UTC.
// Returns ok=false on empty or malformed input.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
