package event

import (
	"fmt"
	"strings"
	"time"
)

var offsetLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateOnly = "2006-01-02"

// ParseInstant parses a store date value and normalizes it to loc.
//
// Accepted forms:
//   - with zone: "2024-06-01T09:25:00+09:00", "2024-06-01T00:25:00.000Z"
//   - without zone: "2024-06-01T00:25:00" (read as UTC)
//   - date only: "2024-06-01" (midnight in loc)
func ParseInstant(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty instant")
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.In(loc), nil
		}
	}
	if t, err := time.ParseInLocation(dateOnly, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparsable instant %q", raw)
}
