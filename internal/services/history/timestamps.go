package history

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Форматы времени, которые встречаются в лентах перевозчиков.
// Значения без зоны считаются UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
}

var errBadTimestamp = errors.New("unparseable timestamp")

// ParseTimestamp returns UTC time truncated to microseconds, which is what the
// relational store keeps; identity keys must survive a save/load round trip.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.Wrap(errBadTimestamp, "empty")
	}
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, errors.Wrapf(errBadTimestamp, "%q", s)
}
