package model

import (
	"fmt"
	"strings"
	"time"
)

// WallClockLayout is the short form accepted from humans ("2025-04-17 18:00").
const WallClockLayout = "2006-01-02 15:04"

// ParseTime accepts RFC 3339 or WallClockLayout and returns the instant in
// UTC.  Wall-clock values carry no zone and are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidArgument)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(WallClockLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: malformed timestamp %q", ErrInvalidArgument, s)
}
