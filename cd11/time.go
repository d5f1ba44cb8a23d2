package cd11

import (
	"fmt"
	"time"
)

// TimeLength is the width of a CD-1.1 time field.
const TimeLength = 20

// yyyyddd hh:mm:ss.ttt with ddd the day of the year.
const timeLayout = "2006002 15:04:05.000"

// ParseTime parses a 20 character CD-1.1 time string as UTC.
func ParseTime(s string) (time.Time, error) {
	if len(s) != TimeLength {
		return time.Time{}, fmt.Errorf("%w: %q is %d characters, want %d", ErrBadTime, s, len(s), TimeLength)
	}
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTime, err)
	}
	return t, nil
}

// FormatTime renders t in UTC as a CD-1.1 time string, truncated to milliseconds.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
