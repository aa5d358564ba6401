// Package businesstime resolves device timestamps and calendar days in the
// business's fixed operating zone, independent of the server's local zone.
package businesstime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned when a device timestamp cannot be parsed.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// DefaultOffsetHours is Colombia time (UTC-5, no daylight saving).
const DefaultOffsetHours = -5

const dayLayout = "2006-01-02"

// Timestamp layouts accepted from devices and integrations. Fractional
// seconds are accepted after any seconds field.
var (
	zonedLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04Z07:00",
		"2006-01-02T15:04Z0700",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05Z0700",
	}
	localLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
	}
)

// Zone is a fixed UTC offset used for all business-day arithmetic.
type Zone struct {
	loc    *time.Location
	suffix string
}

// NewZone builds a zone for a whole-hour UTC offset.
func NewZone(offsetHours int) Zone {
	sign := '+'
	abs := offsetHours
	if offsetHours < 0 {
		sign = '-'
		abs = -offsetHours
	}
	suffix := fmt.Sprintf("%c%02d:00", sign, abs)
	return Zone{
		loc:    time.FixedZone("UTC"+suffix, offsetHours*3600),
		suffix: suffix,
	}
}

// Default returns the business zone at DefaultOffsetHours.
func Default() Zone {
	return NewZone(DefaultOffsetHours)
}

// Location returns the zone as a *time.Location.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return Default().loc
	}
	return z.loc
}

// Suffix returns the RFC 3339 offset, e.g. "-05:00".
func (z Zone) Suffix() string {
	if z.suffix == "" {
		return Default().suffix
	}
	return z.suffix
}

// Normalize parses a device timestamp. Strings carrying "Z" or a numeric
// offset (±HH:MM or ±HHMM) keep it; anything else is read as business-local
// time. Seconds may be omitted and the date may be separated by a space.
func (z Zone) Normalize(ts string) (time.Time, error) {
	s := strings.TrimSpace(ts)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	if strings.HasSuffix(s, "z") {
		s = strings.TrimSuffix(s, "z") + "Z"
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, z.Location()); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
}

// DayBounds returns the first and last instant of the business-local day
// containing t.
func (z Zone) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(z.Location())
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// Day formats the business-local calendar day containing t as YYYY-MM-DD.
func (z Zone) Day(t time.Time) string {
	return t.In(z.Location()).Format(dayLayout)
}

// ParseDay reads a YYYY-MM-DD string as the start of that business-local day.
func (z Zone) ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, day, z.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t, nil
}

// PreviousDay returns the start of the business-local day before the one
// containing t.
func (z Zone) PreviousDay(t time.Time) time.Time {
	start, _ := z.DayBounds(t)
	return start.AddDate(0, 0, -1)
}

// NextDailyAt returns the first instant strictly after now that sits at
// offset past a business-local midnight.
func (z Zone) NextDailyAt(now time.Time, offset time.Duration) time.Time {
	start, _ := z.DayBounds(now)
	next := start.Add(offset)
	if !next.After(now) {
		next = start.AddDate(0, 0, 1).Add(offset)
	}
	return next
}
