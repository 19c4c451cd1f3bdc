package transform

import (
	"regexp"
	"strings"
	"time"
)

// OFX datetimes: YYYYMMDD[hhmmss[.fff]][[offset:TZ]]
var ofxDatePattern = regexp.MustCompile(`^(\d{8})(\d{6})?(\.\d+)?(\[[^\]]*\])?$`)

// NormalizeDate converts an institution date string to RFC3339 in UTC.
//
// Accepted forms, tried in order:
//   - OFX compact YYYYMMDDhhmmss, optionally with .fff and/or [offset:TZ]
//     suffixes (also YYYYMMDD): reduced to midnight UTC of the calendar date.
//     The time of day must still be a valid clock time.
//   - RFC3339: converted to UTC, time kept
//   - YYYY-MM-DD
//   - MM/DD/YYYY
//
// Anything else is returned unchanged. NormalizeDate never fails.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}

	if m := ofxDatePattern.FindStringSubmatch(s); m != nil {
		layout, value := "20060102", m[1]
		if m[2] != "" {
			layout, value = "20060102150405", m[1]+m[2]
		}
		if d, err := time.Parse(layout, value); err == nil {
			return midnightUTC(d)
		}
		return raw
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return midnightUTC(d)
	}
	if d, err := time.Parse("1/2/2006", s); err == nil {
		return midnightUTC(d)
	}

	return raw
}

// IsNormalizedDate reports whether s is an RFC3339 timestamp, i.e. whether
// NormalizeDate recognized its input.
func IsNormalizedDate(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func midnightUTC(d time.Time) string {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}
