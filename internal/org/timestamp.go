package org

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/starford/waypoint/internal/apperr"
)

// timestampRe matches a single org timestamp, active or inactive:
//
//	<2020-01-01 Wed 10:00-11:30 +1w -2d>
//	[2020-01-01]
//
// Bracket pairing is checked after matching.
var timestampRe = regexp.MustCompile(
	`[<\[]` +
		`(\d{4})-(\d{2})-(\d{2})` +
		`(?:[ \t]+[^\s\d>\]+-][^\s\d>\]]*)?` +
		`(?:[ \t]+(\d{1,2}):(\d{2})(?:-(\d{1,2}):(\d{2}))?)?` +
		`(?:[ \t]+(?:\.\+|\+\+|\+)\d+[hdwmy](?:/\d+[hdwmy])?)?` +
		`(?:[ \t]+--?\d+[hdwmy])?` +
		`[>\]]`)

// Timestamp is a parsed org timestamp or timestamp range.
// Org timestamps carry no zone; they are interpreted in time.Local.
type Timestamp struct {
	Start  time.Time
	End    time.Time // zero unless the timestamp is a range
	Active bool
}

// IsRange reports whether t has an end instant.
func (t Timestamp) IsRange() bool {
	return !t.End.IsZero()
}

type tsMatch struct {
	start, end int
	ts         Timestamp
	err        error
}

// ParseRange parses s, which must contain exactly one timestamp or
// timestamp range ("<a>--<b>"), and returns it.
func ParseRange(s string) (Timestamp, error) {
	ms := scanTimestamps(s)
	if len(ms) != 1 {
		return Timestamp{}, fmt.Errorf("%w: expected one timestamp in %q, found %d", apperr.ErrInvalidTimestamp, s, len(ms))
	}
	if ms[0].err != nil {
		return Timestamp{}, ms[0].err
	}
	return ms[0].ts, nil
}

// FindInactive returns the first inactive timestamp token in s and its byte
// offset. ok is false when s has none.
func FindInactive(s string) (token string, offset int, ok bool) {
	for _, loc := range timestampRe.FindAllStringIndex(s, -1) {
		if s[loc[0]] == '[' && s[loc[1]-1] == ']' {
			return s[loc[0]:loc[1]], loc[0], true
		}
	}
	return "", -1, false
}

// scanTimestamps finds every well-bracketed timestamp in s and merges
// adjacent "a--b" pairs into ranges.
func scanTimestamps(s string) []tsMatch {
	var raw []tsMatch
	for _, loc := range timestampRe.FindAllStringSubmatchIndex(s, -1) {
		opening, closing := s[loc[0]], s[loc[1]-1]
		if (opening == '<') != (closing == '>') {
			continue
		}
		ts, err := buildTimestamp(s, loc)
		raw = append(raw, tsMatch{start: loc[0], end: loc[1], ts: ts, err: err})
	}

	var out []tsMatch
	for i := 0; i < len(raw); i++ {
		m := raw[i]
		if i+1 < len(raw) && raw[i+1].start == m.end+2 && s[m.end:m.end+2] == "--" {
			next := raw[i+1]
			if m.err == nil {
				m.err = next.err
			}
			if m.err == nil {
				m.ts.End = next.ts.Start
			}
			m.end = next.end
			i++
		}
		out = append(out, m)
	}
	return out
}

func buildTimestamp(s string, loc []int) (Timestamp, error) {
	group := func(i int) string {
		if loc[2*i] < 0 {
			return ""
		}
		return s[loc[2*i]:loc[2*i+1]]
	}
	atoi := func(v string) int {
		n, _ := strconv.Atoi(v)
		return n
	}

	year, month, day := atoi(group(1)), atoi(group(2)), atoi(group(3))
	hour, minute := 0, 0
	if group(4) != "" {
		hour, minute = atoi(group(4)), atoi(group(5))
	}
	start, err := clock(year, month, day, hour, minute)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: %q: %v", apperr.ErrInvalidTimestamp, s[loc[0]:loc[1]], err)
	}
	ts := Timestamp{Start: start, Active: s[loc[0]] == '<'}
	if group(6) != "" {
		end, err := clock(year, month, day, atoi(group(6)), atoi(group(7)))
		if err != nil {
			return Timestamp{}, fmt.Errorf("%w: %q: %v", apperr.ErrInvalidTimestamp, s[loc[0]:loc[1]], err)
		}
		ts.End = end
	}
	return ts, nil
}

func clock(year, month, day, hour, minute int) (time.Time, error) {
	if hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("time %02d:%02d out of range", hour, minute)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("date %04d-%02d-%02d does not exist", year, month, day)
	}
	return t, nil
}
