package org

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/waypoint/internal/apperr"
)

func TestParseRange(t *testing.T) {
	cases := []struct {
		in      string
		start   time.Time
		isRange bool
		active  bool
	}{
		{"[2020-01-01]", time.Date(2020, 1, 1, 0, 0, 0, 0, time.Local), false, false},
		{"<2021-03-04 Thu 10:30>", time.Date(2021, 3, 4, 10, 30, 0, 0, time.Local), false, true},
		{"[2021-03-04 Do. 9:05]", time.Date(2021, 3, 4, 9, 5, 0, 0, time.Local), false, false},
		{"<2021-03-04 Thu 10:00-11:30>", time.Date(2021, 3, 4, 10, 0, 0, 0, time.Local), true, true},
		{"[2021-03-04 Thu]--[2021-03-06 Sat]", time.Date(2021, 3, 4, 0, 0, 0, 0, time.Local), true, false},
		{"<2021-03-04 Thu 8:00 +1w>", time.Date(2021, 3, 4, 8, 0, 0, 0, time.Local), false, true},
		{"  [2022-12-31 Sat]  ", time.Date(2022, 12, 31, 0, 0, 0, 0, time.Local), false, false},
	}
	for _, tc := range cases {
		ts, err := ParseRange(tc.in)
		if err != nil {
			t.Errorf("ParseRange(%q): %v", tc.in, err)
			continue
		}
		if !ts.Start.Equal(tc.start) {
			t.Errorf("ParseRange(%q).Start = %v, want %v", tc.in, ts.Start, tc.start)
		}
		if ts.IsRange() != tc.isRange {
			t.Errorf("ParseRange(%q).IsRange = %v", tc.in, ts.IsRange())
		}
		if ts.Active != tc.active {
			t.Errorf("ParseRange(%q).Active = %v", tc.in, ts.Active)
		}
	}
}

func TestParseRange_Invalid(t *testing.T) {
	for _, in := range []string{
		"garbage",
		"",
		"2020-01-01",
		"[2020-01-01> ",
		"[2020-02-30]",
		"[2020-01-01 25:00]",
		"[2020-01-01] [2020-01-02]",
	} {
		if _, err := ParseRange(in); !errors.Is(err, apperr.ErrInvalidTimestamp) {
			t.Errorf("ParseRange(%q) err = %v, want ErrInvalidTimestamp", in, err)
		}
	}
}

func TestFindInactive(t *testing.T) {
	tok, off, ok := FindInactive("Meeting <2020-01-01> notes [2020-02-02 Sun 10:00] done")
	if !ok {
		t.Fatal("expected a match")
	}
	if tok != "[2020-02-02 Sun 10:00]" || off != 27 {
		t.Errorf("token = %q at %d", tok, off)
	}
	if _, _, ok := FindInactive("nothing <2020-01-01> here"); ok {
		t.Error("active timestamps must not match")
	}
}
