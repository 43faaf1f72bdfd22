package window

import (
	"errors"
	"testing"
	"time"

	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendar_ParseSummer(t *testing.T) {
	c := NewCalendar(logging.NewNop())

	w, err := c.Parse("2024-25::SUMMER")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.SeasonSlug != "2024-25" || w.Segment != SegmentSummer {
		t.Fatalf("unexpected window %+v", w)
	}
	if !w.Start.Equal(date(2024, time.July, 1)) || !w.End.Equal(date(2024, time.August, 31)) {
		t.Fatalf("unexpected boundaries %v..%v", w.Start, w.End)
	}
	if got := w.Key(); got != "2024-25::SUMMER" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestCalendar_ParseFullSpansSummerToWinter(t *testing.T) {
	c := NewCalendar(logging.NewNop())

	w, err := c.Parse("2024-25::FULL")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !w.Start.Equal(date(2024, time.July, 1)) || !w.End.Equal(date(2025, time.February, 2)) {
		t.Fatalf("unexpected boundaries %v..%v", w.Start, w.End)
	}
}

func TestCalendar_ParseInvalidKeys(t *testing.T) {
	c := NewCalendar(logging.NewNop())

	cases := []string{
		"",
		"2024-25",
		"2024-25::SPRING",
		"2024-25:SUMMER",
		"202425::SUMMER",
		"1999-00::SUMMER",
	}
	for _, key := range cases {
		if _, err := c.Parse(key); !errors.Is(err, ErrInvalidWindowKey) {
			t.Fatalf("Parse(%q) = %v, want ErrInvalidWindowKey", key, err)
		}
	}
}

func TestCalendar_ContainsBoundariesInclusive(t *testing.T) {
	c := NewCalendar(logging.NewNop())
	key := "2024-25::SUMMER"

	cases := []struct {
		d    time.Time
		want bool
	}{
		{date(2024, time.July, 1), true},
		{date(2024, time.August, 15), true},
		{date(2024, time.August, 31), true},
		{date(2024, time.June, 30), false},
		{date(2024, time.September, 1), false},
		// Time of day inside a boundary day still counts.
		{time.Date(2024, time.August, 31, 23, 59, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		if got := c.Contains(tc.d, key); got != tc.want {
			t.Fatalf("Contains(%v, %s) = %t, want %t", tc.d, key, got, tc.want)
		}
	}
}

func TestCalendar_ContainsFailsOpenOnBadKey(t *testing.T) {
	c := NewCalendar(logging.NewNop())

	if c.Contains(date(2024, time.August, 15), "not-a-key") {
		t.Fatalf("expected false for invalid key")
	}
}

func TestDefaultSeasonSlug(t *testing.T) {
	cases := []struct {
		today time.Time
		want  string
	}{
		{date(2024, time.August, 1), "2024-25"},
		{date(2024, time.December, 31), "2024-25"},
		{date(2025, time.January, 1), "2024-25"},
		{date(2025, time.July, 31), "2024-25"},
		{date(2025, time.August, 1), "2025-26"},
	}
	for _, tc := range cases {
		if got := DefaultSeasonSlug(tc.today); got != tc.want {
			t.Fatalf("DefaultSeasonSlug(%v) = %q, want %q", tc.today, got, tc.want)
		}
	}
}
