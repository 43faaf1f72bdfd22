package window

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
)

// ErrInvalidWindowKey marks a window key that does not parse or names a
// season outside the boundary table. Callers treat this as a
// configuration error, not a transient one.
var ErrInvalidWindowKey = errors.New("invalid window key")

var windowKeyRegex = regexp.MustCompile(`^(\d{4}-\d{2})::(SUMMER|WINTER|FULL)$`)

// seasonStartMonth is when a European season flips over; a July date still
// belongs to the previous campaign's summer business in some federations,
// but August 1 is the convention the boundary table is built around.
const seasonStartMonth = time.August

type seasonBoundaries struct {
	summerStart time.Time
	summerEnd   time.Time
	winterStart time.Time
	winterEnd   time.Time
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func standardBoundaries(startYear int) seasonBoundaries {
	return seasonBoundaries{
		summerStart: day(startYear, time.July, 1),
		summerEnd:   day(startYear, time.August, 31),
		winterStart: day(startYear+1, time.January, 1),
		winterEnd:   day(startYear+1, time.February, 2),
	}
}

// knownSeasons is the static season table. Windows outside it are refused
// rather than guessed, since a wrong date filter silently produces wrong
// loan facts.
var knownSeasons = map[string]seasonBoundaries{
	"2020-21": standardBoundaries(2020),
	"2021-22": standardBoundaries(2021),
	"2022-23": standardBoundaries(2022),
	"2023-24": standardBoundaries(2023),
	"2024-25": standardBoundaries(2024),
	"2025-26": standardBoundaries(2025),
	"2026-27": standardBoundaries(2026),
}

// Calendar resolves window keys ("2024-25::SUMMER") against the static
// boundary table and classifies dates.
type Calendar struct {
	logger *logging.Logger
}

func NewCalendar(logger *logging.Logger) *Calendar {
	if logger == nil {
		logger = logging.Default()
	}
	return &Calendar{logger: logger}
}

// Parse resolves a window key into its concrete date range. It fails with
// ErrInvalidWindowKey on a malformed key or a season missing from the
// boundary table.
func (c *Calendar) Parse(key string) (SeasonWindow, error) {
	match := windowKeyRegex.FindStringSubmatch(key)
	if match == nil {
		return SeasonWindow{}, fmt.Errorf("%w: %q does not match <season>::<SUMMER|WINTER|FULL>", ErrInvalidWindowKey, key)
	}

	slug, segment := match[1], Segment(match[2])
	bounds, ok := knownSeasons[slug]
	if !ok {
		return SeasonWindow{}, fmt.Errorf("%w: season %q is not in the boundary table", ErrInvalidWindowKey, slug)
	}

	out := SeasonWindow{SeasonSlug: slug, Segment: segment}
	switch segment {
	case SegmentSummer:
		out.Start, out.End = bounds.summerStart, bounds.summerEnd
	case SegmentWinter:
		out.Start, out.End = bounds.winterStart, bounds.winterEnd
	case SegmentFull:
		out.Start, out.End = bounds.summerStart, bounds.winterEnd
	}
	return out, nil
}

// Contains reports whether d falls inside the window named by key. Any
// parse failure yields false, never an error: a single bad date must not
// abort a whole detection batch, so date filtering fails open.
func (c *Calendar) Contains(d time.Time, key string) bool {
	w, err := c.Parse(key)
	if err != nil {
		c.logger.Warn("window containment check failed open", "window_key", key, "error", err)
		return false
	}
	return w.Contains(d)
}

// DefaultSeasonStartYear derives the season a date belongs to; the season
// flips on August 1.
func DefaultSeasonStartYear(today time.Time) int {
	if today.Month() >= seasonStartMonth {
		return today.Year()
	}
	return today.Year() - 1
}

// DefaultSeasonSlug formats the season a date belongs to as "YYYY-YY".
func DefaultSeasonSlug(today time.Time) string {
	start := DefaultSeasonStartYear(today)
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}
