package window

import (
	"fmt"
	"time"
)

// Segment names the slice of a season a transfer window covers.
type Segment string

const (
	SegmentSummer Segment = "SUMMER"
	SegmentWinter Segment = "WINTER"
	SegmentFull   Segment = "FULL"
)

var AllSegments = map[Segment]struct{}{
	SegmentSummer: {},
	SegmentWinter: {},
	SegmentFull:   {},
}

// SeasonWindow is a concrete, immutable date range for one transfer window
// of one season. FULL spans the summer opening through the winter deadline.
type SeasonWindow struct {
	SeasonSlug string
	Segment    Segment
	Start      time.Time
	End        time.Time
}

func (w SeasonWindow) Key() string {
	return fmt.Sprintf("%s::%s", w.SeasonSlug, w.Segment)
}

// Contains reports whether d falls inside the window, boundaries included.
// Comparison is at day granularity; the clock portion of d is ignored.
func (w SeasonWindow) Contains(d time.Time) bool {
	if d.IsZero() {
		return false
	}
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(w.Start) && !day.After(w.End)
}

func (w SeasonWindow) Validate() error {
	if w.SeasonSlug == "" {
		return fmt.Errorf("season slug is required")
	}
	if _, ok := AllSegments[w.Segment]; !ok {
		return fmt.Errorf("invalid window segment: %s", w.Segment)
	}
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window boundaries are required")
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("window end precedes start")
	}
	return nil
}
