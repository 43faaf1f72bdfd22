package transfer

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type is the normalized movement class of a transfer record.
type Type string

const (
	TypeLoan      Type = "LOAN"
	TypePermanent Type = "PERMANENT"
	TypeFree      Type = "FREE"
	TypeOther     Type = "OTHER"
)

// ClassifyType maps the provider's free-text transfer type onto the
// normalized enum. Providers spell loans many ways ("Loan", "loan
// transfer", "Back from Loan"); any case-insensitive "loan" substring
// counts. Fee strings ("€ 12.5M") mean a permanent move.
func ClassifyType(raw string) Type {
	candidate := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case candidate == "" || candidate == "n/a":
		return TypeOther
	case strings.Contains(candidate, "loan"):
		return TypeLoan
	case strings.Contains(candidate, "free"):
		return TypeFree
	default:
		return TypePermanent
	}
}

// Record is one transfer row as reported upstream. It is never mutated
// after construction; detectors derive from it.
type Record struct {
	PlayerID   int64
	PlayerName string
	Date       time.Time
	TypeRaw    string
	Type       Type
	FromTeamID int64
	ToTeamID   int64
}

func (r Record) Validate() error {
	if r.PlayerID <= 0 {
		return fmt.Errorf("transfer player id is required")
	}
	if r.Date.IsZero() {
		return fmt.Errorf("transfer date is required")
	}
	if r.FromTeamID <= 0 || r.ToTeamID <= 0 {
		return fmt.Errorf("transfer team ids are required")
	}
	return nil
}

// SortByDate orders records chronologically in place; ties keep input
// order so repeated runs stay reproducible.
func SortByDate(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
}

// MostRecent returns the latest-dated record, or nil for an empty slice.
func MostRecent(records []Record) *Record {
	var latest *Record
	for idx := range records {
		if latest == nil || records[idx].Date.After(latest.Date) {
			latest = &records[idx]
		}
	}
	return latest
}
