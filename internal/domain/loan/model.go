package loan

import (
	"fmt"
	"time"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
)

// CandidateSource tells which detection signal produced a candidate.
type CandidateSource string

const (
	SourceDirectTransfer  CandidateSource = "DIRECT_TRANSFER"
	SourceStatsCrossmatch CandidateSource = "STATS_CROSSMATCH"
	SourceMerged          CandidateSource = "MERGED"
)

var AllCandidateSources = map[CandidateSource]struct{}{
	SourceDirectTransfer:  {},
	SourceStatsCrossmatch: {},
	SourceMerged:          {},
}

// Candidate is the engine's output unit: one suspected active loan for one
// player inside one window.
type Candidate struct {
	PlayerID      int64
	PlayerName    string
	PrimaryTeamID int64
	LoanTeamID    int64
	TransferDate  time.Time
	Confidence    float64
	Source        CandidateSource
	WindowKey     string
}

func (c Candidate) Validate() error {
	if c.PlayerID <= 0 {
		return fmt.Errorf("candidate player id is required")
	}
	if c.PrimaryTeamID <= 0 || c.LoanTeamID <= 0 {
		return fmt.Errorf("candidate team ids are required")
	}
	if c.PrimaryTeamID == c.LoanTeamID {
		return fmt.Errorf("candidate primary and loan team must differ")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("candidate confidence %f outside [0,1]", c.Confidence)
	}
	if _, ok := AllCandidateSources[c.Source]; !ok {
		return fmt.Errorf("invalid candidate source: %s", c.Source)
	}
	if c.WindowKey == "" {
		return fmt.Errorf("candidate window key is required")
	}
	return nil
}

// Signal is the per-player intermediate gathered during one detection run
// and discarded after reconciliation.
type Signal struct {
	PlayerID          int64
	PlayerName        string
	TeamIDsFromStats  []int64
	TransferWindowHit *transfer.Record
}

// ConfidenceReport explains a score: which history lines argued for a live
// loan and which argued the player already moved for good.
type ConfidenceReport struct {
	Score               float64
	IsLikelyLoan        bool
	Indicators          []string
	PermanentIndicators []string
}

// FailureReason records why one batch key produced no result.
type FailureReason struct {
	Key    string
	Reason string
	At     time.Time
}
