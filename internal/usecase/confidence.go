package usecase

import (
	"fmt"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
)

// ScoringWeights holds the heuristic weights of the confidence model.
// The defaults are carried from production tuning but are configuration,
// not constants: callers may inject their own per run.
type ScoringWeights struct {
	LoanSignal               float64
	LatestLoanBonus          float64
	PermanentPenalty         float64
	OtherPenalty             float64
	StaleOverlapPenalty      float64
	PermanentMajorityPenalty float64
	LikelyThreshold          float64
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		LoanSignal:               0.8,
		LatestLoanBonus:          0.7,
		PermanentPenalty:         0.5,
		OtherPenalty:             0.3,
		StaleOverlapPenalty:      0.4,
		PermanentMajorityPenalty: 0.6,
		LikelyThreshold:          0.5,
	}
}

func NormalizeScoringWeights(w ScoringWeights) ScoringWeights {
	defaults := DefaultScoringWeights()
	if w.LoanSignal <= 0 {
		w.LoanSignal = defaults.LoanSignal
	}
	if w.LatestLoanBonus <= 0 {
		w.LatestLoanBonus = defaults.LatestLoanBonus
	}
	if w.PermanentPenalty <= 0 {
		w.PermanentPenalty = defaults.PermanentPenalty
	}
	if w.OtherPenalty <= 0 {
		w.OtherPenalty = defaults.OtherPenalty
	}
	if w.StaleOverlapPenalty <= 0 {
		w.StaleOverlapPenalty = defaults.StaleOverlapPenalty
	}
	if w.PermanentMajorityPenalty <= 0 {
		w.PermanentMajorityPenalty = defaults.PermanentMajorityPenalty
	}
	if w.LikelyThreshold <= 0 {
		w.LikelyThreshold = defaults.LikelyThreshold
	}
	return w
}

// ConfidenceScorer turns a player's window-filtered transfer history plus
// the multi-team flag into a bounded estimate that the player is on loan
// right now, as opposed to sold mid-season or loaned and already
// recalled. Same inputs always produce the same report; extra loan
// evidence never lowers a score and extra permanent evidence never
// raises one.
type ConfidenceScorer struct {
	weights ScoringWeights
}

func NewConfidenceScorer(weights ScoringWeights) *ConfidenceScorer {
	return &ConfidenceScorer{weights: NormalizeScoringWeights(weights)}
}

// Score evaluates history, which must already be filtered to the target
// window. multiTeam reports whether the squad-statistics crawl saw the
// player at more than one club.
func (s *ConfidenceScorer) Score(history []transfer.Record, multiTeam bool) loan.ConfidenceReport {
	records := make([]transfer.Record, len(history))
	copy(records, history)
	transfer.SortByDate(records)

	report := loan.ConfidenceReport{}
	score := 0.0

	loanCount := 0
	permanentCount := 0
	lastLoanIdx := -1
	for idx, record := range records {
		switch record.Type {
		case transfer.TypeLoan:
			loanCount++
			lastLoanIdx = idx
			if loanCount == 1 {
				score += s.weights.LoanSignal
				report.Indicators = append(report.Indicators,
					fmt.Sprintf("loan transfer on %s from team %d to team %d", record.Date.Format("2006-01-02"), record.FromTeamID, record.ToTeamID))
			}
		case transfer.TypePermanent, transfer.TypeFree:
			permanentCount++
			score -= s.weights.PermanentPenalty
			report.PermanentIndicators = append(report.PermanentIndicators,
				fmt.Sprintf("%s transfer on %s to team %d", record.TypeRaw, record.Date.Format("2006-01-02"), record.ToTeamID))
		default:
			score -= s.weights.OtherPenalty
			report.PermanentIndicators = append(report.PermanentIndicators,
				fmt.Sprintf("unclassified transfer on %s", record.Date.Format("2006-01-02")))
		}
	}

	// A loan that is still the chronologically last move has not been
	// superseded by a sale; that is the strongest live-loan signal.
	if lastLoanIdx >= 0 && !supersededByPermanent(records, lastLoanIdx) {
		score += s.weights.LatestLoanBonus
		report.Indicators = append(report.Indicators, "latest move is a loan with no later permanent transfer")
	}

	// Stats overlap with a departure as the latest move means the player
	// already left for good; an unclassified latest move stays neutral.
	if multiTeam {
		if latest := latestRecord(records); latest != nil && (latest.Type == transfer.TypePermanent || latest.Type == transfer.TypeFree) {
			score -= s.weights.StaleOverlapPenalty
			report.PermanentIndicators = append(report.PermanentIndicators,
				"multi-team stats overlap but latest window move is a permanent departure")
		}
	}

	if permanentCount > loanCount {
		score -= s.weights.PermanentMajorityPenalty
		report.PermanentIndicators = append(report.PermanentIndicators,
			fmt.Sprintf("permanent moves (%d) outnumber loans (%d) in window", permanentCount, loanCount))
	}

	report.Score = clamp01(score)
	report.IsLikelyLoan = report.Score >= s.weights.LikelyThreshold
	return report
}

func supersededByPermanent(sorted []transfer.Record, loanIdx int) bool {
	for _, record := range sorted[loanIdx+1:] {
		if record.Type == transfer.TypePermanent || record.Type == transfer.TypeFree {
			return true
		}
	}
	return false
}

func latestRecord(sorted []transfer.Record) *transfer.Record {
	if len(sorted) == 0 {
		return nil
	}
	return &sorted[len(sorted)-1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
