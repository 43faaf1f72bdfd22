package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/window"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
)

// ReviewItem is a below-threshold statistics suspect kept aside for
// manual review instead of being silently dropped.
type ReviewItem struct {
	Candidate loan.Candidate
	Report    loan.ConfidenceReport
}

// ReconcileInput carries both detector outputs for one window.
type ReconcileInput struct {
	Window window.SeasonWindow

	// Sweeps holds every parent club's transfer sweep.
	Sweeps []ClubSweep

	// MultiTeamPlayers is the statistics cross-match output.
	MultiTeamPlayers []MultiTeamPlayer

	// Threshold is the minimum confidence for a statistics-only suspect
	// to be accepted. Zero means the default of 0.5.
	Threshold float64

	// TeamFilter optionally restricts output to candidates whose parent
	// club is in the set. A read filter only.
	TeamFilter map[int64]struct{}
}

// ReconcileOutput splits candidates into accepted and review buckets.
// Accepted is deduplicated to one candidate per player.
type ReconcileOutput struct {
	Accepted []loan.Candidate
	Review   []ReviewItem
}

// ReconcileService merges the two detection signals per player. Direct
// transfer evidence is authoritative; statistics overlap alone must earn
// its confidence through the scorer.
type ReconcileService struct {
	scorer *ConfidenceScorer
	logger *logging.Logger
}

func NewReconcileService(scorer *ConfidenceScorer, logger *logging.Logger) *ReconcileService {
	if logger == nil {
		logger = logging.Default()
	}
	if scorer == nil {
		scorer = NewConfidenceScorer(DefaultScoringWeights())
	}
	return &ReconcileService{scorer: scorer, logger: logger}
}

// Reconcile merges sweep and statistics outputs into loan candidates.
// Pure over its input: identical input yields identical output, and the
// result never holds two candidates for the same player.
func (s *ReconcileService) Reconcile(ctx context.Context, in ReconcileInput) (ReconcileOutput, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ReconcileService.Reconcile")
	defer span.End()

	if err := in.Window.Validate(); err != nil {
		return ReconcileOutput{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	threshold := in.Threshold
	if threshold == 0 {
		threshold = s.scorer.weights.LikelyThreshold
	}
	if threshold < 0 || threshold > 1 {
		return ReconcileOutput{}, fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidInput, threshold)
	}

	sweepByPlayer := make(map[int64]loan.Candidate)
	historyByPlayer := make(map[int64][]transfer.Record)
	for _, sweep := range in.Sweeps {
		for _, cand := range sweep.Candidates {
			if current, ok := sweepByPlayer[cand.PlayerID]; !ok || betterCandidate(cand, current) {
				sweepByPlayer[cand.PlayerID] = cand
			}
		}
		for playerID, records := range sweep.WindowHistory {
			historyByPlayer[playerID] = append(historyByPlayer[playerID], records...)
		}
	}

	multiTeamIDs := make(map[int64]struct{}, len(in.MultiTeamPlayers))
	for _, player := range in.MultiTeamPlayers {
		multiTeamIDs[player.PlayerID] = struct{}{}
	}

	var out ReconcileOutput
	accepted := make(map[int64]loan.Candidate)

	// Transfer-sweep hits first. A player also flagged by statistics is
	// upgraded to MERGED but keeps the sweep's team pair, which names
	// the actual loan destination rather than raw stats overlap.
	for playerID, cand := range sweepByPlayer {
		if _, both := multiTeamIDs[playerID]; both {
			cand.Source = loan.SourceMerged
		}
		cand.Confidence = 1.0
		accepted[playerID] = cand
	}

	for _, player := range in.MultiTeamPlayers {
		if _, done := accepted[player.PlayerID]; done {
			continue
		}
		teams := clampTeamPair(player.Teams)
		if len(teams) < 2 {
			s.logger.WarnContext(ctx, "multi-team player with fewer than two usable teams",
				"player_id", player.PlayerID,
			)
			continue
		}
		history := historyByPlayer[player.PlayerID]
		report := s.scorer.Score(history, true)
		cand := loan.Candidate{
			PlayerID:      player.PlayerID,
			PlayerName:    player.Name,
			PrimaryTeamID: teams[0],
			LoanTeamID:    teams[1],
			TransferDate:  latestDate(history),
			Confidence:    report.Score,
			Source:        loan.SourceStatsCrossmatch,
			WindowKey:     in.Window.Key(),
		}
		if report.Score >= threshold {
			accepted[player.PlayerID] = cand
			continue
		}
		out.Review = append(out.Review, ReviewItem{Candidate: cand, Report: report})
	}

	out.Accepted = make([]loan.Candidate, 0, len(accepted))
	for _, cand := range accepted {
		if !passesTeamFilter(cand, in.TeamFilter) {
			continue
		}
		if err := cand.Validate(); err != nil {
			s.logger.WarnContext(ctx, "dropping invalid candidate",
				"player_id", cand.PlayerID,
				"error", err.Error(),
			)
			continue
		}
		out.Accepted = append(out.Accepted, cand)
	}
	sort.SliceStable(out.Accepted, func(i, j int) bool {
		return out.Accepted[i].PlayerID < out.Accepted[j].PlayerID
	})
	sort.SliceStable(out.Review, func(i, j int) bool {
		return out.Review[i].Candidate.PlayerID < out.Review[j].Candidate.PlayerID
	})

	s.logger.DebugContext(ctx, "reconcile finished",
		"window_key", in.Window.Key(),
		"sweep_players", len(sweepByPlayer),
		"multi_team_players", len(in.MultiTeamPlayers),
		"accepted", len(out.Accepted),
		"review", len(out.Review),
	)
	return out, nil
}

// betterCandidate prefers higher confidence, then the more recent
// transfer date.
func betterCandidate(a, b loan.Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.TransferDate.After(b.TransferDate)
}

// clampTeamPair keeps the first two distinct team ids in discovery
// order. More than two teams in one season is data noise.
func clampTeamPair(teams []int64) []int64 {
	out := make([]int64, 0, 2)
	seen := make(map[int64]struct{}, 2)
	for _, id := range teams {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == 2 {
			break
		}
	}
	return out
}

func passesTeamFilter(cand loan.Candidate, filter map[int64]struct{}) bool {
	if len(filter) == 0 {
		return true
	}
	_, ok := filter[cand.PrimaryTeamID]
	return ok
}

func latestDate(records []transfer.Record) time.Time {
	var latest time.Time
	for _, r := range records {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest
}
