package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
)

// LoanCandidateRepository is an in-memory sink for dry runs and tests.
// It applies the same natural-key dedup as the postgres sink.
type LoanCandidateRepository struct {
	mu         sync.RWMutex
	candidates map[string]loan.Candidate
	failures   map[string][]loan.FailureReason
}

func NewLoanCandidateRepository() *LoanCandidateRepository {
	return &LoanCandidateRepository{
		candidates: make(map[string]loan.Candidate),
		failures:   make(map[string][]loan.FailureReason),
	}
}

func (r *LoanCandidateRepository) UpsertCandidates(_ context.Context, candidates []loan.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cand := range candidates {
		r.candidates[candidateKey(cand)] = cand
	}
	return nil
}

func (r *LoanCandidateRepository) ListByWindow(_ context.Context, windowKey string) ([]loan.Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]loan.Candidate, 0)
	for _, cand := range r.candidates {
		if cand.WindowKey == windowKey {
			out = append(out, cand)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (r *LoanCandidateRepository) RecordFailures(_ context.Context, windowKey string, failures []loan.FailureReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[windowKey] = append(r.failures[windowKey], failures...)
	return nil
}

func (r *LoanCandidateRepository) FailuresByWindow(windowKey string) []loan.FailureReason {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]loan.FailureReason(nil), r.failures[windowKey]...)
}

func candidateKey(cand loan.Candidate) string {
	return fmt.Sprintf("%d:%d:%d:%s", cand.PlayerID, cand.PrimaryTeamID, cand.LoanTeamID, cand.WindowKey)
}
