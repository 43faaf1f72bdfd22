package loan

import "context"

// Repository is the caller-supplied sink for accepted candidates. The
// engine never writes storage itself; sinks deduplicate on
// (player, primary team, loan team, window key) across runs.
type Repository interface {
	UpsertCandidates(ctx context.Context, candidates []Candidate) error
	ListByWindow(ctx context.Context, windowKey string) ([]Candidate, error)
	RecordFailures(ctx context.Context, windowKey string, failures []FailureReason) error
}
