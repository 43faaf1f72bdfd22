package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	qb "github.com/performlikemj/loanarmy-sub000/internal/platform/querybuilder"
)

type LoanCandidateRepository struct {
	db *sqlx.DB
}

func NewLoanCandidateRepository(db *sqlx.DB) *LoanCandidateRepository {
	return &LoanCandidateRepository{db: db}
}

// UpsertCandidates writes one detection run's accepted candidates.
// Reruns for the same window update confidence and date in place, so
// the natural key keeps the table deduplicated across runs.
func (r *LoanCandidateRepository) UpsertCandidates(ctx context.Context, candidates []loan.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert candidates tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, cand := range candidates {
		model := loanCandidateInsertModel{
			PlayerID:      cand.PlayerID,
			PlayerName:    cand.PlayerName,
			PrimaryTeamID: cand.PrimaryTeamID,
			LoanTeamID:    cand.LoanTeamID,
			TransferDate:  cand.TransferDate.UTC(),
			Confidence:    cand.Confidence,
			Source:        string(cand.Source),
			WindowKey:     cand.WindowKey,
		}
		query, args, err := qb.InsertModel("loan_candidates", model, `ON CONFLICT (player_id, primary_team_id, loan_team_id, window_key)
DO UPDATE SET
	player_name = EXCLUDED.player_name,
	transfer_date = EXCLUDED.transfer_date,
	confidence = EXCLUDED.confidence,
	source = EXCLUDED.source,
	updated_at = NOW()`)
		if err != nil {
			return fmt.Errorf("build upsert candidate query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert candidate player_id=%d: %w", cand.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert candidates tx: %w", err)
	}
	return nil
}

func (r *LoanCandidateRepository) ListByWindow(ctx context.Context, windowKey string) ([]loan.Candidate, error) {
	query, args, err := qb.Select("*").From("loan_candidates").
		Where(qb.Eq("window_key", windowKey)).
		OrderBy("player_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select candidates query: %w", err)
	}

	var rows []loanCandidateTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	out := make([]loan.Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, loan.Candidate{
			PlayerID:      row.PlayerID,
			PlayerName:    row.PlayerName,
			PrimaryTeamID: row.PrimaryTeamID,
			LoanTeamID:    row.LoanTeamID,
			TransferDate:  row.TransferDate,
			Confidence:    row.Confidence,
			Source:        loan.CandidateSource(row.Source),
			WindowKey:     row.WindowKey,
		})
	}
	return out, nil
}

func (r *LoanCandidateRepository) RecordFailures(ctx context.Context, windowKey string, failures []loan.FailureReason) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record failures tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, failure := range failures {
		model := detectionFailureInsertModel{
			WindowKey:  windowKey,
			FailureKey: failure.Key,
			Reason:     failure.Reason,
			OccurredAt: failure.At.UTC(),
		}
		query, args, err := qb.InsertModel("detection_failures", model, "")
		if err != nil {
			return fmt.Errorf("build insert failure query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert failure key=%s: %w", failure.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record failures tx: %w", err)
	}
	return nil
}
