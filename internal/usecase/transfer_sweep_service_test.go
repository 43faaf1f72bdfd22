package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/window"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/cache"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
)

func mustWindow(t *testing.T, key string) window.SeasonWindow {
	t.Helper()
	win, err := window.NewCalendar(logging.NewNop()).Parse(key)
	if err != nil {
		t.Fatalf("Parse(%q): %v", key, err)
	}
	return win
}

func record(playerID int64, name, typeRaw string, date time.Time, from, to int64) transfer.Record {
	return transfer.Record{
		PlayerID:   playerID,
		PlayerName: name,
		Date:       date,
		TypeRaw:    typeRaw,
		Type:       transfer.ClassifyType(typeRaw),
		FromTeamID: from,
		ToTeamID:   to,
	}
}

func TestSweepClubDirectLoan(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	provider.transfers[33] = []transfer.Record{
		record(874, "Marcus Example", "Loan", time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC), 33, 532),
		// Permanent sale in the same window stays out of the candidates
		// but must appear in the history.
		record(901, "Other Player", "€ 12M", time.Date(2024, time.July, 20, 0, 0, 0, 0, time.UTC), 33, 40),
		// Outside the window entirely.
		record(902, "Old Move", "Loan", time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC), 33, 50),
	}

	svc := NewTransferSweepService(provider, nil, nil, logging.NewNop())
	sweep, err := svc.SweepClub(context.Background(), mustWindow(t, "2024-25::SUMMER"), 33)
	if err != nil {
		t.Fatalf("SweepClub: %v", err)
	}

	if len(sweep.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(sweep.Candidates))
	}
	cand := sweep.Candidates[0]
	if cand.PlayerID != 874 || cand.PrimaryTeamID != 33 || cand.LoanTeamID != 532 {
		t.Fatalf("unexpected candidate %+v", cand)
	}
	if cand.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", cand.Confidence)
	}
	if cand.Source != loan.SourceDirectTransfer {
		t.Fatalf("source = %s, want %s", cand.Source, loan.SourceDirectTransfer)
	}
	if cand.WindowKey != "2024-25::SUMMER" {
		t.Fatalf("window key = %s", cand.WindowKey)
	}

	if len(sweep.WindowHistory[901]) != 1 {
		t.Fatalf("permanent move missing from window history: %+v", sweep.WindowHistory)
	}
	if len(sweep.WindowHistory[902]) != 0 {
		t.Fatalf("out-of-window move leaked into history")
	}
}

func TestSweepClubLatestLoanWins(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	provider.transfers[33] = []transfer.Record{
		record(874, "Marcus Example", "Loan", time.Date(2024, time.August, 10, 0, 0, 0, 0, time.UTC), 33, 532),
		record(874, "Marcus Example", "Loan", time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), 33, 49),
	}

	svc := NewTransferSweepService(provider, nil, nil, logging.NewNop())
	sweep, err := svc.SweepClub(context.Background(), mustWindow(t, "2024-25::FULL"), 33)
	if err != nil {
		t.Fatalf("SweepClub: %v", err)
	}

	if len(sweep.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(sweep.Candidates))
	}
	cand := sweep.Candidates[0]
	if cand.LoanTeamID != 49 {
		t.Fatalf("loan team = %d, want the January destination 49", cand.LoanTeamID)
	}
	if len(sweep.WindowHistory[874]) != 2 {
		t.Fatalf("window history rows = %d, want 2", len(sweep.WindowHistory[874]))
	}
}

func TestSweepClubIgnoresInboundLoans(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	provider.transfers[33] = []transfer.Record{
		record(555, "Incoming Player", "Loan", time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC), 49, 33),
	}

	svc := NewTransferSweepService(provider, nil, nil, logging.NewNop())
	sweep, err := svc.SweepClub(context.Background(), mustWindow(t, "2024-25::SUMMER"), 33)
	if err != nil {
		t.Fatalf("SweepClub: %v", err)
	}
	if len(sweep.Candidates) != 0 {
		t.Fatalf("inbound loan produced candidates: %+v", sweep.Candidates)
	}
	if len(sweep.WindowHistory[555]) != 1 {
		t.Fatalf("inbound move should still be part of the window history")
	}
}

func TestSweepClubUsesCache(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	provider.transfers[33] = []transfer.Record{
		record(874, "Marcus Example", "Loan", time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC), 33, 532),
	}

	store := cache.NewStore[[]transfer.Record](time.Hour)
	svc := NewTransferSweepService(provider, nil, store, logging.NewNop())
	win := mustWindow(t, "2024-25::SUMMER")

	for i := 0; i < 3; i++ {
		if _, err := svc.SweepClub(context.Background(), win, 33); err != nil {
			t.Fatalf("SweepClub run %d: %v", i, err)
		}
	}
	if calls := provider.transferCalls[33]; calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 (cache miss only)", calls)
	}

	svc.InvalidateClub(context.Background(), 33)
	if _, err := svc.SweepClub(context.Background(), win, 33); err != nil {
		t.Fatalf("SweepClub after invalidate: %v", err)
	}
	if calls := provider.transferCalls[33]; calls != 2 {
		t.Fatalf("upstream calls after invalidate = %d, want 2", calls)
	}
}

func TestSweepClubRejectsBadInput(t *testing.T) {
	t.Parallel()

	svc := NewTransferSweepService(newStubProvider(), nil, nil, logging.NewNop())

	if _, err := svc.SweepClub(context.Background(), mustWindow(t, "2024-25::SUMMER"), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero club id: err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.SweepClub(context.Background(), window.SeasonWindow{}, 33); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty window: err = %v, want ErrInvalidInput", err)
	}
}
