package usecase

import (
	"context"
	"fmt"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/window"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/cache"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
)

const transferCacheKeyPrefix = "transfers:team:"

// ClubSweep is the outbound-loan evidence gathered from one parent club:
// one candidate per player (latest qualifying loan wins) plus every
// in-window move seen in the club's history, which later feeds the
// scorer for stats-only players.
type ClubSweep struct {
	ClubID        int64
	Candidates    []loan.Candidate
	WindowHistory map[int64][]transfer.Record
}

// TransferSweepService detects outbound loans by sweeping the transfer
// history of allow-listed parent clubs. Histories are expensive and
// change at most daily, so they go through the TTL cache.
type TransferSweepService struct {
	provider LoanDataProvider
	calendar *window.Calendar
	store    *cache.Store[[]transfer.Record]
	logger   *logging.Logger
}

func NewTransferSweepService(
	provider LoanDataProvider,
	calendar *window.Calendar,
	store *cache.Store[[]transfer.Record],
	logger *logging.Logger,
) *TransferSweepService {
	if logger == nil {
		logger = logging.Default()
	}
	if calendar == nil {
		calendar = window.NewCalendar(logger)
	}
	return &TransferSweepService{
		provider: provider,
		calendar: calendar,
		store:    store,
		logger:   logger,
	}
}

func (s *TransferSweepService) CacheStats(ctx context.Context) cache.Stats {
	if s.store == nil {
		return cache.Stats{}
	}
	return s.store.Stats(ctx)
}

func (s *TransferSweepService) InvalidateClub(ctx context.Context, clubID int64) {
	if s.store != nil {
		s.store.Invalidate(ctx, transferCacheKey(clubID))
	}
}

// SweepClub fetches one parent club's transfer history and extracts its
// outbound loans inside the window. Only moves leaving the club qualify;
// a player recalled and re-loaned in the same window keeps the
// latest-dated record.
func (s *TransferSweepService) SweepClub(ctx context.Context, win window.SeasonWindow, clubID int64) (ClubSweep, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransferSweepService.SweepClub")
	defer span.End()

	if clubID <= 0 {
		return ClubSweep{}, fmt.Errorf("%w: club id must be greater than zero", ErrInvalidInput)
	}
	if err := win.Validate(); err != nil {
		return ClubSweep{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	history, err := s.fetchHistory(ctx, clubID)
	if err != nil {
		return ClubSweep{}, fmt.Errorf("sweep club_id=%d: %w", clubID, err)
	}

	out := ClubSweep{
		ClubID:        clubID,
		WindowHistory: make(map[int64][]transfer.Record),
	}

	windowKey := win.Key()
	latestByPlayer := make(map[int64]transfer.Record)
	for _, record := range history {
		if !s.calendar.Contains(record.Date, windowKey) {
			continue
		}
		out.WindowHistory[record.PlayerID] = append(out.WindowHistory[record.PlayerID], record)

		if record.Type != transfer.TypeLoan {
			continue
		}
		// Inbound loans belong to some other parent club's sweep.
		if record.FromTeamID != clubID {
			continue
		}
		if record.FromTeamID == record.ToTeamID {
			s.logger.WarnContext(ctx, "skip loan with identical teams",
				"club_id", clubID,
				"player_id", record.PlayerID,
			)
			continue
		}
		if current, ok := latestByPlayer[record.PlayerID]; !ok || record.Date.After(current.Date) {
			latestByPlayer[record.PlayerID] = record
		}
	}

	out.Candidates = make([]loan.Candidate, 0, len(latestByPlayer))
	for _, record := range latestByPlayer {
		out.Candidates = append(out.Candidates, loan.Candidate{
			PlayerID:      record.PlayerID,
			PlayerName:    record.PlayerName,
			PrimaryTeamID: record.FromTeamID,
			LoanTeamID:    record.ToTeamID,
			TransferDate:  record.Date,
			Confidence:    1.0,
			Source:        loan.SourceDirectTransfer,
			WindowKey:     windowKey,
		})
	}

	s.logger.DebugContext(ctx, "club sweep finished",
		"club_id", clubID,
		"window_key", windowKey,
		"history_rows", len(history),
		"loan_candidates", len(out.Candidates),
	)
	return out, nil
}

func (s *TransferSweepService) fetchHistory(ctx context.Context, clubID int64) ([]transfer.Record, error) {
	loader := func(ctx context.Context) ([]transfer.Record, error) {
		return s.provider.FetchTeamTransfers(ctx, clubID)
	}
	if s.store == nil {
		return loader(ctx)
	}
	return s.store.GetOrLoad(ctx, transferCacheKey(clubID), loader)
}

func transferCacheKey(clubID int64) string {
	return fmt.Sprintf("%s%d", transferCacheKeyPrefix, clubID)
}
