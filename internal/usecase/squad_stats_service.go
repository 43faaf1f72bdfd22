package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/window"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/cache"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
)

const (
	playerStatsCacheKeyPrefix = "playerstats:league:"

	defaultStatsFetchConcurrency = 3
)

// MultiTeamPlayer is a player whose season statistics name more than one
// team. Teams keeps discovery order: the first block the provider
// returned comes first, which downstream treats as the parent club.
type MultiTeamPlayer struct {
	PlayerID int64
	Name     string
	Teams    []int64
}

// SquadStatsConfig tunes the statistics cross-match.
type SquadStatsConfig struct {
	// SeasonYear is the season the statistics belong to, e.g. 2024 for
	// the 2024-25 campaign.
	SeasonYear int

	// AssumeMinutesWhenMissing treats a statistics block with no minutes
	// figure as played time instead of discarding it. Some lower
	// leagues never report minutes.
	AssumeMinutesWhenMissing bool

	// FetchConcurrency bounds the parallel league fetches.
	FetchConcurrency int
}

func (c SquadStatsConfig) normalized() SquadStatsConfig {
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = defaultStatsFetchConcurrency
	}
	return c
}

// SquadStatsService finds loan suspects by cross-matching season player
// statistics: a player credited with appearances for two or more teams
// in one season is a cross-match suspect. The signal is weaker than a
// transfer record, so suspects are scored before acceptance.
type SquadStatsService struct {
	provider LoanDataProvider
	store    *cache.Store[[]UpstreamPlayerStats]
	logger   *logging.Logger
}

func NewSquadStatsService(
	provider LoanDataProvider,
	store *cache.Store[[]UpstreamPlayerStats],
	logger *logging.Logger,
) *SquadStatsService {
	if logger == nil {
		logger = logging.Default()
	}
	return &SquadStatsService{
		provider: provider,
		store:    store,
		logger:   logger,
	}
}

func (s *SquadStatsService) CacheStats(ctx context.Context) cache.Stats {
	if s.store == nil {
		return cache.Stats{}
	}
	return s.store.Stats(ctx)
}

// CrossMatch pulls player statistics for every given league and returns
// the players seen at more than one team. Leagues that do not cover
// player statistics are skipped. A league that fails to fetch is
// recorded as a failure and does not stop its siblings, except for
// authorization failures which abort the whole pass.
func (s *SquadStatsService) CrossMatch(
	ctx context.Context,
	win window.SeasonWindow,
	leagues []UpstreamLeague,
	cfg SquadStatsConfig,
) ([]MultiTeamPlayer, []loan.FailureReason, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SquadStatsService.CrossMatch")
	defer span.End()

	if err := win.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	cfg = cfg.normalized()
	if cfg.SeasonYear <= 0 {
		return nil, nil, fmt.Errorf("%w: season year must be greater than zero", ErrInvalidInput)
	}

	var (
		mu       sync.Mutex
		rows     []UpstreamPlayerStats
		failures []loan.FailureReason
		authErr  error
	)

	p := pool.New().WithMaxGoroutines(cfg.FetchConcurrency)
	for _, league := range leagues {
		if !league.CoversPlayerStats {
			s.logger.InfoContext(ctx, "league skipped, no player statistics coverage",
				"league_id", league.ID,
				"league_name", league.Name,
			)
			continue
		}
		p.Go(func() {
			stats, err := s.fetchLeagueStats(ctx, league.ID, cfg.SeasonYear)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, ErrUnauthorized) && authErr == nil {
					authErr = err
				}
				s.logger.WarnContext(ctx, "league statistics fetch failed",
					"league_id", league.ID,
					"season", cfg.SeasonYear,
					"error", err.Error(),
				)
				failures = append(failures, loan.FailureReason{
					Key:    fmt.Sprintf("league:%d", league.ID),
					Reason: err.Error(),
				})
				return
			}
			rows = append(rows, stats...)
		})
	}
	p.Wait()

	if authErr != nil {
		return nil, failures, authErr
	}

	players := s.collectMultiTeam(ctx, rows, cfg)
	s.logger.DebugContext(ctx, "statistics cross-match finished",
		"window_key", win.Key(),
		"leagues", len(leagues),
		"stat_rows", len(rows),
		"multi_team_players", len(players),
		"failures", len(failures),
	)
	return players, failures, nil
}

// collectMultiTeam unions the team ids each player was credited with.
// The same player appears once per league, so rows for one player id
// merge across leagues while keeping discovery order.
func (s *SquadStatsService) collectMultiTeam(ctx context.Context, rows []UpstreamPlayerStats, cfg SquadStatsConfig) []MultiTeamPlayer {
	type playerAgg struct {
		name  string
		teams []int64
		seen  map[int64]struct{}
	}

	order := make([]int64, 0, len(rows))
	byID := make(map[int64]*playerAgg, len(rows))

	for _, row := range rows {
		agg, ok := byID[row.PlayerID]
		if !ok {
			agg = &playerAgg{name: row.Name, seen: make(map[int64]struct{})}
			byID[row.PlayerID] = agg
			order = append(order, row.PlayerID)
		}
		if agg.name == "" {
			agg.name = row.Name
		}
		for _, block := range row.Blocks {
			if !s.blockCountsAsPlayed(block, cfg) {
				continue
			}
			if _, dup := agg.seen[block.TeamID]; dup {
				continue
			}
			agg.seen[block.TeamID] = struct{}{}
			agg.teams = append(agg.teams, block.TeamID)
		}
	}

	players := make([]MultiTeamPlayer, 0)
	for _, id := range order {
		agg := byID[id]
		if len(agg.teams) < 2 {
			continue
		}
		players = append(players, MultiTeamPlayer{
			PlayerID: id,
			Name:     agg.name,
			Teams:    agg.teams,
		})
	}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].PlayerID < players[j].PlayerID
	})
	return players
}

// blockCountsAsPlayed decides whether a statistics block is real playing
// time. Blocks with zero appearances are roster noise. Missing minutes
// are trusted only when configured, since some feeds omit them.
func (s *SquadStatsService) blockCountsAsPlayed(block UpstreamStatsBlock, cfg SquadStatsConfig) bool {
	if block.TeamID <= 0 {
		return false
	}
	if block.Appearances == nil || *block.Appearances <= 0 {
		return false
	}
	if block.Minutes == nil {
		return cfg.AssumeMinutesWhenMissing
	}
	return *block.Minutes > 0
}

func (s *SquadStatsService) fetchLeagueStats(ctx context.Context, leagueID int64, season int) ([]UpstreamPlayerStats, error) {
	loader := func(ctx context.Context) ([]UpstreamPlayerStats, error) {
		return s.provider.FetchLeaguePlayerStats(ctx, leagueID, season)
	}
	if s.store == nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("%s%d:%d", playerStatsCacheKeyPrefix, leagueID, season)
	return s.store.GetOrLoad(ctx, key, loader)
}
