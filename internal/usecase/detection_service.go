package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/panjf2000/ants/v2"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/window"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/cache"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/ratelimit"
)

const (
	defaultDetectionWorkers = 5
	defaultDispatchDelay    = 100 * time.Millisecond
)

// ReviewPublisher forwards a below-threshold candidate to whoever does
// the manual triage.
type ReviewPublisher interface {
	PublishReview(ctx context.Context, candidate loan.Candidate, report loan.ConfidenceReport) error
}

// DetectionConfig is one detection run's full input. Nothing here is
// process-global, so runs for different windows can overlap safely.
type DetectionConfig struct {
	WindowKey string `validate:"required"`

	// LeagueIDs restricts the statistics cross-match. Empty means every
	// league the provider lists for the season.
	LeagueIDs []int64

	// ParentClubIDs are the clubs whose outbound loans we track. Empty
	// means derive the set from the leagues' team lists.
	ParentClubIDs []int64

	// TeamFilter optionally restricts output to these parent clubs.
	TeamFilter []int64

	Threshold float64 `validate:"gte=0,lte=1"`

	Workers       int           `validate:"gte=0,lte=64"`
	DispatchDelay time.Duration `validate:"gte=0"`

	// SeasonYear defaults to the window's season start year.
	SeasonYear int `validate:"gte=0"`

	AssumeMinutesWhenMissing bool

	// DryRun skips the persistence sink and review publisher.
	DryRun bool
}

func (c DetectionConfig) normalized() DetectionConfig {
	if c.Workers <= 0 {
		c.Workers = defaultDetectionWorkers
	}
	if c.DispatchDelay <= 0 {
		c.DispatchDelay = defaultDispatchDelay
	}
	return c
}

// DetectionResult summarizes one run. A partially failed run still
// reports whatever candidates it could reconcile.
type DetectionResult struct {
	WindowKey string
	Window    window.SeasonWindow

	ClubsSwept int
	Leagues    int

	Accepted []loan.Candidate
	Review   []ReviewItem
	Failures []loan.FailureReason

	Persisted bool
	Published int

	TransferCache cache.Stats
	StatsCache    cache.Stats

	Duration time.Duration
}

// DetectionService is the batch orchestrator: it fans the transfer
// sweep out over parent clubs with bounded parallelism, runs the
// statistics cross-match, reconciles both signals and hands the result
// to the sink.
type DetectionService struct {
	provider   LoanDataProvider
	calendar   *window.Calendar
	sweeps     *TransferSweepService
	squadStats *SquadStatsService
	reconciler *ReconcileService
	repo       loan.Repository
	publisher  ReviewPublisher
	limiter    *ratelimit.Limiter
	logger     *logging.Logger
	validator  *validator.Validate

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewDetectionService(
	provider LoanDataProvider,
	calendar *window.Calendar,
	sweeps *TransferSweepService,
	squadStats *SquadStatsService,
	reconciler *ReconcileService,
	repo loan.Repository,
	publisher ReviewPublisher,
	limiter *ratelimit.Limiter,
	logger *logging.Logger,
) *DetectionService {
	if logger == nil {
		logger = logging.Default()
	}
	if calendar == nil {
		calendar = window.NewCalendar(logger)
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter(0)
	}
	return &DetectionService{
		provider:   provider,
		calendar:   calendar,
		sweeps:     sweeps,
		squadStats: squadStats,
		reconciler: reconciler,
		repo:       repo,
		publisher:  publisher,
		limiter:    limiter,
		logger:     logger,
		validator:  validator.New(),
		now:        time.Now,
		sleep:      sleepDispatch,
	}
}

// Run executes one full detection pass for the configured window.
// Authorization failures abort the run; anything else degrades to a
// per-key failure reason and the batch keeps going.
func (s *DetectionService) Run(ctx context.Context, cfg DetectionConfig) (DetectionResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DetectionService.Run")
	defer span.End()

	start := s.now()

	if s.provider == nil || s.sweeps == nil || s.squadStats == nil || s.reconciler == nil {
		return DetectionResult{}, fmt.Errorf("%w: detection service is not fully configured", ErrDependencyUnavailable)
	}
	if err := s.validator.StructCtx(ctx, cfg); err != nil {
		return DetectionResult{}, fmt.Errorf("%w: validation failed: %v", ErrInvalidInput, err)
	}
	cfg = cfg.normalized()

	win, err := s.calendar.Parse(cfg.WindowKey)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	seasonYear := cfg.SeasonYear
	if seasonYear == 0 {
		seasonYear, err = seasonStartYear(win.SeasonSlug)
		if err != nil {
			return DetectionResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	result := DetectionResult{WindowKey: win.Key(), Window: win}

	leagues, err := s.resolveLeagues(ctx, cfg, seasonYear)
	if err != nil {
		return result, err
	}
	result.Leagues = len(leagues)

	clubIDs, clubFailures, err := s.resolveParentClubs(ctx, cfg, leagues, seasonYear)
	if err != nil {
		return result, err
	}
	result.Failures = append(result.Failures, clubFailures...)

	sweeps, sweepFailures, err := s.sweepClubs(ctx, win, clubIDs, cfg)
	result.Failures = append(result.Failures, sweepFailures...)
	if err != nil {
		return result, err
	}
	result.ClubsSwept = len(sweeps)

	players, statsFailures, err := s.squadStats.CrossMatch(ctx, win, leagues, SquadStatsConfig{
		SeasonYear:               seasonYear,
		AssumeMinutesWhenMissing: cfg.AssumeMinutesWhenMissing,
	})
	result.Failures = append(result.Failures, statsFailures...)
	if err != nil {
		return result, err
	}

	reconciled, err := s.reconciler.Reconcile(ctx, ReconcileInput{
		Window:           win,
		Sweeps:           sweeps,
		MultiTeamPlayers: players,
		Threshold:        cfg.Threshold,
		TeamFilter:       toIDSet(cfg.TeamFilter),
	})
	if err != nil {
		return result, err
	}
	result.Accepted = reconciled.Accepted
	result.Review = reconciled.Review

	s.resolvePlayerNames(ctx, seasonYear, result.Accepted)

	if !cfg.DryRun {
		result.Persisted, result.Published = s.deliver(ctx, win, &result)
	}

	result.TransferCache = s.sweeps.CacheStats(ctx)
	result.StatsCache = s.squadStats.CacheStats(ctx)
	result.Duration = s.now().Sub(start)

	s.logger.InfoContext(ctx, "detection run finished",
		"window_key", result.WindowKey,
		"clubs_swept", result.ClubsSwept,
		"leagues", result.Leagues,
		"accepted", len(result.Accepted),
		"review", len(result.Review),
		"failures", len(result.Failures),
		"persisted", result.Persisted,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *DetectionService) resolveLeagues(ctx context.Context, cfg DetectionConfig, seasonYear int) ([]UpstreamLeague, error) {
	leagues, err := s.provider.FetchLeagues(ctx, seasonYear)
	if err != nil {
		return nil, fmt.Errorf("resolve leagues: %w", err)
	}
	if len(cfg.LeagueIDs) == 0 {
		return leagues, nil
	}
	wanted := toIDSet(cfg.LeagueIDs)
	out := make([]UpstreamLeague, 0, len(cfg.LeagueIDs))
	for _, league := range leagues {
		if _, ok := wanted[league.ID]; ok {
			out = append(out, league)
		}
	}
	if len(out) == 0 {
		s.logger.WarnContext(ctx, "no configured league found upstream",
			"requested", len(cfg.LeagueIDs),
			"season", seasonYear,
		)
	}
	return out, nil
}

// resolveParentClubs returns the sweep targets. An explicit allow-list
// wins; otherwise every team of every resolved league is a target. A
// league whose team list fails to load is recorded and skipped.
func (s *DetectionService) resolveParentClubs(
	ctx context.Context,
	cfg DetectionConfig,
	leagues []UpstreamLeague,
	seasonYear int,
) ([]int64, []loan.FailureReason, error) {
	if len(cfg.ParentClubIDs) > 0 {
		ids := uniqueIDs(cfg.ParentClubIDs)
		return ids, nil, nil
	}

	var failures []loan.FailureReason
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, league := range leagues {
		teams, err := s.provider.FetchLeagueTeams(ctx, league.ID, seasonYear)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return nil, failures, err
			}
			s.logger.WarnContext(ctx, "league team list fetch failed",
				"league_id", league.ID,
				"error", err.Error(),
			)
			failures = append(failures, loan.FailureReason{
				Key:    fmt.Sprintf("league:%d:teams", league.ID),
				Reason: err.Error(),
				At:     s.now().UTC(),
			})
			continue
		}
		for _, team := range teams {
			if _, dup := seen[team.ID]; dup {
				continue
			}
			seen[team.ID] = struct{}{}
			ids = append(ids, team.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, failures, nil
}

// sweepClubs fans SweepClub out over a bounded worker pool. Each
// dispatch waits the fixed delay plus whatever the reactive limiter
// asks for, so burst size stays under the provider's quota policy.
func (s *DetectionService) sweepClubs(
	ctx context.Context,
	win window.SeasonWindow,
	clubIDs []int64,
	cfg DetectionConfig,
) ([]ClubSweep, []loan.FailureReason, error) {
	if len(clubIDs) == 0 {
		s.logger.WarnContext(ctx, "no parent clubs to sweep", "window_key", win.Key())
		return nil, nil, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type sweepOutcome struct {
		sweep   ClubSweep
		failure *loan.FailureReason
	}
	results := make(chan sweepOutcome, len(clubIDs))

	var fatalMu sync.Mutex
	var fatalErr error
	var failedCount atomic.Int32

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	for _, clubID := range clubIDs {
		clubID := clubID
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			s.sleep(runCtx, cfg.DispatchDelay)
			s.limiter.Throttle(runCtx, s.provider.QuotaRemaining())
			if err := runCtx.Err(); err != nil {
				results <- sweepOutcome{failure: &loan.FailureReason{
					Key:    clubFailureKey(clubID),
					Reason: err.Error(),
					At:     s.now().UTC(),
				}}
				return
			}

			sweep, err := s.sweeps.SweepClub(runCtx, win, clubID)
			if err != nil {
				failedCount.Add(1)
				if errors.Is(err, ErrUnauthorized) {
					fatalMu.Lock()
					if fatalErr == nil {
						fatalErr = err
					}
					fatalMu.Unlock()
					cancel()
				}
				s.logger.WarnContext(runCtx, "club sweep failed",
					"club_id", clubID,
					"error", err.Error(),
				)
				results <- sweepOutcome{failure: &loan.FailureReason{
					Key:    clubFailureKey(clubID),
					Reason: err.Error(),
					At:     s.now().UTC(),
				}}
				return
			}
			results <- sweepOutcome{sweep: sweep}
		}); err != nil {
			workers.Done()
			return nil, nil, fmt.Errorf("submit club to worker pool: %w", err)
		}
	}

	workers.Wait()
	close(results)

	var sweeps []ClubSweep
	var failures []loan.FailureReason
	for outcome := range results {
		if outcome.failure != nil {
			failures = append(failures, *outcome.failure)
			continue
		}
		sweeps = append(sweeps, outcome.sweep)
	}
	sort.SliceStable(sweeps, func(i, j int) bool { return sweeps[i].ClubID < sweeps[j].ClubID })
	sort.SliceStable(failures, func(i, j int) bool { return failures[i].Key < failures[j].Key })

	fatalMu.Lock()
	fatal := fatalErr
	fatalMu.Unlock()
	if fatal != nil {
		return sweeps, failures, fmt.Errorf("sweep aborted: %w", fatal)
	}
	return sweeps, failures, nil
}

// resolvePlayerNames backfills missing candidate names from the loan
// club's squad list. Best effort: a lookup failure leaves the name
// empty, never fails the run.
func (s *DetectionService) resolvePlayerNames(ctx context.Context, seasonYear int, candidates []loan.Candidate) {
	missingByTeam := make(map[int64][]int)
	for i, cand := range candidates {
		if cand.PlayerName == "" {
			missingByTeam[cand.LoanTeamID] = append(missingByTeam[cand.LoanTeamID], i)
		}
	}
	if len(missingByTeam) == 0 {
		return
	}

	for teamID, indexes := range missingByTeam {
		squad, err := s.provider.FetchTeamSquad(ctx, teamID, seasonYear)
		if err != nil {
			s.logger.WarnContext(ctx, "squad lookup for name backfill failed",
				"team_id", teamID,
				"error", err.Error(),
			)
			continue
		}
		names := make(map[int64]string, len(squad))
		for _, member := range squad {
			names[member.PlayerID] = member.Name
		}
		for _, idx := range indexes {
			if name, ok := names[candidates[idx].PlayerID]; ok {
				candidates[idx].PlayerName = name
			}
		}
	}
}

// deliver hands accepted candidates to the sink and review items to the
// publisher. Sink failures degrade to run failures so earlier runs'
// rows are never touched.
func (s *DetectionService) deliver(ctx context.Context, win window.SeasonWindow, result *DetectionResult) (persisted bool, published int) {
	if s.repo != nil {
		if err := s.repo.UpsertCandidates(ctx, result.Accepted); err != nil {
			s.logger.ErrorContext(ctx, "persist candidates failed", "error", err.Error())
			result.Failures = append(result.Failures, loan.FailureReason{
				Key:    "sink:candidates",
				Reason: err.Error(),
				At:     s.now().UTC(),
			})
		} else {
			persisted = true
		}
		if len(result.Failures) > 0 {
			if err := s.repo.RecordFailures(ctx, win.Key(), result.Failures); err != nil {
				s.logger.WarnContext(ctx, "record failure reasons failed", "error", err.Error())
			}
		}
	}

	if s.publisher == nil {
		return persisted, 0
	}
	for _, item := range result.Review {
		if err := s.publisher.PublishReview(ctx, item.Candidate, item.Report); err != nil {
			s.logger.WarnContext(ctx, "review publish failed",
				"player_id", item.Candidate.PlayerID,
				"error", err.Error(),
			)
			continue
		}
		published++
	}
	return persisted, published
}

func sleepDispatch(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func clubFailureKey(clubID int64) string {
	return fmt.Sprintf("club:%d", clubID)
}

func toIDSet(ids []int64) map[int64]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id > 0 {
			set[id] = struct{}{}
		}
	}
	return set
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// seasonStartYear extracts the first year of a "YYYY-YY" slug.
func seasonStartYear(slug string) (int, error) {
	head, _, ok := strings.Cut(slug, "-")
	if !ok {
		return 0, fmt.Errorf("season slug %q is not YYYY-YY", slug)
	}
	year, err := strconv.Atoi(head)
	if err != nil || year < 1900 {
		return 0, fmt.Errorf("season slug %q is not YYYY-YY", slug)
	}
	return year, nil
}
