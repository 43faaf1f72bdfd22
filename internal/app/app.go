package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/performlikemj/loanarmy-sub000/external/apifootball"
	"github.com/performlikemj/loanarmy-sub000/external/reviewqueue"
	"github.com/performlikemj/loanarmy-sub000/internal/config"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/window"
	"github.com/performlikemj/loanarmy-sub000/internal/infrastructure/repository/memory"
	"github.com/performlikemj/loanarmy-sub000/internal/infrastructure/repository/postgres"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/cache"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/ratelimit"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/resilience"
	"github.com/performlikemj/loanarmy-sub000/internal/usecase"
)

// Runner owns one fully wired detection pipeline.
type Runner struct {
	cfg       config.Config
	logger    *logging.Logger
	db        *sqlx.DB
	repo      loan.Repository
	detection *usecase.DetectionService
}

// NewRunner wires caches, the upstream client, detectors, the sink and
// the review publisher. A dry run gets an in-memory sink and skips the
// database entirely.
func NewRunner(cfg config.Config, logger *logging.Logger) (*Runner, error) {
	if logger == nil {
		logger = logging.Default()
	}

	runner := &Runner{cfg: cfg, logger: logger}

	var repo loan.Repository
	if cfg.DetectionDryRun {
		repo = memory.NewLoanCandidateRepository()
	} else {
		db, err := openDB(cfg)
		if err != nil {
			return nil, err
		}
		runner.db = db
		repo = postgres.NewLoanCandidateRepository(db)
	}
	runner.repo = repo

	var transferCache *cache.Store[[]transfer.Record]
	var statsCache *cache.Store[[]usecase.UpstreamPlayerStats]
	if cfg.CacheEnabled {
		transferCache = cache.NewStore[[]transfer.Record](cfg.CacheTTL)
		statsCache = cache.NewStore[[]usecase.UpstreamPlayerStats](cfg.CacheTTL)
	}

	limiter := ratelimit.NewLimiter(cfg.APIFootballBaseDelay)
	provider := apifootball.NewClient(apifootball.ClientConfig{
		HTTPClient: &http.Client{Timeout: cfg.APIFootballTimeout},
		BaseURL:    cfg.APIFootballBaseURL,
		APIKey:     cfg.APIFootballAPIKey,
		Timeout:    cfg.APIFootballTimeout,
		MaxRetries: cfg.APIFootballMaxRetries,
		Logger:     logger,
		Limiter:    limiter,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.APIFootballCircuitEnabled,
			FailureThreshold: cfg.APIFootballCircuitFailureCount,
			OpenTimeout:      cfg.APIFootballCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.APIFootballCircuitHalfOpenMaxReq,
		},
	})

	var publisher usecase.ReviewPublisher
	if cfg.ReviewQueueEnabled && !cfg.DetectionDryRun {
		publisher = reviewqueue.NewPublisher(reviewqueue.PublisherConfig{
			Endpoint: cfg.ReviewQueueEndpoint,
			Token:    cfg.ReviewQueueToken,
			Retries:  cfg.ReviewQueueRetries,
			Timeout:  cfg.ReviewQueueTimeout,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.ReviewQueueCircuitEnabled,
				FailureThreshold: cfg.ReviewQueueCircuitFailureCount,
				OpenTimeout:      cfg.ReviewQueueCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.ReviewQueueCircuitHalfOpenMaxReq,
			},
		}, logger)
	}

	calendar := window.NewCalendar(logger)
	sweeps := usecase.NewTransferSweepService(provider, calendar, transferCache, logger)
	squadStats := usecase.NewSquadStatsService(provider, statsCache, logger)
	scorer := usecase.NewConfidenceScorer(usecase.DefaultScoringWeights())
	reconciler := usecase.NewReconcileService(scorer, logger)

	runner.detection = usecase.NewDetectionService(
		provider,
		calendar,
		sweeps,
		squadStats,
		reconciler,
		repo,
		publisher,
		limiter,
		logger,
	)
	return runner, nil
}

// Detect runs one detection pass with the configured window and scope.
func (r *Runner) Detect(ctx context.Context) (usecase.DetectionResult, error) {
	return r.detection.Run(ctx, usecase.DetectionConfig{
		WindowKey:                r.cfg.DetectionWindowKey,
		LeagueIDs:                r.cfg.DetectionLeagueIDs,
		ParentClubIDs:            r.cfg.DetectionParentClubIDs,
		TeamFilter:               r.cfg.DetectionTeamFilter,
		Threshold:                r.cfg.DetectionThreshold,
		Workers:                  r.cfg.DetectionWorkers,
		DispatchDelay:            r.cfg.DetectionDispatchDelay,
		SeasonYear:               r.cfg.DetectionSeasonYear,
		AssumeMinutesWhenMissing: r.cfg.DetectionAssumeMissingMinutes,
		DryRun:                   r.cfg.DetectionDryRun,
	})
}

func (r *Runner) Repository() loan.Repository {
	return r.repo
}

func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func openDB(cfg config.Config) (*sqlx.DB, error) {
	dbURL := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)
	db, err := otelsqlx.Open("postgres", dbURL,
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbNameFromURL(dbURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

const maxTracedQueryLength = 512

// normalizeDBURL applies the lib/pq prepared-binary-result workaround
// the candidate sink needs when a pooler sits in front of postgres. An
// explicit setting already in the DSN wins.
func normalizeDBURL(raw string, disablePreparedBinary bool) string {
	if !disablePreparedBinary {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	if query.Has("disable_prepared_binary_result") {
		return raw
	}
	query.Set("disable_prepared_binary_result", "yes")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// dbNameFromURL digs the database name out of either DSN form (URL or
// keyword/value) so sink spans carry a db.name attribute.
func dbNameFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if parsed, err := url.Parse(raw); err == nil && parsed.Scheme != "" {
		if name := strings.Trim(parsed.Path, "/ "); name != "" {
			return name
		}
	}
	for _, field := range strings.Fields(raw) {
		if key, value, ok := strings.Cut(field, "="); ok && key == "dbname" {
			if name := strings.Trim(value, `"'`); name != "" {
				return name
			}
		}
	}
	return ""
}

// formatDBQueryForTrace flattens whitespace and caps the length so the
// multi-line upsert statements stay readable as span attributes.
func formatDBQueryForTrace(query string) string {
	flat := strings.Join(strings.Fields(query), " ")
	if len(flat) <= maxTracedQueryLength {
		return flat
	}
	return flat[:maxTracedQueryLength] + "..."
}
