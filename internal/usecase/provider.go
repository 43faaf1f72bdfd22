package usecase

import (
	"context"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
)

// UpstreamLeague is one competition as the provider reports it, with the
// season's player-statistics coverage flag.
type UpstreamLeague struct {
	ID                int64
	Name              string
	SeasonYear        int
	CoversPlayerStats bool
}

type UpstreamTeam struct {
	ID   int64
	Name string
}

type UpstreamSquadMember struct {
	PlayerID int64
	Name     string
}

// UpstreamStatsBlock is one statistics line of one player row: the team it
// was recorded for plus the playing-time fields the detectors filter on.
// Minutes and Appearances are nil when the provider omitted them.
type UpstreamStatsBlock struct {
	TeamID      int64
	Appearances *int
	Minutes     *int
}

// UpstreamPlayerStats is one raw player row from the statistics crawl. The
// same player can appear in several rows (and the same row can repeat a
// team); detectors union, never count.
type UpstreamPlayerStats struct {
	PlayerID int64
	Name     string
	Blocks   []UpstreamStatsBlock
}

// LoanDataProvider is everything the detectors need from the upstream
// data vendor. Implementations normalize error and empty-result
// conditions: auth failures wrap ErrUnauthorized, "no results" pages come
// back as empty slices.
type LoanDataProvider interface {
	FetchLeagues(ctx context.Context, seasonYear int) ([]UpstreamLeague, error)
	FetchLeagueTeams(ctx context.Context, leagueID int64, seasonYear int) ([]UpstreamTeam, error)
	FetchTeamTransfers(ctx context.Context, teamID int64) ([]transfer.Record, error)
	FetchTeamSquad(ctx context.Context, teamID int64, seasonYear int) ([]UpstreamSquadMember, error)
	FetchLeaguePlayerStats(ctx context.Context, leagueID int64, seasonYear int) ([]UpstreamPlayerStats, error)

	// QuotaRemaining is the provider's last reported remaining request
	// quota, ratelimit.UnknownQuota before the first response.
	QuotaRemaining() int
}
