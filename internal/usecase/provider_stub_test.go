package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
)

// stubProvider is a scriptable in-memory LoanDataProvider.
type stubProvider struct {
	mu sync.Mutex

	leagues       []UpstreamLeague
	leaguesErr    error
	teamsByLeague map[int64][]UpstreamTeam
	teamsErr      error
	transfers     map[int64][]transfer.Record
	transfersErr  map[int64]error
	squads        map[int64][]UpstreamSquadMember
	squadsErr     error
	stats         map[int64][]UpstreamPlayerStats
	statsErr      map[int64]error
	quota         int

	transferCalls map[int64]int
	statsCalls    map[int64]int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		teamsByLeague: make(map[int64][]UpstreamTeam),
		transfers:     make(map[int64][]transfer.Record),
		transfersErr:  make(map[int64]error),
		squads:        make(map[int64][]UpstreamSquadMember),
		stats:         make(map[int64][]UpstreamPlayerStats),
		statsErr:      make(map[int64]error),
		quota:         100,
		transferCalls: make(map[int64]int),
		statsCalls:    make(map[int64]int),
	}
}

func (p *stubProvider) FetchLeagues(context.Context, int) ([]UpstreamLeague, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.leaguesErr != nil {
		return nil, p.leaguesErr
	}
	return p.leagues, nil
}

func (p *stubProvider) FetchLeagueTeams(_ context.Context, leagueID int64, _ int) ([]UpstreamTeam, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.teamsErr != nil {
		return nil, p.teamsErr
	}
	return p.teamsByLeague[leagueID], nil
}

func (p *stubProvider) FetchTeamTransfers(_ context.Context, teamID int64) ([]transfer.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferCalls[teamID]++
	if err := p.transfersErr[teamID]; err != nil {
		return nil, err
	}
	records, ok := p.transfers[teamID]
	if !ok {
		return nil, fmt.Errorf("no transfers scripted for team %d", teamID)
	}
	return records, nil
}

func (p *stubProvider) FetchTeamSquad(_ context.Context, teamID int64, _ int) ([]UpstreamSquadMember, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.squadsErr != nil {
		return nil, p.squadsErr
	}
	return p.squads[teamID], nil
}

func (p *stubProvider) FetchLeaguePlayerStats(_ context.Context, leagueID int64, _ int) ([]UpstreamPlayerStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statsCalls[leagueID]++
	if err := p.statsErr[leagueID]; err != nil {
		return nil, err
	}
	return p.stats[leagueID], nil
}

func (p *stubProvider) QuotaRemaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quota
}
