package apifootball

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/ratelimit"
	"github.com/performlikemj/loanarmy-sub000/internal/usecase"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Logger:  logging.NewNop(),
		Limiter: ratelimit.NewLimiter(0),
	})
	return client, server
}

func writeEnvelope(w http.ResponseWriter, errorsField, response string, current, total int) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{
		"get": "test",
		"parameters": {},
		"errors": %s,
		"results": 1,
		"paging": {"current": %d, "total": %d},
		"response": %s
	}`, errorsField, current, total, response)
}

func TestFetchTeamTransfers(t *testing.T) {
	t.Parallel()

	var gotKey string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-apisports-key")
		if r.URL.Path != "/transfers" || r.URL.Query().Get("team") != "33" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("x-ratelimit-requests-remaining", "42")
		writeEnvelope(w, "[]", `[
			{
				"player": {"id": 874, "name": "Marcus Example"},
				"update": "2024-08-16T00:00:00+00:00",
				"transfers": [
					{"date": "2024-08-15", "type": "Loan", "teams": {"in": {"id": 532, "name": "Valencia"}, "out": {"id": 33, "name": "Manchester United"}}},
					{"date": "2021-07-01", "type": "€ 5M", "teams": {"in": {"id": 33}, "out": {"id": 40}}}
				]
			}
		]`, 1, 1)
	}))

	records, err := client.FetchTeamTransfers(context.Background(), 33)
	if err != nil {
		t.Fatalf("FetchTeamTransfers: %v", err)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	// Sorted oldest first.
	if records[0].Type != transfer.TypePermanent || records[1].Type != transfer.TypeLoan {
		t.Fatalf("classification off: %+v", records)
	}
	if records[1].FromTeamID != 33 || records[1].ToTeamID != 532 {
		t.Fatalf("loan teams = (%d,%d)", records[1].FromTeamID, records[1].ToTeamID)
	}
	if got := client.QuotaRemaining(); got != 42 {
		t.Fatalf("quota = %d, want 42 from response header", got)
	}
}

func TestUnauthorizedStatus(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.FetchTeamTransfers(context.Background(), 33)
	if !errors.Is(err, usecase.ErrUnauthorized) {
		t.Fatalf("err = %v, want usecase.ErrUnauthorized", err)
	}
}

func TestEnvelopeAuthError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, `{"token": "Error/Missing application key."}`, "[]", 1, 1)
	}))

	_, err := client.FetchLeagueTeams(context.Background(), 39, 2024)
	if !errors.Is(err, usecase.ErrUnauthorized) {
		t.Fatalf("err = %v, want usecase.ErrUnauthorized", err)
	}
}

func TestEnvelopeSoftErrorIsEmptyResult(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, `{"season": "Season field is required."}`, "[]", 1, 1)
	}))

	teams, err := client.FetchLeagueTeams(context.Background(), 39, 2024)
	if err != nil {
		t.Fatalf("soft error should not fail the call: %v", err)
	}
	if len(teams) != 0 {
		t.Fatalf("teams = %+v, want empty", teams)
	}
}

func TestPlayerStatsPagination(t *testing.T) {
	t.Parallel()

	const totalPages = 3
	pagesServed := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 || page > totalPages {
			t.Errorf("unexpected page %d", page)
			http.Error(w, "bad page", http.StatusBadRequest)
			return
		}
		pagesServed++
		w.Header().Set("x-ratelimit-requests-remaining", "100")
		writeEnvelope(w, "[]", fmt.Sprintf(`[
			{
				"player": {"id": %d, "name": "Player %d"},
				"statistics": [
					{"team": {"id": 33}, "league": {"id": 39, "season": 2024}, "games": {"appearences": 4, "minutes": 250}}
				]
			}
		]`, 1000+page, page), page, totalPages)
	}))

	rows, err := client.FetchLeaguePlayerStats(context.Background(), 39, 2024)
	if err != nil {
		t.Fatalf("FetchLeaguePlayerStats: %v", err)
	}
	if pagesServed != totalPages {
		t.Fatalf("pages served = %d, want %d", pagesServed, totalPages)
	}
	if len(rows) != totalPages {
		t.Fatalf("rows = %d, want one per page", len(rows))
	}
	if rows[0].Blocks[0].Appearances == nil || *rows[0].Blocks[0].Appearances != 4 {
		t.Fatalf("appearances block not decoded: %+v", rows[0].Blocks)
	}
}

func TestPaginationStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	pagesServed := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		// Paging claims more pages but the body is already empty.
		writeEnvelope(w, "[]", "[]", 1, 5)
	}))

	rows, err := client.FetchLeaguePlayerStats(context.Background(), 39, 2024)
	if err != nil {
		t.Fatalf("FetchLeaguePlayerStats: %v", err)
	}
	if pagesServed != 1 {
		t.Fatalf("pages served = %d, want crawl to stop at the empty page", pagesServed)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %+v, want empty", rows)
	}
}

func TestRetryOnServerError(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeEnvelope(w, "[]", `[{"team": {"id": 33, "name": "Manchester United"}}]`, 1, 1)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		MaxRetries: 1,
		Logger:     logging.NewNop(),
		Limiter:    ratelimit.NewLimiter(0),
	})

	teams, err := client.FetchLeagueTeams(context.Background(), 39, 2024)
	if err != nil {
		t.Fatalf("FetchLeagueTeams: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if len(teams) != 1 || teams[0].ID != 33 {
		t.Fatalf("teams = %+v", teams)
	}
}

func TestFetchLeaguesCoverage(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "[]", `[
			{
				"league": {"id": 39, "name": "Premier League"},
				"seasons": [
					{"year": 2023, "coverage": {"players": true}},
					{"year": 2024, "coverage": {"players": true}}
				]
			},
			{
				"league": {"id": 61, "name": "Ligue 1"},
				"seasons": [{"year": 2024, "coverage": {"players": false}}]
			}
		]`, 1, 1)
	}))

	leagues, err := client.FetchLeagues(context.Background(), 2024)
	if err != nil {
		t.Fatalf("FetchLeagues: %v", err)
	}
	if len(leagues) != 2 {
		t.Fatalf("leagues = %d, want 2", len(leagues))
	}
	if !leagues[0].CoversPlayerStats || leagues[0].ID != 39 {
		t.Fatalf("league 39 coverage lost: %+v", leagues[0])
	}
	if leagues[1].CoversPlayerStats {
		t.Fatalf("league 61 should not cover player statistics")
	}
}
