package apifootball

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/transfer"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/ratelimit"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/resilience"
	"github.com/performlikemj/loanarmy-sub000/internal/usecase"
)

const (
	defaultBaseURL   = "https://v3.football.api-sports.io"
	apiKeyHeader     = "x-apisports-key"
	quotaHeader      = "x-ratelimit-requests-remaining"
	maxResponseBytes = 6 << 20
	maxPagesPerCrawl = 60
)

var apiKeyParamRegex = regexp.MustCompile(`(?i)(x-apisports-key|apikey)=[^&\s"']+`)

var errProviderTransient = crerr.New("api-football transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	Limiter        *ratelimit.Limiter
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client fetches from the API-Football style provider and normalizes its
// error and empty-result conditions. Authentication failures wrap
// usecase.ErrUnauthorized; "no results" pages come back as empty slices
// with a logged warning.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	maxRetries     int
	logger         *logging.Logger
	limiter        *ratelimit.Limiter
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
	quotaRemaining atomic.Int64
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(0)
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	c := &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		maxRetries:     maxInt(cfg.MaxRetries, 0),
		logger:         logger,
		limiter:        limiter,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
	c.quotaRemaining.Store(ratelimit.UnknownQuota)
	return c
}

// QuotaRemaining is the provider's last reported remaining request quota,
// or ratelimit.UnknownQuota before the first response.
func (c *Client) QuotaRemaining() int {
	return int(c.quotaRemaining.Load())
}

// FetchLeagues lists competitions with their player-statistics coverage
// for the given season year.
func (c *Client) FetchLeagues(ctx context.Context, seasonYear int) ([]usecase.UpstreamLeague, error) {
	env, err := c.doJSON(ctx, "/leagues", map[string]string{
		"season": strconv.Itoa(seasonYear),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch leagues season=%d: %w", seasonYear, err)
	}

	var items []leaguesItem
	if err := decodeResponse(env, &items); err != nil {
		return nil, fmt.Errorf("decode leagues payload: %w", err)
	}

	out := make([]usecase.UpstreamLeague, 0, len(items))
	for _, item := range items {
		if item.League.ID <= 0 {
			continue
		}
		row := usecase.UpstreamLeague{
			ID:         item.League.ID,
			Name:       strings.TrimSpace(item.League.Name),
			SeasonYear: seasonYear,
		}
		for _, season := range item.Seasons {
			if season.Year == seasonYear {
				row.CoversPlayerStats = season.Coverage.Players
				break
			}
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchLeagueTeams lists the clubs of one competition season.
func (c *Client) FetchLeagueTeams(ctx context.Context, leagueID int64, seasonYear int) ([]usecase.UpstreamTeam, error) {
	if leagueID <= 0 {
		return nil, fmt.Errorf("league id must be greater than zero")
	}

	env, err := c.doJSON(ctx, "/teams", map[string]string{
		"league": strconv.FormatInt(leagueID, 10),
		"season": strconv.Itoa(seasonYear),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch teams league_id=%d season=%d: %w", leagueID, seasonYear, err)
	}

	var items []teamsItem
	if err := decodeResponse(env, &items); err != nil {
		return nil, fmt.Errorf("decode teams payload: %w", err)
	}

	out := make([]usecase.UpstreamTeam, 0, len(items))
	for _, item := range items {
		if item.Team.ID <= 0 {
			continue
		}
		out = append(out, usecase.UpstreamTeam{ID: item.Team.ID, Name: strings.TrimSpace(item.Team.Name)})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchTeamTransfers returns a club's full transfer history, classified
// but otherwise verbatim. The provider accepts no season filter here;
// window filtering happens downstream.
func (c *Client) FetchTeamTransfers(ctx context.Context, teamID int64) ([]transfer.Record, error) {
	if teamID <= 0 {
		return nil, fmt.Errorf("team id must be greater than zero")
	}

	env, err := c.doJSON(ctx, "/transfers", map[string]string{
		"team": strconv.FormatInt(teamID, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch transfers team_id=%d: %w", teamID, err)
	}

	var items []transferItem
	if err := decodeResponse(env, &items); err != nil {
		return nil, fmt.Errorf("decode transfers payload: %w", err)
	}

	out := make([]transfer.Record, 0, len(items))
	for _, item := range items {
		for _, movement := range item.Transfers {
			record := transfer.Record{
				PlayerID:   item.Player.ID,
				PlayerName: strings.TrimSpace(item.Player.Name),
				Date:       parseProviderDate(movement.Date),
				TypeRaw:    strings.TrimSpace(movement.Type),
				Type:       transfer.ClassifyType(movement.Type),
				FromTeamID: movement.Teams.Out.ID,
				ToTeamID:   movement.Teams.In.ID,
			}
			if err := record.Validate(); err != nil {
				c.logger.WarnContext(ctx, "skip malformed transfer record",
					"team_id", teamID,
					"player_id", item.Player.ID,
					"reason", err,
				)
				continue
			}
			out = append(out, record)
		}
	}

	transfer.SortByDate(out)
	return out, nil
}

// FetchTeamSquad pages through a club's roster for one season.
func (c *Client) FetchTeamSquad(ctx context.Context, teamID int64, seasonYear int) ([]usecase.UpstreamSquadMember, error) {
	if teamID <= 0 {
		return nil, fmt.Errorf("team id must be greater than zero")
	}

	byID := make(map[int64]usecase.UpstreamSquadMember, 32)
	err := c.crawlPages(ctx, "/players", map[string]string{
		"team":   strconv.FormatInt(teamID, 10),
		"season": strconv.Itoa(seasonYear),
	}, func(env *envelope) (int, error) {
		var items []playerStatsItem
		if err := decodeResponse(env, &items); err != nil {
			return 0, fmt.Errorf("decode squad payload: %w", err)
		}
		for _, item := range items {
			if item.Player.ID <= 0 {
				continue
			}
			byID[item.Player.ID] = usecase.UpstreamSquadMember{
				PlayerID: item.Player.ID,
				Name:     strings.TrimSpace(item.Player.Name),
			}
		}
		return len(items), nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch squad team_id=%d season=%d: %w", teamID, seasonYear, err)
	}

	out := make([]usecase.UpstreamSquadMember, 0, len(byID))
	for _, member := range byID {
		out = append(out, member)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

// FetchLeaguePlayerStats pages through every player-statistics entry of a
// competition season. Rows come back raw: the same player can repeat
// across pages and a row can repeat a team; the detector unions.
func (c *Client) FetchLeaguePlayerStats(ctx context.Context, leagueID int64, seasonYear int) ([]usecase.UpstreamPlayerStats, error) {
	if leagueID <= 0 {
		return nil, fmt.Errorf("league id must be greater than zero")
	}

	out := make([]usecase.UpstreamPlayerStats, 0, 512)
	err := c.crawlPages(ctx, "/players", map[string]string{
		"league": strconv.FormatInt(leagueID, 10),
		"season": strconv.Itoa(seasonYear),
	}, func(env *envelope) (int, error) {
		var items []playerStatsItem
		if err := decodeResponse(env, &items); err != nil {
			return 0, fmt.Errorf("decode player stats payload: %w", err)
		}
		for _, item := range items {
			if item.Player.ID <= 0 {
				continue
			}
			row := usecase.UpstreamPlayerStats{
				PlayerID: item.Player.ID,
				Name:     strings.TrimSpace(item.Player.Name),
				Blocks:   make([]usecase.UpstreamStatsBlock, 0, len(item.Statistics)),
			}
			for _, block := range item.Statistics {
				if block.Team.ID <= 0 {
					continue
				}
				row.Blocks = append(row.Blocks, usecase.UpstreamStatsBlock{
					TeamID:      block.Team.ID,
					Appearances: block.Games.Appearances,
					Minutes:     block.Games.Minutes,
				})
			}
			out = append(out, row)
		}
		return len(items), nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch player stats league_id=%d season=%d: %w", leagueID, seasonYear, err)
	}

	return out, nil
}

// crawlPages walks a paginated endpoint until the provider reports the
// last page or a page comes back empty (defensive stop), throttling on
// the quota hint between pages.
func (c *Client) crawlPages(ctx context.Context, path string, query map[string]string, consume func(*envelope) (int, error)) error {
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pageQuery := make(map[string]string, len(query)+1)
		for key, value := range query {
			pageQuery[key] = value
		}
		pageQuery["page"] = strconv.Itoa(page)

		env, err := c.doJSON(ctx, path, pageQuery)
		if err != nil {
			return err
		}

		count, err := consume(env)
		if err != nil {
			return err
		}
		if count == 0 {
			if page == 1 {
				c.logger.WarnContext(ctx, "paginated fetch returned no results",
					"path", path,
					"query", query,
				)
			}
			return nil
		}

		if env.Paging.Total <= 0 || env.Paging.Current >= env.Paging.Total {
			return nil
		}
		if page >= maxPagesPerCrawl {
			c.logger.WarnContext(ctx, "pagination stopped at crawl ceiling",
				"path", path,
				"pages", page,
				"reported_total", env.Paging.Total,
			)
			return nil
		}

		c.limiter.Throttle(ctx, c.QuotaRemaining())
		page++
	}
}

func (c *Client) doJSON(ctx context.Context, path string, query map[string]string) (*envelope, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "api-football circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("%w: loan data provider is temporarily unavailable", errProviderTransient)
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}

	fullURL := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	key := path + "?" + values.Encode()
	out, err, _ := c.flight.Do(key, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && crerr.Is(reqErr, errProviderTransient) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return nil, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}

	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}

	if err := c.checkEnvelopeErrors(ctx, &env, path); err != nil {
		return nil, err
	}
	return &env, nil
}

// checkEnvelopeErrors enforces the vendor error contract: a 200 body can
// still carry errors. Authentication-class entries are fatal; everything
// else is logged and the page treated as empty.
func (c *Client) checkEnvelopeErrors(ctx context.Context, env *envelope, path string) error {
	messages := flattenEnvelopeErrors(env.Errors)
	if len(messages) == 0 {
		return nil
	}

	for key, message := range messages {
		if isAuthErrorKey(key, message) {
			return crerr.Wrapf(usecase.ErrUnauthorized, "provider rejected credentials: %s=%s", key, message)
		}
	}

	c.logger.WarnContext(ctx, "provider reported soft errors",
		"path", path,
		"errors", messages,
	)
	env.Response = nil
	env.Results = 0
	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set(apiKeyHeader, c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %s", errProviderTransient, sanitizeSensitiveText(err.Error(), c.apiKey))
		} else {
			c.recordQuota(resp.Header.Get(quotaHeader))
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response body: %v", errProviderTransient, readErr)
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return nil, crerr.Wrapf(usecase.ErrUnauthorized, "provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case isRetryableStatus(resp.StatusCode):
				lastErr = fmt.Errorf("%w: provider status=%d body=%s", errProviderTransient, resp.StatusCode, abbreviateBody(raw))
			default:
				return nil, fmt.Errorf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "api-football request failed", "url", redactAPIURL(fullURL), "error", lastErr)
	return nil, lastErr
}

func (c *Client) recordQuota(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil || remaining < 0 {
		return
	}
	c.quotaRemaining.Store(int64(remaining))
}

func decodeResponse(env *envelope, target any) error {
	if env == nil || len(env.Response) == 0 {
		return nil
	}
	return sonic.Unmarshal(env.Response, target)
}

// flattenEnvelopeErrors copes with both spellings of the errors field:
// an empty array when clean, an object keyed by error class when not.
func flattenEnvelopeErrors(raw any) map[string]string {
	asMap, ok := raw.(map[string]any)
	if !ok || len(asMap) == 0 {
		return nil
	}

	out := make(map[string]string, len(asMap))
	for key, value := range asMap {
		message, _ := value.(string)
		out[key] = strings.TrimSpace(message)
	}
	return out
}

func isAuthErrorKey(key, message string) bool {
	candidate := strings.ToLower(key + " " + message)
	for _, marker := range []string{"token", "apikey", "api key", "subscription", "plan", "not subscribed"} {
		if strings.Contains(candidate, marker) {
			return true
		}
	}
	return false
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func parseProviderDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func sanitizeSensitiveText(value, apiKey string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if apiKey != "" {
		value = strings.ReplaceAll(value, apiKey, "REDACTED")
	}
	return apiKeyParamRegex.ReplaceAllString(value, "$1=REDACTED")
}

func redactAPIURL(fullURL string) string {
	return apiKeyParamRegex.ReplaceAllString(fullURL, "$1=REDACTED")
}

func abbreviateBody(raw []byte) string {
	const maxLen = 512
	body := strings.TrimSpace(string(raw))
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
