package reviewqueue

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/resilience"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

var errReviewQueueTransient = crerr.New("review queue transient failure")

type PublisherConfig struct {
	Endpoint       string
	Token          string
	Retries        int
	Timeout        time.Duration
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Publisher forwards candidates that fell below the confidence threshold
// to the manual-review webhook. Review delivery is best effort; a failed
// publish never fails the detection run.
type Publisher struct {
	client         *fasthttp.Client
	endpoint       string
	token          string
	retries        int
	timeout        time.Duration
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

type reviewPayload struct {
	WindowKey           string    `json:"window_key"`
	PlayerID            int64     `json:"player_id"`
	PlayerName          string    `json:"player_name,omitempty"`
	PrimaryTeamID       int64     `json:"primary_team_id"`
	LoanTeamID          int64     `json:"loan_team_id"`
	TransferDate        time.Time `json:"transfer_date"`
	Confidence          float64   `json:"confidence"`
	Source              string    `json:"source"`
	Indicators          []string  `json:"indicators,omitempty"`
	PermanentIndicators []string  `json:"permanent_indicators,omitempty"`
}

func NewPublisher(cfg PublisherConfig, logger *logging.Logger) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Publisher{
		client:         &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout},
		endpoint:       strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		token:          strings.TrimSpace(cfg.Token),
		retries:        maxInt(cfg.Retries, 0),
		timeout:        timeout,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// PublishReview posts one below-threshold candidate with its confidence
// report for a human decision.
func (p *Publisher) PublishReview(ctx context.Context, candidate loan.Candidate, report loan.ConfidenceReport) error {
	if p.circuitEnabled {
		if err := p.breaker.Allow(); err != nil {
			p.logger.WarnContext(ctx, "review queue circuit breaker rejected request", "state", p.breaker.State())
			return fmt.Errorf("review queue is temporarily unavailable: %w", err)
		}
	}

	endpoint, err := validateHTTPBaseURL(p.endpoint)
	if err != nil {
		return crerr.Wrap(err, "invalid review queue endpoint")
	}

	payload := reviewPayload{
		WindowKey:           candidate.WindowKey,
		PlayerID:            candidate.PlayerID,
		PlayerName:          candidate.PlayerName,
		PrimaryTeamID:       candidate.PrimaryTeamID,
		LoanTeamID:          candidate.LoanTeamID,
		TransferDate:        candidate.TransferDate,
		Confidence:          candidate.Confidence,
		Source:              string(candidate.Source),
		Indicators:          report.Indicators,
		PermanentIndicators: report.PermanentIndicators,
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return crerr.Wrap(err, "marshal review payload")
	}

	dedupID := fmt.Sprintf("review-%s-%d", strings.ReplaceAll(candidate.WindowKey, "::", "-"), candidate.PlayerID)
	preview := buildCurlPreview(endpoint, dedupID, truncateForLog(string(body), 2048), p.token != "")
	p.logger.DebugContext(ctx, "review queue publish request",
		"endpoint", endpoint,
		"deduplication_id", dedupID,
		"curl_preview", preview,
	)

	callErr := p.post(ctx, endpoint, dedupID, body)
	p.recordCircuitResult(callErr)
	if callErr != nil {
		return callErr
	}

	p.logger.InfoContext(ctx, "candidate queued for review",
		"player_id", candidate.PlayerID,
		"window_key", candidate.WindowKey,
		"confidence", candidate.Confidence,
	)
	return nil
}

func (p *Publisher) post(ctx context.Context, endpoint, dedupID string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()

		req.SetRequestURI(endpoint)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		if p.token != "" {
			req.Header.Set("Authorization", "Bearer "+p.token)
		}
		req.Header.Set("X-Deduplication-Id", dedupID)
		req.SetBody(body)

		err := p.client.DoTimeout(req, resp, p.timeout)
		status := resp.StatusCode()
		respBody := truncateForLog(string(resp.Body()), 1024)
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)

		switch {
		case err != nil:
			lastErr = fmt.Errorf("%w: post review: %v", errReviewQueueTransient, err)
		case status/100 == 2:
			return nil
		case isRetryableStatus(status):
			lastErr = fmt.Errorf("%w: review queue status=%d body=%s", errReviewQueueTransient, status, respBody)
		default:
			return fmt.Errorf("review queue status=%d body=%s", status, respBody)
		}

		if attempt == p.retries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("review queue publish failed")
	}
	return lastErr
}

func (p *Publisher) recordCircuitResult(err error) {
	if !p.circuitEnabled {
		return
	}
	if err != nil && crerr.Is(err, errReviewQueueTransient) {
		p.breaker.RecordFailure()
		return
	}
	p.breaker.RecordSuccess()
}

func validateHTTPBaseURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", crerr.New("value is empty")
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", crerr.Wrapf(err, "parse %q", candidate)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", crerr.Newf("%q uses unsupported scheme=%q; expected http or https", candidate, parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", crerr.Newf("%q has empty host", candidate)
	}

	return strings.TrimRight(candidate, "/"), nil
}

func buildCurlPreview(endpoint, dedupID, body string, withToken bool) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	appendPart := func(part string) {
		if buf.Len() > 0 {
			_ = buf.WriteByte(' ')
		}
		_, _ = buf.WriteString(part)
	}
	appendHeader := func(value string) {
		appendPart("-H")
		appendPart(shellQuote(value))
	}

	appendPart("curl")
	appendPart("-X")
	appendPart("POST")
	appendPart(shellQuote(endpoint))
	if withToken {
		appendHeader("Authorization: Bearer ***")
	}
	appendHeader("Content-Type: application/json")
	appendHeader("X-Deduplication-Id: " + dedupID)
	appendPart("-d")
	appendPart(shellQuote(body))

	return buf.String()
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

func truncateForLog(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

func isRetryableStatus(status int) bool {
	return status == fasthttp.StatusTooManyRequests || status >= 500
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
