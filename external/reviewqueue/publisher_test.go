package reviewqueue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/performlikemj/loanarmy-sub000/internal/domain/loan"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
)

func reviewCandidate() loan.Candidate {
	return loan.Candidate{
		PlayerID:      874,
		PlayerName:    "Marcus Example",
		PrimaryTeamID: 33,
		LoanTeamID:    532,
		TransferDate:  time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC),
		Confidence:    0.3,
		Source:        loan.SourceStatsCrossmatch,
		WindowKey:     "2024-25::SUMMER",
	}
}

func TestPublishReview(t *testing.T) {
	t.Parallel()

	var gotAuth, gotDedup string
	var gotPayload reviewPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotDedup = r.Header.Get("X-Deduplication-Id")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	pub := NewPublisher(PublisherConfig{
		Endpoint: server.URL,
		Token:    "review-token",
	}, logging.NewNop())

	report := loan.ConfidenceReport{
		Score:               0.3,
		Indicators:          []string{"loan transfer in window"},
		PermanentIndicators: []string{"permanent transfer supersedes loan"},
	}
	if err := pub.PublishReview(context.Background(), reviewCandidate(), report); err != nil {
		t.Fatalf("PublishReview: %v", err)
	}

	if gotAuth != "Bearer review-token" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotDedup != "review-2024-25-SUMMER-874" {
		t.Fatalf("deduplication id = %q", gotDedup)
	}
	if gotPayload.PlayerID != 874 || gotPayload.WindowKey != "2024-25::SUMMER" {
		t.Fatalf("payload = %+v", gotPayload)
	}
	if len(gotPayload.PermanentIndicators) != 1 {
		t.Fatalf("report indicators lost: %+v", gotPayload)
	}
}

func TestPublishReviewRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	pub := NewPublisher(PublisherConfig{
		Endpoint: server.URL,
		Retries:  1,
	}, logging.NewNop())

	if err := pub.PublishReview(context.Background(), reviewCandidate(), loan.ConfidenceReport{}); err != nil {
		t.Fatalf("PublishReview: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestPublishReviewClientErrorIsFatal(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	pub := NewPublisher(PublisherConfig{
		Endpoint: server.URL,
		Retries:  3,
	}, logging.NewNop())

	if err := pub.PublishReview(context.Background(), reviewCandidate(), loan.ConfidenceReport{}); err == nil {
		t.Fatalf("client error did not fail the publish")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want no retry on 4xx", got)
	}
}

func TestPublishReviewValidatesEndpoint(t *testing.T) {
	t.Parallel()

	pub := NewPublisher(PublisherConfig{Endpoint: "ftp://queue.invalid"}, logging.NewNop())
	if err := pub.PublishReview(context.Background(), reviewCandidate(), loan.ConfidenceReport{}); err == nil {
		t.Fatalf("unsupported scheme accepted")
	}
}
