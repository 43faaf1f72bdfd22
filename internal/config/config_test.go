package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APIFOOTBALL_API_KEY", "secret")
	t.Setenv("DETECTION_WINDOW_KEY", "2024-25::SUMMER")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceName != "loanarmy" {
		t.Fatalf("service name = %q", cfg.ServiceName)
	}
	if cfg.DetectionWindowKey != "2024-25::SUMMER" {
		t.Fatalf("window key = %q", cfg.DetectionWindowKey)
	}
	if cfg.DetectionThreshold != 0.5 {
		t.Fatalf("threshold = %v, want 0.5", cfg.DetectionThreshold)
	}
	if cfg.DetectionWorkers != 5 {
		t.Fatalf("workers = %d, want 5", cfg.DetectionWorkers)
	}
	if cfg.DetectionDispatchDelay != 100*time.Millisecond {
		t.Fatalf("dispatch delay = %v, want 100ms", cfg.DetectionDispatchDelay)
	}
	if !cfg.CacheEnabled || cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("cache = enabled:%v ttl:%v, want enabled with 24h", cfg.CacheEnabled, cfg.CacheTTL)
	}
	if cfg.APIFootballBaseURL != "https://v3.football.api-sports.io" {
		t.Fatalf("base url = %q", cfg.APIFootballBaseURL)
	}
	if cfg.APIFootballBaseDelay != 200*time.Millisecond {
		t.Fatalf("base delay = %v", cfg.APIFootballBaseDelay)
	}
	if !cfg.APIFootballCircuitEnabled || cfg.APIFootballCircuitFailureCount != 5 {
		t.Fatalf("circuit defaults off: %+v", cfg)
	}
	if cfg.ReviewQueueEnabled || cfg.DetectionDryRun {
		t.Fatalf("optional features on by default")
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("APIFOOTBALL_API_KEY", "")
	t.Setenv("DETECTION_WINDOW_KEY", "2024-25::SUMMER")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "APIFOOTBALL_API_KEY") {
		t.Fatalf("err = %v, want missing api key failure", err)
	}
}

func TestLoadRequiresWindowKey(t *testing.T) {
	t.Setenv("APIFOOTBALL_API_KEY", "secret")
	t.Setenv("DETECTION_WINDOW_KEY", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DETECTION_WINDOW_KEY") {
		t.Fatalf("err = %v, want missing window key failure", err)
	}
}

func TestLoadParsesIDLists(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DETECTION_LEAGUE_IDS", "39, 61,135")
	t.Setenv("DETECTION_PARENT_CLUB_IDS", "33")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.DetectionLeagueIDs) != 3 || cfg.DetectionLeagueIDs[1] != 61 {
		t.Fatalf("league ids = %v", cfg.DetectionLeagueIDs)
	}
	if len(cfg.DetectionParentClubIDs) != 1 || cfg.DetectionParentClubIDs[0] != 33 {
		t.Fatalf("parent club ids = %v", cfg.DetectionParentClubIDs)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"DETECTION_THRESHOLD":  "1.5",
		"DETECTION_WORKERS":    "0",
		"DETECTION_LEAGUE_IDS": "39,abc",
		"CACHE_TTL":            "yesterday",
		"APIFOOTBALL_TIMEOUT":  "-5s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s accepted, want failure", key, value)
			}
		})
	}
}

func TestLoadReviewQueueRequiresEndpoint(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REVIEWQUEUE_ENABLED", "true")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REVIEWQUEUE_ENDPOINT") {
		t.Fatalf("err = %v, want missing endpoint failure", err)
	}
}
