package loan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validCandidate() Candidate {
	return Candidate{
		PlayerID:      874,
		PlayerName:    "Marcus Example",
		PrimaryTeamID: 33,
		LoanTeamID:    532,
		TransferDate:  time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC),
		Confidence:    1.0,
		Source:        SourceDirectTransfer,
		WindowKey:     "2024-25::SUMMER",
	}
}

func TestCandidateValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validCandidate().Validate())

	cases := map[string]func(*Candidate){
		"missing player id":   func(c *Candidate) { c.PlayerID = 0 },
		"missing primary":     func(c *Candidate) { c.PrimaryTeamID = 0 },
		"missing loan team":   func(c *Candidate) { c.LoanTeamID = 0 },
		"same teams":          func(c *Candidate) { c.LoanTeamID = c.PrimaryTeamID },
		"confidence too high": func(c *Candidate) { c.Confidence = 1.01 },
		"negative confidence": func(c *Candidate) { c.Confidence = -0.1 },
		"unknown source":      func(c *Candidate) { c.Source = "GUESSWORK" },
		"missing window key":  func(c *Candidate) { c.WindowKey = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cand := validCandidate()
			mutate(&cand)
			require.Error(t, cand.Validate())
		})
	}
}

func TestCandidateSources(t *testing.T) {
	t.Parallel()

	for _, source := range []CandidateSource{SourceDirectTransfer, SourceStatsCrossmatch, SourceMerged} {
		cand := validCandidate()
		cand.Source = source
		require.NoError(t, cand.Validate())
	}
}
