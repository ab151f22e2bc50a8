package reputation_test

import (
	"testing"
	"time"

	"github.com/threadring/ringhub/internal/reputation"
)

func TestScore_freshActor(t *testing.T) {
	s := reputation.NewRuleBasedScorer()
	res := s.Score(reputation.Input{})

	if res.Score != 0 {
		t.Errorf("Score: got %d, want 0", res.Score)
	}
	if res.Standing != "poor" {
		t.Errorf("Standing: got %q, want %q", res.Standing, "poor")
	}
	if res.FlagSuggested {
		t.Error("fresh actor should not be flag-suggested")
	}
	if res.Signals == nil {
		t.Error("Signals should be an empty slice, not nil")
	}
}

func TestScore_activeActor(t *testing.T) {
	s := reputation.NewRuleBasedScorer()
	res := s.Score(reputation.Input{
		RingsCreated:       4,
		ActiveRings:        3,
		TotalPosts:         150,
		MembershipCount:    6,
		DaysSinceDiscovery: 180,
	})

	if res.Score < 75 {
		t.Errorf("long-standing active actor should score excellent, got %d (%s)", res.Score, res.Standing)
	}
	if res.FlagSuggested {
		t.Error("active actor should not be flag-suggested")
	}
}

func TestScore_violationsDragScoreDown(t *testing.T) {
	s := reputation.NewRuleBasedScorer()

	clean := s.Score(reputation.Input{TotalPosts: 20, DaysSinceDiscovery: 30})
	recent := time.Now().Add(-time.Hour)
	dirty := s.Score(reputation.Input{
		TotalPosts:         20,
		DaysSinceDiscovery: 30,
		ViolationCount:     4,
		LastViolationAt:    &recent,
		Now:                time.Now(),
	})

	if dirty.Score >= clean.Score {
		t.Errorf("violations should lower the score: clean=%d dirty=%d", clean.Score, dirty.Score)
	}
}

func TestScore_flagSuggestion(t *testing.T) {
	s := reputation.NewRuleBasedScorer()
	recent := time.Now().Add(-2 * time.Hour)
	res := s.Score(reputation.Input{
		ViolationCount:  5,
		LastViolationAt: &recent,
		Now:             time.Now(),
	})

	if !res.FlagSuggested {
		t.Errorf("violation-heavy idle actor should be flag-suggested (score %d)", res.Score)
	}
	if res.Standing != "poor" {
		t.Errorf("Standing: got %q, want %q", res.Standing, "poor")
	}
}

func TestScore_clampedToRange(t *testing.T) {
	s := reputation.NewRuleBasedScorer()

	high := s.Score(reputation.Input{
		RingsCreated:       100,
		ActiveRings:        100,
		TotalPosts:         10000,
		MembershipCount:    100,
		DaysSinceDiscovery: 10000,
	})
	if high.Score > 100 {
		t.Errorf("Score exceeds 100: %d", high.Score)
	}

	low := s.Score(reputation.Input{ViolationCount: 50})
	if low.Score < 0 {
		t.Errorf("Score below 0: %d", low.Score)
	}
}
