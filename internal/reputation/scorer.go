// Package reputation scores actor standing from activity counters and
// violation history. The score feeds the persisted reputation row and flag
// suggestions; quota tiers are computed separately from raw counters.
package reputation

import "time"

// Signal is a single rule contribution to a score.
type Signal struct {
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Points      int    `json:"points"`
}

// Input carries everything a scorer may weigh.
type Input struct {
	RingsCreated       int
	ActiveRings        int
	TotalPosts         int
	MembershipCount    int
	DaysSinceDiscovery int
	ViolationCount     int
	LastViolationAt    *time.Time
	Now                time.Time
}

// Result is the output of a scoring run.
type Result struct {
	// Score is the aggregate standing score (0–100).
	Score int `json:"score"`

	// Standing is a human-readable label derived from Score:
	//   0–14   → "poor"
	//   15–39  → "fair"
	//   40–74  → "good"
	//   75–100 → "excellent"
	Standing string `json:"standing"`

	// Signals lists every rule that contributed.
	Signals []Signal `json:"signals"`

	// FlagSuggested is true when the score is poor and violations have
	// accumulated. Callers should surface such actors for operator review.
	FlagSuggested bool `json:"flagSuggested"`
}

// Scorer computes a standing score for an actor.
type Scorer interface {
	Score(in Input) *Result
}

// standingLabel maps a 0–100 score to a standing string.
func standingLabel(score int) string {
	switch {
	case score >= 75:
		return "excellent"
	case score >= 40:
		return "good"
	case score >= 15:
		return "fair"
	default:
		return "poor"
	}
}
