package reputation

import "strconv"

// ruleFunc inspects an input and returns zero or more Signals.
type ruleFunc func(in Input) []Signal

// RuleBasedScorer is the default Scorer implementation. It runs a fixed set
// of rules and accumulates their points into a clamped 0–100 score.
type RuleBasedScorer struct {
	rules []ruleFunc
}

// NewRuleBasedScorer returns a RuleBasedScorer loaded with the default rule
// set.
func NewRuleBasedScorer() *RuleBasedScorer {
	s := &RuleBasedScorer{}
	s.rules = []ruleFunc{
		ruleAccountAge,
		ruleRingActivity,
		rulePostVolume,
		ruleMembershipBreadth,
		ruleViolations,
	}
	return s
}

// Score implements Scorer.
func (s *RuleBasedScorer) Score(in Input) *Result {
	var signals []Signal
	for _, r := range s.rules {
		signals = append(signals, r(in)...)
	}

	total := 0
	for _, sig := range signals {
		total += sig.Points
	}
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	if signals == nil {
		signals = []Signal{}
	}

	return &Result{
		Score:         total,
		Standing:      standingLabel(total),
		Signals:       signals,
		FlagSuggested: total < 15 && in.ViolationCount >= 3,
	}
}

// ── Rules ─────────────────────────────────────────────────────────────────────

// ruleAccountAge awards up to 20 points for account longevity.
func ruleAccountAge(in Input) []Signal {
	points := in.DaysSinceDiscovery / 9
	if points > 20 {
		points = 20
	}
	if points == 0 {
		return nil
	}
	return []Signal{{
		Rule:        "account_age",
		Description: strconv.Itoa(in.DaysSinceDiscovery) + " days since discovery",
		Points:      points,
	}}
}

// ruleRingActivity awards points for creating rings and keeping them active.
func ruleRingActivity(in Input) []Signal {
	var signals []Signal
	if in.RingsCreated > 0 {
		points := in.RingsCreated * 4
		if points > 16 {
			points = 16
		}
		signals = append(signals, Signal{
			Rule:        "rings_created",
			Description: strconv.Itoa(in.RingsCreated) + " rings created",
			Points:      points,
		})
	}
	if in.ActiveRings > 0 {
		points := in.ActiveRings * 3
		if points > 12 {
			points = 12
		}
		signals = append(signals, Signal{
			Rule:        "active_rings",
			Description: strconv.Itoa(in.ActiveRings) + " rings still active",
			Points:      points,
		})
	}
	return signals
}

// rulePostVolume awards up to 30 points for sustained posting.
func rulePostVolume(in Input) []Signal {
	if in.TotalPosts == 0 {
		return nil
	}
	points := in.TotalPosts / 5
	if points > 30 {
		points = 30
	}
	if points == 0 {
		points = 1
	}
	return []Signal{{
		Rule:        "post_volume",
		Description: strconv.Itoa(in.TotalPosts) + " posts submitted",
		Points:      points,
	}}
}

// ruleMembershipBreadth awards points for participating across rings.
func ruleMembershipBreadth(in Input) []Signal {
	if in.MembershipCount == 0 {
		return nil
	}
	points := in.MembershipCount * 2
	if points > 12 {
		points = 12
	}
	return []Signal{{
		Rule:        "membership_breadth",
		Description: strconv.Itoa(in.MembershipCount) + " ring memberships",
		Points:      points,
	}}
}

// violationRecencyWindow is how long a violation keeps its extra penalty.
const violationRecencyWindow = 7 * 24 * 60 * 60 // seconds

// ruleViolations subtracts points per violation, with an extra penalty when
// the latest violation is recent.
func ruleViolations(in Input) []Signal {
	if in.ViolationCount == 0 {
		return nil
	}

	penalty := in.ViolationCount * 10
	if penalty > 50 {
		penalty = 50
	}
	signals := []Signal{{
		Rule:        "violations",
		Description: strconv.Itoa(in.ViolationCount) + " rate-limit violations",
		Points:      -penalty,
	}}

	if in.LastViolationAt != nil && !in.Now.IsZero() {
		age := in.Now.Sub(*in.LastViolationAt).Seconds()
		if age >= 0 && age < violationRecencyWindow {
			signals = append(signals, Signal{
				Rule:        "recent_violation",
				Description: "violation within the past week",
				Points:      -10,
			})
		}
	}
	return signals
}
