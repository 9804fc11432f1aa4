package services

import (
	"fmt"
	"strings"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

// Abstention reasons. Abstention is an inspectable outcome, not a nil.
const (
	AbstainInsufficientData    = "insufficient_data"
	AbstainSignalMissing       = "signal_missing"
	AbstainConditionNotMet     = "condition_not_met"
	AbstainCropNotApplicable   = "crop_not_applicable"
	AbstainSeasonNotApplicable = "season_not_applicable"
)

// RuleOutcome is the tagged result of one rule against one signal set:
// either it fired with a candidate, or it abstained for a named reason.
type RuleOutcome struct {
	Rule      RuleDef
	Fired     bool
	Reason    string
	Value     float64
	Candidate *AdvisoryCandidate
}

// AdvisoryCandidate is a rule hit before reconciliation.
type AdvisoryCandidate struct {
	Type     string
	Level    types.AlertLevel
	Priority int
	Text     string
	Signal   string
	Value    float64
}

type RuleEvaluator interface {
	// Evaluate runs every configured rule against the signal set. Rules are
	// independent; output order follows the rule table.
	Evaluate(field *types.Field, signals *SignalSet) []RuleOutcome
	// Candidates collapses fired outcomes to the strongest candidate per
	// advisory type (highest level, then lowest priority number).
	Candidates(outcomes []RuleOutcome) []AdvisoryCandidate
}

type ruleEvaluator struct {
	log   *logger.Logger
	rules []RuleDef
}

func NewRuleEvaluator(baseLog *logger.Logger, spec *RuleSpec) RuleEvaluator {
	return &ruleEvaluator{
		log:   baseLog.With("service", "RuleEvaluator"),
		rules: spec.Rules,
	}
}

func (e *ruleEvaluator) Evaluate(field *types.Field, signals *SignalSet) []RuleOutcome {
	outcomes := make([]RuleOutcome, 0, len(e.rules))
	for _, rule := range e.rules {
		outcomes = append(outcomes, e.evaluateRule(rule, field, signals))
	}
	return outcomes
}

func (e *ruleEvaluator) evaluateRule(rule RuleDef, field *types.Field, signals *SignalSet) RuleOutcome {
	outcome := RuleOutcome{Rule: rule}

	if len(rule.Crops) > 0 && !containsFold(rule.Crops, field.CropType) {
		outcome.Reason = AbstainCropNotApplicable
		return outcome
	}
	if len(rule.Seasons) > 0 && !containsFold(rule.Seasons, field.Season) {
		outcome.Reason = AbstainSeasonNotApplicable
		return outcome
	}
	if signals.Insufficient {
		outcome.Reason = AbstainInsufficientData
		return outcome
	}

	value, ok := signals.Value(rule.Signal)
	if !ok {
		outcome.Reason = AbstainSignalMissing
		return outcome
	}
	outcome.Value = value

	if !e.conditionMet(rule, value) {
		outcome.Reason = AbstainConditionNotMet
		return outcome
	}

	outcome.Fired = true
	outcome.Candidate = &AdvisoryCandidate{
		Type:     rule.Type,
		Level:    rule.Level,
		Priority: rule.Priority,
		Text:     renderRuleText(rule.Text, value),
		Signal:   rule.Signal,
		Value:    value,
	}
	return outcome
}

func (e *ruleEvaluator) conditionMet(rule RuleDef, value float64) bool {
	switch rule.Comparator {
	case ComparatorLT:
		return value < rule.Threshold
	case ComparatorGT:
		return value > rule.Threshold
	case ComparatorBetween:
		return value >= rule.Lower && value <= rule.Upper
	default:
		return false
	}
}

func (e *ruleEvaluator) Candidates(outcomes []RuleOutcome) []AdvisoryCandidate {
	strongest := map[string]AdvisoryCandidate{}
	order := []string{}
	for _, outcome := range outcomes {
		if !outcome.Fired || outcome.Candidate == nil {
			continue
		}
		candidate := *outcome.Candidate
		current, seen := strongest[candidate.Type]
		if !seen {
			strongest[candidate.Type] = candidate
			order = append(order, candidate.Type)
			continue
		}
		if candidate.Level.Rank() > current.Level.Rank() ||
			(candidate.Level.Rank() == current.Level.Rank() && candidate.Priority < current.Priority) {
			strongest[candidate.Type] = candidate
		}
	}

	out := make([]AdvisoryCandidate, 0, len(order))
	for _, advisoryType := range order {
		out = append(out, strongest[advisoryType])
	}
	return out
}

func renderRuleText(text string, value float64) string {
	if strings.Contains(text, "%") {
		return fmt.Sprintf(text, value)
	}
	return text
}

func containsFold(list []string, needle string) bool {
	for _, item := range list {
		if strings.EqualFold(item, needle) {
			return true
		}
	}
	return false
}
