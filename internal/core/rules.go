package core

import (
	"context"
	"fmt"
	"math"

	"mocacore/internal/scoring"
	"mocacore/pkg/domain"
)

type (
	Rule        = domain.Rule
	RuleView    = domain.RuleView
	RulesEngine = domain.RulesEngine
)

// totalTolerance absorbs the two decimal rounding of stored totals.
const totalTolerance = 0.0051

// NewRulesEngine constructs an engine with no rules.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in integrity set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewSessionTotalRule())
	engine.Register(NewResultOwnershipRule())
	return engine
}

type sessionTotalRule struct{}

// NewSessionTotalRule blocks commits that store a session total differing
// from the total recomputed from its bucket scores. A stale interpretation
// label only warns.
func NewSessionTotalRule() Rule { return sessionTotalRule{} }

func (sessionTotalRule) Name() string { return "session_total_consistency" }

func (r sessionTotalRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.Entity != EntitySession || change.Action == domain.ActionDelete {
			continue
		}
		session, ok := change.After.(Session)
		if !ok {
			continue
		}
		want := scoring.Total(session.SectionScores)
		if math.Abs(session.TotalScore-want) > totalTolerance {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("stored total %.2f differs from computed total %.2f", session.TotalScore, want),
				Entity:   EntitySession,
				EntityID: session.ID,
			})
			continue
		}
		label, _ := scoring.Interpret(session.TotalScore)
		if session.Interpretation != label {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityWarn,
				Message:  fmt.Sprintf("interpretation %q does not match total %.2f", session.Interpretation, session.TotalScore),
				Entity:   EntitySession,
				EntityID: session.ID,
			})
		}
	}
	return res, nil
}

type resultOwnershipRule struct{}

// NewResultOwnershipRule blocks results that reference a missing session or
// a session owned by another user.
func NewResultOwnershipRule() Rule { return resultOwnershipRule{} }

func (resultOwnershipRule) Name() string { return "result_ownership" }

func (r resultOwnershipRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.Entity != EntityResult || change.Action != domain.ActionCreate {
			continue
		}
		result, ok := change.After.(SectionResult)
		if !ok {
			continue
		}
		session, found := view.FindSession(result.SessionID)
		switch {
		case !found:
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("session %s does not exist", result.SessionID),
				Entity:   EntityResult,
				EntityID: result.ID,
			})
		case session.UserID != result.UserID:
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("session %s belongs to %s, not %s", session.ID, session.UserID, result.UserID),
				Entity:   EntityResult,
				EntityID: result.ID,
			})
		}
	}
	return res, nil
}
