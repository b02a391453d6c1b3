package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/policy"
)

// RuleAdvisor produces deterministic proposals from candidate attributes and
// the budget position. It backs the pipeline when no model is configured and
// serves as the fallback when the model advisor fails.
type RuleAdvisor struct{}

// NewRuleAdvisor creates a rule-based advisor.
func NewRuleAdvisor() *RuleAdvisor {
	return &RuleAdvisor{}
}

// Propose derives a decision from the candidate's mandate status, risk score
// and fit within the remaining budget. The same candidate and budget always
// yield the same tuple.
func (a *RuleAdvisor) Propose(_ context.Context, candidate *models.ProjectCandidate, budget models.BudgetStatus) (policy.Proposal, error) {
	overBudget := candidate.EstimatedCost > budget.Remaining

	switch {
	case candidate.LegalMandate:
		confidence := 90
		if overBudget {
			confidence = 75
		}
		return policy.Proposal{
			Decision:    models.DecisionApprove,
			Confidence:  confidence,
			ReasonCodes: []string{string(models.ReasonLegalMandate), string(models.ReasonSafetyCritical)},
			Rationale: fmt.Sprintf("Legally mandated work; approval avoids compliance exposure. Risk %.1f/8, estimated $%.0f.",
				candidate.RiskScore, candidate.EstimatedCost),
		}, nil

	case candidate.RiskScore >= 6:
		codes := []string{string(models.ReasonHighRisk)}
		if candidate.PopulationAffected >= 200_000 {
			codes = append(codes, string(models.ReasonHighPopulationImpact))
		}
		return policy.Proposal{
			Decision:    models.DecisionApprove,
			Confidence:  80,
			ReasonCodes: codes,
			Rationale: fmt.Sprintf("High-risk infrastructure issue (%.1f/8) affecting %d residents warrants funding.",
				candidate.RiskScore, candidate.PopulationAffected),
		}, nil

	case candidate.RiskScore < 3:
		return policy.Proposal{
			Decision:    models.DecisionReject,
			Confidence:  85,
			ReasonCodes: []string{string(models.ReasonLowPriority)},
			Rationale: fmt.Sprintf("Risk %.1f/8 is below the funding bar for this quarter; defer to routine maintenance.",
				candidate.RiskScore),
		}, nil

	case overBudget:
		return policy.Proposal{
			Decision:    models.DecisionReject,
			Confidence:  70,
			ReasonCodes: []string{string(models.ReasonBudgetShortfall)},
			Rationale: fmt.Sprintf("Estimated $%.0f exceeds the remaining quarterly budget of $%.0f.",
				candidate.EstimatedCost, budget.Remaining),
		}, nil

	default:
		return policy.Proposal{
			Decision:    models.DecisionApprove,
			Confidence:  78,
			ReasonCodes: []string{string(models.ReasonWithinPolicy), string(models.ReasonBudgetOptimized)},
			Rationale: fmt.Sprintf("Moderate risk (%.1f/8) and cost $%.0f fit within the remaining budget.",
				candidate.RiskScore, candidate.EstimatedCost),
		}, nil
	}
}

// Scope returns a templated scope narrative built from the issue and its
// derived estimates.
func (a *RuleAdvisor) Scope(_ context.Context, issue *models.Issue, estimate ScopeEstimate) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Remediate %q (%s, severity %d/5). ",
		issue.Title, issue.Category, issue.Severity)
	fmt.Fprintf(&b, "Deploy a %d-person %s for approximately %d weeks at an estimated cost of $%.0f. ",
		estimate.CrewSize, strings.ReplaceAll(estimate.RequiredCrewType, "_", " "),
		estimate.EstimatedWeeks, estimate.EstimatedCost)
	if issue.LegalMandate {
		b.WriteString("Work is legally mandated and must meet regulatory compliance requirements. ")
	}
	fmt.Fprintf(&b, "Affects an estimated %d residents.", issue.PopulationAffected)
	return b.String(), nil
}
