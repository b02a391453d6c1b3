// Package policy implements the authorization policy engine: the pure
// decision gate that determines whether a proposed funding decision may
// execute automatically or must wait for a human verdict.
package policy

import (
	"fmt"

	"github.com/civicworks/capital-triage/internal/models"
)

// Escalation thresholds.
const (
	CostThreshold           = 10_000_000
	ConfidenceThreshold     = 65
	HighRiskThreshold       = 6.0
	HighPopulationThreshold = 200_000
)

// Proposal is the untrusted decision tuple supplied by the governance
// collaborator. Confidence is clamped and reason codes outside the closed
// enumeration are excluded before evaluation.
type Proposal struct {
	Decision    string
	Confidence  int
	ReasonCodes []string
	Rationale   string
}

// Result is the outcome of evaluating one proposal against one candidate.
type Result struct {
	Decision          models.PolicyDecision
	EscalationReasons []string
	DroppedCodes      []string
}

// Engine evaluates proposals. It is stateless; Evaluate is a pure function of
// its arguments.
type Engine struct{}

// NewEngine creates a new policy engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate applies the four escalation rules to the proposal. The rules are
// independent and additive: each contributes its canonical reason code once
// and forces HUMAN_REQUIRED, so evaluation order cannot change the result.
// AUTO decisions are returned already finalized.
func (e *Engine) Evaluate(candidate *models.ProjectCandidate, proposal Proposal) (*Result, error) {
	if proposal.Decision != models.DecisionApprove && proposal.Decision != models.DecisionReject {
		return nil, fmt.Errorf("decision must be APPROVE or REJECT, got %q", proposal.Decision)
	}

	confidence := clamp(proposal.Confidence, 0, 100)
	codes, dropped := models.ParseReasonCodes(proposal.ReasonCodes)

	authorization := models.AuthorizationAuto
	var escalations []string

	addCode := func(code models.ReasonCode) {
		for _, existing := range codes {
			if existing == code {
				return
			}
		}
		codes = append(codes, code)
	}

	// Rule 1: cost above threshold always requires human approval.
	if candidate.EstimatedCost > CostThreshold {
		authorization = models.AuthorizationHumanRequired
		escalations = append(escalations,
			fmt.Sprintf("Cost $%.0f exceeds $%d threshold", candidate.EstimatedCost, CostThreshold))
		addCode(models.ReasonHighCost)
	}

	// Rule 2: rejecting a legal mandate requires council approval.
	if candidate.LegalMandate && proposal.Decision == models.DecisionReject {
		authorization = models.AuthorizationHumanRequired
		escalations = append(escalations, "Legal mandate rejection requires council approval")
		addCode(models.ReasonLegalMandate)
	}

	// Rule 3: low confidence requires human review.
	if confidence < ConfidenceThreshold {
		authorization = models.AuthorizationHumanRequired
		escalations = append(escalations,
			fmt.Sprintf("Confidence %d%% below %d%% threshold", confidence, ConfidenceThreshold))
		addCode(models.ReasonLowConfidence)
	}

	// Rule 4: high risk combined with high population impact.
	if candidate.RiskScore >= HighRiskThreshold && candidate.PopulationAffected >= HighPopulationThreshold {
		authorization = models.AuthorizationHumanRequired
		escalations = append(escalations,
			fmt.Sprintf("High risk (%.1f/8) affecting %d people", candidate.RiskScore, candidate.PopulationAffected))
		addCode(models.ReasonHighRisk)
	}

	decision := models.PolicyDecision{
		ProjectID:     candidate.ProjectID,
		Decision:      proposal.Decision,
		Authorization: authorization,
		Confidence:    confidence,
		ReasonCodes:   codes,
		Rationale:     proposal.Rationale,
	}

	if authorization == models.AuthorizationAuto {
		final := proposal.Decision
		decision.FinalDecision = &final
	}

	return &Result{
		Decision:          decision,
		EscalationReasons: escalations,
		DroppedCodes:      dropped,
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
