// Package advisor produces governance proposals and scope narratives for
// project candidates. Advisor output is untrusted input to the policy engine,
// which clamps and validates it before anything is persisted.
package advisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/policy"
)

// Advisor proposes funding decisions and writes candidate scope text.
type Advisor interface {
	// Propose returns a proposed decision tuple for the candidate given the
	// current budget position.
	Propose(ctx context.Context, candidate *models.ProjectCandidate, budget models.BudgetStatus) (policy.Proposal, error)

	// Scope returns a short narrative scope description for a newly formed
	// candidate.
	Scope(ctx context.Context, issue *models.Issue, estimate ScopeEstimate) (string, error)
}

// ScopeEstimate carries the derived parameters the scope narrative mentions.
type ScopeEstimate struct {
	EstimatedCost    float64
	EstimatedWeeks   int
	RequiredCrewType string
	CrewSize         int
}

// FallbackAdvisor tries a primary advisor and degrades to a fallback when the
// primary fails. Collaborator failures are absorbed here, not propagated as
// stage errors.
type FallbackAdvisor struct {
	primary  Advisor
	fallback Advisor
	logger   *zap.Logger
}

// NewFallbackAdvisor wraps primary with fallback.
func NewFallbackAdvisor(primary, fallback Advisor, logger *zap.Logger) *FallbackAdvisor {
	return &FallbackAdvisor{primary: primary, fallback: fallback, logger: logger}
}

// Propose delegates to the primary advisor, substituting the fallback's
// proposal on error.
func (a *FallbackAdvisor) Propose(ctx context.Context, candidate *models.ProjectCandidate, budget models.BudgetStatus) (policy.Proposal, error) {
	proposal, err := a.primary.Propose(ctx, candidate, budget)
	if err == nil {
		return proposal, nil
	}
	a.logger.Warn("Primary advisor failed, using fallback",
		zap.String("project_id", candidate.ProjectID), zap.Error(err))
	return a.fallback.Propose(ctx, candidate, budget)
}

// Scope delegates to the primary advisor, substituting the fallback's scope
// text on error.
func (a *FallbackAdvisor) Scope(ctx context.Context, issue *models.Issue, estimate ScopeEstimate) (string, error) {
	scope, err := a.primary.Scope(ctx, issue, estimate)
	if err == nil {
		return scope, nil
	}
	a.logger.Warn("Primary advisor failed to generate scope, using fallback",
		zap.Int64("issue_id", issue.ID), zap.Error(err))
	return a.fallback.Scope(ctx, issue, estimate)
}
