// Package gateway implements the approval gateway: the single path through
// which human verdicts enter the system for escalated decisions.
package gateway

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/repository"
)

// Options configure gateway behavior.
type Options struct {
	// ResubmitFinalized allows a verdict to overwrite an already-finalized
	// decision, for correction workflows. Off by default; resubmission is
	// then a per-entry validation error.
	ResubmitFinalized bool
}

// Gateway validates and applies human verdict batches.
type Gateway struct {
	decisions *repository.DecisionRepository
	audit     *repository.AuditRepository
	opts      Options
	logger    *zap.Logger
}

// New creates an approval gateway.
func New(decisions *repository.DecisionRepository, audit *repository.AuditRepository, opts Options, logger *zap.Logger) *Gateway {
	return &Gateway{decisions: decisions, audit: audit, opts: opts, logger: logger}
}

// VerdictError is a per-entry rejection from a submission batch.
type VerdictError struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"message"`
}

// SubmitResult reports what a batch submission accomplished. Valid entries
// are applied even when other entries in the same batch fail.
type SubmitResult struct {
	Applied []string       `json:"applied"`
	Errors  []VerdictError `json:"errors,omitempty"`
	Pending int            `json:"pending_remaining"`
}

// Pending returns the approval queue: unresolved HUMAN_REQUIRED decisions
// annotated with candidate context, highest risk first.
func (g *Gateway) Pending() ([]*models.PendingDecision, error) {
	return g.decisions.GetPending()
}

// Submit applies a batch of human verdicts. Each entry is validated
// independently; a bad entry is reported and skipped without voiding the
// rest of the batch.
func (g *Gateway) Submit(verdicts []models.HumanVerdict) (*SubmitResult, error) {
	result := &SubmitResult{}

	for _, v := range verdicts {
		if err := g.applyVerdict(v); err != nil {
			result.Errors = append(result.Errors, VerdictError{ProjectID: v.ProjectID, Message: err.Error()})
			continue
		}
		result.Applied = append(result.Applied, v.ProjectID)

		if err := g.audit.Log(models.EventHumanDecision, "human_reviewer", map[string]any{
			"project_id": v.ProjectID,
			"decision":   v.Decision,
			"reason":     v.Reason,
		}); err != nil {
			g.logger.Error("Failed to audit human verdict",
				zap.String("project_id", v.ProjectID), zap.Error(err))
		}
	}

	pending, err := g.decisions.CountPending()
	if err != nil {
		return nil, err
	}
	result.Pending = pending

	g.logger.Info("Verdict batch processed",
		zap.Int("applied", len(result.Applied)),
		zap.Int("rejected", len(result.Errors)),
		zap.Int("pending_remaining", pending))
	return result, nil
}

func (g *Gateway) applyVerdict(v models.HumanVerdict) error {
	if v.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if v.Decision != models.DecisionApprove && v.Decision != models.DecisionReject {
		return fmt.Errorf("decision must be APPROVE or REJECT, got %q", v.Decision)
	}

	decision, err := g.decisions.GetByProjectID(v.ProjectID)
	if err != nil {
		return err
	}
	if decision == nil {
		return fmt.Errorf("no decision found for project %s", v.ProjectID)
	}
	if decision.Authorization != models.AuthorizationHumanRequired {
		return fmt.Errorf("project %s did not require human approval", v.ProjectID)
	}
	if decision.Resolved() && !g.opts.ResubmitFinalized {
		return fmt.Errorf("project %s is already finalized", v.ProjectID)
	}

	return g.decisions.ApplyHumanVerdict(v.ProjectID, v.Decision, v.Reason)
}

// FinalizeRemaining resolves every unresolved AUTO decision to its proposed
// outcome and returns the count. HUMAN_REQUIRED decisions are untouched.
func (g *Gateway) FinalizeRemaining() (int64, error) {
	finalized, err := g.decisions.FinalizeAuto()
	if err != nil {
		return 0, err
	}
	if finalized > 0 {
		if err := g.audit.Log(models.EventDecisionsFinalized, "system", map[string]any{
			"finalized": finalized,
		}); err != nil {
			g.logger.Error("Failed to audit finalization", zap.Error(err))
		}
	}
	return finalized, nil
}
