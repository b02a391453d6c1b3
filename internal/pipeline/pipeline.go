// Package pipeline orchestrates the triage stages: project formation,
// governance review, human approval, and crew scheduling. Stages run in
// order and each persists its output before the next begins.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/advisor"
	"github.com/civicworks/capital-triage/internal/briefing"
	"github.com/civicworks/capital-triage/internal/gateway"
	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/policy"
	"github.com/civicworks/capital-triage/internal/repository"
	"github.com/civicworks/capital-triage/internal/risk"
	"github.com/civicworks/capital-triage/internal/scheduler"
	"github.com/civicworks/capital-triage/pkg/database"
)

// ErrPendingApprovals gates the scheduling stage: no placement happens while
// escalated decisions await a human verdict.
var ErrPendingApprovals = errors.New("pending approvals must be resolved before scheduling")

// Repos bundles the persistence layer the orchestrator works against.
type Repos struct {
	DB         *database.DB
	Issues     *repository.IssueRepository
	Candidates *repository.CandidateRepository
	Decisions  *repository.DecisionRepository
	Schedule   *repository.ScheduleRepository
	Capacity   *repository.CapacityRepository
	Audit      *repository.AuditRepository
}

// Orchestrator drives the pipeline stages.
type Orchestrator struct {
	repos     Repos
	scorer    *risk.Scorer
	engine    *policy.Engine
	advisor   advisor.Advisor
	briefings *briefing.Builder
	gateway   *gateway.Gateway
	scheduler *scheduler.Scheduler
	budget    float64
	logger    *zap.Logger
}

// New creates a pipeline orchestrator. budget is the advisory quarterly
// budget in dollars.
func New(repos Repos, adv advisor.Advisor, briefings *briefing.Builder, gw *gateway.Gateway, sched *scheduler.Scheduler, budget float64, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		repos:     repos,
		scorer:    risk.NewScorer(),
		engine:    policy.NewEngine(),
		advisor:   adv,
		briefings: briefings,
		gateway:   gw,
		scheduler: sched,
		budget:    budget,
		logger:    logger,
	}
}

// SetBudget replaces the advisory quarterly budget for subsequent stages.
// Used when a run is initialized with an explicit budget.
func (o *Orchestrator) SetBudget(budget float64) {
	o.budget = budget
	o.logger.Info("Quarterly budget set", zap.Float64("budget", budget))
}

// FormationResult summarizes one formation run.
type FormationResult struct {
	Formed          []*models.ProjectCandidate `json:"formed"`
	SkippedLowRisk  int                        `json:"skipped_low_risk"`
	SkippedExisting int                        `json:"skipped_existing"`
}

// RunFormation converts open issues into project candidates. Issues that
// already have a candidate are skipped, so repeated runs are idempotent.
func (o *Orchestrator) RunFormation(ctx context.Context) (*FormationResult, error) {
	issues, err := o.repos.Issues.GetOpen()
	if err != nil {
		return nil, fmt.Errorf("formation: %w", err)
	}

	result := &FormationResult{}
	for _, issue := range issues {
		exists, err := o.repos.Candidates.ExistsForIssue(issue.ID)
		if err != nil {
			return nil, fmt.Errorf("formation: %w", err)
		}
		if exists {
			result.SkippedExisting++
			continue
		}

		score := o.scorer.Score(issue)
		if score < risk.FormationThreshold {
			o.logger.Debug("Issue below formation threshold",
				zap.Int64("issue_id", issue.ID), zap.Float64("risk_score", score))
			result.SkippedLowRisk++
			continue
		}

		estimate := o.scorer.Estimate(issue)
		scope, err := o.advisor.Scope(ctx, issue, advisor.ScopeEstimate{
			EstimatedCost:    estimate.EstimatedCost,
			EstimatedWeeks:   estimate.EstimatedWeeks,
			RequiredCrewType: estimate.RequiredCrewType,
			CrewSize:         estimate.CrewSize,
		})
		if err != nil {
			o.logger.Warn("Scope generation failed, using issue description",
				zap.Int64("issue_id", issue.ID), zap.Error(err))
			scope = issue.Description
		}

		candidate := &models.ProjectCandidate{
			ProjectID:          newProjectID(issue.ID),
			IssueID:            issue.ID,
			Title:              issue.Title,
			Scope:              scope,
			Category:           issue.Category,
			EstimatedCost:      estimate.EstimatedCost,
			EstimatedWeeks:     estimate.EstimatedWeeks,
			RequiredCrewType:   estimate.RequiredCrewType,
			CrewSize:           estimate.CrewSize,
			RiskScore:          score,
			PopulationAffected: issue.PopulationAffected,
			LegalMandate:       issue.LegalMandate,
		}
		if err := o.repos.Candidates.Create(candidate); err != nil {
			return nil, fmt.Errorf("formation: %w", err)
		}

		o.auditLog(models.EventProjectFormed, "formation", map[string]any{
			"project_id": candidate.ProjectID,
			"issue_id":   issue.ID,
			"risk_score": score,
			"cost":       candidate.EstimatedCost,
		})
		result.Formed = append(result.Formed, candidate)
	}

	o.logger.Info("Formation complete",
		zap.Int("formed", len(result.Formed)),
		zap.Int("skipped_low_risk", result.SkippedLowRisk),
		zap.Int("skipped_existing", result.SkippedExisting))
	return result, nil
}

// newProjectID builds an ID like PRJ-003-9F2C4A: issue number plus a short
// random suffix.
func newProjectID(issueID int64) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("PRJ-%03d-%s", issueID, suffix)
}

// GovernanceResult summarizes one governance run.
type GovernanceResult struct {
	AutoResolved int `json:"auto_resolved"`
	Escalated    int `json:"escalated"`
	Skipped      int `json:"skipped"`
}

// RunGovernance obtains a proposal for every undecided candidate and passes
// it through the policy engine. Candidates that already have a decision are
// skipped. Escalated decisions get a reviewer briefing before persistence.
func (o *Orchestrator) RunGovernance(ctx context.Context) (*GovernanceResult, error) {
	candidates, err := o.repos.Candidates.GetAll()
	if err != nil {
		return nil, fmt.Errorf("governance: %w", err)
	}

	budget, err := o.BudgetStatus()
	if err != nil {
		return nil, fmt.Errorf("governance: %w", err)
	}

	result := &GovernanceResult{}
	for _, candidate := range candidates {
		existing, err := o.repos.Decisions.GetByProjectID(candidate.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("governance: %w", err)
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		proposal, err := o.advisor.Propose(ctx, candidate, budget)
		if err != nil {
			return nil, fmt.Errorf("governance: proposal for %s: %w", candidate.ProjectID, err)
		}

		evaluated, err := o.engine.Evaluate(candidate, proposal)
		if err != nil {
			return nil, fmt.Errorf("governance: %s: %w", candidate.ProjectID, err)
		}
		decision := evaluated.Decision

		if len(evaluated.DroppedCodes) > 0 {
			o.auditLog(models.EventValidationIssue, "governance", map[string]any{
				"project_id":    candidate.ProjectID,
				"dropped_codes": evaluated.DroppedCodes,
			})
		}

		if decision.Authorization == models.AuthorizationHumanRequired {
			decision.Briefing = o.briefings.Build(ctx, candidate, &decision, evaluated.EscalationReasons)
			result.Escalated++
		} else {
			result.AutoResolved++
			if decision.Decision == models.DecisionApprove {
				budget.Allocated += candidate.EstimatedCost
				budget.Remaining -= candidate.EstimatedCost
			}
		}

		if err := o.repos.Decisions.Create(&decision); err != nil {
			return nil, fmt.Errorf("governance: %w", err)
		}

		o.auditLog(models.EventPolicyDecision, "governance", map[string]any{
			"project_id":    candidate.ProjectID,
			"decision":      decision.Decision,
			"authorization": decision.Authorization,
			"confidence":    decision.Confidence,
			"reason_codes":  decision.ReasonCodes,
		})
	}

	o.logger.Info("Governance complete",
		zap.Int("auto_resolved", result.AutoResolved),
		zap.Int("escalated", result.Escalated),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// ApproveAll synthesizes an approving verdict for every pending decision,
// adopting each proposal's original decision. Intended for unattended runs.
func (o *Orchestrator) ApproveAll() (*gateway.SubmitResult, error) {
	pending, err := o.gateway.Pending()
	if err != nil {
		return nil, fmt.Errorf("approve all: %w", err)
	}

	verdicts := make([]models.HumanVerdict, 0, len(pending))
	for _, p := range pending {
		verdicts = append(verdicts, models.HumanVerdict{
			ProjectID: p.ProjectID,
			Decision:  p.Decision,
			Reason:    "Batch-confirmed proposed decision in unattended run",
		})
	}
	return o.gateway.Submit(verdicts)
}

// SchedulingResult summarizes one scheduling run.
type SchedulingResult struct {
	Tasks     []*models.ScheduleTask `json:"tasks"`
	Scheduled int                    `json:"scheduled"`
	Blocked   int                    `json:"blocked"`
}

// RunScheduling places approved projects onto the quarter timeline. It fails
// with ErrPendingApprovals while any escalated decision is unresolved.
// Unresolved AUTO decisions are finalized first. The previous schedule, if
// any, is replaced.
func (o *Orchestrator) RunScheduling(ctx context.Context) (*SchedulingResult, error) {
	pending, err := o.repos.Decisions.CountPending()
	if err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}
	if pending > 0 {
		return nil, fmt.Errorf("%w: %d pending", ErrPendingApprovals, pending)
	}

	if _, err := o.gateway.FinalizeRemaining(); err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}

	approved, err := o.repos.Decisions.GetApprovedProjects()
	if err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}
	capacity, err := o.repos.Capacity.GetAll()
	if err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}

	if err := o.repos.Schedule.DeleteAll(); err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}

	result := &SchedulingResult{Tasks: o.scheduler.Plan(approved, capacity)}
	for _, task := range result.Tasks {
		if err := o.repos.Schedule.Create(task); err != nil {
			return nil, fmt.Errorf("scheduling: %w", err)
		}

		if task.Status == models.TaskScheduled {
			result.Scheduled++
			o.auditLog(models.EventProjectScheduled, "scheduling", map[string]any{
				"project_id": task.ProjectID,
				"start_week": task.StartWeek,
				"end_week":   task.EndWeek,
				"crew_type":  task.CrewType,
			})
		} else {
			result.Blocked++
			o.auditLog(models.EventProjectBlocked, "scheduling", map[string]any{
				"project_id": task.ProjectID,
				"crew_type":  task.CrewType,
				"crew_size":  task.CrewSize,
			})
		}
	}

	o.logger.Info("Scheduling complete",
		zap.Int("scheduled", result.Scheduled),
		zap.Int("blocked", result.Blocked))
	return result, nil
}

// BudgetStatus recomputes the advisory budget position from APPROVE-final
// decisions.
func (o *Orchestrator) BudgetStatus() (models.BudgetStatus, error) {
	allocated, err := o.repos.Decisions.AllocatedBudget()
	if err != nil {
		return models.BudgetStatus{}, err
	}
	return models.BudgetStatus{
		Total:     o.budget,
		Allocated: allocated,
		Remaining: o.budget - allocated,
	}, nil
}

// Results is the aggregated pipeline state for reporting.
type Results struct {
	Candidates []*models.ProjectCandidate `json:"candidates"`
	Decisions  []*models.PolicyDecision   `json:"decisions"`
	Tasks      []*models.ScheduleTask     `json:"tasks"`
	Budget     models.BudgetStatus        `json:"budget"`
	PeakUsage  map[string]int             `json:"peak_usage"`
	Pending    int                        `json:"pending_approvals"`
}

// Results gathers the current state of every stage.
func (o *Orchestrator) Results() (*Results, error) {
	candidates, err := o.repos.Candidates.GetAll()
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	decisions, err := o.repos.Decisions.GetAll()
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	tasks, err := o.repos.Schedule.GetAll()
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	budget, err := o.BudgetStatus()
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	pending, err := o.repos.Decisions.CountPending()
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}

	return &Results{
		Candidates: candidates,
		Decisions:  decisions,
		Tasks:      tasks,
		Budget:     budget,
		PeakUsage:  o.scheduler.PeakUsage(tasks),
		Pending:    pending,
	}, nil
}

// Reset clears every stage output while leaving issues and crew capacity in
// place, so the pipeline can re-run from formation.
func (o *Orchestrator) Reset() error {
	if err := repository.ClearPipelineOutputs(o.repos.DB); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	o.auditLog(models.EventPipelineReset, "system", nil)
	o.logger.Info("Pipeline outputs cleared")
	return nil
}

// auditLog writes an audit event, logging rather than failing the stage on
// error. The audit trail must not take the pipeline down with it.
func (o *Orchestrator) auditLog(eventType, actor string, payload any) {
	if err := o.repos.Audit.Log(eventType, actor, payload); err != nil {
		o.logger.Error("Audit write failed", zap.String("event_type", eventType), zap.Error(err))
	}
}
