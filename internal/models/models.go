package models

import "time"

// Decision values for both proposed and final funding decisions.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)

// Authorization values. AUTO decisions execute without review; HUMAN_REQUIRED
// decisions wait at the approval gateway.
const (
	AuthorizationAuto          = "AUTO"
	AuthorizationHumanRequired = "HUMAN_REQUIRED"
)

// Schedule task status values.
const (
	TaskScheduled = "SCHEDULED"
	TaskBlocked   = "BLOCKED"
)

// Issue status values.
const (
	IssueOpen   = "open"
	IssueClosed = "closed"
)

// Issue is a citizen-reported problem awaiting triage. Created by the intake
// front end; read-only to the pipeline.
type Issue struct {
	ID                 int64     `json:"issue_id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Category           string    `json:"category"`
	Severity           int       `json:"severity"` // 1-5
	PopulationAffected int       `json:"population_affected"`
	LegalMandate       bool      `json:"legal_mandate"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// ProjectCandidate is a structured capital-work proposal formed from an issue.
// Immutable after formation; at most one candidate exists per issue.
type ProjectCandidate struct {
	ProjectID          string    `json:"project_id"`
	IssueID            int64     `json:"issue_id"`
	Title              string    `json:"title"`
	Scope              string    `json:"scope"`
	Category           string    `json:"category"`
	EstimatedCost      float64   `json:"estimated_cost"`
	EstimatedWeeks     int       `json:"estimated_weeks"`
	RequiredCrewType   string    `json:"required_crew_type"`
	CrewSize           int       `json:"crew_size"`
	RiskScore          float64   `json:"risk_score"` // 0-8
	PopulationAffected int       `json:"population_affected"`
	LegalMandate       bool      `json:"legal_mandate"`
	CreatedAt          time.Time `json:"created_at"`
}

// Briefing is assistive context generated for the human reviewer of an
// escalated decision. It never feeds back into authorization logic.
type Briefing struct {
	EscalationReason     []string `json:"escalation_reason"`
	RelevantPolicies     []string `json:"relevant_policies"`
	HistoricalPrecedents []string `json:"historical_precedents"`
	KeyRisks             []string `json:"key_risks"`
}

// PolicyDecision records the governance verdict on a candidate. FinalDecision
// is nil exactly while the decision is unresolved: AUTO decisions resolve at
// creation, HUMAN_REQUIRED ones after gateway submission.
type PolicyDecision struct {
	ID            int64        `json:"decision_id"`
	ProjectID     string       `json:"project_id"`
	Decision      string       `json:"decision"`      // APPROVE | REJECT
	Authorization string       `json:"authorization"` // AUTO | HUMAN_REQUIRED
	Confidence    int          `json:"confidence"`    // 0-100
	ReasonCodes   []ReasonCode `json:"reason_codes"`
	Rationale     string       `json:"rationale"`
	HumanOverride bool         `json:"human_override"`
	HumanReason   string       `json:"human_reason,omitempty"`
	FinalDecision *string      `json:"final_decision"`
	Briefing      *Briefing    `json:"briefing,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Resolved reports whether the decision has reached a final verdict.
func (d *PolicyDecision) Resolved() bool {
	return d.FinalDecision != nil
}

// HasReason reports whether code is present in the decision's reason set.
func (d *PolicyDecision) HasReason(code ReasonCode) bool {
	for _, rc := range d.ReasonCodes {
		if rc == code {
			return true
		}
	}
	return false
}

// PendingDecision is a pending PolicyDecision annotated with the owning
// candidate's display fields for the approval queue.
type PendingDecision struct {
	PolicyDecision
	Title              string  `json:"title"`
	Category           string  `json:"category"`
	EstimatedCost      float64 `json:"estimated_cost"`
	RiskScore          float64 `json:"risk_score"`
	PopulationAffected int     `json:"population_affected"`
	LegalMandate       bool    `json:"legal_mandate"`
}

// HumanVerdict is one entry of a gateway submission batch.
type HumanVerdict struct {
	ProjectID string `json:"project_id"`
	Decision  string `json:"decision"` // APPROVE | REJECT
	Reason    string `json:"reason"`
}

// ScheduleTask is the placement of an approved project on the quarter
// timeline. BLOCKED tasks carry zero weeks and consume no capacity.
type ScheduleTask struct {
	ID        int64     `json:"task_id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title,omitempty"`
	StartWeek int       `json:"start_week"`
	EndWeek   int       `json:"end_week"`
	CrewType  string    `json:"crew_type"`
	CrewSize  int       `json:"crew_size"`
	Status    string    `json:"status"` // SCHEDULED | BLOCKED
	CreatedAt time.Time `json:"created_at"`
}

// BudgetStatus is the advisory budget position, recomputed on demand from
// APPROVE-final decisions. A negative Remaining is reported, not enforced.
type BudgetStatus struct {
	Total     float64 `json:"total"`
	Allocated float64 `json:"allocated"`
	Remaining float64 `json:"remaining"`
}

// ApprovedProject joins a candidate with its final APPROVE decision for the
// scheduling stage.
type ApprovedProject struct {
	ProjectCandidate
	Rationale string `json:"rationale"`
}

// AuditEvent is one append-only audit log entry.
type AuditEvent struct {
	ID        int64     `json:"log_id"`
	EventType string    `json:"event_type"`
	Actor     string    `json:"actor"`
	Payload   string    `json:"payload"` // JSON
	CreatedAt time.Time `json:"created_at"`
}

// Audit event types written by the pipeline.
const (
	EventProjectFormed      = "PROJECT_FORMED"
	EventPolicyDecision     = "POLICY_DECISION"
	EventHumanDecision      = "HUMAN_DECISION"
	EventDecisionsFinalized = "DECISIONS_FINALIZED"
	EventProjectScheduled   = "PROJECT_SCHEDULED"
	EventProjectBlocked     = "PROJECT_BLOCKED"
	EventPipelineReset      = "PIPELINE_RESET"
	EventValidationIssue    = "VALIDATION_EVENT"
)
