package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/civicworks/capital-triage/internal/models"
	"go.uber.org/zap"
)

// DecisionRepository handles policy decision database operations.
type DecisionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *sql.DB, logger *zap.Logger) *DecisionRepository {
	return &DecisionRepository{db: db, logger: logger}
}

// Create inserts a policy decision, serializing reason codes and briefing to
// JSON columns.
func (r *DecisionRepository) Create(decision *models.PolicyDecision) error {
	codesJSON, err := json.Marshal(decision.ReasonCodes)
	if err != nil {
		return fmt.Errorf("failed to marshal reason codes: %w", err)
	}

	var briefingJSON sql.NullString
	if decision.Briefing != nil {
		b, err := json.Marshal(decision.Briefing)
		if err != nil {
			return fmt.Errorf("failed to marshal briefing: %w", err)
		}
		briefingJSON = sql.NullString{String: string(b), Valid: true}
	}

	var finalDecision sql.NullString
	if decision.FinalDecision != nil {
		finalDecision = sql.NullString{String: *decision.FinalDecision, Valid: true}
	}

	query := `
		INSERT INTO policy_decisions (
			project_id, decision, authorization, confidence, reason_codes,
			rationale, human_override, human_reason, final_decision, briefing
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		decision.ProjectID,
		decision.Decision,
		decision.Authorization,
		decision.Confidence,
		string(codesJSON),
		decision.Rationale,
		boolToInt(decision.HumanOverride),
		decision.HumanReason,
		finalDecision,
		briefingJSON,
	)
	if err != nil {
		r.logger.Error("Failed to create decision",
			zap.String("project_id", decision.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to create decision: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	decision.ID = id
	return nil
}

const decisionColumns = `
	decision_id, project_id, decision, authorization, confidence,
	reason_codes, rationale, human_override, human_reason, final_decision,
	briefing, created_at
`

// GetByProjectID returns the decision for a project, or nil if none exists.
func (r *DecisionRepository) GetByProjectID(projectID string) (*models.PolicyDecision, error) {
	query := `SELECT ` + decisionColumns + ` FROM policy_decisions WHERE project_id = ?`

	d, err := scanDecision(r.db.QueryRow(query, projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get decision", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return d, nil
}

// GetAll returns every policy decision.
func (r *DecisionRepository) GetAll() ([]*models.PolicyDecision, error) {
	query := `SELECT ` + decisionColumns + ` FROM policy_decisions ORDER BY decision_id ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list decisions", zap.Error(err))
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.PolicyDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// GetPending returns unresolved HUMAN_REQUIRED decisions annotated with the
// owning candidate's display fields, ordered by risk score.
func (r *DecisionRepository) GetPending() ([]*models.PendingDecision, error) {
	query := `
		SELECT pd.decision_id, pd.project_id, pd.decision, pd.authorization,
			pd.confidence, pd.reason_codes, pd.rationale, pd.human_override,
			pd.human_reason, pd.final_decision, pd.briefing, pd.created_at,
			pc.title, pc.category, pc.estimated_cost, pc.risk_score,
			pc.population_affected, pc.legal_mandate
		FROM policy_decisions pd
		JOIN project_candidates pc ON pd.project_id = pc.project_id
		WHERE pd.authorization = ? AND pd.final_decision IS NULL
		ORDER BY pc.risk_score DESC, pd.decision_id ASC
	`
	rows, err := r.db.Query(query, models.AuthorizationHumanRequired)
	if err != nil {
		r.logger.Error("Failed to list pending decisions", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending decisions: %w", err)
	}
	defer rows.Close()

	var pending []*models.PendingDecision
	for rows.Next() {
		var p models.PendingDecision
		var codesJSON string
		var humanOverride, mandate int
		var humanReason, finalDecision, briefingJSON sql.NullString

		err := rows.Scan(
			&p.ID, &p.ProjectID, &p.Decision, &p.Authorization,
			&p.Confidence, &codesJSON, &p.Rationale, &humanOverride,
			&humanReason, &finalDecision, &briefingJSON, &p.CreatedAt,
			&p.Title, &p.Category, &p.EstimatedCost, &p.RiskScore,
			&p.PopulationAffected, &mandate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending decision: %w", err)
		}

		hydrateDecision(&p.PolicyDecision, codesJSON, humanOverride, humanReason, finalDecision, briefingJSON)
		p.LegalMandate = mandate != 0
		pending = append(pending, &p)
	}
	return pending, rows.Err()
}

// CountPending returns the number of unresolved HUMAN_REQUIRED decisions.
func (r *DecisionRepository) CountPending() (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(1) FROM policy_decisions WHERE authorization = ? AND final_decision IS NULL",
		models.AuthorizationHumanRequired,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending decisions: %w", err)
	}
	return count, nil
}

// ApplyHumanVerdict records a human verdict on a decision.
func (r *DecisionRepository) ApplyHumanVerdict(projectID, decision, reason string) error {
	query := `
		UPDATE policy_decisions
		SET human_override = 1, human_reason = ?, final_decision = ?
		WHERE project_id = ?
	`
	result, err := r.db.Exec(query, reason, decision, projectID)
	if err != nil {
		r.logger.Error("Failed to apply human verdict",
			zap.String("project_id", projectID), zap.Error(err))
		return fmt.Errorf("failed to apply human verdict: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no decision found for project %s", projectID)
	}
	return nil
}

// FinalizeAuto sets final_decision=decision on every unresolved AUTO decision
// and returns the number finalized.
func (r *DecisionRepository) FinalizeAuto() (int64, error) {
	result, err := r.db.Exec(`
		UPDATE policy_decisions
		SET final_decision = decision
		WHERE authorization = ? AND final_decision IS NULL
	`, models.AuthorizationAuto)
	if err != nil {
		r.logger.Error("Failed to finalize auto decisions", zap.Error(err))
		return 0, fmt.Errorf("failed to finalize auto decisions: %w", err)
	}
	return result.RowsAffected()
}

// GetApprovedProjects returns candidates whose decision is APPROVE-final,
// ordered by risk score descending with creation order breaking ties.
func (r *DecisionRepository) GetApprovedProjects() ([]*models.ApprovedProject, error) {
	query := `
		SELECT pc.project_id, pc.issue_id, pc.title, pc.scope, pc.category,
			pc.estimated_cost, pc.estimated_weeks, pc.required_crew_type,
			pc.crew_size, pc.risk_score, pc.population_affected,
			pc.legal_mandate, pc.created_at, pd.rationale
		FROM project_candidates pc
		JOIN policy_decisions pd ON pc.project_id = pd.project_id
		WHERE pd.final_decision = ?
		ORDER BY pc.risk_score DESC, pc.rowid ASC
	`
	rows, err := r.db.Query(query, models.DecisionApprove)
	if err != nil {
		r.logger.Error("Failed to list approved projects", zap.Error(err))
		return nil, fmt.Errorf("failed to list approved projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.ApprovedProject
	for rows.Next() {
		var p models.ApprovedProject
		var mandate int
		err := rows.Scan(
			&p.ProjectID, &p.IssueID, &p.Title, &p.Scope, &p.Category,
			&p.EstimatedCost, &p.EstimatedWeeks, &p.RequiredCrewType,
			&p.CrewSize, &p.RiskScore, &p.PopulationAffected,
			&mandate, &p.CreatedAt, &p.Rationale,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approved project: %w", err)
		}
		p.LegalMandate = mandate != 0
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// AllocatedBudget sums estimated cost over APPROVE-final projects.
func (r *DecisionRepository) AllocatedBudget() (float64, error) {
	var allocated float64
	err := r.db.QueryRow(`
		SELECT COALESCE(SUM(pc.estimated_cost), 0)
		FROM project_candidates pc
		JOIN policy_decisions pd ON pc.project_id = pd.project_id
		WHERE pd.final_decision = ?
	`, models.DecisionApprove).Scan(&allocated)
	if err != nil {
		return 0, fmt.Errorf("failed to compute allocated budget: %w", err)
	}
	return allocated, nil
}

func scanDecision(row rowScanner) (*models.PolicyDecision, error) {
	var d models.PolicyDecision
	var codesJSON string
	var humanOverride int
	var humanReason, finalDecision, briefingJSON sql.NullString

	err := row.Scan(
		&d.ID, &d.ProjectID, &d.Decision, &d.Authorization, &d.Confidence,
		&codesJSON, &d.Rationale, &humanOverride, &humanReason,
		&finalDecision, &briefingJSON, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	hydrateDecision(&d, codesJSON, humanOverride, humanReason, finalDecision, briefingJSON)
	return &d, nil
}

func hydrateDecision(d *models.PolicyDecision, codesJSON string, humanOverride int, humanReason, finalDecision, briefingJSON sql.NullString) {
	d.HumanOverride = humanOverride != 0
	if humanReason.Valid {
		d.HumanReason = humanReason.String
	}
	if finalDecision.Valid {
		fd := finalDecision.String
		d.FinalDecision = &fd
	}
	if codesJSON != "" {
		// Tolerate a malformed column; an empty set is safer than a failed read.
		_ = json.Unmarshal([]byte(codesJSON), &d.ReasonCodes)
	}
	if briefingJSON.Valid && briefingJSON.String != "" {
		var b models.Briefing
		if err := json.Unmarshal([]byte(briefingJSON.String), &b); err == nil {
			d.Briefing = &b
		}
	}
}
