package repository

import (
	"database/sql"
	"fmt"

	"github.com/civicworks/capital-triage/internal/models"
	"go.uber.org/zap"
)

// CandidateRepository handles project candidate database operations.
type CandidateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCandidateRepository creates a new candidate repository
func NewCandidateRepository(db *sql.DB, logger *zap.Logger) *CandidateRepository {
	return &CandidateRepository{db: db, logger: logger}
}

const candidateColumns = `
	project_id, issue_id, title, scope, category, estimated_cost,
	estimated_weeks, required_crew_type, crew_size, risk_score,
	population_affected, legal_mandate, created_at
`

// Create inserts a new project candidate. The issue_id UNIQUE constraint
// enforces at most one candidate per issue.
func (r *CandidateRepository) Create(candidate *models.ProjectCandidate) error {
	query := `
		INSERT INTO project_candidates (
			project_id, issue_id, title, scope, category, estimated_cost,
			estimated_weeks, required_crew_type, crew_size, risk_score,
			population_affected, legal_mandate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		candidate.ProjectID,
		candidate.IssueID,
		candidate.Title,
		candidate.Scope,
		candidate.Category,
		candidate.EstimatedCost,
		candidate.EstimatedWeeks,
		candidate.RequiredCrewType,
		candidate.CrewSize,
		candidate.RiskScore,
		candidate.PopulationAffected,
		boolToInt(candidate.LegalMandate),
	)
	if err != nil {
		r.logger.Error("Failed to create candidate",
			zap.String("project_id", candidate.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to create candidate: %w", err)
	}
	return nil
}

// GetAll returns all candidates ordered by risk score, highest first, with
// creation order breaking ties. created_at has second granularity, so rowid
// carries the exact insertion order.
func (r *CandidateRepository) GetAll() ([]*models.ProjectCandidate, error) {
	query := `SELECT ` + candidateColumns + `
		FROM project_candidates
		ORDER BY risk_score DESC, rowid ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list candidates", zap.Error(err))
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*models.ProjectCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ExistsForIssue reports whether a candidate was already formed for the issue.
func (r *CandidateRepository) ExistsForIssue(issueID int64) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(1) FROM project_candidates WHERE issue_id = ?", issueID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check candidate existence: %w", err)
	}
	return count > 0, nil
}

func scanCandidate(row rowScanner) (*models.ProjectCandidate, error) {
	var c models.ProjectCandidate
	var mandate int
	err := row.Scan(
		&c.ProjectID,
		&c.IssueID,
		&c.Title,
		&c.Scope,
		&c.Category,
		&c.EstimatedCost,
		&c.EstimatedWeeks,
		&c.RequiredCrewType,
		&c.CrewSize,
		&c.RiskScore,
		&c.PopulationAffected,
		&mandate,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LegalMandate = mandate != 0
	return &c, nil
}
