package repository

import (
	"database/sql"
	"fmt"

	"github.com/civicworks/capital-triage/internal/models"
	"go.uber.org/zap"
)

// IssueRepository handles citizen issue database operations.
type IssueRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(db *sql.DB, logger *zap.Logger) *IssueRepository {
	return &IssueRepository{db: db, logger: logger}
}

// Create inserts a new issue and sets its ID.
func (r *IssueRepository) Create(issue *models.Issue) error {
	query := `
		INSERT INTO issues (title, description, category, severity, population_affected, legal_mandate, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	status := issue.Status
	if status == "" {
		status = models.IssueOpen
	}

	result, err := r.db.Exec(query,
		issue.Title,
		issue.Description,
		issue.Category,
		issue.Severity,
		issue.PopulationAffected,
		boolToInt(issue.LegalMandate),
		status,
	)
	if err != nil {
		r.logger.Error("Failed to create issue", zap.Error(err))
		return fmt.Errorf("failed to create issue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	issue.ID = id
	issue.Status = status
	return nil
}

// GetOpen returns all open issues ordered by severity, highest first.
func (r *IssueRepository) GetOpen() ([]*models.Issue, error) {
	query := `
		SELECT issue_id, title, description, category, severity,
			population_affected, legal_mandate, status, created_at
		FROM issues
		WHERE status = ?
		ORDER BY severity DESC, issue_id ASC
	`
	rows, err := r.db.Query(query, models.IssueOpen)
	if err != nil {
		r.logger.Error("Failed to list open issues", zap.Error(err))
		return nil, fmt.Errorf("failed to list open issues: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// GetByID returns a single issue, or nil if not found.
func (r *IssueRepository) GetByID(id int64) (*models.Issue, error) {
	query := `
		SELECT issue_id, title, description, category, severity,
			population_affected, legal_mandate, status, created_at
		FROM issues
		WHERE issue_id = ?
	`
	row := r.db.QueryRow(query, id)

	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get issue", zap.Int64("issue_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// DeleteAll removes every issue; used when reseeding the demonstration data.
func (r *IssueRepository) DeleteAll() error {
	if _, err := r.db.Exec("DELETE FROM issues"); err != nil {
		return fmt.Errorf("failed to clear issues: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	var issue models.Issue
	var mandate int
	err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&issue.Severity,
		&issue.PopulationAffected,
		&mandate,
		&issue.Status,
		&issue.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	issue.LegalMandate = mandate != 0
	return &issue, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
