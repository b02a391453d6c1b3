package repository

import (
	"database/sql"
	"fmt"

	"github.com/civicworks/capital-triage/internal/models"
	"go.uber.org/zap"
)

// ScheduleRepository handles schedule task database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *sql.DB, logger *zap.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

// Create inserts a schedule task and sets its ID.
func (r *ScheduleRepository) Create(task *models.ScheduleTask) error {
	query := `
		INSERT INTO schedule_tasks (project_id, start_week, end_week, crew_type, crew_size, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		task.ProjectID,
		task.StartWeek,
		task.EndWeek,
		task.CrewType,
		task.CrewSize,
		task.Status,
	)
	if err != nil {
		r.logger.Error("Failed to create schedule task",
			zap.String("project_id", task.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to create schedule task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	return nil
}

// GetAll returns all schedule tasks with candidate titles, ordered by start
// week.
func (r *ScheduleRepository) GetAll() ([]*models.ScheduleTask, error) {
	query := `
		SELECT st.task_id, st.project_id, pc.title, st.start_week, st.end_week,
			st.crew_type, st.crew_size, st.status, st.created_at
		FROM schedule_tasks st
		JOIN project_candidates pc ON st.project_id = pc.project_id
		ORDER BY st.start_week ASC, st.task_id ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list schedule tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to list schedule tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.ScheduleTask
	for rows.Next() {
		var t models.ScheduleTask
		err := rows.Scan(
			&t.ID, &t.ProjectID, &t.Title, &t.StartWeek, &t.EndWeek,
			&t.CrewType, &t.CrewSize, &t.Status, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// ExistsForProject reports whether the project already has a schedule task.
func (r *ScheduleRepository) ExistsForProject(projectID string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(1) FROM schedule_tasks WHERE project_id = ?", projectID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check schedule task existence: %w", err)
	}
	return count > 0, nil
}

// DeleteAll removes every schedule task; used by the pipeline reset.
func (r *ScheduleRepository) DeleteAll() error {
	if _, err := r.db.Exec("DELETE FROM schedule_tasks"); err != nil {
		return fmt.Errorf("failed to clear schedule tasks: %w", err)
	}
	return nil
}
