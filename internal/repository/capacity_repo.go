package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// CapacityRepository handles crew capacity database operations. Capacity is
// static per run: seeded at initialization, read by the scheduler.
type CapacityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCapacityRepository creates a new capacity repository
func NewCapacityRepository(db *sql.DB, logger *zap.Logger) *CapacityRepository {
	return &CapacityRepository{db: db, logger: logger}
}

// Set upserts the capacity for a crew type.
func (r *CapacityRepository) Set(crewType string, totalCapacity int) error {
	query := `
		INSERT INTO crew_capacity (crew_type, total_capacity) VALUES (?, ?)
		ON CONFLICT(crew_type) DO UPDATE SET total_capacity = excluded.total_capacity
	`
	if _, err := r.db.Exec(query, crewType, totalCapacity); err != nil {
		r.logger.Error("Failed to set crew capacity",
			zap.String("crew_type", crewType), zap.Error(err))
		return fmt.Errorf("failed to set crew capacity: %w", err)
	}
	return nil
}

// GetAll returns the crew_type to total_capacity mapping.
func (r *CapacityRepository) GetAll() (map[string]int, error) {
	rows, err := r.db.Query("SELECT crew_type, total_capacity FROM crew_capacity")
	if err != nil {
		r.logger.Error("Failed to list crew capacity", zap.Error(err))
		return nil, fmt.Errorf("failed to list crew capacity: %w", err)
	}
	defer rows.Close()

	capacity := make(map[string]int)
	for rows.Next() {
		var crewType string
		var total int
		if err := rows.Scan(&crewType, &total); err != nil {
			return nil, fmt.Errorf("failed to scan crew capacity: %w", err)
		}
		capacity[crewType] = total
	}
	return capacity, rows.Err()
}
