package repository

import (
	"database/sql"
	"fmt"

	"github.com/civicworks/capital-triage/pkg/database"
)

// ClearPipelineOutputs deletes every stage output atomically: schedule tasks,
// policy decisions and project candidates, in foreign-key order. Issues and
// crew capacity are untouched.
func ClearPipelineOutputs(db *database.DB) error {
	return db.WithTransaction(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM schedule_tasks",
			"DELETE FROM policy_decisions",
			"DELETE FROM project_candidates",
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to clear pipeline outputs: %w", err)
			}
		}
		return nil
	})
}
