// Package seed loads the demonstration data set: a quarter's worth of citizen
// issues spanning every escalation path, plus the city's crew roster.
package seed

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/repository"
)

// CrewCapacities is the city crew roster used for demonstration runs.
func CrewCapacities() map[string]int {
	return map[string]int{
		"water_crew":           15,
		"electrical_crew":      12,
		"road_crew":            20,
		"general_construction": 25,
		"emergency_response":   10,
	}
}

// Issues returns the sample issue set. The mix deliberately covers high-cost,
// legally mandated, mid-range, and low-priority work so every decision path
// gets exercised.
func Issues() []*models.Issue {
	return []*models.Issue{
		{
			Title:              "Major Water Pipeline Rupture - Downtown District",
			Description:        "Critical infrastructure failure affecting water supply to 450,000 residents. Pipe is 60 years old and has multiple fracture points.",
			Category:           "water_infrastructure",
			Severity:           5,
			PopulationAffected: 450_000,
			LegalMandate:       true,
		},
		{
			Title:              "Hospital Emergency Power System Upgrade",
			Description:        "Central Hospital backup generators failing safety inspections. Legal requirement to maintain 72-hour backup power.",
			Category:           "healthcare_facility",
			Severity:           5,
			PopulationAffected: 280_000,
			LegalMandate:       true,
		},
		{
			Title:              "Urban Flood Management System",
			Description:        "Recurring flooding in Riverside district affecting 600,000 residents. Storm drains inadequate for climate change patterns.",
			Category:           "flood_control",
			Severity:           4,
			PopulationAffected: 600_000,
		},
		{
			Title:              "Bridge Structural Reinforcement - Highway 7",
			Description:        "Load-bearing capacity reduced to 80%. Heavy vehicles rerouted. Affects 50,000 daily commuters.",
			Category:           "transportation",
			Severity:           4,
			PopulationAffected: 50_000,
		},
		{
			Title:              "School Electrical System Modernization",
			Description:        "Aging electrical systems in 12 schools. Fire safety concern flagged by inspectors.",
			Category:           "public_buildings",
			Severity:           4,
			PopulationAffected: 15_000,
			LegalMandate:       true,
		},
		{
			Title:              "Pothole Repair Program - Zone A",
			Description:        "Accumulated road damage from winter. 847 reported potholes in residential areas.",
			Category:           "road_maintenance",
			Severity:           2,
			PopulationAffected: 80_000,
		},
		{
			Title:              "Park Playground Equipment Replacement",
			Description:        "Safety inspection failed for 8 playground structures. Temporary closures in effect.",
			Category:           "parks_recreation",
			Severity:           2,
			PopulationAffected: 25_000,
		},
		{
			Title:              "Street Lighting Upgrade - Industrial Zone",
			Description:        "LED conversion for 500 street lights. Energy savings and improved safety.",
			Category:           "electrical",
			Severity:           2,
			PopulationAffected: 120_000,
		},
		{
			Title:              "Community Center HVAC Replacement",
			Description:        "20-year-old system failing. Building uncomfortable for 5,000 monthly visitors.",
			Category:           "public_buildings",
			Severity:           2,
			PopulationAffected: 5_000,
		},
		{
			Title:              "Sidewalk Accessibility Improvements",
			Description:        "ADA compliance upgrades needed at 45 intersections. Legal mandate.",
			Category:           "accessibility",
			Severity:           3,
			PopulationAffected: 200_000,
			LegalMandate:       true,
		},
	}
}

// Loader writes the sample data set into the repositories.
type Loader struct {
	issues   *repository.IssueRepository
	capacity *repository.CapacityRepository
	logger   *zap.Logger
}

// NewLoader creates a seed loader.
func NewLoader(issues *repository.IssueRepository, capacity *repository.CapacityRepository, logger *zap.Logger) *Loader {
	return &Loader{issues: issues, capacity: capacity, logger: logger}
}

// Load inserts the sample issues and crew roster. Existing issues are left in
// place; callers wanting a clean slate reset the pipeline first.
func (l *Loader) Load() (int, error) {
	for crewType, total := range CrewCapacities() {
		if err := l.capacity.Set(crewType, total); err != nil {
			return 0, fmt.Errorf("failed to seed crew capacity: %w", err)
		}
	}

	issues := Issues()
	for _, issue := range issues {
		if err := l.issues.Create(issue); err != nil {
			return 0, fmt.Errorf("failed to seed issue %q: %w", issue.Title, err)
		}
	}

	l.logger.Info("Seeded sample data",
		zap.Int("issues", len(issues)),
		zap.Int("crews", len(CrewCapacities())))
	return len(issues), nil
}
