package risk

import (
	"math"

	"github.com/civicworks/capital-triage/internal/models"
)

// Estimate holds the derived project parameters for a candidate.
type Estimate struct {
	EstimatedCost    float64
	EstimatedWeeks   int
	RequiredCrewType string
	CrewSize         int
}

type categoryParams struct {
	crewType  string
	baseCost  float64
	baseWeeks float64
	crewSize  int
}

// Per-category base parameters before severity/population scaling.
var categoryTable = map[string]categoryParams{
	"water_infrastructure": {"water_crew", 8_000_000, 12, 8},
	"healthcare_facility":  {"electrical_crew", 6_000_000, 10, 6},
	"flood_control":        {"general_construction", 10_000_000, 16, 12},
	"transportation":       {"road_crew", 5_000_000, 8, 10},
	"public_buildings":     {"electrical_crew", 4_000_000, 8, 5},
	"road_maintenance":     {"road_crew", 2_000_000, 4, 8},
	"parks_recreation":     {"general_construction", 1_500_000, 6, 4},
	"electrical":           {"electrical_crew", 2_500_000, 6, 5},
	"accessibility":        {"road_crew", 3_000_000, 8, 6},
}

var defaultParams = categoryParams{"general_construction", 3_000_000, 8, 6}

// Estimate derives cost, duration, crew type and crew size from the issue's
// category, scaled by severity (0.8x-1.6x) and population (1.0x-1.5x). Cost
// rounds to the nearest thousand; duration rounds to whole weeks, floor 2.
func (s *Scorer) Estimate(issue *models.Issue) Estimate {
	params, ok := categoryTable[issue.Category]
	if !ok {
		params = defaultParams
	}

	severityMult := 0.6 + float64(issue.Severity)*0.2
	popMult := 1.0 + math.Min(float64(issue.PopulationAffected), 500_000)/1_000_000

	cost := math.Round(params.baseCost*severityMult*popMult/1000) * 1000
	weeks := int(math.Round(params.baseWeeks * severityMult))
	if weeks < 2 {
		weeks = 2
	}

	return Estimate{
		EstimatedCost:    cost,
		EstimatedWeeks:   weeks,
		RequiredCrewType: params.crewType,
		CrewSize:         params.crewSize,
	}
}
