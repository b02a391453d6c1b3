// Package risk computes deterministic risk scores and project parameter
// estimates for citizen issues. Scoring is a pure function of the issue; no
// state is consulted.
package risk

import (
	"math"

	"github.com/civicworks/capital-triage/internal/models"
)

// FormationThreshold is the minimum risk score at which an issue is converted
// into a project candidate.
const FormationThreshold = 3.0

// Score weights: severity 40%, population impact 30%, legal mandate 30%,
// scaled so the maximum reachable score is 8.
const (
	severityWeight   = 0.4
	populationWeight = 0.3
	mandateWeight    = 0.3
	scaleFactor      = 1.6
	mandatePoints    = 3.0
	maxScore         = 8.0
)

// Scorer computes risk scores and parameter estimates.
type Scorer struct{}

// NewScorer creates a new risk scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the issue's risk score in [0, 8], rounded to one decimal.
// Population contributes on a log10 scale capped at 5 points around 1M
// residents.
func (s *Scorer) Score(issue *models.Issue) float64 {
	popScore := 0.0
	if issue.PopulationAffected > 0 {
		popScore = math.Min(5, math.Log10(float64(issue.PopulationAffected))/6*5)
	}

	mandate := 0.0
	if issue.LegalMandate {
		mandate = 1.0
	}

	score := float64(issue.Severity)*severityWeight*scaleFactor +
		popScore*populationWeight*scaleFactor +
		mandate*mandatePoints*mandateWeight*scaleFactor

	score = math.Max(0, math.Min(maxScore, score))
	return math.Round(score*10) / 10
}

// ShouldForm reports whether the issue clears the formation threshold.
func (s *Scorer) ShouldForm(issue *models.Issue) bool {
	return s.Score(issue) >= FormationThreshold
}
