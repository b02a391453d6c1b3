package policy

import (
	"testing"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(cost float64, risk float64, population int, mandate bool) *models.ProjectCandidate {
	return &models.ProjectCandidate{
		ProjectID:          "PRJ-001-ABCDEF",
		EstimatedCost:      cost,
		RiskScore:          risk,
		PopulationAffected: population,
		LegalMandate:       mandate,
	}
}

func TestAutoApprovalWithinPolicy(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Evaluate(candidate(2_000_000, 3.5, 50_000, false), Proposal{
		Decision:    models.DecisionApprove,
		Confidence:  90,
		ReasonCodes: []string{"WITHIN_POLICY"},
		Rationale:   "Routine maintenance within budget.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.AuthorizationAuto, result.Decision.Authorization)
	require.NotNil(t, result.Decision.FinalDecision)
	assert.Equal(t, models.DecisionApprove, *result.Decision.FinalDecision)
	assert.Empty(t, result.EscalationReasons)
}

func TestCostRuleDominance(t *testing.T) {
	engine := NewEngine()

	// High confidence and moderate risk must not bypass the cost rule.
	result, err := engine.Evaluate(candidate(12_000_000, 5, 100_000, false), Proposal{
		Decision:   models.DecisionApprove,
		Confidence: 80,
	})
	require.NoError(t, err)

	assert.Equal(t, models.AuthorizationHumanRequired, result.Decision.Authorization)
	assert.True(t, result.Decision.HasReason(models.ReasonHighCost))
	assert.Nil(t, result.Decision.FinalDecision)
}

func TestLegalMandateRejectionEscalates(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Evaluate(candidate(3_000_000, 4, 200_000, true), Proposal{
		Decision:   models.DecisionReject,
		Confidence: 85,
	})
	require.NoError(t, err)

	assert.Equal(t, models.AuthorizationHumanRequired, result.Decision.Authorization)
	assert.True(t, result.Decision.HasReason(models.ReasonLegalMandate))

	// Approving the same mandated project is AUTO.
	result, err = engine.Evaluate(candidate(3_000_000, 4, 100_000, true), Proposal{
		Decision:   models.DecisionApprove,
		Confidence: 85,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AuthorizationAuto, result.Decision.Authorization)
}

func TestLowConfidenceEscalates(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Evaluate(candidate(1_000_000, 3, 10_000, false), Proposal{
		Decision:   models.DecisionApprove,
		Confidence: 64,
	})
	require.NoError(t, err)

	assert.Equal(t, models.AuthorizationHumanRequired, result.Decision.Authorization)
	assert.True(t, result.Decision.HasReason(models.ReasonLowConfidence))
}

func TestHighRiskRequiresBothConditions(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name       string
		risk       float64
		population int
		escalated  bool
	}{
		{"high risk low population", 7, 50_000, false},
		{"low risk high population", 4, 500_000, false},
		{"both above threshold", 6, 200_000, true},
		{"both below threshold", 5.9, 199_999, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Evaluate(candidate(1_000_000, tt.risk, tt.population, false), Proposal{
				Decision:   models.DecisionApprove,
				Confidence: 90,
			})
			require.NoError(t, err)

			if tt.escalated {
				assert.Equal(t, models.AuthorizationHumanRequired, result.Decision.Authorization)
				assert.True(t, result.Decision.HasReason(models.ReasonHighRisk))
			} else {
				assert.Equal(t, models.AuthorizationAuto, result.Decision.Authorization)
			}
		})
	}
}

func TestConfidenceClamped(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Evaluate(candidate(1_000_000, 3, 0, false), Proposal{
		Decision:   models.DecisionApprove,
		Confidence: 140,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, result.Decision.Confidence)

	result, err = engine.Evaluate(candidate(1_000_000, 3, 0, false), Proposal{
		Decision:   models.DecisionApprove,
		Confidence: -5,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Decision.Confidence)
	// Clamping to 0 still trips the low-confidence rule.
	assert.True(t, result.Decision.HasReason(models.ReasonLowConfidence))
}

func TestUnknownReasonCodesDropped(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Evaluate(candidate(1_000_000, 3, 0, false), Proposal{
		Decision:    models.DecisionApprove,
		Confidence:  90,
		ReasonCodes: []string{"WITHIN_POLICY", "VIBES", "HIGH_RISK"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"VIBES"}, result.DroppedCodes)
	assert.True(t, result.Decision.HasReason(models.ReasonWithinPolicy))
	assert.True(t, result.Decision.HasReason(models.ReasonHighRisk))
}

func TestReasonCodesNotDuplicated(t *testing.T) {
	engine := NewEngine()

	// Proposal already names HIGH_COST; the cost rule must not add it twice.
	result, err := engine.Evaluate(candidate(15_000_000, 3, 0, false), Proposal{
		Decision:    models.DecisionApprove,
		Confidence:  90,
		ReasonCodes: []string{"HIGH_COST"},
	})
	require.NoError(t, err)

	count := 0
	for _, code := range result.Decision.ReasonCodes {
		if code == models.ReasonHighCost {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEvaluateDeterministic(t *testing.T) {
	engine := NewEngine()

	c := candidate(12_000_000, 6.5, 450_000, true)
	p := Proposal{
		Decision:    models.DecisionReject,
		Confidence:  50,
		ReasonCodes: []string{"BUDGET_SHORTFALL"},
	}

	first, err := engine.Evaluate(c, p)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := engine.Evaluate(c, p)
		require.NoError(t, err)
		assert.Equal(t, first.Decision.Authorization, again.Decision.Authorization)
		assert.Equal(t, first.Decision.ReasonCodes, again.Decision.ReasonCodes)
	}

	// All four rules fire at once.
	assert.True(t, first.Decision.HasReason(models.ReasonHighCost))
	assert.True(t, first.Decision.HasReason(models.ReasonLegalMandate))
	assert.True(t, first.Decision.HasReason(models.ReasonLowConfidence))
	assert.True(t, first.Decision.HasReason(models.ReasonHighRisk))
	assert.Len(t, first.EscalationReasons, 4)
}

func TestInvalidDecisionRejected(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Evaluate(candidate(1_000_000, 3, 0, false), Proposal{
		Decision:   "MAYBE",
		Confidence: 90,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APPROVE or REJECT")
}
