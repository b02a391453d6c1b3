package models

// ReasonCode is a canonical machine-readable tag explaining why a policy
// decision was escalated or allowed to stand.
type ReasonCode string

const (
	// Authority escalation (hard rules)
	ReasonHighCost        ReasonCode = "HIGH_COST" // estimated cost over $10M
	ReasonLegalMandate    ReasonCode = "LEGAL_MANDATE"
	ReasonBudgetShortfall ReasonCode = "BUDGET_SHORTFALL"

	// Epistemic escalation (uncertainty)
	ReasonLowConfidence         ReasonCode = "LOW_CONFIDENCE"
	ReasonConflictingPriorities ReasonCode = "CONFLICTING_PRIORITIES"

	// Risk escalation
	ReasonHighRisk             ReasonCode = "HIGH_RISK"
	ReasonSafetyCritical       ReasonCode = "SAFETY_CRITICAL"
	ReasonHighPopulationImpact ReasonCode = "HIGH_POPULATION_IMPACT"

	// Standard decisions
	ReasonWithinPolicy    ReasonCode = "WITHIN_POLICY"
	ReasonLowPriority     ReasonCode = "LOW_PRIORITY"
	ReasonBudgetOptimized ReasonCode = "BUDGET_OPTIMIZED"
)

var validReasonCodes = map[ReasonCode]bool{
	ReasonHighCost:              true,
	ReasonLegalMandate:          true,
	ReasonBudgetShortfall:       true,
	ReasonLowConfidence:         true,
	ReasonConflictingPriorities: true,
	ReasonHighRisk:              true,
	ReasonSafetyCritical:        true,
	ReasonHighPopulationImpact:  true,
	ReasonWithinPolicy:          true,
	ReasonLowPriority:           true,
	ReasonBudgetOptimized:       true,
}

// IsValid reports whether the code belongs to the closed enumeration.
func (rc ReasonCode) IsValid() bool {
	return validReasonCodes[rc]
}

// ParseReasonCodes splits raw codes into the recognized set and the rejected
// remainder. Input order is preserved; duplicates are collapsed.
func ParseReasonCodes(raw []string) (valid []ReasonCode, dropped []string) {
	seen := make(map[ReasonCode]bool, len(raw))
	for _, s := range raw {
		code := ReasonCode(s)
		if !code.IsValid() {
			dropped = append(dropped, s)
			continue
		}
		if !seen[code] {
			seen[code] = true
			valid = append(valid, code)
		}
	}
	return valid, dropped
}
