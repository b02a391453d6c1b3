package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civicworks/capital-triage/internal/models"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "truncated…", truncate("truncated beyond", 10))
	assert.Equal(t, "Überprüfu…", truncate("Überprüfung der Straßenbeleuchtung", 10))
}

func TestJoinCodes(t *testing.T) {
	assert.Equal(t, "", joinCodes(nil))
	assert.Equal(t, "HIGH_COST,HIGH_RISK",
		joinCodes([]models.ReasonCode{models.ReasonHighCost, models.ReasonHighRisk}))
}
