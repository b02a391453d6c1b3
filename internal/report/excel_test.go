package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/pipeline"
)

func sampleResults() *pipeline.Results {
	final := models.DecisionApprove
	return &pipeline.Results{
		Decisions: []*models.PolicyDecision{
			{
				ProjectID:     "PRJ-001-AAAAAA",
				Decision:      models.DecisionApprove,
				Authorization: models.AuthorizationHumanRequired,
				Confidence:    72,
				ReasonCodes:   []models.ReasonCode{models.ReasonHighCost, models.ReasonHighRisk},
				FinalDecision: &final,
				HumanOverride: true,
			},
		},
		Tasks: []*models.ScheduleTask{
			{ProjectID: "PRJ-001-AAAAAA", Title: "Water main", StartWeek: 1, EndWeek: 4,
				CrewType: "water_crew", CrewSize: 8, Status: models.TaskScheduled},
			{ProjectID: "PRJ-002-BBBBBB", Title: "Flood control", CrewType: "general_construction",
				CrewSize: 12, Status: models.TaskBlocked},
		},
		Budget:    models.BudgetStatus{Total: 75_000_000, Allocated: 18_560_000, Remaining: 56_440_000},
		PeakUsage: map[string]int{"water_crew": 8},
	}
}

func TestWriteProducesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage-report.xlsx")
	w := NewExcelWriter(zap.NewNop())

	require.NoError(t, w.Write(sampleResults(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Schedule", "Decisions", "Budget"}, f.GetSheetList())

	got, err := f.GetCellValue("Schedule", "A2")
	require.NoError(t, err)
	assert.Equal(t, "PRJ-001-AAAAAA", got)

	status, err := f.GetCellValue("Schedule", "C3")
	require.NoError(t, err)
	assert.Equal(t, models.TaskBlocked, status)

	// Blocked rows leave the week columns empty.
	start, err := f.GetCellValue("Schedule", "D3")
	require.NoError(t, err)
	assert.Empty(t, start)

	codes, err := f.GetCellValue("Decisions", "G2")
	require.NoError(t, err)
	assert.Equal(t, "HIGH_COST, HIGH_RISK", codes)

	allocated, err := f.GetCellValue("Budget", "B2")
	require.NoError(t, err)
	assert.Equal(t, "18560000", allocated)
}
