package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/repository"
	"github.com/civicworks/capital-triage/pkg/database"
)

type fixture struct {
	gateway   *Gateway
	decisions *repository.DecisionRepository
	audit     *repository.AuditRepository
	db        *database.DB
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Run())

	decisions := repository.NewDecisionRepository(db.DB, logger)
	audit := repository.NewAuditRepository(db.DB, logger)
	return &fixture{
		gateway:   New(decisions, audit, opts, logger),
		decisions: decisions,
		audit:     audit,
		db:        db,
	}
}

func (f *fixture) seedDecision(t *testing.T, projectID, authorization string, risk float64) {
	t.Helper()

	issues := repository.NewIssueRepository(f.db.DB, zap.NewNop())
	issue := &models.Issue{Title: "Issue for " + projectID, Category: "transportation", Severity: 4}
	require.NoError(t, issues.Create(issue))

	candidates := repository.NewCandidateRepository(f.db.DB, zap.NewNop())
	require.NoError(t, candidates.Create(&models.ProjectCandidate{
		ProjectID:        projectID,
		IssueID:          issue.ID,
		Title:            "Project " + projectID,
		Category:         "transportation",
		EstimatedCost:    5_000_000,
		EstimatedWeeks:   8,
		RequiredCrewType: "road_crew",
		CrewSize:         10,
		RiskScore:        risk,
	}))

	decision := &models.PolicyDecision{
		ProjectID:     projectID,
		Decision:      models.DecisionApprove,
		Authorization: authorization,
		Confidence:    70,
	}
	if authorization == models.AuthorizationAuto {
		final := decision.Decision
		decision.FinalDecision = &final
	}
	require.NoError(t, f.decisions.Create(decision))
}

func TestPendingOrderedByRisk(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedDecision(t, "PRJ-1-AAAAAA", models.AuthorizationHumanRequired, 5.0)
	f.seedDecision(t, "PRJ-2-BBBBBB", models.AuthorizationHumanRequired, 7.0)
	f.seedDecision(t, "PRJ-3-CCCCCC", models.AuthorizationAuto, 6.0)

	pending, err := f.gateway.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "PRJ-2-BBBBBB", pending[0].ProjectID)
	assert.Equal(t, "PRJ-1-AAAAAA", pending[1].ProjectID)
}

func TestSubmitAppliesValidVerdicts(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedDecision(t, "PRJ-1-AAAAAA", models.AuthorizationHumanRequired, 5.0)
	f.seedDecision(t, "PRJ-2-BBBBBB", models.AuthorizationHumanRequired, 6.0)

	result, err := f.gateway.Submit([]models.HumanVerdict{
		{ProjectID: "PRJ-1-AAAAAA", Decision: models.DecisionApprove, Reason: "Council session 14 minutes"},
		{ProjectID: "PRJ-2-BBBBBB", Decision: models.DecisionReject, Reason: "Deferred to next quarter"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"PRJ-1-AAAAAA", "PRJ-2-BBBBBB"}, result.Applied)
	assert.Empty(t, result.Errors)
	assert.Zero(t, result.Pending)

	got, err := f.decisions.GetByProjectID("PRJ-1-AAAAAA")
	require.NoError(t, err)
	require.NotNil(t, got.FinalDecision)
	assert.Equal(t, models.DecisionApprove, *got.FinalDecision)
	assert.True(t, got.HumanOverride)

	count, err := f.audit.CountByType(models.EventHumanDecision)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSubmitPartialBatch(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedDecision(t, "PRJ-1-AAAAAA", models.AuthorizationHumanRequired, 5.0)

	result, err := f.gateway.Submit([]models.HumanVerdict{
		{ProjectID: "PRJ-1-AAAAAA", Decision: models.DecisionApprove},
		{ProjectID: "PRJ-404-MISSING", Decision: models.DecisionApprove},
		{ProjectID: "PRJ-1-AAAAAA", Decision: "MAYBE"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"PRJ-1-AAAAAA"}, result.Applied)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0].Message, "no decision found")
	assert.Contains(t, result.Errors[1].Message, "must be APPROVE or REJECT")
}

func TestSubmitRejectsAutoDecision(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedDecision(t, "PRJ-1-AAAAAA", models.AuthorizationAuto, 4.0)

	result, err := f.gateway.Submit([]models.HumanVerdict{
		{ProjectID: "PRJ-1-AAAAAA", Decision: models.DecisionReject},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Applied)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "did not require human approval")
}

func TestSubmitRejectsResubmissionByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedDecision(t, "PRJ-1-AAAAAA", models.AuthorizationHumanRequired, 5.0)

	_, err := f.gateway.Submit([]models.HumanVerdict{
		{ProjectID: "PRJ-1-AAAAAA", Decision: models.DecisionApprove},
	})
	require.NoError(t, err)

	result, err := f.gateway.Submit([]models.HumanVerdict{
		{ProjectID: "PRJ-1-AAAAAA", Decision: models.DecisionReject},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Applied)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "already finalized")

	got, err := f.decisions.GetByProjectID("PRJ-1-AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionApprove, *got.FinalDecision)
}

func TestSubmitAllowsResubmissionWhenEnabled(t *testing.T) {
	f := newFixture(t, Options{ResubmitFinalized: true})
	f.seedDecision(t, "PRJ-1-AAAAAA", models.AuthorizationHumanRequired, 5.0)

	_, err := f.gateway.Submit([]models.HumanVerdict{
		{ProjectID: "PRJ-1-AAAAAA", Decision: models.DecisionApprove},
	})
	require.NoError(t, err)

	result, err := f.gateway.Submit([]models.HumanVerdict{
		{ProjectID: "PRJ-1-AAAAAA", Decision: models.DecisionReject, Reason: "Corrected after review"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"PRJ-1-AAAAAA"}, result.Applied)

	got, err := f.decisions.GetByProjectID("PRJ-1-AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReject, *got.FinalDecision)
}

func TestFinalizeRemaining(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedDecision(t, "PRJ-1-AAAAAA", models.AuthorizationHumanRequired, 5.0)

	issues := repository.NewIssueRepository(f.db.DB, zap.NewNop())
	issue := &models.Issue{Title: "Auto issue", Category: "parks", Severity: 2}
	require.NoError(t, issues.Create(issue))
	candidates := repository.NewCandidateRepository(f.db.DB, zap.NewNop())
	require.NoError(t, candidates.Create(&models.ProjectCandidate{
		ProjectID: "PRJ-2-BBBBBB", IssueID: issue.ID, Title: "Auto project",
	}))
	require.NoError(t, f.decisions.Create(&models.PolicyDecision{
		ProjectID:     "PRJ-2-BBBBBB",
		Decision:      models.DecisionReject,
		Authorization: models.AuthorizationAuto,
		Confidence:    85,
	}))

	n, err := f.gateway.FinalizeRemaining()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := f.decisions.GetByProjectID("PRJ-2-BBBBBB")
	require.NoError(t, err)
	require.NotNil(t, got.FinalDecision)
	assert.Equal(t, models.DecisionReject, *got.FinalDecision)

	pending, err := f.gateway.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1, "human-required decision untouched")
}
