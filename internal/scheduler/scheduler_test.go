package scheduler

import (
	"testing"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func project(id, crewType string, crewSize, weeks int, risk float64) *models.ApprovedProject {
	return &models.ApprovedProject{
		ProjectCandidate: models.ProjectCandidate{
			ProjectID:        id,
			Title:            id,
			RequiredCrewType: crewType,
			CrewSize:         crewSize,
			EstimatedWeeks:   weeks,
			RiskScore:        risk,
		},
	}
}

func TestExactCapacityPacking(t *testing.T) {
	s := New(13, zap.NewNop())
	capacity := map[string]int{"road_crew": 20}

	// Two 10-worker projects fill capacity exactly; the third shifts out.
	tasks := s.Plan([]*models.ApprovedProject{
		project("PRJ-A", "road_crew", 10, 4, 7),
		project("PRJ-B", "road_crew", 10, 4, 6),
		project("PRJ-C", "road_crew", 10, 4, 5),
	}, capacity)

	require.Len(t, tasks, 3)
	assert.Equal(t, 1, tasks[0].StartWeek)
	assert.Equal(t, 4, tasks[0].EndWeek)
	assert.Equal(t, 1, tasks[1].StartWeek)
	assert.Equal(t, 4, tasks[1].EndWeek)
	assert.Equal(t, 5, tasks[2].StartWeek)
	assert.Equal(t, 8, tasks[2].EndWeek)
	for _, task := range tasks {
		assert.Equal(t, models.TaskScheduled, task.Status)
	}
}

func TestBlockedWhenNoWindow(t *testing.T) {
	s := New(13, zap.NewNop())
	capacity := map[string]int{"water_crew": 8}

	tasks := s.Plan([]*models.ApprovedProject{
		project("PRJ-A", "water_crew", 8, 13, 7), // occupies the full horizon
		project("PRJ-B", "water_crew", 8, 4, 6),
	}, capacity)

	require.Len(t, tasks, 2)
	assert.Equal(t, models.TaskScheduled, tasks[0].Status)

	blocked := tasks[1]
	assert.Equal(t, models.TaskBlocked, blocked.Status)
	assert.Zero(t, blocked.StartWeek)
	assert.Zero(t, blocked.EndWeek)
}

func TestBlockedTasksConsumeNoCapacity(t *testing.T) {
	s := New(13, zap.NewNop())

	tasks := s.Plan([]*models.ApprovedProject{
		project("PRJ-A", "road_crew", 10, 13, 8),
		project("PRJ-B", "road_crew", 10, 6, 7), // blocked
		project("PRJ-C", "electrical_crew", 5, 4, 6),
	}, map[string]int{"road_crew": 10, "electrical_crew": 5})

	require.Len(t, tasks, 3)
	assert.Equal(t, models.TaskBlocked, tasks[1].Status)
	// The electrical project is unaffected by the blocked road project.
	assert.Equal(t, models.TaskScheduled, tasks[2].Status)
	assert.Equal(t, 1, tasks[2].StartWeek)
}

func TestDurationExceedingHorizonIsBlocked(t *testing.T) {
	s := New(13, zap.NewNop())

	tasks := s.Plan([]*models.ApprovedProject{
		project("PRJ-A", "road_crew", 5, 14, 7),
	}, map[string]int{"road_crew": 20})

	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskBlocked, tasks[0].Status)
}

func TestUnknownCrewTypeIsBlocked(t *testing.T) {
	s := New(13, zap.NewNop())

	tasks := s.Plan([]*models.ApprovedProject{
		project("PRJ-A", "dive_team", 4, 2, 5),
	}, map[string]int{"road_crew": 20})

	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskBlocked, tasks[0].Status)
}

func TestCapacityInvariantHolds(t *testing.T) {
	s := New(13, zap.NewNop())
	capacity := map[string]int{"road_crew": 20, "water_crew": 15, "general_construction": 25}

	projects := []*models.ApprovedProject{
		project("PRJ-A", "road_crew", 12, 6, 8),
		project("PRJ-B", "water_crew", 8, 12, 7.5),
		project("PRJ-C", "road_crew", 10, 4, 7),
		project("PRJ-D", "general_construction", 12, 16, 6.5),
		project("PRJ-E", "road_crew", 8, 4, 6),
		project("PRJ-F", "water_crew", 8, 3, 5.5),
		project("PRJ-G", "general_construction", 20, 5, 5),
	}

	tasks := s.Plan(projects, capacity)

	for crewType, total := range capacity {
		for week := 1; week <= 13; week++ {
			used := 0
			for _, task := range tasks {
				if task.Status == models.TaskScheduled && task.CrewType == crewType &&
					task.StartWeek <= week && week <= task.EndWeek {
					used += task.CrewSize
				}
			}
			assert.LessOrEqual(t, used, total,
				"crew %s over capacity in week %d", crewType, week)
		}
	}
}

func TestEarliestFitPicksFirstFeasibleWeek(t *testing.T) {
	s := New(13, zap.NewNop())
	capacity := map[string]int{"road_crew": 10}

	placed := []*models.ScheduleTask{
		{ProjectID: "PRJ-X", CrewType: "road_crew", CrewSize: 10, StartWeek: 1, EndWeek: 3, Status: models.TaskScheduled},
		{ProjectID: "PRJ-Y", CrewType: "road_crew", CrewSize: 10, StartWeek: 6, EndWeek: 8, Status: models.TaskScheduled},
	}

	// A 2-week job fits in the gap at weeks 4-5.
	task := s.Place(project("PRJ-Z", "road_crew", 10, 2, 5), placed, capacity)
	assert.Equal(t, models.TaskScheduled, task.Status)
	assert.Equal(t, 4, task.StartWeek)
	assert.Equal(t, 5, task.EndWeek)

	// A 3-week job cannot use the gap and lands after the second task.
	task = s.Place(project("PRJ-W", "road_crew", 10, 3, 5), placed, capacity)
	assert.Equal(t, 9, task.StartWeek)
	assert.Equal(t, 11, task.EndWeek)
}

func TestPeakUsage(t *testing.T) {
	s := New(13, zap.NewNop())

	tasks := []*models.ScheduleTask{
		{CrewType: "road_crew", CrewSize: 10, StartWeek: 1, EndWeek: 4, Status: models.TaskScheduled},
		{CrewType: "road_crew", CrewSize: 5, StartWeek: 3, EndWeek: 6, Status: models.TaskScheduled},
		{CrewType: "road_crew", CrewSize: 99, Status: models.TaskBlocked},
	}

	peak := s.PeakUsage(tasks)
	assert.Equal(t, 15, peak["road_crew"], "weeks 3-4 overlap")
}
