// Package scheduler places approved projects onto a fixed weekly horizon
// using earliest-fit greedy allocation under per-crew-type capacity limits.
package scheduler

import (
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
)

// DefaultHorizonWeeks is one planning quarter.
const DefaultHorizonWeeks = 13

// Scheduler allocates crew capacity over the horizon. It holds no mutable
// state between Plan calls.
type Scheduler struct {
	horizonWeeks int
	logger       *zap.Logger
}

// New creates a scheduler for the given horizon.
func New(horizonWeeks int, logger *zap.Logger) *Scheduler {
	if horizonWeeks < 1 {
		horizonWeeks = DefaultHorizonWeeks
	}
	return &Scheduler{horizonWeeks: horizonWeeks, logger: logger}
}

// HorizonWeeks returns the scheduling horizon in weeks.
func (s *Scheduler) HorizonWeeks() int {
	return s.horizonWeeks
}

// fits reports whether crewNeeded workers of crewType are available for every
// week in [startWeek, endWeek], given already-placed tasks. BLOCKED tasks
// consume no capacity.
func (s *Scheduler) fits(crewType string, crewNeeded, startWeek, endWeek int, placed []*models.ScheduleTask, capacity map[string]int) bool {
	total, ok := capacity[crewType]
	if !ok {
		return false
	}

	for week := startWeek; week <= endWeek; week++ {
		used := 0
		for _, t := range placed {
			if t.Status != models.TaskScheduled || t.CrewType != crewType {
				continue
			}
			if t.StartWeek <= week && week <= t.EndWeek {
				used += t.CrewSize
			}
		}
		if used+crewNeeded > total {
			return false
		}
	}
	return true
}

// findEarliestSlot returns the first start week where the project fits, or 0
// if no window exists within the horizon.
func (s *Scheduler) findEarliestSlot(crewType string, crewNeeded, durationWeeks int, placed []*models.ScheduleTask, capacity map[string]int) int {
	for start := 1; start+durationWeeks-1 <= s.horizonWeeks; start++ {
		end := start + durationWeeks - 1
		if s.fits(crewType, crewNeeded, start, end, placed, capacity) {
			return start
		}
	}
	return 0
}

// Place schedules one project against the already-placed tasks. The returned
// task is SCHEDULED at the earliest feasible start week, or BLOCKED with zero
// weeks when no window exists. Placement never revisits earlier tasks.
func (s *Scheduler) Place(project *models.ApprovedProject, placed []*models.ScheduleTask, capacity map[string]int) *models.ScheduleTask {
	task := &models.ScheduleTask{
		ProjectID: project.ProjectID,
		Title:     project.Title,
		CrewType:  project.RequiredCrewType,
		CrewSize:  project.CrewSize,
	}

	start := s.findEarliestSlot(project.RequiredCrewType, project.CrewSize, project.EstimatedWeeks, placed, capacity)
	if start == 0 {
		task.Status = models.TaskBlocked
		s.logger.Warn("Project blocked, no feasible slot within horizon",
			zap.String("project_id", project.ProjectID),
			zap.String("crew_type", project.RequiredCrewType),
			zap.Int("crew_size", project.CrewSize),
			zap.Int("duration_weeks", project.EstimatedWeeks))
		return task
	}

	task.Status = models.TaskScheduled
	task.StartWeek = start
	task.EndWeek = start + project.EstimatedWeeks - 1

	s.logger.Info("Project scheduled",
		zap.String("project_id", project.ProjectID),
		zap.Int("start_week", task.StartWeek),
		zap.Int("end_week", task.EndWeek))
	return task
}

// Plan places every project in the given order, which the caller supplies
// already sorted by descending risk score. Placements are permanent: a later
// project never dislodges an earlier one.
func (s *Scheduler) Plan(projects []*models.ApprovedProject, capacity map[string]int) []*models.ScheduleTask {
	tasks := make([]*models.ScheduleTask, 0, len(projects))
	for _, project := range projects {
		task := s.Place(project, tasks, capacity)
		tasks = append(tasks, task)
	}
	return tasks
}

// PeakUsage returns, per crew type, the maximum concurrent crew usage across
// the horizon. Used for reporting.
func (s *Scheduler) PeakUsage(tasks []*models.ScheduleTask) map[string]int {
	peak := make(map[string]int)
	for week := 1; week <= s.horizonWeeks; week++ {
		usage := make(map[string]int)
		for _, t := range tasks {
			if t.Status == models.TaskScheduled && t.StartWeek <= week && week <= t.EndWeek {
				usage[t.CrewType] += t.CrewSize
			}
		}
		for crewType, used := range usage {
			if used > peak[crewType] {
				peak[crewType] = used
			}
		}
	}
	return peak
}
