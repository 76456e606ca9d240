package burndown

import (
	"time"

	"github.com/deeplydigital/pole-burndown/internal/model"
)

// Project schedule states.
const (
	ScheduleCompleted  = "Completed"
	ScheduleNotStarted = "Not Started"
	ScheduleInProgress = "In Progress"
	ScheduleOverdue    = "Overdue"
	ScheduleOnTrack    = "On Track"
	ScheduleAtRisk     = "At Risk"
	ScheduleBehind     = "Behind Schedule"
	ScheduleUnknown    = "Unknown"
)

// atRiskRatio is the share of expected progress below which a project falls
// from at risk to behind schedule.
const atRiskRatio = 0.8

// ScheduleStatus compares a project's progress with the straight line from
// its start date to its end date.
func ScheduleStatus(p model.ProjectMetrics, now time.Time) string {
	if p.StartDate == nil {
		return ScheduleUnknown
	}
	if p.TotalPoles > 0 && p.CompletedPoles >= p.TotalPoles {
		return ScheduleCompleted
	}
	if now.Before(*p.StartDate) {
		return ScheduleNotStarted
	}
	if p.EndDate == nil {
		return ScheduleInProgress
	}
	if now.After(*p.EndDate) {
		return ScheduleOverdue
	}

	span := p.EndDate.Sub(*p.StartDate)
	if span <= 0 {
		return ScheduleInProgress
	}
	expected := float64(now.Sub(*p.StartDate)) / float64(span)
	var progress float64
	if p.TotalPoles > 0 {
		progress = float64(p.CompletedPoles) / float64(p.TotalPoles)
	}

	switch {
	case progress >= expected:
		return ScheduleOnTrack
	case progress >= expected*atRiskRatio:
		return ScheduleAtRisk
	}
	return ScheduleBehind
}
