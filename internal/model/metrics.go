package model

import "time"

// EntityType distinguishes utility and project burndown rows.
type EntityType string

const (
	EntityUtility EntityType = "utility"
	EntityProject EntityType = "project"
)

// UtilityMetrics is the running rollup for one utility within a run.
type UtilityMetrics struct {
	Name                string              `json:"name"`
	TotalPoles          int                 `json:"total_poles"`
	CompletedPoles      int                 `json:"completed_poles"`
	FieldUsers          map[string]struct{} `json:"-"`
	BackOfficeUsers     map[string]struct{} `json:"-"`
	RunRate             float64             `json:"run_rate"` // poles per week
	EstimatedCompletion *time.Time          `json:"estimated_completion,omitempty"`
}

// ProjectMetrics is the running rollup for one project within a run.
type ProjectMetrics struct {
	UtilityMetrics
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// StatusMetrics is a histogram bucket keyed by literal job status.
type StatusMetrics struct {
	Status         string `json:"status"`
	Jobs           int    `json:"jobs"`
	TotalPoles     int    `json:"total_poles"`
	CompletedPoles int    `json:"completed_poles"`
}

// Remaining returns poles not yet completed, never negative.
func (m UtilityMetrics) Remaining() int {
	if m.CompletedPoles >= m.TotalPoles {
		return 0
	}
	return m.TotalPoles - m.CompletedPoles
}

// Progress returns percent complete in [0,100].
func (m UtilityMetrics) Progress() float64 {
	if m.TotalPoles == 0 {
		return 0
	}
	return float64(m.CompletedPoles) / float64(m.TotalPoles) * 100
}

// BurndownRecord is a persisted point-in-time snapshot for one entity.
// (EntityType, Entity, Date) is unique.
type BurndownRecord struct {
	EntityType          EntityType `json:"entity_type"`
	Entity              string     `json:"entity"`
	Date                time.Time  `json:"date"`
	TotalPoles          int        `json:"total_poles"`
	CompletedPoles      int        `json:"completed_poles"`
	RunRate             float64    `json:"run_rate"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	FieldResources      int        `json:"field_resources"`
	BackOfficeResources int        `json:"back_office_resources"`
	ScheduleStatus      string     `json:"schedule_status,omitempty"`
}

// JobMetric is a stored job-level row keyed by (JobID, Timestamp).
type JobMetric struct {
	JobID          string     `json:"job_id"`
	JobName        string     `json:"job_name"`
	Status         string     `json:"status"`
	Utility        string     `json:"utility"`
	Project        string     `json:"project"`
	TotalPoles     int        `json:"total_poles"`
	CompletedPoles int        `json:"completed_poles"`
	BackOfficeDone int        `json:"back_office_complete"`
	AssignedUsers  []string   `json:"assigned_users"`
	Priority       int        `json:"priority"`
	TargetDate     *time.Time `json:"target_date,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// PoleMetric is a stored node-level row keyed by (JobID, NodeID, Timestamp).
type PoleMetric struct {
	JobID              string     `json:"job_id"`
	NodeID             string     `json:"node_id"`
	Utility            string     `json:"utility"`
	FieldCompleted     bool       `json:"field_completed"`
	FieldCompletedBy   string     `json:"field_completed_by,omitempty"`
	BackOfficeComplete bool       `json:"back_office_complete"`
	LastEditor         string     `json:"last_editor,omitempty"`
	LastEditedAt       *time.Time `json:"last_edited_at,omitempty"`
	PoleHeight         string     `json:"pole_height"`
	PoleClass          string     `json:"pole_class"`
	MRStatus           MRStatus   `json:"mr_status"`
	POAHeightInches    *int       `json:"poa_height_inches,omitempty"`
	Timestamp          time.Time  `json:"timestamp"`
}

// UserMetric is a stored per-user productivity row.
type UserMetric struct {
	UserID         string    `json:"user_id"`
	JobID          string    `json:"job_id"`
	Utility        string    `json:"utility"`
	Role           Role      `json:"role"`
	PolesCompleted int       `json:"poles_completed"`
	Timestamp      time.Time `json:"timestamp"`
}
