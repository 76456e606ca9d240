package model

import "time"

// Backlog counts poles waiting at each workflow stage.
type Backlog struct {
	Field               int `json:"field"`
	BackOffice          int `json:"back_office"`
	ApproveConstruction int `json:"approve_construction"`
}

// Add accumulates o into b.
func (b *Backlog) Add(o Backlog) {
	b.Field += o.Field
	b.BackOffice += o.BackOffice
	b.ApproveConstruction += o.ApproveConstruction
}

// EntityDelta is the change of one utility or project across a window.
type EntityDelta struct {
	EntityType          EntityType `json:"entity_type"`
	Entity              string     `json:"entity"`
	TotalPoles          int        `json:"total_poles"`
	CompletedPoles      int        `json:"completed_poles"`
	CompletedDelta      int        `json:"completed_delta"`
	TotalDelta          int        `json:"total_delta"`
	RunRate             float64    `json:"run_rate"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	ScheduleStatus      string     `json:"schedule_status,omitempty"`
}

// UserProduction is the poles one user completed within a window.
type UserProduction struct {
	UserID         string `json:"user_id"`
	Role           Role   `json:"role"`
	PolesCompleted int    `json:"poles_completed"`
	Jobs           int    `json:"jobs"`
}

// WeeklyStatus is the read-side rollup for a date window [Start, End).
type WeeklyStatus struct {
	Start          time.Time              `json:"start"`
	End            time.Time              `json:"end"`
	Utilities      []EntityDelta          `json:"utilities"`
	Projects       []EntityDelta          `json:"projects"`
	Transitions    map[StatusCategory]int `json:"transitions"`
	ByStatus       map[string]int         `json:"by_status"`
	Backlog        Backlog                `json:"backlog"`
	UtilityBacklog map[string]Backlog     `json:"utility_backlog"`
	Productivity   []UserProduction       `json:"productivity"`
}
