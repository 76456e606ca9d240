package model

import "time"

// Job statuses used by the operational workflow.
const (
	StatusPendingFieldCollection  = "Pending Field Collection"
	StatusFieldCollectionProgress = "Field Collection In Progress"
	StatusFieldCollection         = "Field Collection"
	StatusPendingPhotoAnnotation  = "Pending Photo Annotation"
	StatusPhotoAnnotationProgress = "Photo Annotation In Progress"
	StatusQAReview                = "QA Review"
	StatusSentToPE                = "Sent to PE"
	StatusDelivered               = "Delivered"
	StatusPendingEMR              = "Pending EMR"
	StatusApprovedForConstruction = "Approved for Construction"
)

// Role identifies which capacity pool a user belongs to.
type Role string

const (
	RoleField      Role = "field"
	RoleBackOffice Role = "back_office"
)

// RoleForStatus returns the pool a job's assigned users work in while the job
// sits in status. The second return is false for statuses outside both pools.
func RoleForStatus(status string) (Role, bool) {
	switch status {
	case StatusPendingPhotoAnnotation, StatusPhotoAnnotationProgress, StatusQAReview:
		return RoleBackOffice, true
	case StatusFieldCollectionProgress, StatusPendingFieldCollection:
		return RoleField, true
	}
	return "", false
}

// StatusCategory groups job statuses for the weekly transition report.
type StatusCategory string

const (
	CategoryFieldCollection StatusCategory = "field_collection"
	CategoryAnnotation      StatusCategory = "annotation"
	CategorySentToPE        StatusCategory = "sent_to_pe"
	CategoryDelivery        StatusCategory = "delivery"
	CategoryEMR             StatusCategory = "emr"
	CategoryApproved        StatusCategory = "approved"
)

// StatusCategories lists categories in workflow order.
var StatusCategories = []StatusCategory{
	CategoryFieldCollection,
	CategoryAnnotation,
	CategorySentToPE,
	CategoryDelivery,
	CategoryEMR,
	CategoryApproved,
}

var statusCategories = map[string]StatusCategory{
	StatusFieldCollection:         CategoryFieldCollection,
	StatusPendingFieldCollection:  CategoryFieldCollection,
	StatusFieldCollectionProgress: CategoryFieldCollection,
	StatusPhotoAnnotationProgress: CategoryAnnotation,
	StatusPendingPhotoAnnotation:  CategoryAnnotation,
	StatusSentToPE:                CategorySentToPE,
	StatusDelivered:               CategoryDelivery,
	StatusPendingEMR:              CategoryEMR,
	StatusApprovedForConstruction: CategoryApproved,
}

// CategoryOf maps a job status to its category; unmapped statuses return "".
func CategoryOf(status string) StatusCategory {
	return statusCategories[status]
}

// Job is the canonical per-run snapshot of one job.
type Job struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Status         string           `json:"status"`
	Utility        string           `json:"utility"`
	Project        string           `json:"project"`
	AssignedUsers  []string         `json:"assigned_users"`
	Priority       int              `json:"priority"`
	TargetDate     *time.Time       `json:"target_date,omitempty"`
	AerialDate     *time.Time       `json:"aerial_date,omitempty"`
	StartDate      *time.Time       `json:"start_date,omitempty"`
	EndDate        *time.Time       `json:"end_date,omitempty"`
	TotalPoles     int              `json:"total_poles"`
	CompletedPoles int              `json:"completed_poles"`
	BackOfficeDone int              `json:"back_office_complete"`
	MRStatusCounts map[MRStatus]int `json:"mr_status_counts"`
	Conversation   string           `json:"conversation,omitempty"`
}

// Snapshot is everything persisted for one job at one timestamp.
type Snapshot struct {
	Job   Job    `json:"job"`
	Nodes []Node `json:"nodes"`
}

// StatusChange records one job status transition. PreviousStatus and
// DurationHours are nil for the originating observation of a job.
type StatusChange struct {
	JobID          string    `json:"job_id"`
	PreviousStatus *string   `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ChangedAt      time.Time `json:"changed_at"`
	ChangedBy      string    `json:"changed_by,omitempty"`
	DurationHours  *float64  `json:"duration_hours"`
	Utility        string    `json:"utility,omitempty"`
	TotalPoles     int       `json:"total_poles"`
}

// IsOrigin reports whether this is the first observation of the job.
func (s StatusChange) IsOrigin() bool { return s.PreviousStatus == nil }
