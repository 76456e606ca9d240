package extract

import (
	"time"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/pkg/katapult"
)

// DefaultPriority is used when job metadata carries no priority.
const DefaultPriority = 3

// Summary builds the job-level snapshot from a raw job and its extraction.
func Summary(job *katapult.Job, r Result) model.Job {
	m := job.Metadata
	j := model.Job{
		ID:             job.ID,
		Name:           job.Name,
		Status:         orUnknown(job.Status()),
		Utility:        r.Utility,
		Project:        orUnknown(m.String("project")),
		AssignedUsers:  AssignedUsers(m),
		Priority:       m.Int("priority", DefaultPriority),
		TargetDate:     date(m, "target_completion_date"),
		AerialDate:     date(m, "aerial_engineering_date"),
		StartDate:      date(m, "start_date"),
		EndDate:        date(m, "end_date"),
		Conversation:   m.String("conversation"),
		MRStatusCounts: make(map[model.MRStatus]int),
	}
	if j.Name == "" {
		j.Name = job.ID
	}

	for _, n := range r.Nodes {
		if !n.IsPole() {
			continue
		}
		j.TotalPoles++
		if n.FieldCompleted {
			j.CompletedPoles++
		}
		if n.BackOfficeComplete {
			j.BackOfficeDone++
		}
		j.MRStatusCounts[n.MRStatus]++
	}
	return j
}

// AssignedUsers merges assigned_users with the assigned OSP, without duplicates.
func AssignedUsers(m katapult.Metadata) []string {
	users := m.Strings("assigned_users")
	if osp := m.String("assigned_OSP"); osp != "" {
		seen := false
		for _, u := range users {
			if u == osp {
				seen = true
				break
			}
		}
		if !seen {
			users = append(users, osp)
		}
	}
	return users
}

func date(m katapult.Metadata, key string) *time.Time {
	t, ok := katapult.ParseTime(m.String(key))
	if !ok {
		return nil
	}
	return &t
}

func orUnknown(s string) string {
	if s == "" {
		return model.Unknown
	}
	return s
}
