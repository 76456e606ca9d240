package store

import (
	"sort"
	"time"

	"github.com/deeplydigital/pole-burndown/internal/model"
)

// JobMetricOf flattens a snapshot's job into its stored row.
func JobMetricOf(snap model.Snapshot, ts time.Time) model.JobMetric {
	j := snap.Job
	return model.JobMetric{
		JobID:          j.ID,
		JobName:        j.Name,
		Status:         j.Status,
		Utility:        j.Utility,
		Project:        j.Project,
		TotalPoles:     j.TotalPoles,
		CompletedPoles: j.CompletedPoles,
		BackOfficeDone: j.BackOfficeDone,
		AssignedUsers:  j.AssignedUsers,
		Priority:       j.Priority,
		TargetDate:     j.TargetDate,
		Timestamp:      stamp(ts),
	}
}

// PoleMetricsOf returns one row per pole node.
func PoleMetricsOf(snap model.Snapshot, ts time.Time) []model.PoleMetric {
	var out []model.PoleMetric
	for _, n := range snap.Nodes {
		if !n.IsPole() {
			continue
		}
		pm := model.PoleMetric{
			JobID:              snap.Job.ID,
			NodeID:             n.ID,
			Utility:            n.Utility,
			FieldCompleted:     n.FieldCompleted,
			FieldCompletedBy:   n.FieldCompletedBy(),
			BackOfficeComplete: n.BackOfficeComplete,
			PoleHeight:         n.PoleHeight,
			PoleClass:          n.PoleClass,
			MRStatus:           n.MRStatus,
			Timestamp:          stamp(ts),
		}
		if n.LastEditor != nil {
			pm.LastEditor = n.LastEditor.Editor
			at := stamp(n.LastEditor.At)
			pm.LastEditedAt = &at
		}
		if n.POAHeight != nil {
			inches := n.POAHeight.TotalInches
			pm.POAHeightInches = &inches
		}
		out = append(out, pm)
	}
	return out
}

// UserMetricsOf credits field users with the completed poles they last edited
// and, while the job sits in a back-office status, credits each assigned user
// with the job's back-office completions. Rows are sorted by user then role.
func UserMetricsOf(snap model.Snapshot, ts time.Time) []model.UserMetric {
	type key struct {
		user string
		role model.Role
	}
	counts := make(map[key]int)
	for _, n := range snap.Nodes {
		if !n.IsPole() {
			continue
		}
		if by := n.FieldCompletedBy(); by != "" {
			counts[key{by, model.RoleField}]++
		}
	}
	if role, ok := model.RoleForStatus(snap.Job.Status); ok && role == model.RoleBackOffice {
		for _, u := range snap.Job.AssignedUsers {
			if u != "" {
				counts[key{u, model.RoleBackOffice}] = snap.Job.BackOfficeDone
			}
		}
	}

	out := make([]model.UserMetric, 0, len(counts))
	for k, n := range counts {
		out = append(out, model.UserMetric{
			UserID:         k.user,
			JobID:          snap.Job.ID,
			Utility:        snap.Job.Utility,
			Role:           k.role,
			PolesCompleted: n,
			Timestamp:      stamp(ts),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Role < out[j].Role
	})
	return out
}

// nextStatusChange decides whether the snapshot's status needs a history row
// given the newest stored one. It returns nil when nothing changed.
func nextStatusChange(prev *model.StatusChange, snap model.Snapshot, ts time.Time) *model.StatusChange {
	ts = stamp(ts)
	job := snap.Job
	sc := &model.StatusChange{
		JobID:      job.ID,
		NewStatus:  job.Status,
		ChangedAt:  ts,
		ChangedBy:  lastEditor(snap.Nodes),
		Utility:    job.Utility,
		TotalPoles: job.TotalPoles,
	}
	if prev == nil {
		return sc
	}
	if prev.NewStatus == job.Status {
		return nil
	}
	from := prev.NewStatus
	hours := ts.Sub(prev.ChangedAt).Hours()
	sc.PreviousStatus = &from
	sc.DurationHours = &hours
	return sc
}

// lastEditor returns the editor of the newest edit on any node.
func lastEditor(nodes []model.Node) string {
	var best *model.Edit
	for _, n := range nodes {
		e := n.LastEditor
		if e == nil {
			continue
		}
		if best == nil || e.At.After(best.At) || (e.At.Equal(best.At) && e.Editor < best.Editor) {
			best = e
		}
	}
	if best == nil {
		return ""
	}
	return best.Editor
}

// stamp normalizes timestamps to UTC at the microsecond precision both
// backends store, so natural keys compare equal on replay.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
