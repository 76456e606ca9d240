// Package burndown folds canonical jobs into utility, project and status
// rollups and projects completion dates from staffing capacity.
package burndown

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/model"
)

// Accumulator collects rollups for one run. Build a fresh one per run; it is
// not safe for concurrent use.
type Accumulator struct {
	rates Rates
	now   time.Time

	utilities map[string]*model.UtilityMetrics
	projects  map[string]*model.ProjectMetrics
	statuses  map[string]*model.StatusMetrics
	backlog   map[string]*model.Backlog
	seen      map[string]struct{}
}

// NewAccumulator creates an empty Accumulator. now anchors the completion
// estimates and schedule status.
func NewAccumulator(rates Rates, now time.Time) *Accumulator {
	return &Accumulator{
		rates:     rates,
		now:       now,
		utilities: make(map[string]*model.UtilityMetrics),
		projects:  make(map[string]*model.ProjectMetrics),
		statuses:  make(map[string]*model.StatusMetrics),
		backlog:   make(map[string]*model.Backlog),
		seen:      make(map[string]struct{}),
	}
}

// Fold adds one job and its extracted nodes. Only pole nodes count. A job id
// folded twice is ignored the second time.
func (a *Accumulator) Fold(job model.Job, nodes []model.Node) {
	var total, completed int
	for _, n := range nodes {
		if !n.IsPole() {
			continue
		}
		total++
		if n.FieldCompleted {
			completed++
		}
	}
	a.add(job, total, completed)
}

// FoldMetric adds a stored job row, as read back during a backfill. Project
// dates are not stored so they contribute nothing.
func (a *Accumulator) FoldMetric(m model.JobMetric) {
	a.add(model.Job{
		ID:            m.JobID,
		Name:          m.JobName,
		Status:        m.Status,
		Utility:       m.Utility,
		Project:       m.Project,
		AssignedUsers: m.AssignedUsers,
	}, m.TotalPoles, m.CompletedPoles)
}

func (a *Accumulator) add(job model.Job, total, completed int) {
	if job.ID != "" {
		if _, dup := a.seen[job.ID]; dup {
			zap.L().Warn("burndown: job already folded, ignoring", zap.String("job_id", job.ID))
			return
		}
		a.seen[job.ID] = struct{}{}
	}

	u := a.utility(job.Utility)
	u.TotalPoles += total
	u.CompletedPoles += completed

	p := a.project(job.Project)
	p.TotalPoles += total
	p.CompletedPoles += completed
	p.StartDate = earliest(p.StartDate, job.StartDate)
	p.EndDate = latest(p.EndDate, job.EndDate)

	if role, ok := model.RoleForStatus(job.Status); ok {
		for _, user := range job.AssignedUsers {
			addUser(u, role, user)
			addUser(&p.UtilityMetrics, role, user)
		}
	}

	status := orUnknown(job.Status)
	s, ok := a.statuses[status]
	if !ok {
		s = &model.StatusMetrics{Status: status}
		a.statuses[status] = s
	}
	s.Jobs++
	s.TotalPoles += total
	s.CompletedPoles += completed

	b, ok := a.backlog[u.Name]
	if !ok {
		b = &model.Backlog{}
		a.backlog[u.Name] = b
	}
	b.Add(BacklogFor(job.Status, total, completed))
}

// Utilities returns utility rollups sorted by name, with run rate and
// estimated completion filled in.
func (a *Accumulator) Utilities() []model.UtilityMetrics {
	out := make([]model.UtilityMetrics, 0, len(a.utilities))
	for _, u := range a.utilities {
		out = append(out, a.finish(*u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Projects returns project rollups sorted by name.
func (a *Accumulator) Projects() []model.ProjectMetrics {
	out := make([]model.ProjectMetrics, 0, len(a.projects))
	for _, p := range a.projects {
		cp := *p
		cp.UtilityMetrics = a.finish(p.UtilityMetrics)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Statuses returns the status histogram sorted by status.
func (a *Accumulator) Statuses() []model.StatusMetrics {
	out := make([]model.StatusMetrics, 0, len(a.statuses))
	for _, s := range a.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out
}

// Backlog returns the backlog per utility and its total.
func (a *Accumulator) Backlog() (map[string]model.Backlog, model.Backlog) {
	var total model.Backlog
	by := make(map[string]model.Backlog, len(a.backlog))
	for name, b := range a.backlog {
		by[name] = *b
		total.Add(*b)
	}
	return by, total
}

// Jobs returns how many distinct jobs were folded.
func (a *Accumulator) Jobs() int { return len(a.seen) }

// Snapshot renders every utility and project as a burndown record for date.
// Utilities come first, each group sorted by name.
func (a *Accumulator) Snapshot(date time.Time) []model.BurndownRecord {
	day := truncateDay(date)
	var out []model.BurndownRecord
	for _, u := range a.Utilities() {
		out = append(out, record(model.EntityUtility, u, day, ""))
	}
	for _, p := range a.Projects() {
		out = append(out, record(model.EntityProject, p.UtilityMetrics, day, ScheduleStatus(p, a.now)))
	}
	return out
}

func record(typ model.EntityType, m model.UtilityMetrics, day time.Time, schedule string) model.BurndownRecord {
	return model.BurndownRecord{
		EntityType:          typ,
		Entity:              m.Name,
		Date:                day,
		TotalPoles:          m.TotalPoles,
		CompletedPoles:      m.CompletedPoles,
		RunRate:             m.RunRate,
		EstimatedCompletion: m.EstimatedCompletion,
		FieldResources:      len(m.FieldUsers),
		BackOfficeResources: len(m.BackOfficeUsers),
		ScheduleStatus:      schedule,
	}
}

func (a *Accumulator) finish(m model.UtilityMetrics) model.UtilityMetrics {
	m.RunRate = a.rates.Effective(len(m.BackOfficeUsers), len(m.FieldUsers))
	m.EstimatedCompletion = EstimateCompletion(a.now, m.Remaining(), m.RunRate)
	return m
}

func (a *Accumulator) utility(name string) *model.UtilityMetrics {
	name = orUnknown(name)
	u, ok := a.utilities[name]
	if !ok {
		u = newMetrics(name)
		a.utilities[name] = u
	}
	return u
}

func (a *Accumulator) project(name string) *model.ProjectMetrics {
	name = orUnknown(name)
	p, ok := a.projects[name]
	if !ok {
		p = &model.ProjectMetrics{UtilityMetrics: *newMetrics(name)}
		a.projects[name] = p
	}
	return p
}

func newMetrics(name string) *model.UtilityMetrics {
	return &model.UtilityMetrics{
		Name:            name,
		FieldUsers:      make(map[string]struct{}),
		BackOfficeUsers: make(map[string]struct{}),
	}
}

func addUser(m *model.UtilityMetrics, role model.Role, user string) {
	if user == "" {
		return
	}
	switch role {
	case model.RoleBackOffice:
		m.BackOfficeUsers[user] = struct{}{}
	case model.RoleField:
		m.FieldUsers[user] = struct{}{}
	}
}

func earliest(cur, t *time.Time) *time.Time {
	if t == nil || (cur != nil && !t.Before(*cur)) {
		return cur
	}
	return t
}

func latest(cur, t *time.Time) *time.Time {
	if t == nil || (cur != nil && !t.After(*cur)) {
		return cur
	}
	return t
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func orUnknown(s string) string {
	if s == "" {
		return model.Unknown
	}
	return s
}
