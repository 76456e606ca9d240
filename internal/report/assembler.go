// Package report assembles weekly status rollups from stored metrics and
// renders them to workbooks and Notion.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/burndown"
	"github.com/deeplydigital/pole-burndown/internal/model"
)

// Source is the read side of the metrics store the assembler needs.
type Source interface {
	ListBurndown(ctx context.Context, start, end time.Time) ([]model.BurndownRecord, error)
	ListStatusChanges(ctx context.Context, start, end time.Time) ([]model.StatusChange, error)
	ListJobMetrics(ctx context.Context, start, end time.Time) ([]model.JobMetric, error)
	ListUserMetrics(ctx context.Context, start, end time.Time) ([]model.UserMetric, error)
}

// Assembler builds WeeklyStatus rollups from stored records.
type Assembler struct {
	src Source
}

// NewAssembler creates an Assembler reading from src.
func NewAssembler(src Source) *Assembler {
	return &Assembler{src: src}
}

// Assemble rolls up everything stored in [start, end). Entity deltas are the
// last record in the window minus the first. Backlog and the status histogram
// use each job's newest row in the window.
func (a *Assembler) Assemble(ctx context.Context, start, end time.Time) (*model.WeeklyStatus, error) {
	if !end.After(start) {
		return nil, eris.Errorf("report: empty window %s..%s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	records, err := a.src.ListBurndown(ctx, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "report: list burndown")
	}
	changes, err := a.src.ListStatusChanges(ctx, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "report: list status changes")
	}
	jobs, err := a.src.ListJobMetrics(ctx, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "report: list job metrics")
	}
	users, err := a.src.ListUserMetrics(ctx, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "report: list user metrics")
	}

	ws := &model.WeeklyStatus{
		Start:          start,
		End:            end,
		Transitions:    Transitions(changes),
		ByStatus:       make(map[string]int),
		UtilityBacklog: make(map[string]model.Backlog),
	}
	ws.Utilities, ws.Projects = Deltas(records)

	newest := Newest(jobs)
	for _, j := range newest {
		ws.ByStatus[orUnknown(j.Status)]++
		b := burndown.BacklogFor(j.Status, j.TotalPoles, j.CompletedPoles)
		u := ws.UtilityBacklog[orUnknown(j.Utility)]
		u.Add(b)
		ws.UtilityBacklog[orUnknown(j.Utility)] = u
		ws.Backlog.Add(b)
	}
	ws.Productivity = Productivity(users)

	zap.L().Info("report: assembled weekly status",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("records", len(records)),
		zap.Int("status_changes", len(changes)),
		zap.Int("jobs", len(newest)),
	)
	return ws, nil
}

type entityKey struct {
	typ    model.EntityType
	entity string
}

// Deltas compares the first and last record of each entity. Records may
// arrive in any order.
func Deltas(records []model.BurndownRecord) (utilities, projects []model.EntityDelta) {
	first := make(map[entityKey]model.BurndownRecord)
	last := make(map[entityKey]model.BurndownRecord)
	for _, r := range records {
		k := entityKey{r.EntityType, r.Entity}
		if f, ok := first[k]; !ok || r.Date.Before(f.Date) {
			first[k] = r
		}
		if l, ok := last[k]; !ok || !r.Date.Before(l.Date) {
			last[k] = r
		}
	}

	for k, l := range last {
		f := first[k]
		d := model.EntityDelta{
			EntityType:          k.typ,
			Entity:              k.entity,
			TotalPoles:          l.TotalPoles,
			CompletedPoles:      l.CompletedPoles,
			CompletedDelta:      l.CompletedPoles - f.CompletedPoles,
			TotalDelta:          l.TotalPoles - f.TotalPoles,
			RunRate:             l.RunRate,
			EstimatedCompletion: l.EstimatedCompletion,
			ScheduleStatus:      l.ScheduleStatus,
		}
		if k.typ == model.EntityProject {
			projects = append(projects, d)
		} else {
			utilities = append(utilities, d)
		}
	}
	byEntity := func(s []model.EntityDelta) {
		sort.Slice(s, func(i, j int) bool { return s[i].Entity < s[j].Entity })
	}
	byEntity(utilities)
	byEntity(projects)
	return utilities, projects
}

// Transitions counts status changes into each category. Every category is
// present, zero when nothing moved into it.
func Transitions(changes []model.StatusChange) map[model.StatusCategory]int {
	out := make(map[model.StatusCategory]int, len(model.StatusCategories))
	for _, c := range model.StatusCategories {
		out[c] = 0
	}
	for _, sc := range changes {
		if cat := model.CategoryOf(sc.NewStatus); cat != "" {
			out[cat]++
		}
	}
	return out
}

// Newest keeps the latest row per job, ordered by job id.
func Newest(jobs []model.JobMetric) []model.JobMetric {
	by := make(map[string]model.JobMetric, len(jobs))
	for _, j := range jobs {
		if cur, ok := by[j.JobID]; !ok || j.Timestamp.After(cur.Timestamp) {
			by[j.JobID] = j
		}
	}
	out := make([]model.JobMetric, 0, len(by))
	for _, j := range by {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

type userKey struct {
	user string
	role model.Role
}

// Productivity sums poles per user and role. Each row is a running count for
// one job, so only the newest row per (user, job, role) contributes.
func Productivity(rows []model.UserMetric) []model.UserProduction {
	type jobKey struct {
		userKey
		job string
	}
	newest := make(map[jobKey]model.UserMetric)
	for _, r := range rows {
		k := jobKey{userKey{r.UserID, r.Role}, r.JobID}
		if cur, ok := newest[k]; !ok || r.Timestamp.After(cur.Timestamp) {
			newest[k] = r
		}
	}

	totals := make(map[userKey]*model.UserProduction)
	for k, r := range newest {
		p, ok := totals[k.userKey]
		if !ok {
			p = &model.UserProduction{UserID: k.user, Role: k.role}
			totals[k.userKey] = p
		}
		p.PolesCompleted += r.PolesCompleted
		p.Jobs++
	}

	out := make([]model.UserProduction, 0, len(totals))
	for _, p := range totals {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PolesCompleted != out[j].PolesCompleted {
			return out[i].PolesCompleted > out[j].PolesCompleted
		}
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Role < out[j].Role
	})
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return model.Unknown
	}
	return s
}
