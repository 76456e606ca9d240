package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/deeplydigital/pole-burndown/internal/model"
)

// Sheet names.
const (
	SheetAerialStatus = "Aerial Status Report"
	SheetJobsSummary  = "Jobs Summary"
	SheetBurndown     = "Burndown"
	SheetSchedule     = "Schedule"
	SheetWeekly       = "Weekly Status"
)

const dateLayout = "2006-01-02"

// Statuses counted in the job status table and the utility summary columns.
// As Built and Hold are provider statuses the workflow never assigns itself.
var summaryStatuses = []string{
	model.StatusPendingFieldCollection,
	model.StatusPendingPhotoAnnotation,
	model.StatusSentToPE,
	model.StatusDelivered,
	model.StatusPendingEMR,
	model.StatusApprovedForConstruction,
	"As Built",
	"Hold",
}

var mrColors = map[string]string{
	"Job Name":                        "FFCCFFCC",
	"Job Status":                      "FFCCFFCC",
	string(model.MRStatusNone):        "FFD9D9D9",
	string(model.MRStatusComm):        "FFFFFF00",
	string(model.MRStatusElectric):    "FFFFC000",
	string(model.MRStatusPCORequired): "FFFF0000",
	"Pole Count":                      "FFCCFFCC",
}

// Daily is the input for the daily workbook.
type Daily struct {
	Generated time.Time
	Jobs      []model.Job
	Burndown  []model.BurndownRecord
}

// DailyWorkbook renders the make-ready status of every job plus the day's
// burndown records.
func DailyWorkbook(d Daily) (*xlsx.File, error) {
	f := xlsx.NewFile()
	if err := aerialStatusSheet(f, d); err != nil {
		return nil, err
	}
	if err := jobsSummarySheet(f, d.Jobs); err != nil {
		return nil, err
	}
	if err := burndownSheets(f, d.Burndown); err != nil {
		return nil, err
	}
	return f, nil
}

func aerialStatusSheet(f *xlsx.File, d Daily) error {
	sh, err := f.AddSheet(SheetAerialStatus)
	if err != nil {
		return eris.Wrap(err, "report: add aerial status sheet")
	}
	title(sh, SheetAerialStatus, d.Generated)

	headers := []string{"Job Name", "Job Status"}
	for _, s := range model.MRStatuses {
		headers = append(headers, string(s))
	}
	headers = append(headers, "Pole Count")
	hr := sh.AddRow()
	for _, h := range headers {
		c := hr.AddCell()
		c.SetString(h)
		c.SetStyle(headerStyle(mrColors[h]))
	}

	jobs := append([]model.Job(nil), d.Jobs...)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	for _, j := range jobs {
		vals := []any{j.Name, orUnknown(j.Status)}
		for _, s := range model.MRStatuses {
			vals = append(vals, j.MRStatusCounts[s])
		}
		vals = append(vals, j.TotalPoles)
		addRow(sh, vals...)
	}

	sh.AddRow()
	counts := make(map[string]int)
	for _, j := range d.Jobs {
		counts[j.Status]++
	}
	labels := sh.AddRow()
	values := sh.AddRow()
	for _, s := range summaryStatuses {
		c := labels.AddCell()
		c.SetString(s)
		c.SetStyle(headerStyle(""))
		values.AddCell().SetInt(counts[s])
	}
	return nil
}

type utilityStatus struct {
	utility string
	jobs    map[string]int
	mr      map[model.MRStatus]int
	poles   int
}

func (u utilityStatus) pending() int {
	return u.jobs[model.StatusPendingFieldCollection] + u.jobs[model.StatusPendingPhotoAnnotation]
}

// jobsSummarySheet counts jobs per status for each utility, busiest
// utilities first.
func jobsSummarySheet(f *xlsx.File, jobs []model.Job) error {
	sh, err := f.AddSheet(SheetJobsSummary)
	if err != nil {
		return eris.Wrap(err, "report: add jobs summary sheet")
	}

	by := make(map[string]*utilityStatus)
	for _, j := range jobs {
		name := orUnknown(j.Utility)
		u, ok := by[name]
		if !ok {
			u = &utilityStatus{utility: name, jobs: make(map[string]int), mr: make(map[model.MRStatus]int)}
			by[name] = u
		}
		u.jobs[j.Status]++
		for s, n := range j.MRStatusCounts {
			u.mr[s] += n
			u.poles += n
		}
	}
	rows := make([]*utilityStatus, 0, len(by))
	for _, u := range by {
		rows = append(rows, u)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].pending() != rows[j].pending() {
			return rows[i].pending() > rows[j].pending()
		}
		return rows[i].utility < rows[j].utility
	})

	headers := append([]string{"Utility"}, summaryStatuses...)
	headers = append(headers, string(model.MRStatusElectric), string(model.MRStatusPCORequired), "Pole Count")
	addHeader(sh, headers...)
	for _, u := range rows {
		vals := []any{u.utility}
		for _, s := range summaryStatuses {
			vals = append(vals, u.jobs[s])
		}
		vals = append(vals, u.mr[model.MRStatusElectric], u.mr[model.MRStatusPCORequired], u.poles)
		addRow(sh, vals...)
	}
	return nil
}

func burndownSheets(f *xlsx.File, records []model.BurndownRecord) error {
	bd, err := f.AddSheet(SheetBurndown)
	if err != nil {
		return eris.Wrap(err, "report: add burndown sheet")
	}
	addHeader(bd, "Utility", "Date", "Total Poles", "Completed Poles", "Progress", "Run Rate",
		"Field Users", "Back Office Users", "Est. Completion")

	sched, err := f.AddSheet(SheetSchedule)
	if err != nil {
		return eris.Wrap(err, "report: add schedule sheet")
	}
	addHeader(sched, "Project", "Date", "Total Poles", "Completed", "Progress", "Field Users",
		"Back Office Users", "Est. Completion", "Schedule")

	for _, r := range records {
		progress := model.UtilityMetrics{TotalPoles: r.TotalPoles, CompletedPoles: r.CompletedPoles}.Progress() / 100
		switch r.EntityType {
		case model.EntityProject:
			addRow(sched, r.Entity, r.Date, r.TotalPoles, r.CompletedPoles, percent(progress),
				r.FieldResources, r.BackOfficeResources, r.EstimatedCompletion, r.ScheduleStatus)
		default:
			addRow(bd, r.Entity, r.Date, r.TotalPoles, r.CompletedPoles, percent(progress), r.RunRate,
				r.FieldResources, r.BackOfficeResources, r.EstimatedCompletion)
		}
	}
	return nil
}

// WeeklyWorkbook renders one WeeklyStatus as a single sheet of stacked tables.
func WeeklyWorkbook(ws *model.WeeklyStatus, generated time.Time) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sh, err := f.AddSheet(SheetWeekly)
	if err != nil {
		return nil, eris.Wrap(err, "report: add weekly sheet")
	}
	title(sh, fmt.Sprintf("Weekly Status %s to %s", ws.Start.Format(dateLayout), ws.End.Format(dateLayout)), generated)

	section(sh, "Utility Progress")
	addHeader(sh, "Utility", "Total Poles", "Completed Poles", "Completed This Week", "Added This Week",
		"Run Rate", "Est. Completion")
	for _, d := range ws.Utilities {
		addRow(sh, d.Entity, d.TotalPoles, d.CompletedPoles, d.CompletedDelta, d.TotalDelta, d.RunRate,
			d.EstimatedCompletion)
	}

	section(sh, "Project Schedule")
	addHeader(sh, "Project", "Total Poles", "Completed Poles", "Completed This Week", "Run Rate",
		"Est. Completion", "Schedule")
	for _, d := range ws.Projects {
		addRow(sh, d.Entity, d.TotalPoles, d.CompletedPoles, d.CompletedDelta, d.RunRate,
			d.EstimatedCompletion, d.ScheduleStatus)
	}

	section(sh, "Status Transitions")
	addHeader(sh, "Category", "Jobs")
	for _, c := range model.StatusCategories {
		addRow(sh, string(c), ws.Transitions[c])
	}

	section(sh, "Jobs by Status")
	addHeader(sh, "Status", "Jobs")
	statuses := make([]string, 0, len(ws.ByStatus))
	for s := range ws.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		addRow(sh, s, ws.ByStatus[s])
	}

	section(sh, "Backlog")
	addHeader(sh, "Utility", "Field", "Back Office", "Approve Construction")
	utilities := make([]string, 0, len(ws.UtilityBacklog))
	for u := range ws.UtilityBacklog {
		utilities = append(utilities, u)
	}
	sort.Strings(utilities)
	for _, u := range utilities {
		b := ws.UtilityBacklog[u]
		addRow(sh, u, b.Field, b.BackOffice, b.ApproveConstruction)
	}
	addRow(sh, "Total", ws.Backlog.Field, ws.Backlog.BackOffice, ws.Backlog.ApproveConstruction)

	section(sh, "Productivity")
	addHeader(sh, "Worker", "Role", "Jobs", "Poles Completed", "Avg Poles/Job")
	for _, p := range ws.Productivity {
		var avg float64
		if p.Jobs > 0 {
			avg = float64(p.PolesCompleted) / float64(p.Jobs)
		}
		addRow(sh, p.UserID, string(p.Role), p.Jobs, p.PolesCompleted, avg)
	}
	return f, nil
}

// Save writes f under dir as <prefix>_<MMDDYYYY_HHMM>.xlsx and returns the path.
func Save(f *xlsx.File, dir, prefix string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.xlsx", prefix, now.Format("01022006_1504")))
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "report: save %s", path)
	}
	return path, nil
}

type percent float64

func title(sh *xlsx.Sheet, text string, generated time.Time) {
	t := sh.AddRow().AddCell()
	t.SetString(text)
	st := xlsx.NewStyle()
	st.Font.Bold = true
	st.Font.Size = 18
	st.ApplyFont = true
	t.SetStyle(st)
	sh.AddRow().AddCell().SetString(generated.Format("01/02/2006 03:04 PM"))
	sh.AddRow()
}

func section(sh *xlsx.Sheet, name string) {
	sh.AddRow()
	c := sh.AddRow().AddCell()
	c.SetString(name)
	st := xlsx.NewStyle()
	st.Font.Bold = true
	st.Font.Size = 14
	st.ApplyFont = true
	c.SetStyle(st)
}

func headerStyle(color string) *xlsx.Style {
	st := xlsx.NewStyle()
	st.Font.Bold = true
	st.ApplyFont = true
	st.Alignment.Horizontal = "center"
	st.ApplyAlignment = true
	if color != "" {
		st.Fill = *xlsx.NewFill("solid", color, color)
		st.ApplyFill = true
	}
	return st
}

func addHeader(sh *xlsx.Sheet, headers ...string) {
	row := sh.AddRow()
	for _, h := range headers {
		c := row.AddCell()
		c.SetString(h)
		c.SetStyle(headerStyle(""))
	}
}

func addRow(sh *xlsx.Sheet, vals ...any) {
	row := sh.AddRow()
	for _, v := range vals {
		c := row.AddCell()
		switch x := v.(type) {
		case string:
			c.SetString(x)
		case int:
			c.SetInt(x)
		case float64:
			c.SetFloatWithFormat(x, "0.0")
		case percent:
			c.SetFloatWithFormat(float64(x), "0.0%")
		case time.Time:
			c.SetString(x.Format(dateLayout))
		case *time.Time:
			if x != nil {
				c.SetString(x.Format(dateLayout))
			}
		default:
			c.SetString(fmt.Sprint(x))
		}
	}
}
