package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/deeplydigital/pole-burndown/internal/model"
)

var generated = time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC)

func testDaily() Daily {
	eta := generated.AddDate(0, 0, 10)
	return Daily{
		Generated: generated,
		Jobs: []model.Job{
			{
				Name: "North Loop 14", Status: model.StatusPendingPhotoAnnotation, Utility: "Ameren", TotalPoles: 3,
				MRStatusCounts: map[model.MRStatus]int{model.MRStatusNone: 1, model.MRStatusElectric: 2},
			},
			{
				Name: "Bay Street 2", Status: model.StatusDelivered, Utility: "Evergy", TotalPoles: 1,
				MRStatusCounts: map[model.MRStatus]int{model.MRStatusPCORequired: 1},
			},
			{
				Name: "Creek Road", Status: model.StatusPendingFieldCollection, Utility: "Ameren", TotalPoles: 2,
				MRStatusCounts: map[model.MRStatus]int{model.MRStatusUnknown: 2},
			},
		},
		Burndown: []model.BurndownRecord{
			{EntityType: model.EntityUtility, Entity: "Ameren", Date: generated, TotalPoles: 5, CompletedPoles: 1, RunRate: 80, EstimatedCompletion: &eta},
			{EntityType: model.EntityProject, Entity: "North Loop", Date: generated, TotalPoles: 3, ScheduleStatus: "Behind Schedule"},
		},
	}
}

func saveAndOpen(t *testing.T, f *xlsx.File) *xlsx.File {
	t.Helper()
	path, err := Save(f, filepath.Join(t.TempDir(), "out"), "Aerial_Status_Report", generated)
	require.NoError(t, err)
	assert.Equal(t, "Aerial_Status_Report_03022026_1504.xlsx", filepath.Base(path))
	_, err = os.Stat(path)
	require.NoError(t, err)

	got, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	return got
}

func cellAt(t *testing.T, sh *xlsx.Sheet, row, col int) string {
	t.Helper()
	require.Greater(t, len(sh.Rows), row)
	require.Greater(t, len(sh.Rows[row].Cells), col)
	return sh.Rows[row].Cells[col].String()
}

func TestDailyWorkbook(t *testing.T) {
	f, err := DailyWorkbook(testDaily())
	require.NoError(t, err)
	got := saveAndOpen(t, f)

	require.Len(t, got.Sheets, 4)
	assert.Equal(t, SheetAerialStatus, got.Sheets[0].Name)

	aerial := got.Sheet[SheetAerialStatus]
	require.NotNil(t, aerial)
	assert.Equal(t, SheetAerialStatus, cellAt(t, aerial, 0, 0))
	assert.Equal(t, "Job Name", cellAt(t, aerial, 3, 0))
	assert.Equal(t, "No MR", cellAt(t, aerial, 3, 2))
	assert.Equal(t, "Pole Count", cellAt(t, aerial, 3, 7))
	// Jobs sorted by name.
	assert.Equal(t, "Bay Street 2", cellAt(t, aerial, 4, 0))
	assert.Equal(t, "1", cellAt(t, aerial, 4, 5))
	assert.Equal(t, "North Loop 14", cellAt(t, aerial, 6, 0))
	assert.Equal(t, "2", cellAt(t, aerial, 6, 4))
	// Status counts under their labels.
	assert.Equal(t, model.StatusPendingFieldCollection, cellAt(t, aerial, 8, 0))
	assert.Equal(t, "1", cellAt(t, aerial, 9, 0))

	summary := got.Sheet[SheetJobsSummary]
	require.NotNil(t, summary)
	assert.Equal(t, "Utility", cellAt(t, summary, 0, 0))
	assert.Equal(t, "Ameren", cellAt(t, summary, 1, 0), "most pending first")
	assert.Equal(t, "1", cellAt(t, summary, 1, 1))
	assert.Equal(t, "1", cellAt(t, summary, 1, 2))
	assert.Equal(t, "5", cellAt(t, summary, 1, 11))
	assert.Equal(t, "Evergy", cellAt(t, summary, 2, 0))

	bd := got.Sheet[SheetBurndown]
	require.NotNil(t, bd)
	require.Len(t, bd.Rows, 2)
	assert.Equal(t, "Ameren", cellAt(t, bd, 1, 0))
	assert.Equal(t, "2026-03-12", cellAt(t, bd, 1, 8))

	sched := got.Sheet[SheetSchedule]
	require.NotNil(t, sched)
	assert.Equal(t, "Behind Schedule", cellAt(t, sched, 1, 8))
	assert.Equal(t, "", cellAt(t, sched, 1, 7))
}

func TestWeeklyWorkbook(t *testing.T) {
	ws := &model.WeeklyStatus{
		Start: monday,
		End:   sunday,
		Utilities: []model.EntityDelta{
			{EntityType: model.EntityUtility, Entity: "Ameren", TotalPoles: 120, CompletedPoles: 70, CompletedDelta: 30},
		},
		Transitions:    Transitions(nil),
		ByStatus:       map[string]int{model.StatusSentToPE: 2},
		UtilityBacklog: map[string]model.Backlog{"Ameren": {Field: 4}},
		Backlog:        model.Backlog{Field: 4},
		Productivity:   []model.UserProduction{{UserID: "alice", Role: model.RoleField, PolesCompleted: 9, Jobs: 3}},
	}
	f, err := WeeklyWorkbook(ws, generated)
	require.NoError(t, err)
	got := saveAndOpen(t, f)

	sh := got.Sheet[SheetWeekly]
	require.NotNil(t, sh)
	assert.Equal(t, "Weekly Status 2026-03-02 to 2026-03-08", cellAt(t, sh, 0, 0))

	var found []string
	for _, row := range sh.Rows {
		if len(row.Cells) > 0 {
			found = append(found, row.Cells[0].String())
		}
	}
	for _, want := range []string{"Utility Progress", "Project Schedule", "Status Transitions", "Backlog", "Productivity", "alice", "Total"} {
		assert.Contains(t, found, want)
	}
}

func TestSave_BadDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	_, err := Save(xlsx.NewFile(), filepath.Join(blocker, "sub"), "x", generated)
	require.Error(t, err)
}
