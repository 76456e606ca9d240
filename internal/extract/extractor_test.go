package extract

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/resolve"
	"github.com/deeplydigital/pole-burndown/pkg/katapult"
)

func loadJob(t *testing.T) *katapult.Job {
	t.Helper()
	data, err := os.ReadFile("testdata/job.json")
	require.NoError(t, err)
	var job katapult.Job
	require.NoError(t, json.Unmarshal(data, &job))
	job.ID = "job-1"
	return &job
}

func nodeByID(t *testing.T, r Result, id string) model.Node {
	t.Helper()
	for _, n := range r.Nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %s not extracted", id)
	return model.Node{}
}

func connByID(r Result, id string) (model.Connection, bool) {
	for _, c := range r.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return model.Connection{}, false
}

func TestExtract_Classification(t *testing.T) {
	r := New().Extract(loadJob(t))

	var ids []string
	for _, n := range r.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"n01", "n05", "n06", "n07", "pole-xyz"}, ids)

	assert.Equal(t, Skipped{
		MissingCoordinates: 1,
		References:         2,
		Unclassified:       2,
		Connections:        3,
	}, r.Skipped)

	assert.Len(t, r.Poles(), 4)
	assert.Equal(t, model.NodeTypeAnchor, nodeByID(t, r, "n07").Type)
	assert.Equal(t, model.NodeTypePole, nodeByID(t, r, "pole-xyz").Type)
}

func TestExtract_ReferenceWinsRegardlessOfSourceOrder(t *testing.T) {
	for _, raw := range []string{
		`{"value": "reference", "-Imported": "pole"}`,
		`{"-Imported": "pole", "value": "reference"}`,
		`[{"-Imported": "pole"}, {"auto_calced": "reference"}]`,
		`[{"auto_calced": "reference"}, {"button_added": "pole"}]`,
	} {
		var f resolve.Field
		require.NoError(t, json.Unmarshal([]byte(raw), &f))
		b := resolve.Bag{"node_type": f}
		assert.Equal(t, model.NodeTypeReference, New().classify("n1", b), raw)
		assert.Equal(t, model.NodeTypeReference, New().classify("pole-1", b), raw)
	}
}

func TestExtract_Anchors(t *testing.T) {
	r := New().Extract(loadJob(t))

	require.Len(t, r.Anchors, 1)
	a := r.Anchors[0]
	assert.Equal(t, "n07", a.ID)
	assert.Equal(t, "job-1", a.JobID)
	assert.Equal(t, "PLA-8", a.AnchorSpec)
	assert.InDelta(t, 38.67, a.Latitude, 1e-9)
	assert.Nil(t, nodeByID(t, r, "n07").POAHeight)
}

func TestExtract_PoleAttributes(t *testing.T) {
	r := New().Extract(loadJob(t))

	n := nodeByID(t, r, "n01")
	assert.Equal(t, "Ameren", n.Utility)
	assert.True(t, n.FieldCompleted)
	assert.True(t, n.BackOfficeComplete)
	assert.Equal(t, "4", n.PoleClass)
	assert.Equal(t, "40", n.PoleHeight)
	assert.Equal(t, "40-4", n.PoleSpec)
	assert.Equal(t, "T100", n.Tag)
	assert.Equal(t, "1", n.SCID)
	assert.Equal(t, "Ameren North 12", n.JobName)
	require.NotNil(t, n.POAHeight)
	assert.Equal(t, `11' 0"`, n.POAHeight.String())

	n05 := nodeByID(t, r, "n05")
	assert.Equal(t, "Evergy", n05.Utility)
	assert.False(t, n05.FieldCompleted)
	assert.InDelta(t, 38.65, n05.Latitude, 1e-9)
	require.NotNil(t, n05.POAHeight, "falls back to the proposed down guy")
	assert.Equal(t, `10' 10"`, n05.POAHeight.String())

	n06 := nodeByID(t, r, "n06")
	assert.True(t, n06.FieldCompleted)
	assert.Nil(t, n06.POAHeight)
	assert.Equal(t, model.Unknown, n06.PoleClass)
}

func TestExtract_MRStatus(t *testing.T) {
	r := New().Extract(loadJob(t))

	assert.Equal(t, model.MRStatusNone, nodeByID(t, r, "n01").MRStatus)
	assert.Equal(t, model.MRStatusElectric, nodeByID(t, r, "n05").MRStatus)
	assert.Equal(t, model.MRStatusPCORequired, nodeByID(t, r, "n06").MRStatus)
	assert.Equal(t, model.MRStatusComm, nodeByID(t, r, "pole-xyz").MRStatus)
}

func TestMRStatus_Table(t *testing.T) {
	tests := []struct {
		name  string
		attrs string
		want  model.MRStatus
	}{
		{"no mr", `{"mr_state": {"auto_calced": "No MR"}}`, model.MRStatusNone},
		{"no mr with warning", `{"mr_state": {"auto_calced": "No MR"}, "warning": {"value": "x"}}`, model.MRStatusUnknown},
		{"comm", `{"mr_state": {"auto_calced": "MR Resolved"}}`, model.MRStatusComm},
		{"electric", `{"mr_state": {"auto_calced": "MR Resolved"}, "warning": {"value": "x"}}`, model.MRStatusElectric},
		{"pco beats state", `{"mr_state": {"auto_calced": "No MR"}, "proposed_pole_spec": {"value": "45-3"}}`, model.MRStatusPCORequired},
		{"missing", `{}`, model.MRStatusUnknown},
		{"other state", `{"mr_state": {"auto_calced": "Pending"}}`, model.MRStatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b resolve.Bag
			require.NoError(t, json.Unmarshal([]byte(tt.attrs), &b))
			assert.Equal(t, tt.want, mrStatus(b, resolve.DefaultPriorities()))
		})
	}
}

func TestExtract_JobUtility(t *testing.T) {
	job := loadJob(t)
	r := New().Extract(job)

	// Ameren and Evergy tie one vote each.
	assert.Equal(t, "Ameren", r.Utility)
	assert.Equal(t, "Ameren", nodeByID(t, r, "n06").Utility)
	assert.Equal(t, "Ameren", nodeByID(t, r, "pole-xyz").Utility)
	assert.Equal(t, "Evergy", nodeByID(t, r, "n05").Utility)

	job.Metadata["utility"] = "Spire"
	r = New().Extract(job)
	assert.Equal(t, "Spire", r.Utility)
	assert.Equal(t, "Spire", nodeByID(t, r, "n06").Utility)
	assert.Equal(t, "Ameren", nodeByID(t, r, "n01").Utility)
}

func TestJobUtility_Majority(t *testing.T) {
	job := &katapult.Job{}
	nodes := []model.Node{
		{Utility: "Evergy"}, {Utility: "Ameren"}, {Utility: "Evergy"}, {Utility: model.Unknown},
	}
	assert.Equal(t, "Evergy", jobUtility(job, nodes))
	assert.Equal(t, model.Unknown, jobUtility(job, nil))
}

func TestExtract_Connections(t *testing.T) {
	r := New().Extract(loadJob(t))

	require.Len(t, r.Connections, 3)
	for _, dropped := range []string{"c3", "c4", "c5"} {
		_, ok := connByID(r, dropped)
		assert.False(t, ok, dropped)
	}

	c1, ok := connByID(r, "c1")
	require.True(t, ok)
	assert.True(t, c1.DownGuy)
	assert.Equal(t, "Down Guy", c1.DisplayType())
	require.NotNil(t, c1.MidHeight)
	assert.Equal(t, `20' 0"`, c1.MidHeight.String())
	assert.InDelta(t, 38.61, c1.StartLat, 1e-9)
	assert.InDelta(t, 38.65, c1.EndLat, 1e-9)

	c2, ok := connByID(r, "c2")
	require.True(t, ok)
	assert.Equal(t, "aerial cable", c2.Type)
	assert.False(t, c2.DownGuy)
	assert.Nil(t, c2.MidHeight)

	// Endpoints resolve against raw nodes, so a reference endpoint still counts.
	c6, ok := connByID(r, "c6")
	require.True(t, ok)
	assert.Equal(t, "n03", c6.EndNode)
	assert.Nil(t, c6.MidHeight)
}

func TestExtract_Editors(t *testing.T) {
	r := New().Extract(loadJob(t))

	n := nodeByID(t, r, "n01")
	require.Len(t, n.Editors, 3)
	assert.Equal(t, "alice", n.Editors[0].Editor)
	assert.Equal(t, time.UnixMilli(1700000900000).UTC(), n.Editors[0].At)
	assert.Equal(t, "bob", n.Editors[1].Editor)
	assert.Equal(t, "carol", n.Editors[2].Editor)
	require.NotNil(t, n.LastEditor)
	assert.Equal(t, "alice", n.LastEditor.Editor)

	assert.Nil(t, nodeByID(t, r, "pole-xyz").LastEditor)
}

func TestEditors_TiesOrderByEditor(t *testing.T) {
	job := &katapult.Job{Photos: map[string]katapult.Photo{
		"a": {Editors: map[string]katapult.Number{"zed": katapult.Num(5), "amy": katapult.Num(5)}},
		"b": {Editors: map[string]katapult.Number{"zed": katapult.Num(3), "bo": katapult.Num(9)}},
	}}
	refs := map[string]katapult.PhotoRef{"a": {}, "b": {}}

	for range 20 {
		edits := Editors(job, refs)
		require.Len(t, edits, 3)
		assert.Equal(t, []string{"bo", "amy", "zed"}, []string{edits[0].Editor, edits[1].Editor, edits[2].Editor})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	job := loadJob(t)
	first := New().Extract(job)
	for range 50 {
		assert.Equal(t, first, New().Extract(job))
	}
}

func TestExtract_AttachmentCompany(t *testing.T) {
	r := New(WithAttachmentCompany("OtherCo")).Extract(loadJob(t))
	assert.Nil(t, nodeByID(t, r, "n01").POAHeight)
}

func TestExtract_MalformedShapesAreLocal(t *testing.T) {
	raw := `{
	  "name": "Shapes",
	  "metadata": {"job_status": "Field Collection"},
	  "nodes": {
	    "good": {"latitude": 38.6, "longitude": -90.2,
	      "attributes": {"node_type": {"-Imported": "pole"}, "field_completed": {"value": 1}},
	      "photos": {"p1": {"association": "main"}, "p2": 7}},
	    "flat": {"latitude": 38.7, "longitude": -90.3, "attributes": [], "photos": "none"},
	    "scalar": 42
	  },
	  "connections": {
	    "c1": {"node_id_1": "good", "node_id_2": "flat", "attributes": "aerial", "sections": {"midpoint_section": 3}}
	  },
	  "photos": {
	    "p1": {"photofirst_data": [], "_editors": ["alice"]},
	    "p2": "missing"
	  }
	}`
	var job katapult.Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	job.ID = "job-shapes"

	assert.True(t, job.Nodes["flat"].Attributes.IsMalformed())
	assert.Equal(t, []string{resolve.WholeBag}, job.Nodes["scalar"].Attributes.Malformed())
	assert.Empty(t, job.Nodes["flat"].Photos)
	assert.Len(t, job.Nodes["good"].Photos, 1)
	assert.Empty(t, job.Photos["p1"].Editors)

	r := New().Extract(&job)
	require.Len(t, r.Nodes, 1)
	assert.Equal(t, "good", r.Nodes[0].ID)
	assert.True(t, r.Nodes[0].FieldCompleted)
	assert.Equal(t, 2, r.Skipped.Unclassified)
}
