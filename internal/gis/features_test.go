package gis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/deeplydigital/pole-burndown/internal/extract"
	"github.com/deeplydigital/pole-burndown/internal/model"
)

func testJob() model.Job {
	return model.Job{ID: "job-1", Name: "O'Fallon 3", Status: model.StatusSentToPE, Conversation: "check span"}
}

func testResult() extract.Result {
	poa := model.Height{TotalInches: 243}
	mid := model.Height{TotalInches: 200}
	return extract.Result{
		Nodes: []model.Node{
			{ID: "n1", Type: model.NodeTypePole, Latitude: 38.6, Longitude: -90.2, Utility: "Ameren",
				FieldCompleted: true, MRStatus: model.MRStatusComm, PoleClass: "3", POAHeight: &poa},
			{ID: "n2", Type: model.NodeTypePole, Latitude: 38.7, Longitude: -90.3, MRStatus: model.MRStatusNone},
			{ID: "a1", Type: model.NodeTypeAnchor, Latitude: 38.5, Longitude: -90.1},
		},
		Connections: []model.Connection{
			{ID: "c1", Type: "aerial cable", StartLat: 38.6, StartLng: -90.2, EndLat: 38.7, EndLng: -90.3, MidHeight: &mid},
			{ID: "c2", Type: "aerial cable", DownGuy: true, StartLat: 38.6, StartLng: -90.2, EndLat: 38.5, EndLng: -90.1},
		},
		Anchors: []model.Anchor{{ID: "a1", JobID: "job-1", Latitude: 38.5, Longitude: -90.1, AnchorSpec: "8in"}},
	}
}

func TestFromResult(t *testing.T) {
	jf := FromResult(testJob(), testResult())
	assert.Equal(t, "O'Fallon 3", jf.JobName)
	require.Len(t, jf.Poles, 2, "anchor nodes are not poles")
	require.Len(t, jf.Connections, 2)
	require.Len(t, jf.Anchors, 1)
	assert.Equal(t, 5, jf.Count())

	p := jf.Poles[0]
	pt, ok := p.Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, -90.2, pt.X())
	assert.Equal(t, 38.6, pt.Y())
	assert.Equal(t, SRID, pt.SRID())
	assert.Equal(t, "Yes", p.Attributes["fldcompl"])
	assert.Equal(t, "Comm MR", p.Attributes["MR_statu"])
	assert.Equal(t, `20' 3"`, p.Attributes["POA_Height"])
	assert.Equal(t, "", jf.Poles[1].Attributes["POA_Height"])
	assert.Equal(t, "check span", p.Attributes["conversation"])

	assert.Equal(t, "Down Guy", jf.Connections[1].Attributes["ConnType"])
	assert.Equal(t, `16' 8"`, jf.Connections[0].Attributes["mid_ht"])
	ls, ok := jf.Connections[0].Geometry.(*geom.LineString)
	require.True(t, ok)
	assert.Equal(t, 2, ls.NumCoords())

	assert.Equal(t, "8in", jf.Anchors[0].Attributes["anchorspec"])
}

func TestEncodeEsri(t *testing.T) {
	jf := FromResult(testJob(), testResult())
	b, err := EncodeEsri(append(jf.Poles[:1:1], jf.Connections[0]))
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got, 2)

	pg := got[0]["geometry"].(map[string]any)
	assert.Equal(t, -90.2, pg["x"])
	assert.Equal(t, 38.6, pg["y"])
	assert.Equal(t, map[string]any{"wkid": float64(4326)}, pg["spatialReference"])
	assert.NotContains(t, pg, "paths")

	lg := got[1]["geometry"].(map[string]any)
	assert.Equal(t, []any{[]any{[]any{-90.2, 38.6}, []any{-90.3, 38.7}}}, lg["paths"])
	assert.NotContains(t, lg, "x")
}

func TestEncodeEsri_UnsupportedGeometry(t *testing.T) {
	_, err := EncodeEsri([]Feature{{Geometry: geom.NewPolygon(geom.XY)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported geometry")
}

func TestEncodeGeoJSON(t *testing.T) {
	jf := FromResult(testJob(), testResult())
	b, err := EncodeGeoJSON(jf.Poles)
	require.NoError(t, err)

	var head struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(b, &head))
	assert.Equal(t, "FeatureCollection", head.Type)

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(b, &fc))
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "n1", fc.Features[0].ID)
	pt, ok := fc.Features[0].Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{-90.2, 38.6}, pt.FlatCoords())
	assert.Equal(t, "Ameren", fc.Features[0].Properties["company"])
}
