// Package gis publishes extracted poles, spans and anchors to an ArcGIS
// feature service and exports them as shapefiles.
package gis

import (
	"github.com/twpayne/go-geom"

	"github.com/deeplydigital/pole-burndown/internal/extract"
	"github.com/deeplydigital/pole-burndown/internal/model"
)

// SRID is the spatial reference of every feature (WGS84).
const SRID = 4326

// Feature is one geometry with its attribute row.
type Feature struct {
	Geometry   geom.T
	Attributes map[string]any
}

// JobFeatures holds every feature of one job, per layer.
type JobFeatures struct {
	JobName     string
	Poles       []Feature
	Connections []Feature
	Anchors     []Feature
}

// Count returns the total number of features.
func (j JobFeatures) Count() int {
	return len(j.Poles) + len(j.Connections) + len(j.Anchors)
}

// FromResult converts an extraction result into layer features. Nodes
// without coordinates were already dropped by the extractor.
func FromResult(job model.Job, r extract.Result) JobFeatures {
	return JobFeatures{
		JobName:     job.Name,
		Poles:       PoleFeatures(job, r.Poles()),
		Connections: ConnectionFeatures(job, r.Connections),
		Anchors:     AnchorFeatures(job, r.Anchors),
	}
}

// PoleFeatures builds one point per pole.
func PoleFeatures(job model.Job, nodes []model.Node) []Feature {
	out := make([]Feature, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Feature{
			Geometry: point(n.Longitude, n.Latitude),
			Attributes: map[string]any{
				"id":           n.ID,
				"jobname":      job.Name,
				"job_status":   job.Status,
				"MR_statu":     string(n.MRStatus),
				"company":      n.Utility,
				"fldcompl":     yesNo(n.FieldCompleted),
				"pole_class":   n.PoleClass,
				"pole_ht":      n.PoleHeight,
				"tag":          n.Tag,
				"scid":         n.SCID,
				"POA_Height":   heightString(n.POAHeight),
				"conversation": job.Conversation,
			},
		})
	}
	return out
}

// ConnectionFeatures builds one two-point line per span.
func ConnectionFeatures(job model.Job, conns []model.Connection) []Feature {
	out := make([]Feature, 0, len(conns))
	for _, c := range conns {
		out = append(out, Feature{
			Geometry: geom.NewLineStringFlat(geom.XY, []float64{c.StartLng, c.StartLat, c.EndLng, c.EndLat}).SetSRID(SRID),
			Attributes: map[string]any{
				"StartX":   c.StartLng,
				"StartY":   c.StartLat,
				"EndX":     c.EndLng,
				"EndY":     c.EndLat,
				"ConnType": c.DisplayType(),
				"JobName":  job.Name,
				"job_id":   job.ID,
				"mid_ht":   heightString(c.MidHeight),
			},
		})
	}
	return out
}

// AnchorFeatures builds one point per proposed anchor.
func AnchorFeatures(job model.Job, anchors []model.Anchor) []Feature {
	out := make([]Feature, 0, len(anchors))
	for _, a := range anchors {
		out = append(out, Feature{
			Geometry: point(a.Longitude, a.Latitude),
			Attributes: map[string]any{
				"anchorspec": a.AnchorSpec,
				"job_id":     job.ID,
				"jobname":    job.Name,
			},
		})
	}
	return out
}

func point(lng, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(SRID)
}

func heightString(h *model.Height) string {
	if h == nil {
		return ""
	}
	return h.String()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
