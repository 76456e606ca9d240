package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deeplydigital/pole-burndown/internal/extract"
	"github.com/deeplydigital/pole-burndown/internal/gis"
)

// GeoJSONFile holds every exported feature as one collection.
const GeoJSONFile = "features.geojson"

// ExportResult summarizes an offline export.
type ExportResult struct {
	gis.ExportResult
	Jobs    int      `json:"jobs"`
	Failed  []string `json:"failed,omitempty"`
	GeoJSON string   `json:"geojson"`
}

// Export fetches the given jobs and writes their features as shapefiles plus
// a GeoJSON collection under dir. Jobs that cannot be fetched are logged and
// listed in the result; the export fails only when none succeed.
func (p *Pipeline) Export(ctx context.Context, ids []string, dir string) (*ExportResult, error) {
	if len(ids) == 0 {
		return nil, eris.New("pipeline: no jobs to export")
	}

	jobs := make([]*gis.JobFeatures, len(ids))
	var g errgroup.Group
	g.SetLimit(p.concurrency())
	for i, id := range ids {
		g.Go(func() error {
			raw, err := p.provider.GetJob(ctx, id)
			if err != nil {
				zap.L().Warn("pipeline: export fetch failed", zap.String("job_id", id), zap.Error(err))
				return nil
			}
			r := p.extractor.Extract(raw)
			jf := gis.FromResult(extract.Summary(raw, r), r)
			jobs[i] = &jf
			return nil
		})
	}
	_ = g.Wait()

	res := &ExportResult{}
	var ok []gis.JobFeatures
	var all []gis.Feature
	for i, jf := range jobs {
		if jf == nil {
			res.Failed = append(res.Failed, ids[i])
			continue
		}
		ok = append(ok, *jf)
		all = append(all, jf.Poles...)
		all = append(all, jf.Connections...)
		all = append(all, jf.Anchors...)
	}
	if len(ok) == 0 {
		return nil, eris.Errorf("pipeline: export fetched none of %d jobs", len(ids))
	}
	res.Jobs = len(ok)

	files, err := gis.Export(dir, ok)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: export shapefiles")
	}
	res.ExportResult = files

	data, err := gis.EncodeGeoJSON(all)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode geojson")
	}
	res.GeoJSON = filepath.Join(dir, GeoJSONFile)
	if err := os.WriteFile(res.GeoJSON, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "pipeline: write %s", res.GeoJSON)
	}

	zap.L().Info("pipeline: export complete",
		zap.String("dir", dir),
		zap.Int("jobs", res.Jobs),
		zap.Int("failed", len(res.Failed)),
		zap.Int("poles", res.Poles),
		zap.Int("connections", res.Connections),
		zap.Int("anchors", res.Anchors),
	)
	return res, nil
}
