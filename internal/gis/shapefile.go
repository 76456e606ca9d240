package gis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Shapefile layer names written by Export.
const (
	PolesFile       = "poles.shp"
	ConnectionsFile = "connections.shp"
	AnchorsFile     = "anchors.shp"
)

// Attribute columns per layer. dBase names are limited to 10 characters.
var (
	poleFields = []shp.Field{
		shp.StringField("id", 64),
		shp.StringField("jobname", 128),
		shp.StringField("job_status", 64),
		shp.StringField("MR_statu", 32),
		shp.StringField("company", 64),
		shp.StringField("fldcompl", 3),
		shp.StringField("pole_class", 16),
		shp.StringField("pole_ht", 16),
		shp.StringField("tag", 64),
		shp.StringField("scid", 32),
		shp.StringField("POA_Height", 16),
	}
	connectionFields = []shp.Field{
		shp.FloatField("StartX", 24, 8),
		shp.FloatField("StartY", 24, 8),
		shp.FloatField("EndX", 24, 8),
		shp.FloatField("EndY", 24, 8),
		shp.StringField("ConnType", 64),
		shp.StringField("JobName", 128),
		shp.StringField("job_id", 64),
		shp.StringField("mid_ht", 16),
	}
	anchorFields = []shp.Field{
		shp.StringField("anchorspec", 64),
		shp.StringField("job_id", 64),
		shp.StringField("jobname", 128),
	}
)

// ExportResult counts shapes written per file.
type ExportResult struct {
	Dir         string
	Poles       int
	Connections int
	Anchors     int
}

// Export writes every job's features into three shapefiles under dir.
func Export(dir string, jobs []JobFeatures) (ExportResult, error) {
	res := ExportResult{Dir: dir}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, eris.Wrapf(err, "gis: create %s", dir)
	}

	var poles, conns, anchors []Feature
	for _, j := range jobs {
		poles = append(poles, j.Poles...)
		conns = append(conns, j.Connections...)
		anchors = append(anchors, j.Anchors...)
	}

	var err error
	if res.Poles, err = writeShapefile(filepath.Join(dir, PolesFile), shp.POINT, poleFields, poles); err != nil {
		return res, err
	}
	if res.Connections, err = writeShapefile(filepath.Join(dir, ConnectionsFile), shp.POLYLINE, connectionFields, conns); err != nil {
		return res, err
	}
	if res.Anchors, err = writeShapefile(filepath.Join(dir, AnchorsFile), shp.POINT, anchorFields, anchors); err != nil {
		return res, err
	}
	return res, nil
}

func writeShapefile(path string, typ shp.ShapeType, fields []shp.Field, features []Feature) (n int, err error) {
	w, err := shp.Create(path, typ)
	if err != nil {
		return 0, eris.Wrapf(err, "gis: create %s", filepath.Base(path))
	}
	// go-shp v0.1.1 writes the attribute table to "<base>dbf" without the dot.
	base := strings.TrimSuffix(path, filepath.Ext(path))
	defer func() {
		w.Close()
		if rerr := os.Rename(base+"dbf", base+".dbf"); rerr != nil && err == nil {
			err = eris.Wrapf(rerr, "gis: rename %s attribute table", filepath.Base(path))
		}
	}()

	if err := w.SetFields(fields); err != nil {
		return 0, eris.Wrapf(err, "gis: set fields %s", filepath.Base(path))
	}

	for _, f := range features {
		shape, err := toShape(f.Geometry)
		if err != nil {
			return n, err
		}
		row := int(w.Write(shape))
		for i, field := range fields {
			v, ok := f.Attributes[fieldName(field)]
			if !ok {
				continue
			}
			if err := w.WriteAttribute(row, i, attrValue(v)); err != nil {
				return n, eris.Wrapf(err, "gis: write %s attribute %s", filepath.Base(path), fieldName(field))
			}
		}
		n++
	}
	return n, nil
}

func toShape(g geom.T) (shp.Shape, error) {
	switch t := g.(type) {
	case *geom.Point:
		return &shp.Point{X: t.X(), Y: t.Y()}, nil
	case *geom.LineString:
		pts := make([]shp.Point, 0, t.NumCoords())
		for _, c := range t.Coords() {
			pts = append(pts, shp.Point{X: c.X(), Y: c.Y()})
		}
		return shp.NewPolyLine([][]shp.Point{pts}), nil
	}
	return nil, eris.Errorf("gis: unsupported geometry %T", g)
}

// fieldName trims the NUL padding from a dBase field name.
func fieldName(f shp.Field) string {
	return strings.TrimRight(f.String(), "\x00")
}

func attrValue(v any) any {
	switch x := v.(type) {
	case string, float64, int:
		return x
	}
	return fmt.Sprint(v)
}
