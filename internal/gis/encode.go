package gis

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

type spatialReference struct {
	WKID int `json:"wkid"`
}

// esriGeometry is the ArcGIS REST geometry object for points and polylines.
type esriGeometry struct {
	X                *float64         `json:"x,omitempty"`
	Y                *float64         `json:"y,omitempty"`
	Paths            [][][]float64    `json:"paths,omitempty"`
	SpatialReference spatialReference `json:"spatialReference"`
}

type esriFeature struct {
	Geometry   esriGeometry   `json:"geometry"`
	Attributes map[string]any `json:"attributes"`
}

// esri converts a point or line string to the ArcGIS REST shape.
func esri(g geom.T) (esriGeometry, error) {
	sr := spatialReference{WKID: SRID}
	switch t := g.(type) {
	case *geom.Point:
		x, y := t.X(), t.Y()
		return esriGeometry{X: &x, Y: &y, SpatialReference: sr}, nil
	case *geom.LineString:
		path := make([][]float64, 0, t.NumCoords())
		for _, c := range t.Coords() {
			path = append(path, []float64{c.X(), c.Y()})
		}
		return esriGeometry{Paths: [][][]float64{path}, SpatialReference: sr}, nil
	}
	return esriGeometry{}, eris.Errorf("gis: unsupported geometry %T", g)
}

// EncodeEsri renders features as the JSON array addFeatures expects.
func EncodeEsri(features []Feature) ([]byte, error) {
	out := make([]esriFeature, 0, len(features))
	for _, f := range features {
		g, err := esri(f.Geometry)
		if err != nil {
			return nil, err
		}
		out = append(out, esriFeature{Geometry: g, Attributes: f.Attributes})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, eris.Wrap(err, "gis: marshal features")
	}
	return b, nil
}

// EncodeGeoJSON renders features as a GeoJSON FeatureCollection.
func EncodeGeoJSON(features []Feature) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for i, f := range features {
		id := fmt.Sprint(i)
		if v, ok := f.Attributes["id"]; ok {
			id = fmt.Sprint(v)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         id,
			Geometry:   f.Geometry,
			Properties: f.Attributes,
		})
	}
	b, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "gis: marshal geojson")
	}
	return b, nil
}
