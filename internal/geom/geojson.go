package geom

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LoadGeo reads a GeoJSON file and returns Data (points, lines, polygons)
func LoadGeo(path string) (Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Data{}, err
	}
	return ParseGeoJSON(b)
}

// ParseGeoJSON accepts a FeatureCollection, a single Feature or a bare geometry.
func ParseGeoJSON(b []byte) (Data, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return Data{}, errors.Wrap(err, "geojson")
	}
	d := newData()
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(b)
		if err != nil {
			return Data{}, errors.Wrap(err, "geojson")
		}
		for _, f := range fc.Features {
			d.addGeometry(f.Geometry, f.Properties)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(b)
		if err != nil {
			return Data{}, errors.Wrap(err, "geojson")
		}
		d.addGeometry(f.Geometry, f.Properties)
	case "":
		return Data{}, errors.New("invalid geojson: missing type")
	default:
		g, err := geojson.UnmarshalGeometry(b)
		if err != nil {
			return Data{}, errors.Wrap(err, "geojson")
		}
		d.addGeometry(g.Geometry(), nil)
	}
	if d.empty() {
		return Data{}, errors.New("no geometries found")
	}
	return d, nil
}

func (d *Data) addGeometry(g orb.Geometry, props map[string]any) {
	switch g := g.(type) {
	case orb.Point:
		d.addPoint(g)
	case orb.MultiPoint:
		for _, p := range g {
			d.addPoint(p)
		}
	case orb.LineString:
		d.addLine(g)
	case orb.MultiLineString:
		for _, ls := range g {
			d.addLine(ls)
		}
	case orb.Ring:
		d.addPolygon(orb.Polygon{g}, props)
	case orb.Polygon:
		d.addPolygon(g, props)
	case orb.MultiPolygon:
		for _, p := range g {
			d.addPolygon(p, props)
		}
	case orb.Collection:
		for _, sub := range g {
			d.addGeometry(sub, props)
		}
	}
}

func (d *Data) addPoint(p orb.Point) {
	d.extend(p)
	d.Points = append(d.Points, p)
}

func (d *Data) addLine(ls orb.LineString) {
	line := make([][2]float64, len(ls))
	for i, p := range ls {
		line[i] = p
		d.extend(p)
	}
	d.Lines = append(d.Lines, line)
}

func (d *Data) addPolygon(poly orb.Polygon, props map[string]any) {
	rings := make([][][2]float64, 0, len(poly))
	for _, r := range poly {
		ring := make([][2]float64, len(r))
		for i, p := range r {
			ring[i] = p
			d.extend(p)
		}
		rings = append(rings, ring)
	}
	d.Polygons = append(d.Polygons, rings)
	d.Props = append(d.Props, props)
}
