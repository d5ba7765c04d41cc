package geom

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb/encoding/wkt"
)

// LoadCSV reads a CSV with either a WKT geometry column or latitude/longitude
// columns. Column detection (case-insensitive):
//
//	wkt|geometry|wkt_geom|geom
//	lat|latitude|y and lon|lng|long|longitude|x
//
// When a WKT column is present the remaining columns become properties.
func LoadCSV(path string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return Data{}, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	recs, err := r.ReadAll()
	if err != nil {
		return Data{}, errors.Wrap(err, "csv")
	}
	if len(recs) == 0 {
		return Data{}, errors.New("empty csv")
	}
	header := recs[0]
	idxLat, idxLon, idxWKT := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "lat", "latitude", "y":
			if idxLat == -1 {
				idxLat = i
			}
		case "lon", "lng", "long", "longitude", "x":
			if idxLon == -1 {
				idxLon = i
			}
		case "wkt", "geometry", "wkt_geom", "geom":
			if idxWKT == -1 {
				idxWKT = i
			}
		}
	}

	d := newData()
	switch {
	case idxWKT >= 0:
		for n, row := range recs[1:] {
			if idxWKT >= len(row) || strings.TrimSpace(row[idxWKT]) == "" {
				continue
			}
			g, err := wkt.Unmarshal(row[idxWKT])
			if err != nil {
				return Data{}, errors.Wrapf(err, "csv row %d", n+2)
			}
			props := make(map[string]any, len(header)-1)
			for i, h := range header {
				if i == idxWKT || i >= len(row) {
					continue
				}
				props[h] = csvValue(row[i])
			}
			d.addGeometry(g, props)
		}
	case idxLat >= 0 && idxLon >= 0:
		for _, row := range recs[1:] {
			if idxLon >= len(row) || idxLat >= len(row) {
				continue
			}
			lon, err1 := strconv.ParseFloat(strings.TrimSpace(row[idxLon]), 64)
			lat, err2 := strconv.ParseFloat(strings.TrimSpace(row[idxLat]), 64)
			if err1 != nil || err2 != nil {
				continue
			}
			pt := [2]float64{lon, lat}
			d.extend(pt)
			d.Points = append(d.Points, pt)
		}
	default:
		return Data{}, errors.New("csv: no wkt or latitude/longitude columns found")
	}
	if d.empty() {
		return Data{}, errors.New("csv: no valid geometries parsed")
	}
	return d, nil
}

// csvValue keeps integers and floats numeric so they survive conversion
// into typed columns.
func csvValue(s string) any {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
