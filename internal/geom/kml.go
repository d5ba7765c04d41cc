package geom

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type kmlRing struct {
	Coordinates string `xml:"LinearRing>coordinates"`
}

type kmlPolygon struct {
	Outer kmlRing   `xml:"outerBoundaryIs"`
	Inner []kmlRing `xml:"innerBoundaryIs"`
}

type kmlGeometry struct {
	Point      []struct{ Coordinates string `xml:"coordinates"` } `xml:"Point"`
	LineString []struct{ Coordinates string `xml:"coordinates"` } `xml:"LineString"`
	Polygon    []kmlPolygon                                       `xml:"Polygon"`
	Multi      []kmlGeometry                                      `xml:"MultiGeometry"`
}

type kmlPlacemark struct {
	Name string `xml:"name"`
	Data []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"ExtendedData>Data"`
	kmlGeometry
}

// LoadKML extracts Placemark geometries from a KML file, at any depth inside
// Document and Folder elements. KML coordinates are "lon,lat[,alt]"; altitude
// is ignored.
func LoadKML(path string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return Data{}, err
	}
	defer f.Close()
	return ParseKML(f)
}

func ParseKML(r io.Reader) (Data, error) {
	d := newData()
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Data{}, errors.Wrap(err, "kml")
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Placemark" {
			continue
		}
		var pm kmlPlacemark
		if err := dec.DecodeElement(&pm, &se); err != nil {
			return Data{}, errors.Wrap(err, "kml placemark")
		}
		props := map[string]any{}
		if pm.Name != "" {
			props["name"] = pm.Name
		}
		for _, kv := range pm.Data {
			props[kv.Name] = kv.Value
		}
		d.addKML(pm.kmlGeometry, props)
	}
	if d.empty() {
		return Data{}, errors.New("kml: no geometries found")
	}
	return d, nil
}

func (d *Data) addKML(g kmlGeometry, props map[string]any) {
	for _, p := range g.Point {
		for _, pt := range kmlCoords(p.Coordinates) {
			d.extend(pt)
			d.Points = append(d.Points, pt)
		}
	}
	for _, l := range g.LineString {
		line := kmlCoords(l.Coordinates)
		if len(line) == 0 {
			continue
		}
		for _, pt := range line {
			d.extend(pt)
		}
		d.Lines = append(d.Lines, line)
	}
	for _, p := range g.Polygon {
		outer := kmlCoords(p.Outer.Coordinates)
		if len(outer) == 0 {
			continue
		}
		rings := [][][2]float64{outer}
		for _, in := range p.Inner {
			rings = append(rings, kmlCoords(in.Coordinates))
		}
		for _, r := range rings {
			for _, pt := range r {
				d.extend(pt)
			}
		}
		d.Polygons = append(d.Polygons, rings)
		d.Props = append(d.Props, props)
	}
	for _, m := range g.Multi {
		d.addKML(m, props)
	}
}

func kmlCoords(s string) [][2]float64 {
	var out [][2]float64
	// tuples are separated by whitespace
	for _, tuple := range strings.Fields(s) {
		vals := strings.Split(tuple, ",")
		if len(vals) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(vals[1]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, [2]float64{lon, lat})
	}
	return out
}
