package geom

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		body     string
		points   int
		lines    int
		polygons int
		bbox     BBox
	}{
		{
			name: "geojson collection",
			file: "a.geojson",
			body: `{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,3],[0,0]]]}},
				{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[-1,5]}}]}`,
			points: 1, polygons: 1,
			bbox: BBox{MinX: -1, MinY: 0, MaxX: 4, MaxY: 5},
		},
		{
			name:  "geojson bare geometry",
			file:  "b.json",
			body:  `{"type":"LineString","coordinates":[[1,1],[2,3]]}`,
			lines: 1,
			bbox:  BBox{MinX: 1, MinY: 1, MaxX: 2, MaxY: 3},
		},
		{
			name:     "wkt lines",
			file:     "c.wkt",
			body:     "# comment\nPOLYGON((0 0,10 0,10 10,0 10,0 0),(2 2,4 2,4 4,2 2))\n\nMULTIPOINT((1 1),(2 2))\n",
			points:   2,
			polygons: 1,
			bbox:     BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10},
		},
		{
			name:   "csv points",
			file:   "d.csv",
			body:   "name,Latitude,Longitude\na,47.3,8.5\nb,47.4,8.6\nbad,x,y\n",
			points: 2,
			bbox:   BBox{MinX: 8.5, MinY: 47.3, MaxX: 8.6, MaxY: 47.4},
		},
		{
			name:     "csv wkt",
			file:     "e.csv",
			body:     "id,wkt\n7,\"POLYGON((0 0,1 0,1 1,0 0))\"\n",
			polygons: 1,
			bbox:     BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1},
		},
		{
			name: "kml nested",
			file: "f.kml",
			body: `<?xml version="1.0"?><kml><Document><Folder>
				<Placemark><name>p</name><Point><coordinates>8.5,47.3,0</coordinates></Point></Placemark>
				<Placemark><Polygon><outerBoundaryIs><LinearRing><coordinates>0,0 2,0 2,2 0,0</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
				</Folder></Document></kml>`,
			points: 1, polygons: 1,
			bbox: BBox{MinX: 0, MinY: 0, MaxX: 8.5, MaxY: 47.3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Load(writeTemp(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(d.Points) != tt.points || len(d.Lines) != tt.lines || len(d.Polygons) != tt.polygons {
				t.Fatalf("got %d points, %d lines, %d polygons", len(d.Points), len(d.Lines), len(d.Polygons))
			}
			if d.BBox != tt.bbox {
				t.Errorf("bbox = %+v, want %+v", d.BBox, tt.bbox)
			}
			if len(d.Props) != len(d.Polygons) {
				t.Errorf("props = %d, polygons = %d", len(d.Props), len(d.Polygons))
			}
		})
	}
}

func TestLoadCSVKeepsProperties(t *testing.T) {
	d, err := Load(writeTemp(t, "p.csv", "id,name,wkt\n7,tower,\"POLYGON((0 0,1 0,1 1,0 0))\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Props[0]["id"] != int64(7) || d.Props[0]["name"] != "tower" {
		t.Errorf("props = %v", d.Props[0])
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		file, body, want string
	}{
		{"a.shp", "", "unsupported file type"},
		{"b.geojson", `{"features":[]}`, "missing type"},
		{"c.wkt", "POLYGON ((0 0, 1", "c.wkt:1"},
		{"d.csv", "a,b\n1,2\n", "no wkt or latitude/longitude"},
		{"e.kml", "<kml></kml>", "no geometries"},
	}
	for _, tt := range tests {
		_, err := Load(writeTemp(t, tt.file, tt.body))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want containing %q", tt.file, err, tt.want)
		}
	}
}
