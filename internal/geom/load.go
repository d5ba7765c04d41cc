package geom

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Load picks a loader from the file extension.
func Load(path string) (Data, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return LoadGeo(path)
	case ".wkt", ".txt":
		return LoadWKT(path)
	case ".csv":
		return LoadCSV(path)
	case ".kml":
		return LoadKML(path)
	}
	return Data{}, errors.Newf("unsupported file type %q", filepath.Ext(path))
}
