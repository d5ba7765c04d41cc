package geom

import (
	"bufio"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb/encoding/wkt"
)

// LoadWKT reads a file holding one WKT geometry per line. Blank lines and
// lines starting with # are skipped.
func LoadWKT(path string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return Data{}, err
	}
	defer f.Close()

	d := newData()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if err := d.addWKT(s); err != nil {
			return Data{}, errors.Wrapf(err, "%s:%d", path, line)
		}
	}
	if err := sc.Err(); err != nil {
		return Data{}, err
	}
	if d.empty() {
		return Data{}, errors.New("wkt: no geometries found")
	}
	return d, nil
}

// ParseWKTData parses a single WKT geometry. Any type understood by orb is
// accepted, including MULTIPOLYGON and GEOMETRYCOLLECTION.
func ParseWKTData(s string) (Data, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Data{}, errors.New("empty wkt")
	}
	d := newData()
	if err := d.addWKT(s); err != nil {
		return Data{}, err
	}
	if d.empty() {
		return Data{}, errors.New("wkt: no coordinates parsed")
	}
	return d, nil
}

func (d *Data) addWKT(s string) error {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return errors.Wrap(err, "wkt")
	}
	d.addGeometry(g, nil)
	return nil
}
