package tui

import (
	"context"
	"fmt"
	"strings"

	table "github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"fgbmap/internal/fgb"
	"fgbmap/internal/geom"
	"fgbmap/internal/memsource"
	"fgbmap/internal/source"
)

// inspectLimit caps how many features the inspect popup lists.
const inspectLimit = 5

// refreshAttrsFromCurrent rebuilds the schema table for the open source.
func (m *Model) refreshAttrsFromCurrent() {
	if m.loader == nil {
		m.showAttrs = false
		m.status = "no source open"
		return
	}
	cols, info := schemaOf(m.loader.Source())
	if len(cols) == 0 {
		// Do not touch table internals here to avoid re-render during SetColumns
		m.showAttrs = false
		m.status = "no attributes for current dataset"
		return
	}
	tcols := []table.Column{
		{Title: "#", Width: 4},
		{Title: "name", Width: 8},
		{Title: "type", Width: 10},
		{Title: "nullable", Width: 8},
	}
	trows := make([]table.Row, 0, len(cols))
	for i, c := range cols {
		tcols[1].Width = min(24, max(tcols[1].Width, len(c.Name)+2))
		trows = append(trows, table.Row{
			fmt.Sprintf("%d", i+1),
			c.Name,
			c.Type.String(),
			fmt.Sprintf("%t", c.Nullable),
		})
	}
	// Avoid transient mismatch: clear rows, set columns, then set rows
	m.tbl.SetRows(nil)
	m.tbl.SetColumns(tcols)
	m.tbl.SetRows(trows)
	m.status = info
}

// schemaOf returns the column schema of src and a one-line summary.
// FlatGeobuf files carry their schema; other sources have it inferred from
// their property values.
func schemaOf(src source.Source) ([]fgb.Column, string) {
	switch s := src.(type) {
	case *fgb.Reader:
		h := s.Header()
		info := fmt.Sprintf("%s  %s  features=%d", orDefault(h.Name, "unnamed"), h.GeometryType, h.FeaturesCount)
		if h.Crs != nil && h.Crs.Code != 0 {
			info += fmt.Sprintf("  crs=%s:%d", orDefault(h.Crs.Org, "EPSG"), h.Crs.Code)
		}
		if !h.Indexed() {
			info += "  (no index)"
		}
		return h.Columns, info
	case *memsource.Index:
		return fgb.InferColumns(s.Props()), fmt.Sprintf("in-memory  features=%d", s.Len())
	}
	return nil, ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// inspect lists the attributes of features under the camera center.
func (m Model) inspect() tea.Cmd {
	if m.loader == nil {
		return nil
	}
	w, h := m.mapPixels()
	if w <= 0 || h <= 0 {
		return nil
	}
	live := m.liveProjection(w, h)
	if !live.Valid() {
		return nil
	}
	c := live.Center
	r := live.Resolution * 2
	box := geom.BBox{MinX: c[0] - r, MinY: c[1] - r, MaxX: c[0] + r, MaxY: c[1] + r}
	src, log := m.loader.Source(), m.log
	return func() tea.Msg {
		text, err := describeAt(context.Background(), src, box)
		if err != nil {
			log.Warn("inspect", zap.Error(err))
			return inspectMsg{text: "inspect failed: " + err.Error()}
		}
		return inspectMsg{text: fmt.Sprintf("Inspect %.5f, %.5f\n%s", c[0], c[1], text)}
	}
}

func describeAt(ctx context.Context, src source.Source, box geom.BBox) (string, error) {
	it, err := src.Query(ctx, box)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	n := 0
	for it.Next(ctx) {
		n++
		if n > inspectLimit {
			continue
		}
		fmt.Fprintf(&b, "feature %d\n", n)
		a, ok := it.Feature().(source.Attributed)
		if !ok {
			continue
		}
		props, err := a.Properties()
		if err != nil {
			fmt.Fprintf(&b, "  <%v>\n", err)
			continue
		}
		for _, k := range sortedKeys(props) {
			fmt.Fprintf(&b, "  %s: %s\n", k, formatValue(props[k]))
		}
	}
	if err := it.Err(); err != nil {
		return "", err
	}
	switch {
	case n == 0:
		return "no features here", nil
	case n > inspectLimit:
		fmt.Fprintf(&b, "... %d more", n-inspectLimit)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
