package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	list "github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"fgbmap/internal/geom"
	"fgbmap/internal/memsource"
	"fgbmap/internal/mesh"
	"fgbmap/internal/pipeline"
	"fgbmap/internal/source"
	"fgbmap/internal/tess"
)

// tickInterval is how often pending input is re-evaluated.
const tickInterval = 25 * time.Millisecond

// nudgePixels is the camera move per arrow key.
const nudgePixels = 8

type tickMsg time.Time

type reloadMsg struct {
	seq uint64
	res pipeline.Result
	err error
}

type sourceMsg struct {
	location string
	src      source.Source
	err      error
}

type inspectMsg struct {
	text string
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.showSidebar {
			_, _, _, h := m.layout()
			m.l.SetSize(sidebarWidth-2, h-2)
		}
		cmd := m.reload()
		return m, cmd

	case tickMsg:
		return m.onTick()

	case reloadMsg:
		return m.onReload(msg), nil

	case sourceMsg:
		return m.onSource(msg)

	case inspectMsg:
		m.inspectPopup = msg.text
		m.status = "inspect popup"
		return m, nil

	case tea.KeyMsg:
		// If list is visible and filtering, send keys to list and ignore global commands
		if m.showSidebar && m.l.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.l, cmd = m.l.Update(msg)
			return m, cmd
		}
		if m.prompt != promptNone {
			return m.updatePrompt(msg)
		}
		return m.updateKey(msg)

	case tea.MouseMsg:
		return m.updateMouse(msg)
	}
	// Pass messages to list when visible
	if m.showSidebar {
		var cmd tea.Cmd
		m.l, cmd = m.l.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// the file list owns vertical movement while it is open
	if m.showSidebar {
		switch msg.String() {
		case "up", "down", "pgup", "pgdown", "/":
			var cmd tea.Cmd
			m.l, cmd = m.l.Update(msg)
			return m, cmd
		}
	}
	switch msg.String() {
	case "ctrl+c", "q":
		m.seq.Stop()
		return m, tea.Quit
	case "+", "=":
		m.deb.Scroll(1)
		cmd := m.startTicking()
		return m, cmd
	case "-", "_":
		m.deb.Scroll(-1)
		cmd := m.startTicking()
		return m, cmd
	case "up":
		m.deb.Nudge(0, -nudgePixels)
		cmd := m.startTicking()
		return m, cmd
	case "down":
		m.deb.Nudge(0, nudgePixels)
		cmd := m.startTicking()
		return m, cmd
	case "left":
		m.deb.Nudge(-nudgePixels, 0)
		cmd := m.startTicking()
		return m, cmd
	case "right":
		m.deb.Nudge(nudgePixels, 0)
		cmd := m.startTicking()
		return m, cmd
	case "r":
		m.status = "reloading"
		cmd := m.reload()
		return m, cmd
	case "s":
		if m.loader == nil {
			return m, nil
		}
		next := tess.Tessellator(tess.EarClip{})
		if _, ok := m.loader.Tessellator().(tess.EarClip); ok {
			rule, _ := tess.ParseFillRule(m.cfg.FillRule)
			next = tess.Fill{Rule: rule}
		}
		m.loader = m.loader.WithTessellator(next)
		m.status = "tessellator: " + tessName(next)
		cmd := m.reload()
		return m, cmd
	case "c":
		if m.loader != nil {
			if b, ok := pipeline.Bounds(m.loader.Source()); ok {
				m.fit(b)
				cmd := m.reload()
				return m, cmd
			}
		}
		m.status = "source extent unknown"
	case "w":
		m.wireframe = !m.wireframe
	case "tab":
		m.showSidebar = !m.showSidebar
		if m.showSidebar {
			m.refreshDir()
			_, _, _, h := m.layout()
			m.l.SetSize(sidebarWidth-2, h-2)
		}
	case "g":
		m.openPrompt(promptGoto, "lon lat [zoom]  Enter to go, Esc to cancel")
		m.status = "goto"
	case "p":
		m.openPrompt(promptWKT, "Paste WKT here (POINT, LINESTRING, POLYGON, MULTI*). Press Enter to render; Esc to cancel.")
		m.status = "paste mode"
	case "h":
		m.helpVisible = !m.helpVisible
	case "a":
		m.showAttrs = !m.showAttrs
		if m.showAttrs {
			m.refreshAttrsFromCurrent()
		}
	case "i":
		if m.inspectPopup != "" {
			m.inspectPopup = ""
			return m, nil
		}
		return m, m.inspect()
	case "esc":
		m.inspectPopup = ""
	case "enter":
		if m.showSidebar {
			if it, ok := m.l.SelectedItem().(fileItem); ok {
				m.status = "opening " + filepath.Base(it.path)
				return m, m.openSource(it.path)
			}
		}
	}
	if m.showSidebar {
		var cmd tea.Cmd
		m.l, cmd = m.l.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) openPrompt(mode promptMode, placeholder string) {
	m.prompt = mode
	m.ta.SetValue("")
	m.ta.Placeholder = placeholder
	m.ta.Focus()
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.prompt = promptNone
		m.ta.Blur()
		m.status = "view mode"
		return m, nil
	case "enter":
		in := strings.TrimSpace(m.ta.Value())
		if in == "" {
			m.status = "prompt: empty"
			return m, nil
		}
		mode := m.prompt
		m.prompt = promptNone
		m.ta.Blur()
		if mode == promptGoto {
			return m.gotoInput(in)
		}
		return m.pasteWKT(in)
	}
	var cmd tea.Cmd
	m.ta, cmd = m.ta.Update(msg)
	return m, cmd
}

// gotoInput recenters on "lon lat" with an optional zoom.
func (m Model) gotoInput(in string) (tea.Model, tea.Cmd) {
	fields := strings.FieldsFunc(in, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) < 2 || len(fields) > 3 {
		m.status = "goto: want lon lat [zoom]"
		return m, nil
	}
	var vals []float64
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			m.status = "goto: " + err.Error()
			return m, nil
		}
		vals = append(vals, v)
	}
	m.view.Center = geom.Point{vals[0], vals[1]}
	m.view.Offset = geom.Point{}
	if len(vals) == 3 && vals[2] > 0 {
		m.view.Zoom = m.view.ClampZoom(vals[2])
	}
	m.deb.Reset(m.view.Offset, m.view.Zoom)
	m.status = fmt.Sprintf("goto %.5f, %.5f", vals[0], vals[1])
	cmd := m.reload()
	return m, cmd
}

// pasteWKT replaces the source with the pasted geometry.
func (m Model) pasteWKT(in string) (tea.Model, tea.Cmd) {
	d, err := geom.ParseWKTData(in)
	if err != nil {
		m.status = "wkt error: " + err.Error()
		return m, nil
	}
	return m.onSource(sourceMsg{location: "<pasted wkt>", src: memsource.New(d)})
}

func (m Model) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	ox, oy, w, h := m.layout()
	cx, cy := msg.X-ox, msg.Y-oy
	inside := cx >= 0 && cx < w && cy >= 0 && cy < h
	var cmd tea.Cmd

	switch {
	case msg.Button == tea.MouseButtonWheelUp && inside:
		m.deb.Scroll(1)
		cmd = m.startTicking()
	case msg.Button == tea.MouseButtonWheelDown && inside:
		m.deb.Scroll(-1)
		cmd = m.startTicking()
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft && inside:
		m.dragging = true
		m.lastMouseX, m.lastMouseY = msg.X, msg.Y
		m.deb.PressButton()
		cmd = m.startTicking()
	case msg.Action == tea.MouseActionRelease && m.dragging:
		m.dragging = false
		m.deb.ReleaseButton()
		cmd = m.startTicking()
	case msg.Action == tea.MouseActionMotion && m.dragging:
		// one cell is 2x4 braille pixels
		m.deb.Drag(float64((msg.X-m.lastMouseX)*2), float64((msg.Y-m.lastMouseY)*4))
		m.lastMouseX, m.lastMouseY = msg.X, msg.Y
		cmd = m.startTicking()
	}

	// track hover over map area for the footer
	m.hovering = inside
	m.hoverHasGeo = false
	if inside {
		if lon, lat, ok := m.cellToLonLat(cx, cy, w, h); ok {
			m.hoverHasGeo = true
			m.hoverLon, m.hoverLat = lon, lat
		}
	}
	return m, cmd
}

// startTicking schedules evaluation of pending input unless a tick is
// already on its way.
func (m *Model) startTicking() tea.Cmd {
	if m.ticking {
		return nil
	}
	m.ticking = true
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) onTick() (tea.Model, tea.Cmd) {
	m.ticking = false
	var cmds []tea.Cmd
	if r, ok := m.deb.Evaluate(); ok {
		m.view.Apply(r)
		m.log.Debug("viewport settled",
			zap.Bool("offset_changed", r.OffsetChanged),
			zap.Bool("zoom_changed", r.ZoomChanged),
			zap.Float64("zoom", m.view.Zoom))
		cmds = append(cmds, m.reload())
	}
	if m.deb.Pending() {
		m.ticking = true
		cmds = append(cmds, tick())
	}
	return m, tea.Batch(cmds...)
}

// mapPixels returns the size of the map canvas in braille pixels.
func (m Model) mapPixels() (int, int) {
	_, _, w, h := m.layout()
	return w * 2, h * 4
}

// reload starts a reload of the settled view. Older reloads still running
// are cancelled and their results discarded.
func (m *Model) reload() tea.Cmd {
	if m.loader == nil || m.width == 0 || m.height == 0 {
		return nil
	}
	w, h := m.mapPixels()
	seq, ctx := m.seq.Issue(context.Background())
	req := pipeline.Request{Seq: seq, View: m.view, Width: w, Height: h}
	loader := m.loader
	m.loading = true
	return func() tea.Msg {
		res, err := loader.Load(ctx, req)
		return reloadMsg{seq: seq, res: res, err: err}
	}
}

func (m Model) onReload(msg reloadMsg) Model {
	if !m.seq.Commit(msg.seq) {
		m.log.Debug("discarding stale reload", zap.Uint64("seq", msg.seq), zap.Uint64("latest", m.seq.Latest()))
		return m
	}
	m.loading = false
	if msg.err != nil {
		if errors.Is(msg.err, context.Canceled) {
			return m
		}
		// keep showing the previous mesh
		m.log.Error("reload failed", zap.Uint64("seq", msg.seq), zap.Error(msg.err))
		m.status = "reload failed: " + msg.err.Error()
		return m
	}
	m.mesh = msg.res.Mesh
	m.meshProj = msg.res.Projection
	m.stats = msg.res.Stats
	m.hasMesh = true
	m.status = fmt.Sprintf("%s  features=%d polys=%d tris=%d skipped=%d  read=%s tess=%s",
		tessName(m.loader.Tessellator()),
		m.stats.Features, m.stats.Polygons, m.stats.Triangles,
		m.stats.SkippedFeatures+m.stats.SkippedPolygons,
		m.stats.Read.Round(time.Millisecond), m.stats.Tessellate.Round(time.Millisecond))
	return m
}

// openSource opens location in the background.
func (m Model) openSource(location string) tea.Cmd {
	opts := pipeline.OpenOptions{
		HTTPTimeout: time.Duration(m.cfg.HTTPTimeout),
		ReadAhead:   m.cfg.ReadAhead,
		Log:         m.log,
	}
	return func() tea.Msg {
		src, err := pipeline.Open(context.Background(), location, opts)
		return sourceMsg{location: location, src: src, err: err}
	}
}

func (m Model) onSource(msg sourceMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.log.Error("open source", zap.String("location", msg.location), zap.Error(msg.err))
		m.status = "load error: " + msg.err.Error()
		return m, nil
	}
	m.seq.Stop()
	t := m.tessellator()
	if m.loader != nil {
		t = m.loader.Tessellator()
		if err := m.loader.Source().Close(); err != nil {
			m.log.Warn("close source", zap.String("location", m.location), zap.Error(err))
		}
	}
	m.location = msg.location
	m.loader = pipeline.NewLoader(msg.src, t, m.log)
	m.mesh, m.hasMesh = mesh.Mesh{}, false
	m.status = "loaded: " + filepath.Base(msg.location)
	m.log.Info("source opened", zap.String("location", msg.location))
	// stay on the configured view when it shows part of the data
	if b, ok := pipeline.Bounds(msg.src); ok && !b.Contains(m.view.Center) {
		m.fit(b)
	}
	if m.showAttrs {
		m.refreshAttrsFromCurrent()
	}
	cmd := m.reload()
	return m, cmd
}

// fit centers the view on b at a resolution that shows all of it.
func (m *Model) fit(b geom.BBox) {
	w, h := m.mapPixels()
	if w <= 0 || h <= 0 {
		w, h = 160, 96
	}
	m.view.Center = b.Center()
	m.view.Offset = geom.Point{}
	m.view.Zoom = 1
	if res := max(b.Width()/float64(w), b.Height()/float64(h)); res > 0 {
		m.view.Resolution = res * 1.05
	}
	m.deb.Reset(m.view.Offset, m.view.Zoom)
}

func tessName(t tess.Tessellator) string {
	switch t := t.(type) {
	case tess.Fill:
		return "fill/" + t.Rule.String()
	case tess.EarClip:
		return "earcut"
	}
	return fmt.Sprintf("%T", t)
}
