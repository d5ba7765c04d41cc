package tui

import (
	"os"

	list "github.com/charmbracelet/bubbles/list"
	table "github.com/charmbracelet/bubbles/table"
	textarea "github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"fgbmap/internal/config"
	"fgbmap/internal/debounce"
	"fgbmap/internal/mesh"
	"fgbmap/internal/pipeline"
	"fgbmap/internal/tess"
	"fgbmap/internal/viewport"
)

type promptMode int

const (
	promptNone promptMode = iota
	promptGoto
	promptWKT
)

type Model struct {
	width  int
	height int

	showSidebar bool
	helpVisible bool
	wireframe   bool

	status string

	cfg config.Config
	log *zap.Logger

	// Source and reloads
	location string
	loader   *pipeline.Loader
	seq      *pipeline.Sequencer
	loading  bool

	// Camera: view is the settled state, deb holds unsettled input
	view    viewport.State
	deb     *debounce.Debouncer
	ticking bool

	// Displayed mesh and the projection it was built with
	mesh     mesh.Mesh
	meshProj viewport.Projection
	stats    pipeline.Stats
	hasMesh  bool

	// File explorer
	cwd   string
	l     list.Model
	items []list.Item

	// goto / paste prompt
	prompt promptMode
	ta     textarea.Model

	// inspect popup
	inspectPopup string

	// mouse
	dragging    bool
	lastMouseX  int
	lastMouseY  int
	hovering    bool
	hoverLon    float64
	hoverLat    float64
	hoverHasGeo bool

	// schema table
	showAttrs bool
	tbl       table.Model
}

type Options struct {
	Config config.Config
	Log    *zap.Logger
	// Clock drives the debouncer; nil means the wall clock.
	Clock debounce.Clock
}

// New builds the viewer. The configured source is opened by Init.
func New(opts Options) Model {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	view := opts.Config.Viewport()
	m := Model{
		helpVisible: true,
		status:      "fgbmap ready",
		cfg:         opts.Config,
		log:         log,
		location:    opts.Config.Source,
		seq:         &pipeline.Sequencer{},
		view:        view,
		deb:         debounce.New(opts.Config.Debounce(), opts.Clock, view.Offset, view.Zoom),
	}
	m.cwd, _ = os.Getwd()
	// list setup
	d := list.NewDefaultDelegate()
	d.ShowDescription = false
	m.l = list.New(nil, d, 0, 0)
	m.l.Title = "Files"
	m.l.SetShowHelp(false)
	m.l.SetShowStatusBar(false)
	m.l.SetFilteringEnabled(true)
	// textarea setup
	m.ta = textarea.New()
	m.ta.CharLimit = 0
	m.ta.SetWidth(50)
	m.ta.SetHeight(6)
	m.tbl = table.New(table.WithFocused(true))
	m.tbl.SetHeight(12)
	m.refreshDir()
	return m
}

func (m Model) Init() tea.Cmd {
	if m.location == "" {
		return nil
	}
	return m.openSource(m.location)
}

// tessellator returns the strategy new loaders start with.
func (m Model) tessellator() tess.Tessellator {
	t, err := m.cfg.NewTessellator()
	if err != nil {
		return tess.Fill{}
	}
	return t
}
