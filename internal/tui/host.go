// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vizpipe/internal/pipeline"
	"vizpipe/internal/plugin"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultRefresh is the redraw interval of the visualizer, about 30 fps.
const DefaultRefresh = 33 * time.Millisecond

// GateControl toggles the input noise gate.
type GateControl interface {
	EnableGate()
	DisableGate()
	GateEnabled() bool
}

// KeyMap holds the visualizer key bindings.
type KeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Select key.Binding
	Off    key.Binding
	Gate   key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next:   key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next plugin")),
		Prev:   key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "previous")),
		Select: key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "activate")),
		Off:    key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "deactivate")),
		Gate:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "noise gate")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Select, k.Off, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Select, k.Off},
		{k.Gate, k.Help, k.Quit},
	}
}

// Options configure a VisualizerModel.
type Options struct {
	Title    string
	Registry *plugin.Registry
	Stats    func() pipeline.Stats // optional status line source
	Gate     GateControl           // optional
	Refresh  time.Duration
}

type tickMsg time.Time

// VisualizerModel hosts the plugin registry in the terminal: it draws the
// active plugin when that plugin is a plugin.Viewer and switches plugins on
// key presses. Activation runs on the bubbletea goroutine, which is the
// registry's control path.
type VisualizerModel struct {
	opts   Options
	keys   KeyMap
	help   help.Model
	width  int
	height int
	status string
	err    error
}

// NewVisualizerModel creates the host model.
func NewVisualizerModel(opts Options) VisualizerModel {
	if opts.Title == "" {
		opts.Title = "vizpipe"
	}
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}
	if opts.Registry == nil {
		opts.Registry = plugin.NewRegistry()
	}
	return VisualizerModel{
		opts:   opts,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		width:  80,
		height: 24,
	}
}

func (m VisualizerModel) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m VisualizerModel) Init() tea.Cmd {
	return m.tick()
}

func (m VisualizerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Next):
			m.cycle(1)
		case key.Matches(msg, m.keys.Prev):
			m.cycle(-1)
		case key.Matches(msg, m.keys.Select):
			m.activateIndex(int(msg.String()[0] - '1'))
		case key.Matches(msg, m.keys.Off):
			m.opts.Registry.Deactivate()
			m.setStatus("Visualization off", nil)
		case key.Matches(msg, m.keys.Gate):
			m.toggleGate()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

func (m *VisualizerModel) setStatus(status string, err error) {
	m.status, m.err = status, err
}

func (m *VisualizerModel) cycle(step int) {
	list := m.opts.Registry.List()
	if len(list) == 0 {
		m.setStatus("", fmt.Errorf("no plugins registered"))
		return
	}

	next := 0
	if active, ok := m.opts.Registry.Active(); ok {
		for i, d := range list {
			if d.ID == active.ID {
				next = (i + step + len(list)) % len(list)
				break
			}
		}
	} else if step < 0 {
		next = len(list) - 1
	}
	m.activate(list[next])
}

func (m *VisualizerModel) activateIndex(i int) {
	list := m.opts.Registry.List()
	if i < 0 || i >= len(list) {
		m.setStatus("", fmt.Errorf("no plugin in slot %d", i+1))
		return
	}
	m.activate(list[i])
}

func (m *VisualizerModel) activate(d plugin.Descriptor) {
	if err := m.opts.Registry.Activate(d.ID); err != nil {
		m.setStatus("", err)
		return
	}
	m.setStatus("Activated "+d.DisplayName, nil)
}

func (m *VisualizerModel) toggleGate() {
	if m.opts.Gate == nil {
		m.setStatus("", fmt.Errorf("noise gate not available"))
		return
	}
	if m.opts.Gate.GateEnabled() {
		m.opts.Gate.DisableGate()
		m.setStatus("Noise gate off", nil)
	} else {
		m.opts.Gate.EnableGate()
		m.setStatus("Noise gate on", nil)
	}
}

// Status returns the last status message and error.
func (m VisualizerModel) Status() (string, error) { return m.status, m.err }

func (m VisualizerModel) View() string {
	active, ok := m.opts.Registry.Active()
	name := "off"
	if ok {
		name = active.DisplayName
	}
	header := titleStyle.Render(m.opts.Title) + " " + highlightStyle.Render(name)

	footer := []string{m.statusLine()}
	switch {
	case m.err != nil:
		footer = append(footer, errorStyle.Render(m.err.Error()))
	case m.status != "":
		footer = append(footer, infoStyle.Render(m.status))
	}
	footer = append(footer, m.help.View(m.keys))
	footerText := strings.Join(footer, "\n")

	bodyHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(footerText)-2, 1)
	return header + "\n\n" + m.body(bodyHeight) + "\n\n" + footerText
}

func (m VisualizerModel) body(height int) string {
	p := m.opts.Registry.ActivePlugin()
	if p == nil {
		return dimStyle.Render(padLines("No active plugin. Press tab or 1-9 to choose one.", height))
	}
	viewer, ok := p.(plugin.Viewer)
	if !ok {
		return dimStyle.Render(padLines("Active plugin renders outside the terminal.", height))
	}
	return padLines(viewer.View(m.width, height), height)
}

func (m VisualizerModel) statusLine() string {
	parts := make([]string, 0, 5)
	if m.opts.Stats != nil {
		s := m.opts.Stats()
		parts = append(parts,
			fmt.Sprintf("%.1f BPM", s.BPM),
			fmt.Sprintf("blocks %d", s.Blocks),
			fmt.Sprintf("beats %d", s.Beats),
			fmt.Sprintf("delivered %d", s.Delivered),
		)
	}
	if m.opts.Gate != nil {
		gate := "gate off"
		if m.opts.Gate.GateEnabled() {
			gate = "gate on"
		}
		parts = append(parts, gate)
	}
	return dimStyle.Render(strings.Join(parts, " • "))
}

// padLines cuts or pads s to exactly height lines.
func padLines(s string, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// RunVisualizer runs the host model until the user quits or ctx is done.
func RunVisualizer(ctx context.Context, opts Options) error {
	p := tea.NewProgram(NewVisualizerModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
