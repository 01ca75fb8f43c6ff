package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/typestream/resfile"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectExport modelState = iota
	stateShowListing
	stateFilter
)

type interactiveModel struct {
	err      error
	file     *resfile.File
	filename string
	// lines holds the rendered listing of the selected export.
	lines    []string
	filter   textinput.Model
	view     viewport.Model
	selected int
	width    int
	height   int
	state    modelState
}

type loadedMsg struct {
	err  error
	file *resfile.File
}

func newInteractiveModel(filename string) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "filter"
	ti.Prompt = "/ "
	return &interactiveModel{
		filename: filename,
		filter:   ti,
		view:     viewport.New(80, 20),
		state:    stateSelectExport,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	f, err := resfile.Open(data)
	return loadedMsg{err: err, file: f}
}

// render lists export i through a plain printer so the viewport can filter
// the lines as text.
func (m *interactiveModel) render(i int) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)
	ins, err := m.file.Disassemble(i)
	p.listing(ins, m.file)
	if err != nil {
		p.error(err)
	}
	m.lines = strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	m.applyFilter()
}

func (m *interactiveModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	if q == "" {
		m.view.SetContent(strings.Join(m.lines, "\n"))
		return
	}
	var kept []string
	for _, l := range m.lines {
		if strings.Contains(strings.ToLower(l), q) {
			kept = append(kept, l)
		}
	}
	m.view.SetContent(strings.Join(kept, "\n"))
	m.view.GotoTop()
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-5, 1)

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.file = msg.file

	case tea.KeyMsg:
		if m.state == stateFilter {
			switch msg.String() {
			case "enter", "esc":
				m.filter.Blur()
				m.state = stateShowListing
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectExport && m.selected > 0 {
				m.selected--
				return m, nil
			}

		case "down", "j":
			if m.state == stateSelectExport && m.file != nil && m.selected < len(m.file.Tables.Exports)-1 {
				m.selected++
				return m, nil
			}

		case "enter":
			if m.state == stateSelectExport && m.file != nil && len(m.file.Tables.Exports) > 0 {
				m.render(m.selected)
				m.state = stateShowListing
				return m, nil
			}

		case "/":
			if m.state == stateShowListing {
				m.state = stateFilter
				return m, m.filter.Focus()
			}

		case "esc":
			if m.state == stateShowListing {
				m.state = stateSelectExport
				m.filter.SetValue("")
				m.lines = nil
				return m, nil
			}
		}
	}

	if m.state == stateShowListing {
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.file == nil {
		return "Loading resource file..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("opdump"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectExport:
		t := m.file.Tables
		b.WriteString(fmt.Sprintf("%d exports, %d imports, %d buffers\n\n", len(t.Exports), len(t.Imports), len(t.Buffers)))
		for i, e := range t.Exports {
			row := fmt.Sprintf("#%-4d %-24s %d bytes", i+1, m.file.ExportClass(i), e.Size)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + row))
			} else {
				b.WriteString("  " + row)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter list • q quit"))

	case stateShowListing, stateFilter:
		b.WriteString(m.view.View())
		b.WriteString("\n")
		if m.state == stateFilter || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render(fmt.Sprintf("%3.f%% • / filter • esc back • q quit", m.view.ScrollPercent()*100)))
	}
	return b.String()
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newInteractiveModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
