// Package tui draws a live progress bar for interactive runs.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	padding  = 2
	maxWidth = 60
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type progressMsg struct {
	completed int
	total     int
}

type finishMsg struct{}

type model struct {
	title     string
	bar       progress.Model
	completed int
	total     int
	done      bool
}

func newModel(title string) model {
	return model{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxWidth-padding*2)),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.completed, m.total = msg.completed, msg.total
		return m, nil
	case finishMsg:
		m.done = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-padding*2-4, maxWidth)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.completed) / float64(m.total)
}

func (m model) View() string {
	pad := strings.Repeat(" ", padding)
	var b strings.Builder
	b.WriteString("\n" + pad + titleStyle.Render(m.title) + "\n\n")
	b.WriteString(pad + m.bar.ViewAs(m.percent()) + " ")
	b.WriteString(countStyle.Render(fmt.Sprintf("%d/%d", m.completed, m.total)))
	b.WriteString("\n")
	if m.done {
		b.WriteString("\n")
	}
	return b.String()
}

// Progress runs a bubbletea program that renders to out until Finish.
type Progress struct {
	program *tea.Program
	done    chan struct{}
}

// Start launches the program. It does not read from stdin.
func Start(out io.Writer, title string) *Progress {
	p := &Progress{
		program: tea.NewProgram(newModel(title), tea.WithOutput(out), tea.WithInput(nil)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
	return p
}

// Update is safe to call from any goroutine.
func (p *Progress) Update(completed, total int) {
	p.program.Send(progressMsg{completed: completed, total: total})
}

// Finish renders the final frame and waits for the program to exit.
func (p *Progress) Finish() {
	p.program.Send(finishMsg{})
	<-p.done
}
