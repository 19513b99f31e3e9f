package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/deepsim/internal/aggregator"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	graphStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

const historyLen = 60

type statusMsg aggregator.Status

type closedMsg struct{}

type tickMsg time.Time

// Monitor is a live dashboard of the workers connected to a server.
type Monitor struct {
	events     <-chan aggregator.Status
	statuses   map[int]aggregator.Status
	history    map[int][]float64
	cursor     int
	maxSamples int
	started    time.Time
	now        time.Time
	done       bool

	width  int
	height int
}

func NewMonitor(events <-chan aggregator.Status, maxSamples int) Monitor {
	now := time.Now()
	return Monitor{
		events:     events,
		statuses:   make(map[int]aggregator.Status),
		history:    make(map[int][]float64),
		maxSamples: maxSamples,
		started:    now,
		now:        now,
		width:      80,
		height:     24,
	}
}

func (m Monitor) Init() tea.Cmd {
	return tea.Batch(wait(m.events), tick())
}

func wait(events <-chan aggregator.Status) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return statusMsg(st)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.statuses)-1 {
				m.cursor++
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()
	case closedMsg:
		m.done = true
		return m, nil
	case statusMsg:
		st := aggregator.Status(msg)
		prev, seen := m.statuses[st.InstanceID]
		m.statuses[st.InstanceID] = st
		if st.Samples > 0 && (!seen || st.Samples != prev.Samples) {
			h := append(m.history[st.InstanceID], st.MeanDisplacement)
			if len(h) > historyLen {
				h = h[len(h)-historyLen:]
			}
			m.history[st.InstanceID] = h
		}
		return m, wait(m.events)
	}
	return m, nil
}

func (m Monitor) ids() []int {
	ids := make([]int, 0, len(m.statuses))
	for id := range m.statuses {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m Monitor) View() string {
	var b strings.Builder
	total := 0
	for _, st := range m.statuses {
		total += st.Samples
	}

	b.WriteString(headerStyle.Render("DEEPSIM SERVER") + "  ")
	samples := fmt.Sprintf("%d samples", total)
	if m.maxSamples > 0 {
		samples = fmt.Sprintf("%d/%d samples", total, m.maxSamples)
	}
	b.WriteString(white.Render(samples) + dim.Render(fmt.Sprintf("  up %s", m.now.Sub(m.started).Truncate(time.Second))) + "\n\n")

	ids := m.ids()
	if len(ids) == 0 {
		b.WriteString(dim.Render("  waiting for workers...") + "\n")
	}
	b.WriteString(dim.Render(fmt.Sprintf("  %-4s %-18s %-7s %8s %6s  %s", "id", "environment", "mode", "samples", "step", "state")) + "\n")
	for i, id := range ids {
		st := m.statuses[id]
		pointer := "  "
		if i == m.cursor {
			pointer = cyan.Render("> ")
		}
		b.WriteString(pointer + fmt.Sprintf("%-4d %-18s %-7s %8d %6d  ", st.InstanceID, st.Environment, st.Mode, st.Samples, st.LastStep))
		b.WriteString(stateLabel(st) + "\n")
	}

	if m.cursor < len(ids) {
		id := ids[m.cursor]
		if h := m.history[id]; len(h) > 1 {
			chart := asciigraph.Plot(h, asciigraph.Height(4), asciigraph.Width(40),
				asciigraph.Caption(fmt.Sprintf("mean displacement, instance %d", id)))
			b.WriteString("\n" + graphStyle.Render(chart) + "\n")
		}
	}

	if m.done {
		b.WriteString("\n" + magenta.Render("server stopped") + "\n")
	}
	b.WriteString("\n" + dim.Render("↑/↓ select  q quit") + "\n")
	return b.String()
}

func stateLabel(st aggregator.Status) string {
	switch {
	case st.Err != "":
		return yellow.Render("error: " + st.Err)
	case st.Connected:
		return green.Render("connected")
	default:
		return dim.Render("done")
	}
}
