package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/deepsim/internal/aggregator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, m Monitor, statuses ...aggregator.Status) Monitor {
	t.Helper()
	for _, st := range statuses {
		next, cmd := m.Update(statusMsg(st))
		require.NotNil(t, cmd, "the monitor keeps waiting for events")
		m = next.(Monitor)
	}
	return m
}

func TestMonitorEmpty(t *testing.T) {
	m := NewMonitor(make(chan aggregator.Status), 10)
	view := m.View()
	assert.Contains(t, view, "waiting for workers")
	assert.Contains(t, view, "0/10 samples")
}

func TestMonitorRows(t *testing.T) {
	m := NewMonitor(make(chan aggregator.Status), 0)
	m = feed(t, m,
		aggregator.Status{InstanceID: 1, Environment: "BeamGridTraining", Mode: "grid", Connected: true},
		aggregator.Status{InstanceID: 0, Environment: "BeamTraining", Mode: "direct", Samples: 4, LastStep: 4},
		aggregator.Status{InstanceID: 1, Environment: "BeamGridTraining", Mode: "grid", Err: "timeout"},
	)

	view := m.View()
	assert.Contains(t, view, "4 samples")
	assert.Contains(t, view, "BeamTraining")
	assert.Contains(t, view, "error: timeout")
	assert.Less(t, strings.Index(view, "BeamTraining"), strings.Index(view, "BeamGridTraining"), "rows are ordered by instance")
}

func TestMonitorHistory(t *testing.T) {
	m := NewMonitor(make(chan aggregator.Status), 0)
	for i := 1; i <= historyLen+5; i++ {
		m = feed(t, m, aggregator.Status{InstanceID: 0, Samples: i, MeanDisplacement: float64(i)})
	}
	// a repeated status does not add a point
	m = feed(t, m, aggregator.Status{InstanceID: 0, Samples: historyLen + 5, MeanDisplacement: 1})

	h := m.history[0]
	require.Len(t, h, historyLen)
	assert.Equal(t, float64(historyLen+5), h[len(h)-1])
	assert.Contains(t, m.View(), "mean displacement, instance 0")
}

func TestMonitorKeys(t *testing.T) {
	m := NewMonitor(make(chan aggregator.Status), 0)
	m = feed(t, m, aggregator.Status{InstanceID: 0}, aggregator.Status{InstanceID: 1})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Monitor)
	assert.Equal(t, 1, m.cursor)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, next.(Monitor).cursor)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestMonitorClosedEvents(t *testing.T) {
	events := make(chan aggregator.Status)
	close(events)
	m := NewMonitor(events, 0)

	msg := wait(events)()
	next, _ := m.Update(msg)
	assert.Contains(t, next.(Monitor).View(), "server stopped")
}
