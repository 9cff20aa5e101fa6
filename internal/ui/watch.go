package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/callrelay/internal/signaling"
)

const fetchTimeout = 5 * time.Second

// FetchFunc loads the relay's current room snapshot.
type FetchFunc func(ctx context.Context) (signaling.Snapshot, error)

type snapshotMsg struct {
	snap signaling.Snapshot
	err  error
	at   time.Time
}

type refreshMsg time.Time

// WatchModel polls the relay and shows a live roster.
type WatchModel struct {
	server   string
	fetch    FetchFunc
	interval time.Duration
	spinner  spinner.Model

	snap     *signaling.Snapshot
	err      error
	updated  time.Time
	quitting bool
}

func NewWatchModel(server string, fetch FetchFunc, interval time.Duration) *WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &WatchModel{
		server:   server,
		fetch:    fetch,
		interval: interval,
		spinner:  s,
	}
}

func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

func (m *WatchModel) load() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		snap, err := m.fetch(ctx)
		return snapshotMsg{snap: snap, err: err, at: time.Now()}
	}
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.load()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.err = msg.err
		m.updated = msg.at
		if msg.err == nil {
			snap := msg.snap
			m.snap = &snap
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg {
			return refreshMsg(t)
		})

	case refreshMsg:
		if m.quitting {
			return m, nil
		}
		return m, m.load()
	}
	return m, nil
}

func (m *WatchModel) View() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s callrelay %s", IconConnect, m.server)))
	b.WriteString("\n")

	switch {
	case m.snap == nil && m.err == nil:
		b.WriteString(fmt.Sprintf("%s Loading rooms...", m.spinner.View()))
	case m.snap != nil:
		b.WriteString(RosterView(*m.snap))
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(FormatError(m.err))
	}

	footer := "q quit, r refresh"
	if m.snap != nil {
		footer = fmt.Sprintf("%d connections · %d identities · updated %s · %s",
			m.snap.Connections, m.snap.Identities, m.updated.Format(time.TimeOnly), footer)
	}
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

// RunWatch runs the roster UI until the user quits.
func RunWatch(server string, fetch FetchFunc, interval time.Duration) error {
	_, err := tea.NewProgram(NewWatchModel(server, fetch, interval)).Run()
	return err
}
