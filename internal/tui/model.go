package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/roundtable-games/roundtable/internal/event"
	"github.com/roundtable-games/roundtable/internal/orchestrator"
	"github.com/roundtable-games/roundtable/internal/util"
)

const (
	defaultRefresh  = 250 * time.Millisecond
	defaultMaxLines = 200
	maxMessageText  = 160
)

// Options configure the view.
type Options struct {
	Refresh time.Duration
	// MaxLines bounds the activity log.
	MaxLines int
	// ExitWhenDone quits once every listed game has completed.
	ExitWhenDone bool
}

type tickMsg time.Time

type eventMsg struct {
	event event.Event
}

// Model is the Bubbletea model of the live view.
type Model struct {
	source Source
	opts   Options
	keys   keyMap
	help   help.Model

	games    []string
	selected int
	states   map[string]orchestrator.Snapshot
	activity []string
	status   string

	width    int
	height   int
	quitting bool
}

// NewModel creates a model over source.
func NewModel(source Source, opts Options) Model {
	if opts.Refresh <= 0 {
		opts.Refresh = defaultRefresh
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = defaultMaxLines
	}
	m := Model{
		source: source,
		opts:   opts,
		keys:   defaultKeyMap(),
		help:   help.New(),
		states: make(map[string]orchestrator.Snapshot),
	}
	m.refresh()
	return m
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.refresh()
		if m.opts.ExitWhenDone && m.allDone() {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.tick()

	case eventMsg:
		m.record(msg.event)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		if len(m.games) > 0 {
			m.selected = (m.selected + 1) % len(m.games)
		}
	case key.Matches(msg, m.keys.Prev):
		if len(m.games) > 0 {
			m.selected = (m.selected - 1 + len(m.games)) % len(m.games)
		}
	case key.Matches(msg, m.keys.Pause):
		m.togglePause()
	}
	return m, nil
}

func (m *Model) togglePause() {
	id, ok := m.selectedGame()
	if !ok {
		return
	}
	g, ok := m.source.Lookup(id)
	if !ok {
		return
	}
	switch {
	case g.Pause():
		m.status = fmt.Sprintf("%s paused", id)
	case g.Resume():
		m.status = fmt.Sprintf("%s resumed", id)
	default:
		m.status = fmt.Sprintf("%s has no running timer", id)
	}
	m.states[id] = g.State()
}

func (m *Model) refresh() {
	m.games = m.source.Games()
	if m.selected >= len(m.games) {
		m.selected = max(0, len(m.games)-1)
	}
	for _, id := range m.games {
		if g, ok := m.source.Lookup(id); ok {
			m.states[id] = g.State()
		}
	}
}

func (m Model) allDone() bool {
	if len(m.games) == 0 {
		return false
	}
	for _, id := range m.games {
		if !m.states[id].Completed {
			return false
		}
	}
	return true
}

func (m Model) selectedGame() (string, bool) {
	if len(m.games) == 0 {
		return "", false
	}
	return m.games[m.selected], true
}

func (m *Model) record(e event.Event) {
	line := formatEvent(e)
	if line == "" {
		return
	}
	m.activity = append(m.activity, line)
	if over := len(m.activity) - m.opts.MaxLines; over > 0 {
		m.activity = m.activity[over:]
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("roundtable"))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	if id, ok := m.selectedGame(); ok {
		b.WriteString(m.renderGame(m.states[id]))
	} else {
		b.WriteString(mutedStyle.Render("No games running."))
	}
	b.WriteString("\n")
	b.WriteString(m.renderActivity())

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(pausedStyle.Render(m.status))
	}
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(m.games))
	for i, id := range m.games {
		label := id
		if m.states[id].Completed {
			label += " ✓"
		}
		if i == m.selected {
			tabs[i] = tabActive.Render(label)
		} else {
			tabs[i] = tabInactive.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderGame(s orchestrator.Snapshot) string {
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value)
	}

	state := string(s.Phase)
	switch {
	case s.Completed:
		state = doneStyle.Render("COMPLETED")
	case s.Paused:
		state += " " + pausedStyle.Render("(paused)")
	}

	lines := []string{
		row("Phase", state),
		row("Round", fmt.Sprintf("%d", s.Round)),
		row("Remaining", s.PhaseRemaining.Truncate(time.Second).String()),
		row("Answers", fmt.Sprintf("%d/%d", s.Answers, len(s.Participants))),
	}
	if s.Speaker != "" {
		lines = append(lines, row("Speaker", s.Speaker))
	}
	for _, q := range s.Quotas {
		invited := "-"
		if len(q.Invited) > 0 {
			invited = strings.Join(q.Invited, ", ")
		}
		lines = append(lines, row(q.ParticipantID, fmt.Sprintf("%d left, invited %s", q.Remaining, invited)))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderActivity() string {
	n := 10
	if m.height > 0 {
		n = max(3, m.height-20)
	}
	start := max(0, len(m.activity)-n)
	lines := make([]string, 0, len(m.activity)-start)
	for _, line := range m.activity[start:] {
		lines = append(lines, util.Fit(line, m.width))
	}
	return strings.Join(lines, "\n")
}

// formatEvent renders an event as one activity line, or "" for events
// that are not shown.
func formatEvent(e event.Event) string {
	prefix := mutedStyle.Render(e.Timestamp().Format("15:04:05") + " " + e.GameID())
	var text string
	switch ev := e.(type) {
	case event.PhaseChangedEvent:
		text = fmt.Sprintf("round %d: %s", ev.Round, ev.To)
	case event.TurnStartedEvent:
		text = fmt.Sprintf("%s speaks", ev.ParticipantID)
	case event.MessageSentEvent:
		msg := util.Truncate(util.OneLine(ev.Text), maxMessageText)
		if ev.Receiver != "" {
			text = fmt.Sprintf("%s → %s: %s", ev.Sender, ev.Receiver, msg)
		} else {
			text = fmt.Sprintf("%s: %s", ev.Sender, msg)
		}
	case event.InvitationSentEvent:
		text = fmt.Sprintf("%s invited %s (%d left)", ev.Sender, ev.Receiver, ev.Remaining)
	case event.InvitationRejectedEvent:
		text = fmt.Sprintf("%s could not invite %s: %s", ev.Sender, ev.Receiver, ev.Reason)
	case event.AnswerSubmittedEvent:
		text = fmt.Sprintf("%s answered", ev.ParticipantID)
	case event.TaskFailedEvent:
		text = failureStyle.Render(fmt.Sprintf("%s failed in %s: %s", ev.ParticipantID, ev.Phase, ev.Err))
	case event.SessionCompletedEvent:
		text = doneStyle.Render(fmt.Sprintf("completed with %d answers", len(ev.Answers)))
	default:
		return ""
	}
	return prefix + " " + text
}
