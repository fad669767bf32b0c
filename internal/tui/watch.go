package tui

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/mediator"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/tui/styles"
)

// maxLogLines bounds the event history kept by the watch view.
const maxLogLines = 200

// Mediator is what the watch view reads and steers.
type Mediator interface {
	Snapshot() mediator.Snapshot
	SetPreferredAccess(resource.Access) error
	SetAccessPressure(resource.Pressure) error
	SetBroadcastInfo(map[string]any) error
	Scan() error
}

type eventMsg struct{ event event.Event }

// Model is the bubbletea model behind `arbiter watch`.
type Model struct {
	med    Mediator
	events <-chan event.Event

	keys    keyMap
	help    help.Model
	editing bool
	input   textinput.Model

	snap   mediator.Snapshot
	log    []string
	err    error
	width  int
	height int
}

// NewModel returns a watch model fed by events.
func NewModel(med Mediator, events <-chan event.Event) Model {
	ti := textinput.New()
	ti.Prompt = "info> "
	ti.Placeholder = "key=value,other=value (key= removes)"
	ti.CharLimit = 200
	ti.Width = 50

	h := help.New()
	h.Styles.ShortKey = styles.HelpKey
	h.Styles.ShortDesc = styles.Muted
	return Model{
		med:    med,
		events: events,
		keys:   defaultKeyMap(),
		help:   h,
		input:  ti,
		snap:   med.Snapshot(),
	}
}

func waitForEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: e}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case eventMsg:
		line := fmt.Sprintf("%s  %s", msg.event.Timestamp().Format("15:04:05"), DescribeEvent(msg.event))
		m.log = append(m.log, line)
		if len(m.log) > maxLogLines {
			m.log = m.log[len(m.log)-maxLogLines:]
		}
		m.snap = m.med.Snapshot()
		return m, waitForEvent(m.events)

	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.None):
		m.err = m.med.SetPreferredAccess(resource.AccessNone)
	case key.Matches(msg, m.keys.Shared):
		m.err = m.med.SetPreferredAccess(resource.AccessShared)
	case key.Matches(msg, m.keys.Blocking):
		m.err = m.med.SetPreferredAccess(resource.AccessBlocking)
	case key.Matches(msg, m.keys.Raise):
		m.err = m.med.SetAccessPressure(stepPressure(m.snap.AccessPressure, 1))
	case key.Matches(msg, m.keys.Lower):
		m.err = m.med.SetAccessPressure(stepPressure(m.snap.AccessPressure, -1))
	case key.Matches(msg, m.keys.Scan):
		m.err = m.med.Scan()
	case key.Matches(msg, m.keys.Info):
		m.editing = true
		m.input.Reset()
		return m, m.input.Focus()
	}
	m.snap = m.med.Snapshot()
	return m, nil
}

// handleEditKey feeds keys to the broadcast info prompt.
func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.editing = false
		m.input.Blur()
		info, err := ParseInfo(m.input.Value(), m.snap.BroadcastInfo)
		if err == nil {
			err = m.med.SetBroadcastInfo(info)
		}
		m.err = err
		m.snap = m.med.Snapshot()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ParseInfo applies comma-separated key=value pairs to a copy of current.
// A pair with an empty value removes the key.
func ParseInfo(s string, current map[string]any) (map[string]any, error) {
	info := maps.Clone(current)
	if info == nil {
		info = make(map[string]any)
	}
	for pair := range strings.SplitSeq(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%q is not key=value", pair)
		}
		if v = strings.TrimSpace(v); v == "" {
			delete(info, k)
			continue
		}
		info[k] = v
	}
	return info, nil
}

// pressureSteps are the named levels the +/- keys move between.
var pressureSteps = []resource.Pressure{
	resource.PressureNone,
	resource.PressureOptional,
	resource.PressurePartiallySupported,
	resource.PressureRequired,
}

// stepPressure moves p to the next named level in direction dir.
func stepPressure(p resource.Pressure, dir int) resource.Pressure {
	if dir > 0 {
		for _, s := range pressureSteps {
			if s > p {
				return s
			}
		}
		return resource.PressureRequired
	}
	for i := len(pressureSteps) - 1; i >= 0; i-- {
		if pressureSteps[i] < p {
			return pressureSteps[i]
		}
	}
	return resource.PressureNone
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	s := m.snap

	b.WriteString(styles.Title.Render(fmt.Sprintf("arbiter · %s", s.ResourceID)))
	b.WriteString("\n")

	self := fmt.Sprintf("pid %d   preferred %s   actual %s   pressure %s",
		s.PID, styles.Access(s.PreferredAccess), styles.Access(s.ActualAccess), s.AccessPressure)
	if s.LentTo != 0 {
		self += fmt.Sprintf("   lent to %d", s.LentTo)
	}
	if s.LentFrom != 0 {
		self += fmt.Sprintf("   borrowed from %d", s.LentFrom)
	}
	if len(s.Pending) > 0 {
		self += fmt.Sprintf("   waiting on %v", s.Pending)
	}
	if len(s.BroadcastInfo) > 0 {
		self += "   info " + formatInfo(s.BroadcastInfo)
	}
	b.WriteString(self)
	b.WriteString("\n\n")

	b.WriteString(UsersTable(s.Users, s.PID, true))

	if m.err != nil {
		b.WriteString(styles.ErrorMsg.Render(m.err.Error()))
		b.WriteString("\n")
	}

	used := lipgloss.Height(b.String()) + 4 // help bar and log border
	lines := m.log
	if m.height > 0 {
		room := max(m.height-used, 3)
		if len(lines) > room {
			lines = lines[len(lines)-room:]
		}
	}
	if len(lines) == 0 {
		lines = []string{styles.Muted.Render("waiting for events")}
	}
	logBox := styles.EventLog
	if m.width > 4 {
		logBox = logBox.Width(m.width - 2)
	}
	b.WriteString(logBox.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if m.editing {
		b.WriteString(styles.HelpBar.Render(m.input.View()))
	} else {
		b.WriteString(styles.HelpBar.Render(m.help.View(m.keys)))
	}
	return b.String()
}

// Watch runs the live view until the user quits or ctx ends.
func Watch(ctx context.Context, med Mediator, events *event.Bus) error {
	ch := make(chan event.Event, 64)
	id := events.SubscribeAll(func(e event.Event) {
		// A slow terminal drops events rather than stalling the mediator.
		select {
		case ch <- e:
		default:
		}
	})
	defer events.Unsubscribe(id)

	p := tea.NewProgram(NewModel(med, ch), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("watch view: %w", err)
	}
	return nil
}
