// Package ui is the terminal front end for the playback pipeline. It
// renders the page's paragraphs with the currently spoken one
// highlighted and drives the controller from the keyboard.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pocketreader/readaloud/internal/speech"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#dddddd"}).
			Padding(0, 1)

	paragraphStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#3c3c3c", Dark: "#bbbbbb"})

	speakingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#ffffff"}).
			Background(lipgloss.AdaptiveColor{Light: "#ffd866", Dark: "#44475a"})

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6e6e6e", Dark: "#888888"})

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff5f5f"))

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffaf00"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9b9b9b", Dark: "#5c5c5c"})
)

// Model is the Bubble Tea model for the reader.
type Model struct {
	cfg      Config
	ctrl     *speech.Controller
	segments []speech.Segment
	notes    <-chan speech.Notification
	speed    *speech.SpeedControl

	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	width, height int
	ready         bool

	phase        speech.Phase
	current      int // 1-based segment being spoken, 0 when none
	total        int
	loadPercent  int
	loadLabel    string
	needsGesture bool
	errMsg       string
	done         bool
	quitting     bool
}

// NewModel builds the reader model. The controller must not have been
// started yet; the model issues the Start itself.
func NewModel(cfg Config, ctrl *speech.Controller, segments []speech.Segment) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	sc := speech.NewSpeedControl()
	if cfg.Speed != 0 {
		_ = sc.SetSpeed(cfg.Speed)
	}

	return Model{
		cfg:      cfg,
		ctrl:     ctrl,
		segments: segments,
		notes:    ctrl.Notifications(),
		speed:    sc,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		total:    len(segments),
	}
}

// NewProgram wraps the model in a Bubble Tea program.
func NewProgram(cfg Config, ctrl *speech.Controller, segments []speech.Segment) *tea.Program {
	return tea.NewProgram(NewModel(cfg, ctrl, segments), tea.WithAltScreen())
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		listenNotes(m.notes),
		startPlayback(m.ctrl, m.cfg.URL, m.segments, m.cfg.Voice, m.cfg.StartIndex, m.speed.Speed()),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - 6
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.progress.Width = msg.Width - 8
		m.viewport.SetContent(m.renderParagraphs())
		return m, nil

	case noteMsg:
		return m.handleNote(speech.Notification(msg))

	case notesClosedMsg:
		return m, tea.Quit

	case startErrMsg:
		m.errMsg = msg.err.Error()
		m.phase = speech.PhaseError
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.ctrl.Stop()
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.needsGesture {
			m.needsGesture = false
			m.ctrl.DismissGesture()
			return m, nil
		}
		m.ctrl.Stop()
		m.quitting = true
		return m, tea.Quit

	case "enter":
		if m.needsGesture {
			m.needsGesture = false
			m.ctrl.ConfirmGesture()
			return m, nil
		}
		if m.ctrl.State().IsStopped() {
			m.done = false
			m.errMsg = ""
			return m, startPlayback(m.ctrl, m.cfg.URL, m.segments, m.cfg.Voice, m.restartIndex(), m.speed.Speed())
		}
		return m, nil

	case " ":
		snap := m.ctrl.State()
		switch {
		case snap.IsPaused():
			m.ctrl.Resume()
		case snap.Phase == speech.PhasePlaying:
			m.ctrl.Pause()
		}
		return m, nil

	case "s":
		m.ctrl.Stop()
		return m, nil

	case "+", "=":
		_ = m.ctrl.SetSpeed(m.speed.Increase())
		return m, nil

	case "-", "_":
		_ = m.ctrl.SetSpeed(m.speed.Decrease())
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// restartIndex picks where enter restarts: at the segment that was
// playing when the session stopped, or the top after completion.
func (m Model) restartIndex() int {
	if m.done || m.current == 0 {
		return 0
	}
	return m.current - 1
}

func (m Model) handleNote(n speech.Notification) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{listenNotes(m.notes)}

	switch n.Kind {
	case speech.NoteProgress:
		m.phase = speech.PhaseLoading
		m.loadPercent = n.Percent
		m.loadLabel = n.Label
		cmds = append(cmds, m.progress.SetPercent(float64(n.Percent)/100))

	case speech.NotePlaying:
		m.phase = speech.PhasePlaying
		m.current = n.Current
		m.total = n.Total
		m.needsGesture = false
		if m.ready {
			m.viewport.SetContent(m.renderParagraphs())
			m.scrollToCurrent()
		}
		if n.Total > 0 {
			cmds = append(cmds, m.progress.SetPercent(float64(n.Current)/float64(n.Total)))
		}

	case speech.NotePaused:
		m.phase = speech.PhasePaused

	case speech.NoteResumed:
		m.phase = speech.PhasePlaying

	case speech.NoteStopped:
		m.phase = speech.PhaseIdle
		m.needsGesture = false

	case speech.NoteComplete:
		m.phase = speech.PhaseIdle
		m.done = true
		m.current = 0
		if m.ready {
			m.viewport.SetContent(m.renderParagraphs())
		}
		cmds = append(cmds, m.progress.SetPercent(1))

	case speech.NoteError:
		m.phase = speech.PhaseError
		m.errMsg = n.Message

	case speech.NoteNeedsGesture:
		m.needsGesture = true
	}

	return m, tea.Batch(cmds...)
}

// renderParagraphs lays the page text out with the spoken segment
// highlighted.
func (m Model) renderParagraphs() string {
	width := m.viewport.Width - 2
	if width < 10 {
		width = 10
	}
	if m.cfg.MaxWidth > 0 && width > m.cfg.MaxWidth {
		width = m.cfg.MaxWidth
	}

	var b strings.Builder
	for i, seg := range m.segments {
		style := paragraphStyle
		if m.current > 0 && i == m.current-1 {
			style = speakingStyle
		}
		b.WriteString(style.Width(width).Render(seg.Text))
		if i < len(m.segments)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// scrollToCurrent keeps the spoken paragraph in view.
func (m *Model) scrollToCurrent() {
	if m.current <= 0 || len(m.segments) == 0 {
		return
	}
	frac := float64(m.current-1) / float64(len(m.segments))
	offset := int(frac * float64(m.viewport.TotalLineCount()))
	offset -= m.viewport.Height / 3
	if offset < 0 {
		offset = 0
	}
	m.viewport.SetYOffset(offset)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return m.spinner.View() + " starting…"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.cfg.Title))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString("  " + m.progress.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  space pause · s stop · enter play · +/- speed · q quit"))
	return b.String()
}

func (m Model) statusLine() string {
	if m.needsGesture {
		return promptStyle.Render("  Audio is blocked. Press enter to play, esc to cancel.")
	}

	switch m.phase {
	case speech.PhaseLoading:
		label := m.loadLabel
		if label == "" {
			label = "Generating audio…"
		}
		return statusStyle.Render(fmt.Sprintf("  %s %s", m.spinner.View(), label))
	case speech.PhasePlaying:
		return statusStyle.Render(fmt.Sprintf("  Speaking segment %d of %d at %.2gx", m.current, m.total, m.speed.Speed()))
	case speech.PhasePaused:
		return statusStyle.Render(fmt.Sprintf("  Paused on segment %d of %d", m.current, m.total))
	case speech.PhaseError:
		return errorStyle.Render("  " + m.errMsg)
	default:
		if m.done {
			return statusStyle.Render("  Finished. Press enter to read again, q to quit.")
		}
		return statusStyle.Render("  Stopped. Press enter to resume, q to quit.")
	}
}
