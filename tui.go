package main

import (
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parla/session"
	"parla/transcript"
)

// TUI message types
type StatusMsg struct {
	Status  session.Status
	Message string
}
type PartialMsg struct{ Partial transcript.Partial }
type TurnMsg struct{ Turn transcript.Turn }
type AudioLevelMsg struct{ Level float64 }
type HintMsg struct{ Text string }
type NoticeMsg struct{ Text string }

type tuiActions interface {
	Start()
	End()
	Copy()
}

type tuiModel struct {
	actions       tuiActions
	header        string
	status        session.Status
	message       string
	audioLevel    float64
	turns         []transcript.Turn
	partial       transcript.Partial
	hint          string
	notice        string
	width, height int
}

var statusColors = map[session.Status]lipgloss.Color{
	session.StatusIdle:       "241",
	session.StatusConnecting: "214",
	session.StatusListening:  "42",
	session.StatusSpeaking:   "39",
	session.StatusError:      "196",
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	tutorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
)

func NewTUIProgram(actions tuiActions, header string) *tea.Program {
	m := tuiModel{actions: actions, header: header}
	return tea.NewProgram(m, tea.WithAltScreen())
}

// tuiSink forwards controller events into the running program.
type tuiSink struct{ p *tea.Program }

func (s tuiSink) Status(st session.Status, msg string) { s.p.Send(StatusMsg{Status: st, Message: msg}) }
func (s tuiSink) Partial(p transcript.Partial)         { s.p.Send(PartialMsg{Partial: p}) }
func (s tuiSink) Turn(t transcript.Turn)               { s.p.Send(TurnMsg{Turn: t}) }
func (s tuiSink) Level(rms float64)                    { s.p.Send(AudioLevelMsg{Level: rms}) }
func (s tuiSink) Hint(text string)                     { s.p.Send(HintMsg{Text: text}) }
func (s tuiSink) Notice(text string)                   { s.p.Send(NoticeMsg{Text: text}) }

func (m tuiModel) Init() tea.Cmd {
	return nil
}

// action runs fn off the update loop; session calls may block briefly.
func action(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "s", "enter":
			m.notice = ""
			return m, action(m.actions.Start)
		case "e", "esc":
			return m, action(m.actions.End)
		case "c":
			return m, action(m.actions.Copy)
		}

	case StatusMsg:
		m.status = msg.Status
		m.message = msg.Message
		if msg.Status == session.StatusConnecting {
			m.turns = nil
			m.notice = ""
		}
		if !msg.Status.Active() {
			m.audioLevel = 0
			m.partial = transcript.Partial{}
		}

	case PartialMsg:
		m.partial = msg.Partial

	case TurnMsg:
		m.turns = append(m.turns, msg.Turn)

	case AudioLevelMsg:
		if m.status.Active() {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
		}

	case HintMsg:
		m.hint = msg.Text

	case NoticeMsg:
		m.notice = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Caricamento..."
	}

	var top []string
	title := titleStyle.Render("parla")
	if m.header != "" {
		title += dimStyle.Render("  " + m.header)
	}
	top = append(top, title, "")

	statusStyle := lipgloss.NewStyle().Foreground(statusColors[m.status]).Bold(true)
	status := statusStyle.Render("● " + m.status.Label())
	if m.status == session.StatusListening || m.status == session.StatusSpeaking {
		status += "  " + dimStyle.Render(levelBar(m.audioLevel, 20))
	}
	top = append(top, status)
	if m.message != "" {
		for _, line := range wrapText(m.message, max(m.width-2, 10)) {
			top = append(top, errorStyle.Render(line))
		}
	}
	if m.hint != "" {
		top = append(top, hintStyle.Render("⚠ "+m.hint))
	}
	if m.notice != "" {
		top = append(top, noticeStyle.Render(m.notice))
	}
	top = append(top, "")

	help := helpKeyStyle.Render("s") + helpStyle.Render(" avvia  ") +
		helpKeyStyle.Render("e") + helpStyle.Render(" termina  ") +
		helpKeyStyle.Render("c") + helpStyle.Render(" copia  ") +
		helpKeyStyle.Render("q") + helpStyle.Render(" esci  ") +
		helpStyle.Render("parla "+version)

	room := m.height - len(top) - 2
	body := m.transcriptLines(max(m.width-2, 10))
	if room < 1 {
		body = nil
	} else if len(body) > room {
		body = body[len(body)-room:]
	}

	lines := append(top, body...)
	for len(lines) < m.height-1 {
		lines = append(lines, "")
	}
	lines = append(lines, help)
	return lipgloss.NewStyle().PaddingLeft(1).Render(strings.Join(lines, "\n"))
}

func (m tuiModel) transcriptLines(width int) []string {
	var out []string
	add := func(label string, style lipgloss.Style, text string, textStyle *lipgloss.Style) {
		prefix := label + ": "
		wrapped := wrapText(strings.TrimSpace(text), max(width-len([]rune(prefix)), 10))
		for i, line := range wrapped {
			if textStyle != nil {
				line = textStyle.Render(line)
			}
			if i == 0 {
				out = append(out, style.Render(prefix)+line)
			} else {
				out = append(out, strings.Repeat(" ", len([]rune(prefix)))+line)
			}
		}
	}

	for _, t := range m.turns {
		style := tutorStyle
		if t.Speaker == transcript.SpeakerUser {
			style = userStyle
		}
		add(t.Speaker.Label(), style, t.Text, nil)
	}
	if m.partial.User != "" {
		add(transcript.SpeakerUser.Label(), userStyle, m.partial.User+"…", &partialStyle)
	}
	if m.partial.Model != "" {
		add(transcript.SpeakerModel.Label(), tutorStyle, m.partial.Model+"…", &partialStyle)
	}
	if len(out) == 0 && !m.status.Active() {
		out = append(out, dimStyle.Render("Premi s per iniziare a parlare con il tutor."))
	}
	return out
}

// levelBar scales rms logarithmically over 60 dB.
func levelBar(rms float64, width int) string {
	frac := 0.0
	if rms > 0 {
		frac = (20*math.Log10(rms) + 60) / 60
	}
	n := int(math.Round(min(max(frac, 0), 1) * float64(width)))
	return strings.Repeat("▮", n) + strings.Repeat("·", width-n)
}

func wrapText(text string, width int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(runes) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
