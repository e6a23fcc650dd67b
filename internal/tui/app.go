package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"why-did-it-move/internal/domain"
)

// Explainer is the pipeline surface the terminal UI consumes.
type Explainer interface {
	Explain(ctx context.Context, symbol, date string) (*domain.Explanation, error)
}

// Services bundles what a session gets injected with.
type Services struct {
	Explainer Explainer
	Username  string
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	resultStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type explainResultMsg struct {
	expl *domain.Explanation
	err  error
}

type AppModel struct {
	svc     Services
	input   textinput.Model
	spinner spinner.Model
	loading bool
	result  *domain.Explanation
	err     error
	width   int
	height  int
}

func NewAppModel(svc Services) *AppModel {
	ti := textinput.New()
	ti.Placeholder = "AAPL 2024-05-10"
	ti.Focus()
	ti.CharLimit = 24

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &AppModel{
		svc:     svc,
		input:   ti,
		spinner: sp,
	}
}

func (m *AppModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m *AppModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			symbol, date, ok := parseQuery(m.input.Value())
			if !ok {
				m.err = fmt.Errorf("enter a symbol and a date, e.g. AAPL 2024-05-10")
				return m, nil
			}
			m.loading = true
			m.err = nil
			m.result = nil
			return m, tea.Batch(m.spinner.Tick, m.explainCmd(symbol, date))
		}

	case explainResultMsg:
		m.loading = false
		m.result = msg.expl
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *AppModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("why did it move"))
	if m.svc.Username != "" {
		sb.WriteString(faintStyle.Render("  (" + m.svc.Username + ")"))
	}
	sb.WriteString("\n\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n\n")

	switch {
	case m.loading:
		sb.WriteString(m.spinner.View() + " gathering evidence and asking the analyst...\n")
	case m.err != nil:
		sb.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	case m.result != nil:
		sb.WriteString(resultStyle.Render(renderExplanation(m.result)) + "\n")
	default:
		sb.WriteString(faintStyle.Render("type a symbol and date, press enter") + "\n")
	}

	sb.WriteString("\n" + faintStyle.Render("enter: explain | esc: quit"))
	return sb.String()
}

func (m *AppModel) explainCmd(symbol, date string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		expl, err := m.svc.Explainer.Explain(ctx, symbol, date)
		return explainResultMsg{expl: expl, err: err}
	}
}

func parseQuery(raw string) (symbol, date string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) != 2 {
		return "", "", false
	}
	return strings.ToUpper(fields[0]), fields[1], true
}

func renderExplanation(e *domain.Explanation) string {
	var sb strings.Builder
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%s  %s  %+.2f%%", e.Symbol, e.Date, e.PriceChangePercent)))
	sb.WriteString("\n" + string(e.MoveClassification))
	sb.WriteString("\n\n" + e.Explanation)
	if e.PrimaryDriver != "" {
		sb.WriteString("\n\n" + labelStyle.Render("Driver: ") + e.PrimaryDriver)
	}
	for _, f := range e.SupportingFactors {
		sb.WriteString("\n  - " + f)
	}
	sb.WriteString(fmt.Sprintf("\n\nConfidence: %.0f%%", e.ConfidenceScore*100))
	if e.UncertaintyNote != "" {
		sb.WriteString("\n" + faintStyle.Render(e.UncertaintyNote))
	}
	return sb.String()
}
