// File path: internal/tui/wizard.go
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/consultflow/consultflow/internal/consultation"
	"github.com/consultflow/consultflow/internal/form"
	"github.com/consultflow/consultflow/internal/session"
)

// fieldSpec describes one input on a wizard step. List fields accept
// comma-separated values and are stored as string lists.
type fieldSpec struct {
	key         string
	label       string
	placeholder string
	list        bool
}

var stepFields = map[form.Section][]fieldSpec{
	form.SectionContact: {
		{key: "name", label: "Name", placeholder: "Ada Lovelace"},
		{key: "email", label: "Email", placeholder: "ada@example.com"},
		{key: "phone", label: "Phone", placeholder: "+1 555 0100"},
	},
	form.SectionBusiness: {
		{key: "company", label: "Company", placeholder: "Acme Studio"},
		{key: "industry", label: "Industry", placeholder: "e-commerce"},
		{key: "description", label: "What does the business do?"},
	},
	form.SectionPainPoints: {
		{key: "pain_points", label: "Pain points (comma separated)", list: true},
		{key: "notes", label: "Anything else?"},
	},
	form.SectionGoals: {
		{key: "goals", label: "Goals (comma separated)", list: true},
		{key: "timeline", label: "Timeline", placeholder: "3 months"},
		{key: "budget_range", label: "Budget range", placeholder: "10-20k"},
	},
}

type saveResultMsg struct{ err error }
type submitResultMsg struct {
	record consultation.Consultation
	err    error
}

// Options configure the wizard runtime.
type Options struct {
	Session *session.Session
	Agency  consultation.Agency
	// Timeout bounds the manual save and submit calls issued from the UI.
	Timeout time.Duration
}

// Model is the bubbletea model for the intake wizard. All form mutation goes
// through the session, which serializes against the auto-saver.
type Model struct {
	sess    *session.Session
	agency  consultation.Agency
	styles  styles
	timeout time.Duration

	inputs  []textinput.Model
	focus   int
	notice  string
	done    bool
	failure string
}

// NewModel builds the wizard positioned on the session's current step.
func NewModel(opts Options) Model {
	m := Model{
		sess:    opts.Session,
		agency:  opts.Agency,
		styles:  newStyles(opts.Agency.BrandColor),
		timeout: opts.Timeout,
	}
	if m.timeout <= 0 {
		m.timeout = 10 * time.Second
	}
	m.rebuildInputs()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case saveResultMsg:
		if msg.err != nil {
			m.failure = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			m.failure = ""
			m.notice = "saved"
		}
		return m, nil
	case submitResultMsg:
		if msg.err != nil {
			m.failure = fmt.Sprintf("submit failed: %v", msg.err)
			return m, nil
		}
		m.done = true
		m.notice = fmt.Sprintf("consultation %s completed (%d%%)", msg.record.ID, msg.record.CompletionPercentage)
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.sess.Close()
		return m, tea.Quit
	case "ctrl+s":
		return m, m.saveCmd()
	case "ctrl+d":
		if m.onLastStep() {
			return m, m.submitCmd()
		}
		m.failure = "finish the remaining steps before submitting"
		return m, nil
	case "ctrl+n", "enter":
		if msg.String() == "enter" && m.focus < len(m.inputs)-1 {
			m.setFocus(m.focus + 1)
			return m, nil
		}
		return m.nextStep()
	case "ctrl+p":
		if m.sess.State().Retreat() {
			m.rebuildInputs()
		}
		return m, nil
	case "tab", "down":
		m.setFocus(m.focus + 1)
		return m, nil
	case "shift+tab", "up":
		m.setFocus(m.focus - 1)
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	m.pushSection()
	return m, cmd
}

func (m *Model) nextStep() (tea.Model, tea.Cmd) {
	state := m.sess.State()
	if !state.ValidateCurrentStep() {
		m.failure = strings.Join(state.Errors(state.CurrentSection()), "; ")
		return m, nil
	}
	if m.onLastStep() {
		return m, m.submitCmd()
	}
	if !state.Advance() {
		m.failure = "fill in this step before moving on"
		return m, nil
	}
	m.failure = ""
	m.rebuildInputs()
	return m, nil
}

func (m *Model) onLastStep() bool {
	return m.sess.State().CurrentStep() == form.StepCount()-1
}

// pushSection rebuilds the current section payload from the inputs and hands
// it to the session wholesale.
func (m *Model) pushSection() {
	section := m.sess.State().CurrentSection()
	specs := stepFields[section]
	data := form.SectionData{}
	for i, spec := range specs {
		value := strings.TrimSpace(m.inputs[i].Value())
		if value == "" {
			continue
		}
		if spec.list {
			parts := strings.Split(value, ",")
			items := make([]string, 0, len(parts))
			for _, part := range parts {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					items = append(items, trimmed)
				}
			}
			data[spec.key] = items
		} else {
			data[spec.key] = value
		}
	}
	m.sess.UpdateSection(section, data)
	m.notice = ""
}

func (m *Model) rebuildInputs() {
	section := m.sess.State().CurrentSection()
	existing := m.sess.State().Section(section)
	specs := stepFields[section]
	m.inputs = make([]textinput.Model, len(specs))
	for i, spec := range specs {
		input := textinput.New()
		input.Placeholder = spec.placeholder
		input.CharLimit = 256
		if spec.list {
			input.SetValue(strings.Join(existing.ListField(spec.key), ", "))
		} else {
			input.SetValue(existing.StringField(spec.key))
		}
		m.inputs[i] = input
	}
	m.focus = 0
	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
	m.failure = ""
}

func (m *Model) setFocus(index int) {
	if len(m.inputs) == 0 {
		return
	}
	if index < 0 {
		index = len(m.inputs) - 1
	}
	if index >= len(m.inputs) {
		index = 0
	}
	m.inputs[m.focus].Blur()
	m.focus = index
	m.inputs[m.focus].Focus()
}

func (m Model) saveCmd() tea.Cmd {
	sess, timeout := m.sess, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return saveResultMsg{err: sess.Save(ctx)}
	}
}

func (m Model) submitCmd() tea.Cmd {
	sess, timeout := m.sess, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		record, err := sess.Submit(ctx)
		return submitResultMsg{record: record, err: err}
	}
}

func (m Model) View() string {
	if m.done {
		return m.styles.statusOK.Render("✓ "+m.notice) + "\n"
	}

	state := m.sess.State()
	section := state.CurrentSection()
	var b strings.Builder

	b.WriteString(m.styles.title.Render(m.agency.Name) + "\n")
	b.WriteString(m.styles.step.Render(fmt.Sprintf("Step %d of %d — %s", state.CurrentStep()+1, form.StepCount(), section.Title())))
	b.WriteString("\n\n")

	specs := stepFields[section]
	for i, spec := range specs {
		label := spec.label
		if i == m.focus {
			b.WriteString(m.styles.focused.Render("» "+label) + "\n")
		} else {
			b.WriteString(m.styles.label.Render("  "+label) + "\n")
		}
		b.WriteString("  " + m.inputs[i].View() + "\n")
	}

	if m.failure != "" {
		b.WriteString("\n" + m.styles.errline.Render(m.failure) + "\n")
	}

	b.WriteString("\n" + m.statusLine() + "\n")
	b.WriteString(m.styles.help.Render("enter next · ctrl+p back · ctrl+s save · ctrl+d submit · esc quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) statusLine() string {
	switch {
	case m.sess.AutoSaveExhausted():
		return m.styles.errline.Render("not saved")
	case m.notice != "":
		return m.styles.statusOK.Render(m.notice)
	case m.sess.Dirty():
		return m.styles.status.Render("unsaved changes")
	default:
		if at := m.sess.LastSavedAt(); at != nil {
			return m.styles.status.Render("saved " + at.Local().Format("15:04:05"))
		}
		return m.styles.status.Render("ready")
	}
}
