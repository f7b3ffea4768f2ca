package cli

import (
	"bufio"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Confirm renders prompt and blocks for a yes/no answer. It runs a small
// bubbletea program when stdin is a terminal and degrades to a plain line
// read when it isn't (piped input, CI).
func Confirm(prompt string) bool {
	m := confirmModel{prompt: prompt}
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return confirmFallback(prompt)
	}
	if cm, ok := final.(confirmModel); ok {
		return cm.answer
	}
	return false
}

func confirmFallback(prompt string) bool {
	os.Stdout.WriteString(prompt + "\n[y/N] ")
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

type confirmModel struct {
	prompt string
	answer bool
	done   bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.answer = true
		m.done = true
		return m, tea.Quit
	case "n", "N", "enter", "esc", "q", "ctrl+c":
		// enter defaults to no
		m.answer = false
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		return ""
	}
	promptStyle := lipgloss.NewStyle().Foreground(colorWhite)
	hintStyle := lipgloss.NewStyle().Foreground(colorGray)
	return promptStyle.Render(m.prompt) + "\n" + hintStyle.Render("[y]es  [n]o") + "\n"
}

// PromptFeedback shows a one-line free-text feedback prompt for a sampled
// utterance (spec C18). Returns the entered text and whether the user
// submitted anything; esc or an empty submit counts as declined.
func PromptFeedback(question string) (string, bool) {
	ti := textinput.New()
	ti.Placeholder = "optional — press enter to skip"
	ti.CharLimit = 240
	ti.Width = 60
	ti.Focus()

	m := feedbackModel{question: question, input: ti}
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return "", false
	}
	fm, ok := final.(feedbackModel)
	if !ok || !fm.submitted {
		return "", false
	}
	text := strings.TrimSpace(fm.input.Value())
	return text, text != ""
}

type feedbackModel struct {
	question  string
	input     textinput.Model
	submitted bool
	done      bool
}

func (m feedbackModel) Init() tea.Cmd { return textinput.Blink }

func (m feedbackModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.submitted = true
			m.done = true
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m feedbackModel) View() string {
	if m.done {
		return ""
	}
	questionStyle := lipgloss.NewStyle().Foreground(colorDimCyan)
	return questionStyle.Render(m.question) + "\n" + m.input.View() + "\n"
}
