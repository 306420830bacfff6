// Package prompt asks for a passcode in the terminal.
//
// On a terminal it runs a small bubbletea program with a masked input; a
// CheckFunc judges each entry and decides what the prompt says next. When
// stdin is not a terminal, entries are read one per line instead.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ErrAborted is returned when the user cancels or input runs out.
var ErrAborted = errors.New("prompt aborted")

// Outcome is a CheckFunc's verdict on one entry.
type Outcome struct {
	Title   string // next prompt; empty keeps the current one
	Message string // shown below the input, e.g. "1 failed attempt"
	Limit   int    // max input length from now on; 0 means unlimited
	Done    bool
	Err     error // ends the prompt with this error
}

// CheckFunc judges an entry.
type CheckFunc func(input string) Outcome

// Config describes the initial prompt.
type Config struct {
	Title string
	Limit int
	In    io.Reader
	Out   io.Writer
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle    = lipgloss.NewStyle().Faint(true)
)

// Model is the bubbletea model behind the interactive prompt.
type Model struct {
	input     textinput.Model
	title     string
	message   string
	check     CheckFunc
	done      bool
	cancelled bool
	err       error
}

// New creates a prompt model.
func New(title string, limit int, check CheckFunc) Model {
	ti := textinput.New()
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Prompt = "> "
	ti.CharLimit = limit
	ti.Focus()
	return Model{input: ti, title: title, check: check}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			out := m.check(m.input.Value())
			m.input.Reset()
			m.apply(out)
			if m.done {
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) apply(out Outcome) {
	if out.Title != "" {
		m.title = out.Title
	}
	m.message = out.Message
	m.input.CharLimit = out.Limit
	if out.Err != nil {
		m.err = out.Err
		m.done = true
	}
	if out.Done {
		m.done = true
	}
}

func (m Model) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.message != "" {
		b.WriteString(messageStyle.Render(m.message))
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("enter to submit, esc to cancel"))
	b.WriteString("\n")
	return b.String()
}

// Result reports how the prompt ended.
func (m Model) Result() error {
	switch {
	case m.cancelled:
		return ErrAborted
	case m.err != nil:
		return m.err
	case !m.done:
		return ErrAborted
	}
	return nil
}

// Ask runs the prompt until check reports Done or an error, or the user
// cancels.
func Ask(ctx context.Context, cfg Config, check CheckFunc) error {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}

	if f, ok := cfg.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p := tea.NewProgram(New(cfg.Title, cfg.Limit, check),
			tea.WithContext(ctx),
			tea.WithInput(cfg.In),
			tea.WithOutput(cfg.Out),
		)
		final, err := p.Run()
		if err != nil {
			return fmt.Errorf("running prompt: %w", err)
		}
		return final.(Model).Result()
	}
	return askLines(ctx, cfg, check)
}

// askLines reads one entry per line.
func askLines(ctx context.Context, cfg Config, check CheckFunc) error {
	title := cfg.Title
	scanner := bufio.NewScanner(cfg.In)
	for {
		fmt.Fprintf(cfg.Out, "%s: ", title)
		if !scanner.Scan() {
			fmt.Fprintln(cfg.Out)
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		out := check(strings.TrimRight(scanner.Text(), "\r"))
		if out.Message != "" {
			fmt.Fprintln(cfg.Out, out.Message)
		}
		if out.Err != nil {
			return out.Err
		}
		if out.Done {
			return nil
		}
		if out.Title != "" {
			title = out.Title
		}
	}
}
