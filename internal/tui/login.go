package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/opex/internal/api"
)

const (
	loginEmail = iota
	loginPassword
)

type loginForm struct {
	email      textinput.Model
	password   textinput.Model
	focused    int
	submitting bool
	err        string
}

func newLoginForm() loginForm {
	email := textinput.New()
	email.Placeholder = "you@company.com"
	email.Prompt = "Email:    "
	email.CharLimit = 254

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginForm{email: email, password: password}
}

func (f *loginForm) focus() tea.Cmd {
	f.password.Blur()
	f.email.Blur()
	if f.focused == loginPassword {
		return f.password.Focus()
	}
	return f.email.Focus()
}

func (f *loginForm) next() tea.Cmd {
	f.focused = (f.focused + 1) % 2
	return f.focus()
}

func (f *loginForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if f.focused == loginPassword {
		f.password, cmd = f.password.Update(msg)
	} else {
		f.email, cmd = f.email.Update(msg)
	}
	return cmd
}

func (f loginForm) request() api.LoginRequest {
	return api.LoginRequest{
		Email:    strings.TrimSpace(f.email.Value()),
		Password: f.password.Value(),
	}
}

func (f loginForm) view() string {
	lines := []string{
		sectionStyle.Render("Sign in"),
		"",
		f.email.View(),
		f.password.View(),
	}
	if f.submitting {
		lines = append(lines, "", detailTextStyle.Render("Signing in..."))
	}
	if f.err != "" {
		lines = append(lines, "", errorStyle.Render(f.err))
	}
	lines = append(lines, hintStyle.Render("Tab → next field    Enter → sign in    Esc → quit"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
