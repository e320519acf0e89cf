package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/opex/internal/approval"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/workflow"
)

type panelFocus int

const (
	focusActions panelFocus = iota
	focusComment
	focusAssignee
	focusMoc
	focusMocNumber
	focusCapex
	focusCapexNumber
	focusEntries
	focusFAComment
)

func (f panelFocus) text() bool {
	switch f {
	case focusComment, focusMocNumber, focusCapexNumber, focusFAComment:
		return true
	}
	return false
}

// stagePanel is the input form for the actionable transaction. Its inputs
// are the source of truth; sync copies them into form before validating.
type stagePanel struct {
	actionable  approval.Actionable
	form        approval.FormState
	prepareErr  error
	focus       panelFocus
	cursor      int
	submitting  bool
	comment     textarea.Model
	mocNumber   textinput.Model
	capexNumber textinput.Model
	faComment   textinput.Model
}

func newStagePanel(actionable approval.Actionable, form approval.FormState, prepareErr error, width int) *stagePanel {
	comment := textarea.New()
	comment.Placeholder = "Add your comments..."
	comment.ShowLineNumbers = false
	comment.CharLimit = 2000
	comment.SetHeight(3)

	p := &stagePanel{
		actionable:  actionable,
		form:        form,
		prepareErr:  prepareErr,
		comment:     comment,
		mocNumber:   numberInput("MOC number: ", "MOC-0000"),
		capexNumber: numberInput("CAPEX number: ", "CAPEX-0000"),
		faComment:   numberInput("F&A comment: ", "optional"),
	}
	p.faComment.CharLimit = 500
	p.resize(width)
	return p
}

func numberInput(prompt, placeholder string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.Placeholder = placeholder
	input.CharLimit = 64
	return input
}

func (p *stagePanel) resize(width int) {
	if width <= 0 {
		width = 100
	}
	p.comment.SetWidth(max(20, width-12))
}

// absorb takes freshly loaded data while keeping what the user entered.
func (p *stagePanel) absorb(actionable approval.Actionable, fresh approval.FormState, prepareErr error) {
	p.sync()
	p.actionable = actionable
	p.prepareErr = prepareErr
	p.form.Candidates = fresh.Candidates
	p.form.Gate = fresh.Gate
	p.form.Eligible = fresh.Eligible
	p.form.EntriesErr = fresh.EntriesErr
	kept := map[int64]bool{}
	for _, entry := range p.form.Eligible {
		if p.form.Selected[entry.ID] {
			kept[entry.ID] = true
		}
	}
	p.form.Selected = kept
	if n := p.listLen(); p.cursor >= n {
		p.cursor = max(0, n-1)
	}
}

func (p *stagePanel) sync() {
	p.form.Comment = p.comment.Value()
	p.form.MocNumber = p.mocNumber.Value()
	p.form.CapexNumber = p.capexNumber.Value()
	p.form.FAComment = p.faComment.Value()
}

func (p *stagePanel) order() []panelFocus {
	out := []panelFocus{focusActions, focusComment}
	switch p.actionable.Stage.Form {
	case workflow.FormAssignLead:
		if len(p.form.Candidates) > 0 {
			out = append(out, focusAssignee)
		}
	case workflow.FormMocCapex:
		out = append(out, focusMoc)
		if p.form.Moc == approval.ChoiceYes {
			out = append(out, focusMocNumber)
		}
		out = append(out, focusCapex)
		if p.form.Capex == approval.ChoiceYes {
			out = append(out, focusCapexNumber)
		}
	case workflow.FormFAValidation:
		if len(p.form.Eligible) > 0 {
			out = append(out, focusEntries)
		}
		out = append(out, focusFAComment)
	}
	return out
}

func (p *stagePanel) cycle(delta int) tea.Cmd {
	order := p.order()
	idx := 0
	for i, f := range order {
		if f == p.focus {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(order)) % len(order)
	p.cursor = 0
	return p.setFocus(order[idx])
}

func (p *stagePanel) setFocus(focus panelFocus) tea.Cmd {
	p.focus = focus
	p.comment.Blur()
	p.mocNumber.Blur()
	p.capexNumber.Blur()
	p.faComment.Blur()
	switch focus {
	case focusComment:
		return p.comment.Focus()
	case focusMocNumber:
		return p.mocNumber.Focus()
	case focusCapexNumber:
		return p.capexNumber.Focus()
	case focusFAComment:
		return p.faComment.Focus()
	}
	return nil
}

func (p *stagePanel) listLen() int {
	switch p.focus {
	case focusAssignee:
		return len(p.form.Candidates)
	case focusEntries:
		return len(p.form.Eligible)
	}
	return 0
}

// handleKey returns the action to submit, if any. handled is false for keys
// the panel leaves to the detail view.
func (p *stagePanel) handleKey(msg tea.KeyMsg) (tea.Cmd, domain.Action, bool) {
	key := msg.String()
	switch key {
	case "tab":
		return p.cycle(1), "", true
	case "shift+tab":
		return p.cycle(-1), "", true
	}
	if p.focus.text() {
		if key == "esc" {
			p.sync()
			return p.setFocus(focusActions), "", true
		}
		var cmd tea.Cmd
		switch p.focus {
		case focusComment:
			p.comment, cmd = p.comment.Update(msg)
		case focusMocNumber:
			p.mocNumber, cmd = p.mocNumber.Update(msg)
		case focusCapexNumber:
			p.capexNumber, cmd = p.capexNumber.Update(msg)
		case focusFAComment:
			p.faComment, cmd = p.faComment.Update(msg)
		}
		p.sync()
		return cmd, "", true
	}
	switch key {
	case "a":
		return nil, domain.ActionApprove, true
	case "x":
		return nil, domain.ActionReject, true
	case "d":
		return nil, domain.ActionDrop, true
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
		return nil, "", p.listLen() > 0
	case "down", "j":
		if p.cursor < p.listLen()-1 {
			p.cursor++
		}
		return nil, "", p.listLen() > 0
	case "y", "n":
		choice := approval.ChoiceNo
		if key == "y" {
			choice = approval.ChoiceYes
		}
		switch p.focus {
		case focusMoc:
			p.form.Moc = choice
			return nil, "", true
		case focusCapex:
			p.form.Capex = choice
			return nil, "", true
		}
	case "s":
		if p.focus == focusEntries {
			p.form.SelectAll()
			return nil, "", true
		}
	case " ", "enter":
		return nil, "", p.toggle()
	}
	return nil, "", false
}

func (p *stagePanel) toggle() bool {
	switch p.focus {
	case focusAssignee:
		if p.cursor < len(p.form.Candidates) {
			p.form.AssigneeID = p.form.Candidates[p.cursor].ID
			return true
		}
	case focusMoc:
		p.form.Moc = p.form.Moc.Toggle()
		return true
	case focusCapex:
		p.form.Capex = p.form.Capex.Toggle()
		return true
	case focusEntries:
		if p.cursor < len(p.form.Eligible) {
			p.form.ToggleEntry(p.form.Eligible[p.cursor].ID)
			return true
		}
	}
	return false
}

func (p *stagePanel) view(dispatcher *approval.Dispatcher) string {
	p.sync()
	stage := p.actionable.Stage
	tx := p.actionable.Transaction
	desc := dispatcher.Registry().Describe(stage, p.form)

	title := sectionStyle.Render(fmt.Sprintf("Stage %d · %s", stage.Number, desc.Title))
	lines := []string{title}
	if desc.Hint != "" {
		lines = append(lines, detailTextStyle.Render(desc.Hint))
	}
	lines = append(lines, detailTextStyle.Render(fmt.Sprintf("Transaction #%d · matched by %s", tx.ID, p.actionable.Match)))
	for _, banner := range desc.Banners {
		lines = append(lines, renderBanner(banner))
	}
	if p.prepareErr != nil {
		lines = append(lines, renderBanner(approval.Banner{Text: fmt.Sprintf("Could not load stage data: %v", p.prepareErr)}))
	}

	lines = append(lines, "", p.label(focusComment, "Comment"), p.comment.View())
	switch stage.Form {
	case workflow.FormAssignLead:
		lines = append(lines, "", p.label(focusAssignee, "Initiative Lead"))
		lines = append(lines, p.renderCandidates()...)
	case workflow.FormMocCapex:
		lines = append(lines, "", p.label(focusMoc, fmt.Sprintf("MOC required: %s", p.form.Moc)))
		if p.form.Moc == approval.ChoiceYes {
			lines = append(lines, p.mocNumber.View())
		}
		lines = append(lines, p.label(focusCapex, fmt.Sprintf("CAPEX required: %s", p.form.Capex)))
		if p.form.Capex == approval.ChoiceYes {
			lines = append(lines, p.capexNumber.View())
		}
	case workflow.FormFAValidation:
		if len(p.form.Eligible) > 0 {
			all := "[ ]"
			if p.form.AllSelected() {
				all = "[x]"
			}
			lines = append(lines, "", p.label(focusEntries, fmt.Sprintf("Entries to validate %s select all (s)", all)))
			lines = append(lines, p.renderEntries()...)
		}
		lines = append(lines, p.faComment.View())
	}

	validation := dispatcher.Validate(tx, p.form)
	lines = append(lines, "", p.renderActions(stage, validation))
	for _, reason := range validation.Reasons {
		lines = append(lines, detailTextStyle.Render("· "+reason))
	}
	if p.submitting {
		lines = append(lines, detailTextStyle.Render("Submitting..."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (p *stagePanel) label(focus panelFocus, text string) string {
	if p.focus == focus {
		return focusStyle.Render("› " + text)
	}
	return "  " + text
}

func (p *stagePanel) renderCandidates() []string {
	var lines []string
	for i, user := range p.form.Candidates {
		mark := "( )"
		if user.ID == p.form.AssigneeID {
			mark = "(•)"
		}
		line := fmt.Sprintf("    %s %s · %s", mark, user.DisplayName(), user.Email)
		if p.focus == focusAssignee && i == p.cursor {
			line = focusStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lines
}

func (p *stagePanel) renderEntries() []string {
	var lines []string
	for i, entry := range p.form.Eligible {
		mark := "[ ]"
		if p.form.Selected[entry.ID] {
			mark = "[x]"
		}
		line := fmt.Sprintf("    %s %s · %s · target %.2f · achieved %.2f", mark, entry.MonitoringMonth, truncate(entry.KPIDescription, 30), entry.TargetValue, entry.AchievedValue)
		if p.focus == focusEntries && i == p.cursor {
			line = focusStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lines
}

func (p *stagePanel) renderActions(stage workflow.StageDefinition, validation approval.ValidationResult) string {
	type button struct {
		key    string
		action domain.Action
		shown  bool
	}
	buttons := []button{
		{"a", domain.ActionApprove, true},
		{"x", domain.ActionReject, stage.Rejectable()},
		{"d", domain.ActionDrop, stage.AllowDrop},
	}
	var parts []string
	for _, b := range buttons {
		if !b.shown {
			continue
		}
		text := fmt.Sprintf("[%s] %s", b.key, b.action.Verb())
		if validation.Allows(b.action) && !p.submitting {
			parts = append(parts, actionStyle.Render(text))
		} else {
			parts = append(parts, actionDimStyle.Render(text))
		}
	}
	return p.label(focusActions, strings.Join(parts, "   "))
}

func renderBanner(banner approval.Banner) string {
	if banner.OK {
		return bannerOKStyle.Render("✓ " + banner.Text)
	}
	return bannerWarnStyle.Render("⚠ " + banner.Text)
}
