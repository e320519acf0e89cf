package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/approval"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/query"
	"github.com/kingrea/opex/internal/workflow"
)

// detailView shows one initiative with its tabs.
type detailView struct {
	app        *App
	id         int64
	initiative domain.Initiative
	txs        []domain.WorkflowTransaction
	progress   domain.Progress
	loaded     bool
	err        error

	tabs []workflow.TabDefinition
	tab  string

	timeline   []domain.TimelineEntry
	monitoring []domain.MonitoringEntry
	files      []domain.InitiativeFile
	tabErr     error

	panel *stagePanel
	width int
}

type detailLoadedMsg struct {
	id         int64
	initiative domain.Initiative
	txs        []domain.WorkflowTransaction
	progress   domain.Progress
	actionable approval.Actionable
	hasAction  bool
	form       approval.FormState
	prepareErr error
	err        error
}

type tabDataMsg struct {
	id         int64
	tab        string
	timeline   []domain.TimelineEntry
	monitoring []domain.MonitoringEntry
	files      []domain.InitiativeFile
	err        error
}

type submitFinishedMsg struct {
	id     int64
	action domain.Action
	stage  workflow.StageDefinition
	result approval.Result
	err    error
}

func newDetailView(app *App, id int64) *detailView {
	return &detailView{
		app:   app,
		id:    id,
		tabs:  app.catalog.VisibleTabs(app.user.Role),
		tab:   workflow.ScreenWorkflow,
		width: app.width,
	}
}

func (v *detailView) Init() tea.Cmd {
	return v.load()
}

func (v *detailView) resize(width int) {
	v.width = width
	if v.panel != nil {
		v.panel.resize(width)
	}
}

// reload drops the cached queries of the initiative and fetches them again.
func (v *detailView) reload() tea.Cmd {
	v.app.cache.Invalidate(query.MutationKeys(v.id)...)
	v.app.cache.Invalidate(query.TimelineCompletedKey(v.id), query.MonitoringKey(v.id))
	cmds := []tea.Cmd{v.load()}
	if v.tab != workflow.ScreenWorkflow && v.tab != workflow.ScreenOverview {
		cmds = append(cmds, v.loadTab(v.tab))
	}
	return tea.Batch(cmds...)
}

func (v *detailView) load() tea.Cmd {
	id, user := v.id, v.app.user
	source, catalog := v.app.source, v.app.catalog
	registry := v.app.dispatcher.Registry()
	return func() tea.Msg {
		ctx := context.Background()
		msg := detailLoadedMsg{id: id}
		initiative, err := source.GetInitiative(ctx, id)
		if err != nil {
			msg.err = err
			return msg
		}
		txs, err := source.VisibleTransactions(ctx, id)
		if err != nil {
			msg.err = err
			return msg
		}
		progress, err := source.Progress(ctx, id)
		if err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				msg.err = err
				return msg
			}
			progress = domain.ComputeProgress(id, txs)
		}
		msg.initiative, msg.txs, msg.progress = initiative, txs, progress
		msg.actionable, msg.hasAction = approval.FindActionable(txs, user, catalog)
		if msg.hasAction {
			msg.form, msg.prepareErr = registry.Prepare(ctx, source, msg.actionable.Stage, initiative)
		}
		return msg
	}
}

func (v *detailView) loadTab(tab string) tea.Cmd {
	id, source := v.id, v.app.source
	return func() tea.Msg {
		ctx := context.Background()
		msg := tabDataMsg{id: id, tab: tab}
		switch tab {
		case workflow.ScreenTimeline:
			msg.timeline, msg.err = source.TimelineEntries(ctx, id)
		case workflow.ScreenMonitoring:
			msg.monitoring, msg.err = source.MonitoringEntries(ctx, id)
		case workflow.ScreenFiles:
			msg.files, msg.err = source.ListFiles(ctx, id)
		default:
			return nil
		}
		return msg
	}
}

func (v *detailView) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case detailLoadedMsg:
		if m.id != v.id {
			return nil
		}
		if m.err != nil {
			v.err = m.err
			return nil
		}
		v.err = nil
		v.loaded = true
		v.initiative, v.txs, v.progress = m.initiative, m.txs, m.progress
		switch {
		case !m.hasAction:
			v.panel = nil
		case v.panel != nil && v.panel.actionable.Transaction.ID == m.actionable.Transaction.ID:
			v.panel.absorb(m.actionable, m.form, m.prepareErr)
		default:
			v.panel = newStagePanel(m.actionable, m.form, m.prepareErr, v.width)
		}
		return nil

	case tabDataMsg:
		if m.id != v.id {
			return nil
		}
		v.tabErr = m.err
		switch m.tab {
		case workflow.ScreenTimeline:
			v.timeline = m.timeline
		case workflow.ScreenMonitoring:
			v.monitoring = m.monitoring
		case workflow.ScreenFiles:
			v.files = m.files
		}
		return nil

	case submitFinishedMsg:
		return v.handleSubmitFinished(m)
	}
	return nil
}

func (v *detailView) handleSubmitFinished(msg submitFinishedMsg) tea.Cmd {
	if msg.id != v.id {
		return nil
	}
	if v.panel != nil {
		v.panel.submitting = false
	}
	if msg.err != nil {
		v.app.setToast(approval.FailureMessage(msg.err), true)
		if errors.Is(msg.err, api.ErrConflict) || errors.Is(msg.err, approval.ErrNotPending) || errors.Is(msg.err, approval.ErrEntriesApproved) {
			return v.reload()
		}
		return nil
	}
	v.app.setToast(fmt.Sprintf("Stage %d %s: %s", msg.stage.Number, msg.action, msg.stage.Name), false)
	v.panel = nil
	cmds := []tea.Cmd{v.load()}
	if msg.result.Redirect != "" {
		v.tab = msg.result.Redirect
		v.app.statusMsg = fmt.Sprintf("Continue in %s", v.tabLabel(v.tab))
		cmds = append(cmds, v.loadTab(v.tab))
	}
	return tea.Batch(cmds...)
}

// handleKey reports leave=true when the user backs out of the detail screen.
func (v *detailView) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	onWorkflow := v.tab == workflow.ScreenWorkflow && v.panel != nil
	if onWorkflow {
		if v.panel.submitting {
			return nil, false
		}
		cmd, action, handled := v.panel.handleKey(msg)
		if action != "" {
			return v.submit(action), false
		}
		if handled {
			return cmd, false
		}
	}
	switch msg.String() {
	case "esc", "q":
		return nil, true
	case "left", "h":
		return v.shiftTab(-1), false
	case "right", "l":
		return v.shiftTab(1), false
	case "1", "2", "3", "4", "5":
		idx := int(msg.Runes[0] - '1')
		if idx < len(v.tabs) {
			return v.openTab(v.tabs[idx].ID), false
		}
	case "r":
		v.app.statusMsg = "Refreshing..."
		return v.reload(), false
	}
	return nil, false
}

func (v *detailView) shiftTab(delta int) tea.Cmd {
	if len(v.tabs) == 0 {
		return nil
	}
	idx := 0
	for i, tab := range v.tabs {
		if tab.ID == v.tab {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(v.tabs)) % len(v.tabs)
	return v.openTab(v.tabs[idx].ID)
}

func (v *detailView) openTab(id string) tea.Cmd {
	v.tab = id
	v.tabErr = nil
	if !v.app.catalog.TabVisible(v.app.user.Role, id) {
		return nil
	}
	return v.loadTab(id)
}

// submit runs the action through the dispatcher. Disabled actions are
// ignored.
func (v *detailView) submit(action domain.Action) tea.Cmd {
	p := v.panel
	p.sync()
	if !v.app.dispatcher.Validate(p.actionable.Transaction, p.form).Allows(action) {
		return nil
	}
	p.submitting = true
	sub := approval.Submission{
		Transaction: p.actionable.Transaction,
		Action:      action,
		Form:        p.form.Clone(),
		User:        v.app.user,
	}
	id, stage, dispatcher := v.id, p.actionable.Stage, v.app.dispatcher
	return func() tea.Msg {
		result, err := dispatcher.Submit(context.Background(), sub)
		return submitFinishedMsg{id: id, action: action, stage: stage, result: result, err: err}
	}
}

func (v *detailView) tabLabel(id string) string {
	if tab, ok := v.app.catalog.Tab(id); ok && tab.Label != "" {
		return tab.Label
	}
	return id
}

func (v *detailView) View() string {
	if v.err != nil {
		return v.renderFatal()
	}
	if !v.loaded {
		return fmt.Sprintf("%s Loading initiative #%d...", v.app.spinner.View(), v.id)
	}
	in := v.initiative
	title := sectionStyle.Render(fmt.Sprintf("#%d %s", in.ID, in.Title))
	meta := detailTextStyle.Render(fmt.Sprintf("%s · %s · stage %d of %d · %.1f%% complete",
		in.Site, in.Status, in.CurrentStage, v.app.catalog.Len(), v.progress.Percentage))
	var body string
	if !v.app.catalog.TabVisible(v.app.user.Role, v.tab) {
		body = errorStyle.Render("Access denied")
	} else {
		switch v.tab {
		case workflow.ScreenOverview:
			body = v.renderOverview()
		case workflow.ScreenWorkflow:
			body = v.renderWorkflow()
		case workflow.ScreenTimeline:
			body = v.renderTimeline()
		case workflow.ScreenMonitoring:
			body = v.renderMonitoring()
		case workflow.ScreenFiles:
			body = v.renderFiles()
		default:
			body = errorStyle.Render("Access denied")
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, meta, "", v.renderTabs(), "", body, v.renderHint())
}

func (v *detailView) renderFatal() string {
	var text string
	switch {
	case errors.Is(v.err, api.ErrNotFound):
		text = "Initiative not found"
	case statusCode(v.err) == http.StatusForbidden:
		text = "Access denied"
	default:
		text = fmt.Sprintf("Could not load initiative: %v", v.err)
	}
	return lipgloss.JoinVertical(lipgloss.Left, errorStyle.Render(text), hintStyle.Render("Esc → back to initiatives"))
}

func statusCode(err error) int {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func (v *detailView) renderTabs() string {
	parts := make([]string, 0, len(v.tabs))
	for i, tab := range v.tabs {
		label := fmt.Sprintf("%d %s", i+1, tab.Label)
		if tab.ID == v.tab {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (v *detailView) renderHint() string {
	if v.tab == workflow.ScreenWorkflow && v.panel != nil {
		if v.panel.focus.text() {
			return hintStyle.Render("Tab → next field    Esc → stop editing")
		}
		return hintStyle.Render("Tab → edit    a → approve    x → reject    d → drop    ←/→ → tabs    r → refresh    Esc → back")
	}
	return hintStyle.Render("←/→ or 1-5 → tabs    r → refresh    Esc → back")
}

func (v *detailView) renderOverview() string {
	in := v.initiative
	rows := [][2]string{
		{"Number", in.InitiativeNo},
		{"Site", in.Site},
		{"Discipline", in.Discipline},
		{"Priority", in.Priority},
		{"Status", in.Status},
		{"Budget", in.BudgetType},
		{"Expected savings", fmt.Sprintf("%.2f", in.ExpectedSavings)},
		{"Actual savings", fmt.Sprintf("%.2f", in.ActualSavings)},
		{"Start", in.StartDate.String()},
		{"End", in.EndDate.String()},
		{"Created by", firstNonEmpty(in.CreatedByName, in.CreatedByEmail)},
		{"MOC", yesNoNumber(in.RequiresMoc, in.MocNumber)},
		{"CAPEX", yesNoNumber(in.RequiresCapex, in.CapexNumber)},
		{"Target outcome", in.TargetOutcome},
	}
	var lines []string
	for _, row := range rows {
		if strings.TrimSpace(row[1]) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-18s %s", row[0]+":", row[1]))
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		lines = append(lines, "", lipgloss.NewStyle().Width(max(20, v.width-8)).Render(desc))
	}
	return strings.Join(lines, "\n")
}

func (v *detailView) renderWorkflow() string {
	byStage := domain.TransactionsByStage(v.txs)
	var lines []string
	for _, number := range v.app.catalog.Numbers() {
		name := v.app.catalog.StageName(number)
		tx, ok := byStage[number]
		label, style := "Not started", labelStyleDefault
		detail := ""
		if ok {
			label = tx.ApproveStatus.Label()
			style = statusStyle(tx.ApproveStatus)
			switch {
			case tx.Pending() && tx.PendingWith != "":
				detail = "with " + tx.PendingWith
			case tx.ActionBy != "":
				detail = "by " + tx.ActionBy
			}
		}
		marker := "  "
		if v.panel != nil && v.panel.actionable.Stage.Number == number {
			marker = focusStyle.Render("▶ ")
		}
		line := fmt.Sprintf("%s%2d %-44s %s", marker, number, truncate(name, 44), style.Render(fmt.Sprintf("%-11s", label)))
		if detail != "" {
			line += " " + detailTextStyle.Render(detail)
		}
		lines = append(lines, line)
	}
	timeline := strings.Join(lines, "\n")
	var panel string
	switch {
	case v.panel != nil:
		panel = v.panel.view(v.app.dispatcher)
	case v.initiative.Closed():
		panel = detailTextStyle.Render(fmt.Sprintf("This initiative is %s.", strings.ToLower(v.initiative.Status)))
	default:
		panel = detailTextStyle.Render("Nothing is waiting for your action.")
	}
	return lipgloss.JoinVertical(lipgloss.Left, timeline, "", panel)
}

func (v *detailView) renderTimeline() string {
	if v.tabErr != nil {
		return errorStyle.Render(fmt.Sprintf("Could not load timeline: %v", v.tabErr))
	}
	if len(v.timeline) == 0 {
		return "No timeline entries yet."
	}
	lines := []string{sectionStyle.Render(fmt.Sprintf("%-28s %-23s %-23s %-12s %s", "Task", "Planned", "Actual", "Status", "Responsible"))}
	for _, entry := range v.timeline {
		lines = append(lines, fmt.Sprintf("%-28s %-23s %-23s %-12s %s",
			truncate(entry.StageName, 28),
			dateRange(entry.PlannedStartDate, entry.PlannedEndDate),
			dateRange(entry.ActualStartDate, entry.ActualEndDate),
			entry.Status,
			entry.ResponsiblePerson,
		))
	}
	if domain.AllCompleted(v.timeline) {
		lines = append(lines, "", bannerOKStyle.Render("All timeline entries are completed"))
	}
	return strings.Join(lines, "\n")
}

func (v *detailView) renderMonitoring() string {
	if v.tabErr != nil {
		return errorStyle.Render(fmt.Sprintf("Could not load monitoring: %v", v.tabErr))
	}
	if len(v.monitoring) == 0 {
		return "No monitoring entries yet."
	}
	lines := []string{sectionStyle.Render(fmt.Sprintf("%-9s %-26s %10s %10s %10s %8s  %-9s %s", "Month", "KPI", "Target", "Achieved", "Deviation", "Dev %", "Finalized", "F&A"))}
	for _, entry := range v.monitoring {
		lines = append(lines, fmt.Sprintf("%-9s %-26s %10.2f %10.2f %10.2f %7.1f%%  %-9s %s",
			entry.MonitoringMonth,
			truncate(entry.KPIDescription, 26),
			entry.TargetValue,
			entry.AchievedValue,
			entry.DeviationValue(),
			entry.DeviationPct(),
			entry.IsFinalized.Wire(),
			entry.FAApproval.Wire(),
		))
	}
	return strings.Join(lines, "\n")
}

func (v *detailView) renderFiles() string {
	if v.tabErr != nil {
		return errorStyle.Render(fmt.Sprintf("Could not load files: %v", v.tabErr))
	}
	if len(v.files) == 0 {
		return "No files attached."
	}
	lines := []string{sectionStyle.Render(fmt.Sprintf("%-6s %-36s %-28s %10s  %s", "ID", "Name", "Type", "Size", "Uploaded by"))}
	for _, file := range v.files {
		lines = append(lines, fmt.Sprintf("%-6d %-36s %-28s %10s  %s",
			file.ID, truncate(file.FileName, 36), truncate(file.FileType, 28), humanizeBytes(file.FileSize), file.UploadedBy))
	}
	lines = append(lines, hintStyle.Render("Use `opex files` to upload, download or delete."))
	return strings.Join(lines, "\n")
}

func statusStyle(status domain.Status) lipgloss.Style {
	switch status {
	case domain.StatusApproved:
		return labelStyleApproved
	case domain.StatusRejected:
		return labelStyleRejected
	case domain.StatusPending:
		return labelStylePending
	case domain.StatusDropped:
		return labelStyleDropped
	}
	return labelStyleDefault
}

func yesNoNumber(flag domain.YesNo, number string) string {
	if !flag {
		return "No"
	}
	if number = strings.TrimSpace(number); number != "" {
		return "Yes · " + number
	}
	return "Yes"
}

func dateRange(start, end *domain.Date) string {
	if start == nil && end == nil {
		return "-"
	}
	return fmt.Sprintf("%s → %s", start.String(), end.String())
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}

func humanizeBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
