package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/approval"
	"github.com/kingrea/opex/internal/demoserver"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/session"
	"github.com/kingrea/opex/internal/workflow"
)

type testEnv struct {
	url    string
	store  *session.Store
	client *api.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv, err := demoserver.NewServer(demoserver.Settings{})
	if err != nil {
		t.Fatalf("demo server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	store := session.NewStore(filepath.Join(t.TempDir(), "token"))
	return &testEnv{
		url:    ts.URL,
		store:  store,
		client: api.NewClient(ts.URL, api.WithTokenSource(store)),
	}
}

func (e *testEnv) newApp() *App {
	return NewApp(e.client, e.store, WithRefreshInterval(0))
}

// signedIn logs email in through the api and returns an app that skips the
// login screen.
func (e *testEnv) signedIn(t *testing.T, email string) *App {
	t.Helper()
	resp, err := e.client.Login(context.Background(), api.LoginRequest{Email: email, Password: demoserver.DefaultPassword})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	if err := e.store.Save(resp.Token, resp.User); err != nil {
		t.Fatalf("save session: %v", err)
	}
	app := e.newApp()
	if app.state != stateInitiatives {
		t.Fatalf("expected stored session to skip login, got state %d", app.state)
	}
	return app
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

// press sends keys and returns the command of the last one.
func press(t *testing.T, app *App, keys ...string) tea.Cmd {
	t.Helper()
	var cmd tea.Cmd
	for _, key := range keys {
		var model tea.Model
		model, cmd = app.Update(keyMsg(key))
		if model.(*App) != app {
			t.Fatalf("unexpected model swap")
		}
	}
	return cmd
}

func typeText(t *testing.T, app *App, text string) {
	t.Helper()
	for _, r := range text {
		press(t, app, string(r))
	}
}

func runCommands(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		switch m := msg.(type) {
		case nil, cursor.BlinkMsg:
			continue
		case tea.BatchMsg:
			queue = append(queue, m...)
			continue
		}
		nextModel, nextCmd := app.Update(msg)
		app, ok = nextModel.(*App)
		if !ok {
			t.Fatalf("unexpected model type: %T", nextModel)
		}
		queue = append(queue, nextCmd)
	}
	return app
}

func openDetail(t *testing.T, app *App, id int64) *App {
	t.Helper()
	model, cmd := app.openInitiative(id)
	app = runCommands(t, model, cmd)
	if app.detail == nil || (!app.detail.loaded && app.detail.err == nil) {
		t.Fatalf("detail for %d did not load", id)
	}
	return app
}

func TestLoginScreenSignsInAndListsSiteInitiatives(t *testing.T) {
	env := newTestEnv(t)
	app := env.newApp()
	if app.state != stateLogin {
		t.Fatalf("expected login screen without a session, got %d", app.state)
	}
	_ = app.Init()
	typeText(t, app, "meera.shah@dahej.demo")
	press(t, app, "enter")
	typeText(t, app, demoserver.DefaultPassword)
	app = runCommands(t, app, press(t, app, "enter"))

	if app.state != stateInitiatives {
		t.Fatalf("expected initiative list after login, got %d (err %q)", app.state, app.login.err)
	}
	if env.store.Token() == "" {
		t.Fatalf("expected token to be stored")
	}
	items := app.list.Items()
	if len(items) == 0 {
		t.Fatalf("expected initiatives to be listed")
	}
	for _, item := range items {
		in := item.(initiativeItem)
		if in.initiative.Site != demoserver.SiteDahej {
			t.Fatalf("site role saw %s initiative %d", in.initiative.Site, in.initiative.ID)
		}
		if in.progress == nil {
			t.Fatalf("expected progress for initiative %d", in.initiative.ID)
		}
	}
}

func TestLoginScreenShowsInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	app := env.newApp()
	_ = app.Init()
	typeText(t, app, "meera.shah@dahej.demo")
	press(t, app, "tab")
	typeText(t, app, "wrong")
	app = runCommands(t, app, press(t, app, "enter"))
	if app.state != stateLogin {
		t.Fatalf("expected to stay on login, got %d", app.state)
	}
	if app.login.err != "Invalid email or password" {
		t.Fatalf("unexpected login error %q", app.login.err)
	}
}

func TestAssignLeadThroughStagePanel(t *testing.T) {
	env := newTestEnv(t)
	app := openDetail(t, env.signedIn(t, "meera.shah@dahej.demo"), 101)
	panel := app.detail.panel
	if panel == nil || panel.actionable.Stage.Form != workflow.FormAssignLead {
		t.Fatalf("expected assign-lead panel, got %+v", panel)
	}
	if panel.actionable.Match != approval.MatchPendingWith {
		t.Fatalf("expected pending-with match, got %s", panel.actionable.Match)
	}

	if cmd := press(t, app, "a"); cmd != nil {
		t.Fatalf("approve without a comment must be ignored")
	}
	if !strings.Contains(app.View(), approval.CommentRequired) {
		t.Fatalf("expected the comment reason to be rendered")
	}

	press(t, app, "tab")
	typeText(t, app, "Rohan owns delivery")
	press(t, app, "tab")
	rohan := -1
	for i, user := range panel.form.Candidates {
		if user.ID == 42 {
			rohan = i
		}
	}
	if rohan < 0 {
		t.Fatalf("expected Rohan among candidates: %+v", panel.form.Candidates)
	}
	for i := 0; i < rohan; i++ {
		press(t, app, "down")
	}
	press(t, app, " ")
	if panel.form.AssigneeID != 42 {
		t.Fatalf("expected Rohan selected, got %d", panel.form.AssigneeID)
	}
	press(t, app, "tab")
	if panel.focus != focusActions {
		t.Fatalf("expected focus to wrap to actions, got %d", panel.focus)
	}
	app = runCommands(t, app, press(t, app, "a"))

	if app.toast.err {
		t.Fatalf("unexpected error toast: %s", app.toast.text)
	}
	if !strings.Contains(app.toast.text, "Stage 4 approved") {
		t.Fatalf("unexpected toast %q", app.toast.text)
	}
	if app.detail.panel != nil {
		t.Fatalf("site head has nothing left to act on")
	}
	byStage := domain.TransactionsByStage(app.detail.txs)
	if byStage[4].ApproveStatus != domain.StatusApproved || !byStage[5].Pending() {
		t.Fatalf("expected stage 5 to open: %+v", byStage)
	}
	if app.detail.progress.CompletedStages != 4 {
		t.Fatalf("expected 4 completed stages, got %d", app.detail.progress.CompletedStages)
	}
}

func TestConflictShowsBackendMessage(t *testing.T) {
	env := newTestEnv(t)
	app := openDetail(t, env.signedIn(t, "meera.shah@dahej.demo"), 101)
	panel := app.detail.panel
	if panel == nil {
		t.Fatalf("expected a stage panel")
	}

	lead := int64(42)
	_, err := env.client.ProcessStage(context.Background(), panel.actionable.Transaction.ID, api.ProcessRequest{
		Action: domain.ActionApprove, Remarks: "done elsewhere", AssignedUserID: &lead,
	})
	if err != nil {
		t.Fatalf("process elsewhere: %v", err)
	}

	press(t, app, "tab")
	typeText(t, app, "late")
	press(t, app, "tab", " ", "tab")
	app = runCommands(t, app, press(t, app, "a"))
	if !app.toast.err || app.toast.text != "This stage has already been processed" {
		t.Fatalf("unexpected toast %+v", app.toast)
	}
	if app.detail.panel != nil {
		t.Fatalf("expected reload to drop the stale panel")
	}
}

func TestTimelineGateBlocksApproval(t *testing.T) {
	env := newTestEnv(t)
	app := openDetail(t, env.signedIn(t, "rohan.mehta@dahej.demo"), 102)
	panel := app.detail.panel
	if panel == nil || panel.actionable.Stage.Number != 6 {
		t.Fatalf("expected stage 6 panel, got %+v", panel)
	}
	press(t, app, "tab")
	typeText(t, app, "tasks done")
	press(t, app, "esc")
	if cmd := press(t, app, "a"); cmd != nil {
		t.Fatalf("approve must be disabled while the timeline is incomplete")
	}
	if !strings.Contains(app.View(), "All timeline entries must be completed before approval") {
		t.Fatalf("expected the gate banner")
	}
}

func TestFAValidationSelectsAllEntries(t *testing.T) {
	env := newTestEnv(t)
	app := openDetail(t, env.signedIn(t, "sanjay.iyer@corp.demo"), 104)
	panel := app.detail.panel
	if panel == nil || panel.actionable.Stage.Form != workflow.FormFAValidation {
		t.Fatalf("expected F&A panel, got %+v", panel)
	}
	if len(panel.form.Eligible) == 0 {
		t.Fatalf("expected eligible entries")
	}
	press(t, app, "tab")
	typeText(t, app, "Savings verified")
	press(t, app, "tab", "s")
	if !panel.form.AllSelected() {
		t.Fatalf("expected every eligible entry selected")
	}
	press(t, app, "tab")
	typeText(t, app, "ok")
	press(t, app, "esc")
	app = runCommands(t, app, press(t, app, "a"))
	if app.toast.err {
		t.Fatalf("unexpected error toast: %s", app.toast.text)
	}

	entries, err := env.client.MonitoringEntries(context.Background(), 104)
	if err != nil {
		t.Fatalf("monitoring: %v", err)
	}
	for _, entry := range entries {
		if entry.IsFinalized && !entry.FAApproval {
			t.Fatalf("entry %d was not validated", entry.ID)
		}
	}
	byStage := domain.TransactionsByStage(app.detail.txs)
	if !byStage[11].Pending() {
		t.Fatalf("expected closure stage to open")
	}
}

func TestStageFailureAfterFABatchReloadsEntries(t *testing.T) {
	env := newTestEnv(t)
	app := openDetail(t, env.signedIn(t, "sanjay.iyer@corp.demo"), 104)
	panel := app.detail.panel
	if panel == nil || len(panel.form.Eligible) == 0 {
		t.Fatalf("expected F&A panel with eligible entries, got %+v", panel)
	}
	panel.form.SelectAll()
	ids := panel.form.SelectedIDs()
	if err := env.client.ApproveFA(context.Background(), api.FAApproveRequest{EntryIDs: ids}); err != nil {
		t.Fatalf("approve entries: %v", err)
	}

	model, cmd := app.Update(submitFinishedMsg{
		id:     104,
		action: domain.ActionApprove,
		stage:  panel.actionable.Stage,
		err:    fmt.Errorf("%w: %w", approval.ErrEntriesApproved, errors.New("gateway timeout")),
	})
	if cmd == nil {
		t.Fatalf("expected a reload after the partial submit")
	}
	app = runCommands(t, model, cmd)
	if !app.toast.err {
		t.Fatalf("expected an error toast, got %+v", app.toast)
	}
	if app.detail.panel == nil {
		t.Fatalf("stage 10 is still pending and should keep its panel")
	}
	if n := len(app.detail.panel.form.Eligible); n != 0 {
		t.Fatalf("approved entries still offered for validation: %d", n)
	}
	if got := app.detail.panel.form.SelectedIDs(); len(got) != 0 {
		t.Fatalf("stale selection kept: %v", got)
	}
}

func TestRedirectSwitchesTab(t *testing.T) {
	env := newTestEnv(t)
	app := openDetail(t, env.signedIn(t, "rohan.mehta@dahej.demo"), 102)
	stage, _ := app.catalog.Stage(6)
	cmd := app.detail.Update(submitFinishedMsg{
		id:     102,
		action: domain.ActionApprove,
		stage:  stage,
		result: approval.Result{Redirect: workflow.ScreenTimeline},
	})
	app = runCommands(t, app, cmd)
	if app.detail.tab != workflow.ScreenTimeline {
		t.Fatalf("expected timeline tab, got %s", app.detail.tab)
	}
	if len(app.detail.timeline) == 0 {
		t.Fatalf("expected timeline entries to load")
	}
}

func TestFatalNavigationStates(t *testing.T) {
	env := newTestEnv(t)
	app := openDetail(t, env.signedIn(t, "meera.shah@dahej.demo"), 9999)
	if !strings.Contains(app.View(), "Initiative not found") {
		t.Fatalf("expected not found message")
	}

	app = openDetail(t, app, 103)
	if !strings.Contains(app.View(), "Access denied") {
		t.Fatalf("expected access denied for another site")
	}

	fa := openDetail(t, env.signedIn(t, "sanjay.iyer@corp.demo"), 104)
	fa.detail.openTab(workflow.ScreenTimeline)
	if !strings.Contains(fa.View(), "Access denied") {
		t.Fatalf("expected access denied for a hidden tab")
	}
	for _, tab := range fa.detail.tabs {
		if tab.ID == workflow.ScreenTimeline {
			t.Fatalf("F&A must not see the timeline tab")
		}
	}
}

func TestUnauthorizedReturnsToLogin(t *testing.T) {
	env := newTestEnv(t)
	app := env.signedIn(t, "meera.shah@dahej.demo")
	if err := env.store.Save("garbage", app.user); err != nil {
		t.Fatalf("save: %v", err)
	}
	model, cmd := app.Update(refreshTickMsg{})
	app = runCommands(t, model, cmd)
	if app.state != stateLogin {
		t.Fatalf("expected login screen after 401, got %d", app.state)
	}
	if !strings.Contains(app.statusMsg, "Session expired") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	if env.store.Token() != "" {
		t.Fatalf("expected token to be cleared")
	}
}

func TestEscReturnsToList(t *testing.T) {
	env := newTestEnv(t)
	app := openDetail(t, env.signedIn(t, "meera.shah@dahej.demo"), 101)
	app = runCommands(t, app, press(t, app, "esc"))
	if app.state != stateInitiatives || app.detail != nil {
		t.Fatalf("expected list after esc, got %d", app.state)
	}
}
