// Package tui implements the interactive terminal UI.
//
// It follows the Elm architecture used by bubbletea:
//   - Model: the App struct holds all state
//   - Update: handles messages (key presses, backend results) and returns new state
//   - View: renders the current state as a string
//
// Backend calls run inside tea.Cmds and report back as *Msg structs, so the
// Update loop never blocks on the network.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/approval"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/logbook"
	"github.com/kingrea/opex/internal/query"
	"github.com/kingrea/opex/internal/session"
	"github.com/kingrea/opex/internal/workflow"
)

const defaultRefreshInterval = 30 * time.Second

// appState represents which screen we're on
type appState int

const (
	stateLogin appState = iota
	stateInitiatives
	stateDetail
)

// Backend is everything the UI asks of the server. *api.Client satisfies it.
type Backend interface {
	query.Reader
	approval.Processor
	Login(ctx context.Context, req api.LoginRequest) (api.LoginResponse, error)
}

// Sessions persists the signed-in identity. *session.Store satisfies it.
type Sessions interface {
	Save(token string, user domain.User) error
	Clear() error
	Identity() (session.Identity, error)
}

// App is the main application model
type App struct {
	backend    Backend
	sessions   Sessions
	cache      *query.Cache
	source     *query.Source
	dispatcher *approval.Dispatcher
	catalog    workflow.Catalog
	logger     zerolog.Logger
	logbook    *logbook.Logbook
	refresh    time.Duration

	state     appState
	user      domain.User
	login     loginForm
	list      list.Model
	listErr   string
	filter    domain.InitiativeFilter
	detail    *detailView
	spinner   spinner.Model
	loading   bool
	toast     toast
	statusMsg string

	width  int
	height int
}

// initiativeItem implements list.Item
type initiativeItem struct {
	initiative domain.Initiative
	progress   *domain.Progress
}

func (i initiativeItem) Title() string {
	return fmt.Sprintf("#%d %s", i.initiative.ID, i.initiative.Title)
}

func (i initiativeItem) Description() string {
	pct := "  -  "
	if i.progress != nil {
		pct = fmt.Sprintf("%5.1f%%", i.progress.Percentage)
	}
	return fmt.Sprintf("%s · %s · %s · stage %d", pct, i.initiative.Site, i.initiative.Status, i.initiative.CurrentStage)
}

func (i initiativeItem) FilterValue() string {
	return strings.Join([]string{i.initiative.Title, i.initiative.InitiativeNo, i.initiative.Site, i.initiative.Status}, " ")
}

// toast is a one-line notice shown until the next key press.
type toast struct {
	text string
	err  bool
}

type loginFinishedMsg struct {
	user domain.User
	err  error
}

type initiativesLoadedMsg struct {
	items []initiativeItem
	err   error
}

type refreshTickMsg struct{}

// AppOption customises NewApp.
type AppOption func(*App)

// WithCatalog sets the stage catalog.
func WithCatalog(catalog workflow.Catalog) AppOption {
	return func(a *App) { a.catalog = catalog }
}

// WithCache shares a query cache with other components.
func WithCache(cache *query.Cache) AppOption {
	return func(a *App) {
		if cache != nil {
			a.cache = cache
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) AppOption {
	return func(a *App) { a.logger = logger }
}

// WithLogbook attaches the activity journal shown in the log panel.
func WithLogbook(journal *logbook.Logbook) AppOption {
	return func(a *App) { a.logbook = journal }
}

// WithRefreshInterval sets how often open screens reload. Zero disables it.
func WithRefreshInterval(d time.Duration) AppOption {
	return func(a *App) { a.refresh = d }
}

// NewApp creates a new application model. A stored, unexpired session skips
// the login screen.
func NewApp(backend Backend, sessions Sessions, opts ...AppOption) *App {
	a := &App{
		backend:  backend,
		sessions: sessions,
		catalog:  workflow.Default(),
		logger:   zerolog.Nop(),
		refresh:  defaultRefreshInterval,
		login:    newLoginForm(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.cache == nil {
		a.cache = query.New(query.DefaultTTLs())
	}
	a.source = query.NewSource(backend, a.cache)
	a.dispatcher = approval.NewDispatcher(backend,
		approval.WithCatalog(a.catalog),
		approval.WithCache(a.cache),
		approval.WithLogger(a.logger),
		approval.WithLogbook(a.logbook),
	)

	a.list = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	a.list.Title = "Initiatives"
	a.list.SetShowStatusBar(false)

	a.spinner = spinner.New()
	a.spinner.Spinner = spinner.Dot

	a.state = stateLogin
	if sessions != nil {
		if identity, err := sessions.Identity(); err == nil && !identity.Expired(time.Now()) {
			a.user = identity.User
			a.state = stateInitiatives
		}
	}
	return a
}

func (a *App) logInfo(format string, args ...any) {
	a.logbook.Info(format, args...)
}

func (a *App) logError(format string, args ...any) {
	a.logbook.Error(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	if a.state == stateLogin {
		return a.login.focus()
	}
	return tea.Batch(a.reloadInitiatives(), a.scheduleRefresh())
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.list.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		if a.detail != nil {
			a.detail.resize(msg.Width)
		}
		return a, nil

	case spinner.TickMsg:
		if !a.loading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case loginFinishedMsg:
		a.login.submitting = false
		if msg.err != nil {
			a.login.err = loginFailure(msg.err)
			a.logError("Login failed: %v", msg.err)
			return a, nil
		}
		a.user = msg.user
		a.login = newLoginForm()
		a.state = stateInitiatives
		a.statusMsg = fmt.Sprintf("Signed in as %s (%s)", a.user.DisplayName(), a.user.Role)
		a.logInfo("Signed in as %s", a.user.Email)
		return a, tea.Batch(a.reloadInitiatives(), a.scheduleRefresh())

	case initiativesLoadedMsg:
		a.loading = false
		if a.expired(msg.err) {
			return a.expireSession()
		}
		if msg.err != nil {
			a.listErr = msg.err.Error()
			return a, nil
		}
		a.listErr = ""
		items := make([]list.Item, 0, len(msg.items))
		for _, item := range msg.items {
			items = append(items, item)
		}
		return a, a.list.SetItems(items)

	case refreshTickMsg:
		switch a.state {
		case stateInitiatives:
			return a, tea.Batch(a.loadInitiatives(), a.scheduleRefresh())
		case stateDetail:
			if a.detail != nil {
				return a, tea.Batch(a.detail.reload(), a.scheduleRefresh())
			}
		}
		return a, a.scheduleRefresh()

	case detailLoadedMsg, tabDataMsg, submitFinishedMsg:
		if a.detail == nil {
			return a, nil
		}
		if a.expired(messageErr(msg)) {
			return a.expireSession()
		}
		return a, a.detail.Update(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		a.toast = toast{}
		switch a.state {
		case stateLogin:
			return a, a.updateLogin(msg)
		case stateInitiatives:
			return a.updateInitiatives(msg)
		case stateDetail:
			if a.detail != nil {
				cmd, leave := a.detail.handleKey(msg)
				if leave {
					return a.returnToList()
				}
				return a, cmd
			}
		}
	}

	var cmds []tea.Cmd
	switch a.state {
	case stateLogin:
		if cmd := a.login.update(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
	case stateInitiatives:
		var listCmd tea.Cmd
		a.list, listCmd = a.list.Update(msg)
		if listCmd != nil {
			cmds = append(cmds, listCmd)
		}
	}
	return a, tea.Batch(cmds...)
}

func (a *App) updateLogin(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		return tea.Quit
	case "tab", "shift+tab", "up", "down":
		return a.login.next()
	case "enter":
		if a.login.focused == loginEmail {
			return a.login.next()
		}
		return a.submitLogin()
	}
	return a.login.update(msg)
}

func (a *App) updateInitiatives(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		a.list, cmd = a.list.Update(msg)
		return a, cmd
	}
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "r":
		a.statusMsg = "Refreshing initiatives..."
		a.cache.InvalidatePrefix(query.PrefixInitiatives)
		return a, a.reloadInitiatives()
	case "L":
		return a.logout()
	case "enter":
		item, ok := a.list.SelectedItem().(initiativeItem)
		if !ok {
			return a, nil
		}
		return a.openInitiative(item.initiative.ID)
	}
	var cmd tea.Cmd
	a.list, cmd = a.list.Update(msg)
	return a, cmd
}

func (a *App) submitLogin() tea.Cmd {
	req := a.login.request()
	if req.Email == "" || req.Password == "" {
		a.login.err = "Email and password are required"
		return nil
	}
	a.login.submitting = true
	a.login.err = ""
	backend, sessions := a.backend, a.sessions
	return func() tea.Msg {
		resp, err := backend.Login(context.Background(), req)
		if err != nil {
			return loginFinishedMsg{err: err}
		}
		if sessions != nil {
			if err := sessions.Save(resp.Token, resp.User); err != nil {
				return loginFinishedMsg{err: err}
			}
		}
		return loginFinishedMsg{user: resp.User}
	}
}

func loginFailure(err error) string {
	if errors.Is(err, api.ErrUnauthorized) {
		return "Invalid email or password"
	}
	if msg, ok := api.Message(err); ok {
		return msg
	}
	return err.Error()
}

// openInitiative switches to the detail screen for id.
func (a *App) openInitiative(id int64) (tea.Model, tea.Cmd) {
	a.state = stateDetail
	a.detail = newDetailView(a, id)
	a.logInfo("Opened initiative %d", id)
	return a, a.detail.Init()
}

func (a *App) returnToList() (tea.Model, tea.Cmd) {
	a.state = stateInitiatives
	a.detail = nil
	a.statusMsg = ""
	return a, a.loadInitiatives()
}

func (a *App) logout() (tea.Model, tea.Cmd) {
	if a.sessions != nil {
		if err := a.sessions.Clear(); err != nil {
			a.logError("Logout failed: %v", err)
		}
	}
	a.logInfo("Signed out %s", a.user.Email)
	a.reset("Signed out")
	return a, a.login.focus()
}

func (a *App) expired(err error) bool {
	return err != nil && errors.Is(err, api.ErrUnauthorized)
}

// expireSession drops back to the login screen after a 401. The api client
// has already cleared the stored token.
func (a *App) expireSession() (tea.Model, tea.Cmd) {
	a.logError("Session expired for %s", a.user.Email)
	a.reset("Session expired, please sign in again")
	return a, a.login.focus()
}

func (a *App) reset(status string) {
	a.state = stateLogin
	a.user = domain.User{}
	a.detail = nil
	a.loading = false
	a.login = newLoginForm()
	a.cache.Flush()
	a.list.SetItems(nil)
	a.statusMsg = status
}

func (a *App) setToast(text string, isErr bool) {
	a.toast = toast{text: text, err: isErr}
}

// reloadInitiatives shows the spinner while the list loads.
func (a *App) reloadInitiatives() tea.Cmd {
	a.loading = true
	return tea.Batch(a.loadInitiatives(), a.spinner.Tick)
}

func (a *App) loadInitiatives() tea.Cmd {
	filter := a.filter
	if !a.user.Role.Corporate() && filter.Site == "" {
		filter.Site = a.user.Site
	}
	source := a.source
	return func() tea.Msg {
		ctx := context.Background()
		initiatives, err := source.ListInitiatives(ctx, filter)
		if err != nil {
			return initiativesLoadedMsg{err: err}
		}
		items := make([]initiativeItem, len(initiatives))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for i, initiative := range initiatives {
			items[i] = initiativeItem{initiative: initiative}
			g.Go(func() error {
				progress, err := source.Progress(gctx, initiative.ID)
				if errors.Is(err, api.ErrUnauthorized) {
					return err
				}
				if err == nil {
					items[i].progress = &progress
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return initiativesLoadedMsg{err: err}
		}
		return initiativesLoadedMsg{items: items}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	if a.refresh <= 0 {
		return nil
	}
	return tea.Tick(a.refresh, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func messageErr(msg tea.Msg) error {
	switch m := msg.(type) {
	case detailLoadedMsg:
		return m.err
	case tabDataMsg:
		return m.err
	case submitFinishedMsg:
		return m.err
	}
	return nil
}

// View renders the current state to a string.
func (a *App) View() string {
	var content string
	switch a.state {
	case stateLogin:
		content = a.login.view()
	case stateInitiatives:
		content = a.renderInitiatives()
	case stateDetail:
		if a.detail != nil {
			content = a.detail.View()
		}
	}
	return a.renderFrame(content)
}

func (a *App) renderInitiatives() string {
	if a.loading && len(a.list.Items()) == 0 {
		return fmt.Sprintf("%s Loading initiatives...", a.spinner.View())
	}
	if a.listErr != "" {
		return errorStyle.Render(fmt.Sprintf("Could not load initiatives: %s", a.listErr)) + "\n" +
			hintStyle.Render("r → retry    q → quit")
	}
	if len(a.list.Items()) == 0 {
		return "No initiatives to show.\n" + hintStyle.Render("r → refresh    L → sign out    q → quit")
	}
	hint := hintStyle.Render("Enter → open    / → filter    r → refresh    L → sign out    q → quit")
	return lipgloss.JoinVertical(lipgloss.Left, a.list.View(), hint)
}

func (a *App) renderFrame(content string) string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	title := "◆ OPEX"
	if a.user.Email != "" {
		title = fmt.Sprintf("%s · %s · %s", title, a.user.DisplayName(), a.user.Role)
		if a.user.Site != "" {
			title += " · " + a.user.Site
		}
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render(title)
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-4)).
		Render(content)
	sections := []string{header, body}
	if a.toast.text != "" {
		style := toastOKStyle
		if a.toast.err {
			style = toastErrStyle
		}
		sections = append(sections, style.Render(a.toast.text))
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s", fileName))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
