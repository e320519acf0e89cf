// Package watch polls for workflow transactions that became actionable for
// the signed-in user.
package watch

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/kingrea/opex/internal/approval"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/logbook"
	"github.com/kingrea/opex/internal/workflow"
)

// Source is the backend read side the watcher polls.
type Source interface {
	ListInitiatives(ctx context.Context, filter domain.InitiativeFilter) ([]domain.Initiative, error)
	VisibleTransactions(ctx context.Context, initiativeID int64) ([]domain.WorkflowTransaction, error)
}

// Notice announces a newly actionable transaction.
type Notice struct {
	Initiative domain.Initiative
	Actionable approval.Actionable
}

func (n Notice) String() string {
	return fmt.Sprintf("%s: %s (stage %d) is waiting for you",
		n.Initiative.Title, n.Actionable.Stage.Name, n.Actionable.Stage.Number)
}

// Watcher runs Tick on a cron schedule.
type Watcher struct {
	source  Source
	user    domain.User
	catalog workflow.Catalog
	notify  func(Notice)
	logger  zerolog.Logger
	journal *logbook.Logbook

	// tick serialises Tick; seen maps initiative id to the transaction
	// last announced for it.
	tick sync.Mutex
	seen map[int64]int64

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
}

// Option customises the watcher.
type Option func(*Watcher)

// WithCatalog sets the stage catalog.
func WithCatalog(catalog workflow.Catalog) Option {
	return func(w *Watcher) { w.catalog = catalog }
}

// WithNotify receives each new notice.
func WithNotify(fn func(Notice)) Option {
	return func(w *Watcher) { w.notify = fn }
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithLogbook sets the activity journal.
func WithLogbook(journal *logbook.Logbook) Option {
	return func(w *Watcher) { w.journal = journal }
}

// New builds a watcher for user.
func New(source Source, user domain.User, opts ...Option) *Watcher {
	w := &Watcher{
		source:  source,
		user:    user,
		catalog: workflow.Default(),
		logger:  zerolog.Nop(),
		seen:    map[int64]int64{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Filter returns the initiative filter for the watcher's user. Site roles
// only poll their own site.
func (w *Watcher) Filter() domain.InitiativeFilter {
	filter := domain.InitiativeFilter{Status: domain.InitiativeStatusActive}
	if !w.user.Role.Corporate() {
		filter.Site = w.user.Site
	}
	return filter
}

// Tick polls once and returns the transactions that became actionable
// since the previous tick. An initiative whose transactions cannot be read
// keeps its previous state so a transient error does not re-announce it.
func (w *Watcher) Tick(ctx context.Context) ([]Notice, error) {
	w.tick.Lock()
	defer w.tick.Unlock()

	initiatives, err := w.source.ListInitiatives(ctx, w.Filter())
	if err != nil {
		return nil, fmt.Errorf("watch: list initiatives: %w", err)
	}
	current := map[int64]int64{}
	var fresh []Notice
	for _, in := range initiatives {
		if in.Closed() {
			continue
		}
		txs, err := w.source.VisibleTransactions(ctx, in.ID)
		if err != nil {
			w.logger.Warn().Err(err).Int64("initiative", in.ID).Msg("watch: transactions")
			if prev, ok := w.seen[in.ID]; ok {
				current[in.ID] = prev
			}
			continue
		}
		actionable, ok := approval.FindActionable(txs, w.user, w.catalog)
		if !ok {
			continue
		}
		current[in.ID] = actionable.Transaction.ID
		if prev, ok := w.seen[in.ID]; !ok || prev != actionable.Transaction.ID {
			fresh = append(fresh, Notice{Initiative: in, Actionable: actionable})
		}
	}
	w.seen = current

	for _, notice := range fresh {
		w.logger.Info().
			Int64("initiative", notice.Initiative.ID).
			Int64("transaction", notice.Actionable.Transaction.ID).
			Int("stage", notice.Actionable.Stage.Number).
			Str("match", notice.Actionable.Match.String()).
			Msg("watch: actionable")
		w.journal.Info("actionable: %s", notice)
		if w.notify != nil {
			w.notify(notice)
		}
	}
	return fresh, nil
}

// Start schedules Tick. The first tick runs immediately when now is set.
func (w *Watcher) Start(ctx context.Context, schedule string, now bool) error {
	w.mu.Lock()
	if w.cron != nil {
		w.mu.Unlock()
		return fmt.Errorf("watch: already started")
	}
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})))
	entry, err := scheduler.AddFunc(schedule, func() { w.run(ctx) })
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("watch: schedule %q: %w", schedule, err)
	}
	w.cron = scheduler
	w.entry = entry
	w.mu.Unlock()

	scheduler.Start()
	w.logger.Info().Str("schedule", schedule).Msg("watch: started")
	if now {
		w.run(ctx)
	}
	return nil
}

// Stop halts the schedule and waits for a running tick.
func (w *Watcher) Stop() {
	w.mu.Lock()
	scheduler := w.cron
	w.cron = nil
	w.mu.Unlock()
	if scheduler == nil {
		return
	}
	scheduler.Remove(w.entry)
	<-scheduler.Stop().Done()
	w.logger.Info().Msg("watch: stopped")
}

func (w *Watcher) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := w.Tick(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("watch: tick")
		w.journal.Append(logbook.LevelWarn, err.Error())
	}
}

// cronLogger routes the scheduler's own messages to zerolog.
type cronLogger struct {
	zl zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.zl.Debug().Fields(keysAndValues).Msg("watch: cron " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.zl.Warn().Err(err).Fields(keysAndValues).Msg("watch: cron " + msg)
}
