package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/logbook"
	"github.com/kingrea/opex/internal/query"
	"github.com/kingrea/opex/internal/workflow"
)

// GenericFailure is shown when the backend gives no message.
const GenericFailure = "Failed to process workflow action"

var (
	// ErrNotPending means the transaction can no longer take the action.
	ErrNotPending = errors.New("approval: transaction is not pending")
	// ErrInvalidSubmission means the form does not allow the action.
	ErrInvalidSubmission = errors.New("approval: invalid submission")
	// ErrEntriesApproved is joined to a stage failure that happened after
	// the F&A batch went through. The prepared form is stale.
	ErrEntriesApproved = errors.New("approval: monitoring entries were approved but the stage was not processed")
)

// ValidationError carries the reasons an action is disabled.
type ValidationError struct {
	Action  domain.Action
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("approval: %s not allowed", e.Action)
	}
	return fmt.Sprintf("approval: %s not allowed: %s", e.Action, strings.Join(e.Reasons, "; "))
}

// Is matches ErrInvalidSubmission.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSubmission
}

// Processor is the write side of the backend. *api.Client satisfies it.
type Processor interface {
	ProcessStage(ctx context.Context, transactionID int64, req api.ProcessRequest) (domain.WorkflowTransaction, error)
	ApproveFA(ctx context.Context, req api.FAApproveRequest) error
}

// Invalidator drops cached query keys. *query.Cache satisfies it.
type Invalidator interface {
	Invalidate(keys ...string)
	InvalidatePrefix(prefix string)
}

// Submission is one user action against an actionable transaction.
type Submission struct {
	Transaction domain.WorkflowTransaction
	Action      domain.Action
	Form        FormState
	User        domain.User
}

// Result is what a successful submission produced.
type Result struct {
	Transaction domain.WorkflowTransaction
	Request     api.ProcessRequest
	// Redirect is the screen to open next, empty when none applies.
	Redirect    string
	Invalidated []string
}

// Dispatcher validates and submits stage actions.
type Dispatcher struct {
	processor Processor
	catalog   workflow.Catalog
	registry  *Registry
	cache     Invalidator
	logger    zerolog.Logger
	journal   *logbook.Logbook
}

// Option customises the dispatcher.
type Option func(*Dispatcher)

// WithCatalog sets the stage catalog.
func WithCatalog(catalog workflow.Catalog) Option {
	return func(d *Dispatcher) { d.catalog = catalog }
}

// WithRegistry sets the form strategies.
func WithRegistry(registry *Registry) Option {
	return func(d *Dispatcher) {
		if registry != nil {
			d.registry = registry
		}
	}
}

// WithCache sets the query cache to invalidate on success.
func WithCache(cache Invalidator) Option {
	return func(d *Dispatcher) { d.cache = cache }
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithLogbook sets the activity journal.
func WithLogbook(journal *logbook.Logbook) Option {
	return func(d *Dispatcher) { d.journal = journal }
}

// NewDispatcher builds a dispatcher around processor.
func NewDispatcher(processor Processor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		processor: processor,
		catalog:   workflow.Default(),
		registry:  DefaultRegistry(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	for _, number := range d.Unhandled() {
		stage, _ := d.catalog.Stage(number)
		d.logger.Warn().Int("stage", number).Str("form", string(stage.Form)).Msg("no form strategy registered; stage shows as informational")
	}
	return d
}

// Unhandled lists the catalog stages whose form kind has no registered
// strategy.
func (d *Dispatcher) Unhandled() []int {
	registered := map[workflow.FormKind]bool{}
	for _, kind := range d.registry.Kinds() {
		registered[kind] = true
	}
	var out []int
	for _, stage := range d.catalog.Stages {
		if !registered[stage.Form] {
			out = append(out, stage.Number)
		}
	}
	return out
}

// Registry returns the strategies in use.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Catalog returns the stage catalog in use.
func (d *Dispatcher) Catalog() workflow.Catalog { return d.catalog }

// Stage resolves the catalog stage of tx.
func (d *Dispatcher) Stage(tx domain.WorkflowTransaction) workflow.StageDefinition {
	return stageFor(d.catalog, tx)
}

// Validate reports which actions the form allows for tx.
func (d *Dispatcher) Validate(tx domain.WorkflowTransaction, form FormState) ValidationResult {
	if !tx.Pending() {
		return ValidationResult{Reasons: []string{"This stage has already been processed"}}
	}
	return d.registry.Validate(d.Stage(tx), form)
}

// Submit checks the action, calls the backend and invalidates stale queries.
// On failure nothing is invalidated and the caller keeps its form.
func (d *Dispatcher) Submit(ctx context.Context, sub Submission) (Result, error) {
	tx := sub.Transaction
	stage := d.Stage(tx)
	if !domain.CanApply(tx.ApproveStatus, sub.Action) {
		d.record(tx, sub.Action, "not-pending", nil)
		return Result{}, fmt.Errorf("%w: transaction %d is %s", ErrNotPending, tx.ID, tx.ApproveStatus.Label())
	}
	validation := d.registry.Validate(stage, sub.Form)
	if !validation.Allows(sub.Action) {
		err := &ValidationError{Action: sub.Action, Reasons: validation.Reasons}
		d.record(tx, sub.Action, "invalid", err)
		return Result{}, err
	}

	req := d.registry.Payload(stage, sub.Form, sub.Action)
	req.ExpectedStatus = domain.StatusPending
	req.ExpectedVersion = tx.Version

	faApproval := stage.Form == workflow.FormFAValidation && sub.Action == domain.ActionApprove && len(sub.Form.SelectedIDs()) > 0
	if faApproval {
		err := d.processor.ApproveFA(ctx, api.FAApproveRequest{
			EntryIDs:   sub.Form.SelectedIDs(),
			FAComments: strings.TrimSpace(sub.Form.FAComment),
		})
		if err != nil {
			d.record(tx, sub.Action, "fa-approve-failed", err)
			return Result{}, err
		}
	}

	updated, err := d.processor.ProcessStage(ctx, tx.ID, req)
	if err != nil {
		outcome := "failed"
		if errors.Is(err, api.ErrConflict) {
			outcome = "conflict"
		}
		d.record(tx, sub.Action, outcome, err)
		if faApproval {
			d.invalidate(query.MonitoringKey(tx.InitiativeID))
			return Result{}, fmt.Errorf("%w: %w", ErrEntriesApproved, err)
		}
		return Result{}, err
	}

	keys := append(query.MutationKeys(tx.InitiativeID), query.TimelineCompletedKey(tx.InitiativeID))
	if faApproval {
		keys = append(keys, query.MonitoringKey(tx.InitiativeID))
	}
	d.invalidate(keys...)
	if d.cache != nil {
		d.cache.InvalidatePrefix(query.PrefixInitiatives)
	}

	result := Result{Transaction: updated, Request: req, Invalidated: keys}
	if sub.Action == domain.ActionApprove {
		if screen, ok := d.catalog.Redirect(stage.Number, sub.User.Role); ok {
			result.Redirect = screen
		}
	}
	d.record(tx, sub.Action, "ok", nil)
	return result, nil
}

func (d *Dispatcher) invalidate(keys ...string) {
	if d.cache == nil {
		return
	}
	d.cache.Invalidate(keys...)
}

func (d *Dispatcher) record(tx domain.WorkflowTransaction, action domain.Action, outcome string, err error) {
	event := d.logger.Info()
	if err != nil {
		event = d.logger.Warn().Err(err)
	}
	event.
		Int64("transaction", tx.ID).
		Int64("initiative", tx.InitiativeID).
		Int("stage", tx.StageNumber).
		Str("action", string(action)).
		Str("outcome", outcome).
		Msg("approval: dispatch")
	d.journal.Action(tx.ID, tx.StageNumber, string(action), outcome)
}

// FailureMessage is the toast text for a failed submission.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := api.Message(err); ok {
		return msg
	}
	var verr *ValidationError
	if errors.As(err, &verr) && len(verr.Reasons) > 0 {
		return strings.Join(verr.Reasons, "; ")
	}
	return GenericFailure
}
