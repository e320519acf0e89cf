package approval

import (
	"context"
	"fmt"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/workflow"
)

// Source is the read side a stage panel needs. *api.Client and
// *query.Source both satisfy it.
type Source interface {
	ListUsers(ctx context.Context, filter api.UserFilter) ([]domain.User, error)
	TimelineAllCompleted(ctx context.Context, initiativeID int64) (bool, error)
	MonitoringEntries(ctx context.Context, initiativeID int64) ([]domain.MonitoringEntry, error)
}

// Preparer is implemented by strategies that load data before rendering.
type Preparer interface {
	Prepare(ctx context.Context, src Source, initiative domain.Initiative, form *FormState) error
}

// Prepare returns a fresh form for stage with candidates, gates and
// eligible entries loaded. Gate and monitoring failures are recorded on
// the form rather than returned so the panel can show them.
func (r *Registry) Prepare(ctx context.Context, src Source, stage workflow.StageDefinition, initiative domain.Initiative) (FormState, error) {
	form := FormState{Selected: map[int64]bool{}}
	preparer, ok := r.Resolve(stage.Form).(Preparer)
	if !ok || src == nil {
		return form, nil
	}
	if err := preparer.Prepare(ctx, src, initiative, &form); err != nil {
		return form, fmt.Errorf("approval: prepare stage %d: %w", stage.Number, err)
	}
	return form, nil
}

// Refresh reloads the external data of an existing form while keeping
// the user's input.
func (r *Registry) Refresh(ctx context.Context, src Source, stage workflow.StageDefinition, initiative domain.Initiative, form FormState) (FormState, error) {
	fresh, err := r.Prepare(ctx, src, stage, initiative)
	if err != nil {
		return form, err
	}
	form.Candidates = fresh.Candidates
	form.Gate = fresh.Gate
	form.Eligible = fresh.Eligible
	form.EntriesErr = fresh.EntriesErr
	kept := map[int64]bool{}
	for _, entry := range form.Eligible {
		if form.Selected[entry.ID] {
			kept[entry.ID] = true
		}
	}
	form.Selected = kept
	return form, nil
}

func (assignLeadForm) Prepare(ctx context.Context, src Source, initiative domain.Initiative, form *FormState) error {
	users, err := src.ListUsers(ctx, api.UserFilter{Role: domain.RoleInitiativeLead, Site: initiative.Site})
	if err != nil {
		return err
	}
	form.Candidates = users
	return nil
}

func (g gateForm) Prepare(ctx context.Context, src Source, initiative domain.Initiative, form *FormState) error {
	var satisfied bool
	var err error
	if g.kind == workflow.FormTimelineGate {
		satisfied, err = src.TimelineAllCompleted(ctx, initiative.ID)
	} else {
		var entries []domain.MonitoringEntry
		entries, err = src.MonitoringEntries(ctx, initiative.ID)
		satisfied = domain.AllFinalized(entries)
	}
	form.Gate = Gate{Checked: err == nil, Satisfied: err == nil && satisfied, Err: err}
	return nil
}

func (faValidationForm) Prepare(ctx context.Context, src Source, initiative domain.Initiative, form *FormState) error {
	entries, err := src.MonitoringEntries(ctx, initiative.ID)
	if err != nil {
		form.EntriesErr = err
		return nil
	}
	form.Eligible = domain.EligibleForFA(entries)
	return nil
}
