package approval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/logbook"
	"github.com/kingrea/opex/internal/query"
)

type fakeProcessor struct {
	processed []api.ProcessRequest
	faBatches []api.FAApproveRequest
	err       error
	faErr     error
}

func (f *fakeProcessor) ProcessStage(_ context.Context, id int64, req api.ProcessRequest) (domain.WorkflowTransaction, error) {
	f.processed = append(f.processed, req)
	if f.err != nil {
		return domain.WorkflowTransaction{}, f.err
	}
	return domain.WorkflowTransaction{ID: id, ApproveStatus: req.Action.Result()}, nil
}

func (f *fakeProcessor) ApproveFA(_ context.Context, req api.FAApproveRequest) error {
	f.faBatches = append(f.faBatches, req)
	return f.faErr
}

func primed(t *testing.T, initiativeID int64) *query.Cache {
	t.Helper()
	cache := query.New(query.DefaultTTLs())
	for _, key := range []string{
		query.TransactionsKey(initiativeID),
		query.ProgressKey(initiativeID),
		query.MonitoringKey(initiativeID),
		query.InitiativesKey(domain.InitiativeFilter{}),
	} {
		_, err := query.Fetch(cache, key, 0, func() (string, error) { return "cached", nil })
		require.NoError(t, err)
	}
	return cache
}

func cached(cache *query.Cache, key string) bool {
	_, ok := query.Peek[string](cache, key)
	return ok
}

func TestSubmitAssignLeadSendsExpectedBody(t *testing.T) {
	processor := &fakeProcessor{}
	cache := primed(t, 1)
	dispatcher := NewDispatcher(processor, WithCache(cache))

	tx := pending(17, 4, "sh@plant.test")
	form := FormState{
		Comment:    "Approved, proceed",
		Candidates: []domain.User{{ID: 42, FullName: "Ines Lead", Role: domain.RoleInitiativeLead}},
		AssigneeID: 42,
	}
	result, err := dispatcher.Submit(context.Background(), Submission{
		Transaction: tx,
		Action:      domain.ActionApprove,
		Form:        form,
		User:        domain.User{Email: "sh@plant.test", Role: domain.RoleSiteHead},
	})
	require.NoError(t, err)
	require.Len(t, processor.processed, 1)

	body, err := json.Marshal(processor.processed[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"approved","remarks":"Approved, proceed","assignedUserId":42,"expectedStatus":"pending"}`, string(body))

	assert.False(t, cached(cache, query.TransactionsKey(1)))
	assert.False(t, cached(cache, query.ProgressKey(1)))
	assert.False(t, cached(cache, query.InitiativesKey(domain.InitiativeFilter{})))
	assert.True(t, cached(cache, query.MonitoringKey(1)), "monitoring untouched outside F&A")
	assert.Contains(t, result.Invalidated, query.TransactionsKey(1))
	assert.Empty(t, result.Redirect)
	assert.Equal(t, domain.StatusApproved, result.Transaction.ApproveStatus)
}

func TestSubmitCarriesExpectedVersion(t *testing.T) {
	processor := &fakeProcessor{}
	tx := pending(3, 2, "")
	tx.Version = 7
	_, err := NewDispatcher(processor).Submit(context.Background(), Submission{
		Transaction: tx,
		Action:      domain.ActionReject,
		Form:        FormState{Comment: " not viable "},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), processor.processed[0].ExpectedVersion)
	assert.Equal(t, "not viable", processor.processed[0].Remarks)
}

func TestSubmitRejectsEmptyComment(t *testing.T) {
	processor := &fakeProcessor{}
	_, err := NewDispatcher(processor).Submit(context.Background(), Submission{
		Transaction: pending(1, 1, ""),
		Action:      domain.ActionApprove,
	})
	require.ErrorIs(t, err, ErrInvalidSubmission)
	assert.Empty(t, processor.processed, "nothing is sent")
	assert.Equal(t, CommentRequired, FailureMessage(err))
}

func TestSubmitDropOutsideReviewIsInvalid(t *testing.T) {
	processor := &fakeProcessor{}
	dispatcher := NewDispatcher(processor)
	_, err := dispatcher.Submit(context.Background(), Submission{
		Transaction: pending(1, 3, ""),
		Action:      domain.ActionDrop,
		Form:        FormState{Comment: "later"},
	})
	require.ErrorIs(t, err, ErrInvalidSubmission)

	result, err := dispatcher.Submit(context.Background(), Submission{
		Transaction: pending(2, 8, ""),
		Action:      domain.ActionDrop,
		Form:        FormState{Comment: "next fiscal year"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDropped, result.Transaction.ApproveStatus)
}

func TestSubmitRefusesProcessedTransaction(t *testing.T) {
	processor := &fakeProcessor{}
	tx := pending(1, 2, "")
	tx.ApproveStatus = domain.StatusApproved
	_, err := NewDispatcher(processor).Submit(context.Background(), Submission{
		Transaction: tx,
		Action:      domain.ActionApprove,
		Form:        FormState{Comment: "again"},
	})
	require.ErrorIs(t, err, ErrNotPending)
	assert.Empty(t, processor.processed)
}

func TestSubmitConflictKeepsCache(t *testing.T) {
	processor := &fakeProcessor{err: &api.APIError{StatusCode: http.StatusConflict, Message: "Transaction already processed"}}
	cache := primed(t, 1)
	journal, err := logbook.New(filepath.Join(t.TempDir(), "activity.log"))
	require.NoError(t, err)

	_, err = NewDispatcher(processor, WithCache(cache), WithLogbook(journal)).Submit(context.Background(), Submission{
		Transaction: pending(1, 2, ""),
		Action:      domain.ActionApprove,
		Form:        FormState{Comment: "ok"},
	})
	require.ErrorIs(t, err, api.ErrConflict)
	assert.Equal(t, "Transaction already processed", FailureMessage(err))
	assert.True(t, cached(cache, query.TransactionsKey(1)))

	lines, _ := journal.Tail(10)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "conflict")
}

func TestSubmitRedirectsAfterTimelineApproval(t *testing.T) {
	processor := &fakeProcessor{}
	result, err := NewDispatcher(processor).Submit(context.Background(), Submission{
		Transaction: pending(6, 6, "il@plant.test"),
		Action:      domain.ActionApprove,
		Form:        FormState{Comment: "done", Gate: Gate{Checked: true, Satisfied: true}},
		User:        domain.User{Email: "il@plant.test", Role: domain.RoleInitiativeLead},
	})
	require.NoError(t, err)
	assert.Equal(t, "timeline-tracker", result.Redirect)
}

func TestSubmitFAValidationApprovesSelectedEntriesFirst(t *testing.T) {
	processor := &fakeProcessor{}
	cache := primed(t, 1)
	form := FormState{
		Comment:   "validated",
		FAComment: " matches ledger ",
		Eligible:  []domain.MonitoringEntry{{ID: 11}, {ID: 12}},
	}
	form.SelectAll()

	_, err := NewDispatcher(processor, WithCache(cache)).Submit(context.Background(), Submission{
		Transaction: pending(10, 10, "fa@plant.test"),
		Action:      domain.ActionApprove,
		Form:        form,
		User:        domain.User{Email: "fa@plant.test", Role: domain.RoleFinance},
	})
	require.NoError(t, err)
	require.Len(t, processor.faBatches, 1)
	assert.Equal(t, []int64{11, 12}, processor.faBatches[0].EntryIDs)
	assert.Equal(t, "matches ledger", processor.faBatches[0].FAComments)
	assert.Len(t, processor.processed, 1)
	assert.False(t, cached(cache, query.MonitoringKey(1)))
}

func TestSubmitFAFailureSkipsProcess(t *testing.T) {
	processor := &fakeProcessor{faErr: errors.New("boom")}
	form := FormState{Comment: "validated", Eligible: []domain.MonitoringEntry{{ID: 11}}}
	form.ToggleEntry(11)

	_, err := NewDispatcher(processor).Submit(context.Background(), Submission{
		Transaction: pending(10, 10, ""),
		Action:      domain.ActionApprove,
		Form:        form,
	})
	require.Error(t, err)
	assert.Empty(t, processor.processed)
	assert.Equal(t, GenericFailure, FailureMessage(err))
}

func TestSubmitProcessFailureAfterFABatchMarksFormStale(t *testing.T) {
	processor := &fakeProcessor{err: api.ErrConflict}
	cache := primed(t, 1)
	form := FormState{Comment: "validated", Eligible: []domain.MonitoringEntry{{ID: 11}}}
	form.ToggleEntry(11)

	_, err := NewDispatcher(processor, WithCache(cache)).Submit(context.Background(), Submission{
		Transaction: pending(10, 10, ""),
		Action:      domain.ActionApprove,
		Form:        form,
	})
	require.Error(t, err)
	assert.Len(t, processor.faBatches, 1)
	assert.ErrorIs(t, err, ErrEntriesApproved)
	assert.ErrorIs(t, err, api.ErrConflict)
	assert.False(t, cached(cache, query.MonitoringKey(1)))
	assert.True(t, cached(cache, query.TransactionsKey(1)), "stage did not move")
}

func TestSubmitProcessFailureWithoutFABatchIsPlain(t *testing.T) {
	processor := &fakeProcessor{err: api.ErrConflict}
	_, err := NewDispatcher(processor).Submit(context.Background(), Submission{
		Transaction: pending(3, 2, ""),
		Action:      domain.ActionApprove,
		Form:        FormState{Comment: "ok"},
	})
	require.ErrorIs(t, err, api.ErrConflict)
	assert.NotErrorIs(t, err, ErrEntriesApproved)
}

func TestValidateProcessedTransactionAllowsNothing(t *testing.T) {
	tx := pending(1, 2, "")
	tx.ApproveStatus = domain.StatusRejected
	result := NewDispatcher(&fakeProcessor{}).Validate(tx, FormState{Comment: "x"})
	assert.False(t, result.CanApprove || result.CanReject || result.CanDrop)
}
