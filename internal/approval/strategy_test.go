package approval

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/workflow"
)

func stage(t *testing.T, number int) workflow.StageDefinition {
	t.Helper()
	s, ok := workflow.Default().Stage(number)
	require.True(t, ok)
	return s
}

func TestEmptyCommentDisablesEveryActionOnEveryStage(t *testing.T) {
	registry := DefaultRegistry()
	full := FormState{
		Comment:    "   ",
		AssigneeID: 42,
		Moc:        ChoiceNo,
		Capex:      ChoiceNo,
		Gate:       Gate{Checked: true, Satisfied: true},
	}
	for _, s := range workflow.Default().Stages {
		result := registry.Validate(s, full)
		assert.False(t, result.CanApprove, "stage %d approve", s.Number)
		assert.False(t, result.CanReject, "stage %d reject", s.Number)
		assert.False(t, result.CanDrop, "stage %d drop", s.Number)
		assert.Contains(t, result.Reasons, CommentRequired)
	}
}

func TestDropOnlyAtCMOReview(t *testing.T) {
	registry := DefaultRegistry()
	form := FormState{Comment: "Defer", AssigneeID: 1, Moc: ChoiceNo, Capex: ChoiceNo, Gate: Gate{Checked: true, Satisfied: true}}
	for _, s := range workflow.Default().Stages {
		assert.Equal(t, s.Number == 8, registry.Validate(s, form).CanDrop, "stage %d", s.Number)
	}
	req := registry.Payload(stage(t, 8), form, domain.ActionDrop)
	assert.Equal(t, domain.ActionDrop, req.Action)
	assert.Equal(t, "Defer", req.Remarks)
}

func TestClosureNeverOffersReject(t *testing.T) {
	result := DefaultRegistry().Validate(stage(t, 11), FormState{Comment: "Done"})
	assert.True(t, result.CanApprove)
	assert.False(t, result.CanReject)
}

func TestAssignLeadRequiresSelection(t *testing.T) {
	registry := DefaultRegistry()
	s := stage(t, 4)
	form := FormState{Comment: "ok", Candidates: []domain.User{{ID: 42, FullName: "Lead"}}}
	assert.False(t, registry.Validate(s, form).CanApprove)
	assert.True(t, registry.Validate(s, form).CanReject)

	form.AssigneeID = 7
	assert.False(t, registry.Validate(s, form).CanApprove, "assignee must be a candidate")

	form.AssigneeID = 42
	assert.True(t, registry.Validate(s, form).CanApprove)
	req := registry.Payload(s, form, domain.ActionApprove)
	require.NotNil(t, req.AssignedUserID)
	assert.Equal(t, int64(42), *req.AssignedUserID)

	rejected := registry.Payload(s, form, domain.ActionReject)
	assert.Nil(t, rejected.AssignedUserID)
}

func TestMocCapexRules(t *testing.T) {
	registry := DefaultRegistry()
	s := stage(t, 5)
	form := FormState{Comment: "ok", Moc: ChoiceYes}
	assert.False(t, registry.Validate(s, form).CanApprove, "moc number and capex choice missing")

	form.MocNumber = "MOC-7"
	assert.False(t, registry.Validate(s, form).CanApprove, "capex choice missing")

	form.Capex = ChoiceYes
	assert.False(t, registry.Validate(s, form).CanApprove, "capex number missing")

	form.CapexNumber = "  "
	assert.False(t, registry.Validate(s, form).CanApprove, "blank capex number")

	form.Capex = ChoiceNo
	assert.True(t, registry.Validate(s, form).CanApprove)

	req := registry.Payload(s, form, domain.ActionApprove)
	require.NotNil(t, req.RequiresMoc)
	require.NotNil(t, req.RequiresCapex)
	assert.True(t, req.RequiresMoc.Bool())
	assert.False(t, req.RequiresCapex.Bool())
	assert.Equal(t, "MOC-7", req.MocNumber)
	assert.Empty(t, req.CapexNumber, "numbers only travel with a yes")
}

func TestTimelineGateDisablesApproveButNotReject(t *testing.T) {
	registry := DefaultRegistry()
	s := stage(t, 6)
	form := FormState{Comment: "ok", Gate: Gate{Checked: true, Satisfied: false}}
	result := registry.Validate(s, form)
	assert.False(t, result.CanApprove)
	assert.True(t, result.CanReject)

	panel := registry.Describe(s, form)
	require.Len(t, panel.Banners, 1)
	assert.False(t, panel.Banners[0].OK)

	form.Gate.Satisfied = true
	assert.True(t, registry.Validate(s, form).CanApprove)
	assert.True(t, registry.Describe(s, form).Banners[0].OK)
}

func TestUncheckedGateBlocksApprove(t *testing.T) {
	result := DefaultRegistry().Validate(stage(t, 7), FormState{Comment: "ok"})
	assert.False(t, result.CanApprove)
	assert.True(t, result.CanReject)
}

func TestFAValidationSelection(t *testing.T) {
	registry := DefaultRegistry()
	s := stage(t, 10)
	assert.True(t, registry.Validate(s, FormState{Comment: "ok"}).CanApprove, "no eligible entries")

	form := FormState{Comment: "ok", Eligible: []domain.MonitoringEntry{{ID: 1}, {ID: 2}, {ID: 3}}}
	assert.False(t, registry.Validate(s, form).CanApprove)

	form.ToggleEntry(2)
	assert.True(t, registry.Validate(s, form).CanApprove)
	assert.Equal(t, []int64{2}, form.SelectedIDs())

	form.SelectAll()
	assert.Equal(t, []int64{1, 2, 3}, form.SelectedIDs())
	assert.True(t, form.AllSelected())

	form.SelectAll()
	assert.Empty(t, form.SelectedIDs())

	form.ToggleEntry(99)
	assert.Empty(t, form.SelectedIDs(), "ineligible ids are ignored")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := DefaultRegistry()
	assert.Error(t, registry.Register(closureForm{}))
	assert.Len(t, registry.Kinds(), len(workflow.FormKinds))
}

func TestDispatcherReportsStagesWithoutStrategy(t *testing.T) {
	assert.Empty(t, NewDispatcher(&fakeProcessor{}).Unhandled())

	registry := NewRegistry()
	registry.MustRegister(informationalForm{})
	registry.MustRegister(closureForm{})
	var buf bytes.Buffer
	d := NewDispatcher(&fakeProcessor{}, WithRegistry(registry), WithLogger(zerolog.New(&buf)))
	assert.Equal(t, []int{4, 5, 6, 7, 9, 10}, d.Unhandled())
	assert.Contains(t, buf.String(), "no form strategy registered")
	assert.Equal(t, workflow.FormInformational, registry.Resolve(workflow.FormAssignLead).Kind())
}
