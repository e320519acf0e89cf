package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionsByStagePrefersPending(t *testing.T) {
	txs := []WorkflowTransaction{
		{ID: 1, StageNumber: 2, ApproveStatus: StatusRejected},
		{ID: 2, StageNumber: 2, ApproveStatus: StatusPending},
		{ID: 3, StageNumber: 1, ApproveStatus: StatusApproved},
		{ID: 4, StageNumber: 1, ApproveStatus: StatusApproved},
	}
	byStage := TransactionsByStage(txs)
	assert.Equal(t, int64(2), byStage[2].ID)
	assert.Equal(t, int64(4), byStage[1].ID)
}

func TestComputeProgress(t *testing.T) {
	txs := []WorkflowTransaction{
		{ID: 1, StageNumber: 1, ApproveStatus: StatusApproved},
		{ID: 2, StageNumber: 2, ApproveStatus: StatusApproved},
		{ID: 3, StageNumber: 3, ApproveStatus: StatusPending},
	}
	progress := ComputeProgress(9, txs)
	assert.Equal(t, 2, progress.CompletedStages)
	assert.Equal(t, TotalStages, progress.TotalStages)
	assert.InDelta(t, 18.2, progress.Percentage, 0.001)
}

func TestMonitoringDeviationAndEligibility(t *testing.T) {
	entry := MonitoringEntry{TargetValue: 200, AchievedValue: 150, IsFinalized: true}
	assert.Equal(t, -50.0, entry.DeviationValue())
	assert.Equal(t, -25.0, entry.DeviationPct())
	assert.True(t, entry.EligibleForFA())

	entry.FAApproval = true
	assert.False(t, entry.EligibleForFA())

	assert.False(t, AllFinalized(nil))
	assert.True(t, AllFinalized([]MonitoringEntry{{IsFinalized: true}}))
}

func TestTimelineAllCompleted(t *testing.T) {
	assert.False(t, AllCompleted(nil))
	assert.True(t, AllCompleted([]TimelineEntry{{Status: "completed"}, {Completed: true}}))
	assert.False(t, AllCompleted([]TimelineEntry{{Status: TimelineInProgress}}))
}

func TestInitiativeValidate(t *testing.T) {
	assert.Error(t, Initiative{Site: "Plant A"}.Validate())
	assert.Error(t, Initiative{Title: "x", Site: "A", BudgetType: "maybe"}.Validate())
	assert.NoError(t, Initiative{Title: "Steam traps", Site: "Plant A", BudgetType: BudgetBudgeted}.Validate())
}

func TestSameEmail(t *testing.T) {
	assert.True(t, SameEmail(" Lead@Plant.com", "lead@plant.com "))
	assert.False(t, SameEmail("", ""))
}

func TestTransactionDecodeNormalisesStatusAndRole(t *testing.T) {
	var tx WorkflowTransaction
	body := `{"id":9,"stageNumber":4,"approveStatus":"Pending","requiredRole":" sh "}`
	require.NoError(t, json.Unmarshal([]byte(body), &tx))
	assert.Equal(t, StatusPending, tx.ApproveStatus)
	assert.True(t, tx.Pending())
	assert.Equal(t, RoleSiteHead, tx.RequiredRole)

	require.NoError(t, json.Unmarshal([]byte(`{"approveStatus":"APPROVED"}`), &tx))
	assert.Equal(t, StatusApproved, tx.ApproveStatus)
	assert.False(t, tx.Pending())
}

func TestTransactionDecodeRejectsUnknownStatus(t *testing.T) {
	var tx WorkflowTransaction
	err := json.Unmarshal([]byte(`{"approveStatus":"on hold"}`), &tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestUserDecodeNormalisesRole(t *testing.T) {
	var user User
	require.NoError(t, json.Unmarshal([]byte(`{"email":"a@b","role":"f&a"}`), &user))
	assert.Equal(t, RoleFinance, user.Role)
	assert.True(t, user.Role.Corporate())
}
