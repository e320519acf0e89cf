// Package approval decides which workflow transaction the current user may
// act on, validates the stage-specific form and submits the action.
package approval

import (
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/workflow"
)

// Match records which rule selected the actionable transaction.
type Match int

const (
	MatchNone Match = iota
	// MatchPendingWith means the transaction is pending with the user's email.
	MatchPendingWith
	// MatchRole means the user's role is authorised for the transaction's stage.
	MatchRole
)

func (m Match) String() string {
	switch m {
	case MatchPendingWith:
		return "pending-with"
	case MatchRole:
		return "role"
	}
	return "none"
}

// Actionable is the transaction the user may act on plus its stage.
type Actionable struct {
	Transaction domain.WorkflowTransaction
	Stage       workflow.StageDefinition
	Match       Match
}

// FindActionable picks at most one transaction the user may act on. A
// transaction pending with the user's email wins; otherwise the first pending
// transaction at one of the role's stages, in ascending stage order.
func FindActionable(txs []domain.WorkflowTransaction, user domain.User, catalog workflow.Catalog) (Actionable, bool) {
	for _, tx := range txs {
		if tx.PendingFor(user.Email) {
			return Actionable{Transaction: tx, Stage: stageFor(catalog, tx), Match: MatchPendingWith}, true
		}
	}
	for _, stage := range catalog.StagesForRole(user.Role) {
		for _, tx := range txs {
			if tx.StageNumber == stage && tx.Pending() {
				return Actionable{Transaction: tx, Stage: stageFor(catalog, tx), Match: MatchRole}, true
			}
		}
	}
	return Actionable{}, false
}

// stageFor returns the catalog stage, or an informational stand-in for
// stage numbers the catalog does not know.
func stageFor(catalog workflow.Catalog, tx domain.WorkflowTransaction) workflow.StageDefinition {
	if stage, ok := catalog.Stage(tx.StageNumber); ok {
		return stage
	}
	name := tx.StageName
	if name == "" {
		name = catalog.StageName(tx.StageNumber)
	}
	return workflow.StageDefinition{
		Number:      tx.StageNumber,
		Name:        name,
		Description: workflow.FallbackDescription,
		Form:        workflow.FormInformational,
		Screen:      workflow.ScreenWorkflow,
	}
}
