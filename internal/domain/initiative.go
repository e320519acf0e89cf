package domain

import (
	"fmt"
	"strings"
)

// Initiative statuses reported by the backend.
const (
	InitiativeStatusActive    = "Active"
	InitiativeStatusCompleted = "Completed"
	InitiativeStatusRejected  = "Rejected"
	InitiativeStatusDropped   = "Dropped"
)

// Budget types.
const (
	BudgetBudgeted    = "BUDGETED"
	BudgetNonBudgeted = "NON-BUDGETED"
)

// TotalStages is the number of stages an initiative passes through.
const TotalStages = 11

// Initiative is an improvement project tracked through the workflow.
type Initiative struct {
	ID              int64      `json:"id"`
	InitiativeNo    string     `json:"initiativeNumber,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Site            string     `json:"site"`
	Discipline      string     `json:"discipline,omitempty"`
	Priority        string     `json:"priority,omitempty"`
	ExpectedSavings float64    `json:"expectedSavings"`
	ActualSavings   float64    `json:"actualSavings"`
	BudgetType      string     `json:"budgetType,omitempty"`
	StartDate       *Date      `json:"startDate,omitempty"`
	EndDate         *Date      `json:"endDate,omitempty"`
	CurrentStage    int        `json:"currentStage"`
	Status          string     `json:"status"`
	RequiresMoc     YesNo      `json:"requiresMoc"`
	RequiresCapex   YesNo      `json:"requiresCapex"`
	MocNumber       string     `json:"mocNumber,omitempty"`
	CapexNumber     string     `json:"capexNumber,omitempty"`
	CreatedByID     int64      `json:"createdById,omitempty"`
	CreatedByName   string     `json:"createdByName,omitempty"`
	CreatedByEmail  string     `json:"createdByEmail,omitempty"`
	TargetOutcome   string     `json:"targetOutcome,omitempty"`
	TargetValue     float64    `json:"targetValue,omitempty"`
	ConfidenceLevel int        `json:"confidenceLevel,omitempty"`
	BaselineData    string     `json:"baselineData,omitempty"`
	Assumption1     string     `json:"assumption1,omitempty"`
	Assumption2     string     `json:"assumption2,omitempty"`
	Assumption3     string     `json:"assumption3,omitempty"`
	CreatedAt       *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt       *Timestamp `json:"updatedAt,omitempty"`
}

// Validate checks the fields required to register or update an initiative.
func (i Initiative) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("domain: initiative title is required")
	}
	if strings.TrimSpace(i.Site) == "" {
		return fmt.Errorf("domain: initiative site is required")
	}
	if i.ExpectedSavings < 0 {
		return fmt.Errorf("domain: expected savings must be >= 0")
	}
	switch i.BudgetType {
	case "", BudgetBudgeted, BudgetNonBudgeted:
	default:
		return fmt.Errorf("domain: unknown budget type %q", i.BudgetType)
	}
	if i.CurrentStage < 0 || i.CurrentStage > TotalStages {
		return fmt.Errorf("domain: current stage %d out of range", i.CurrentStage)
	}
	if i.StartDate != nil && i.EndDate != nil && !i.StartDate.IsZero() && !i.EndDate.IsZero() && i.EndDate.Before(i.StartDate.Time) {
		return fmt.Errorf("domain: end date precedes start date")
	}
	return nil
}

// Closed reports whether the initiative can no longer move.
func (i Initiative) Closed() bool {
	switch i.Status {
	case InitiativeStatusCompleted, InitiativeStatusRejected, InitiativeStatusDropped:
		return true
	}
	return false
}

// InitiativeFilter narrows the initiative listing.
type InitiativeFilter struct {
	Site   string
	Status string
	Search string
}

// Progress summarises how far an initiative has moved through the workflow.
type Progress struct {
	InitiativeID    int64   `json:"initiativeId"`
	CompletedStages int     `json:"completedStages"`
	TotalStages     int     `json:"totalStages"`
	Percentage      float64 `json:"percentage"`
}

// ComputeProgress derives progress from transactions when the backend does
// not supply it.
func ComputeProgress(initiativeID int64, txs []WorkflowTransaction) Progress {
	completed := 0
	for _, tx := range TransactionsByStage(txs) {
		if tx.ApproveStatus == StatusApproved {
			completed++
		}
	}
	return Progress{
		InitiativeID:    initiativeID,
		CompletedStages: completed,
		TotalStages:     TotalStages,
		Percentage:      Percent(float64(completed), TotalStages),
	}
}

// Percent returns part/whole*100 rounded to one decimal, or 0 for an empty whole.
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return roundTo(part/whole*100, 1)
}

func roundTo(value float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	if value < 0 {
		return -float64(int64(-value*scale+0.5)) / scale
	}
	return float64(int64(value*scale+0.5)) / scale
}
