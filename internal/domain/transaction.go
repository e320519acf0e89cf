package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the approval status of a workflow transaction.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusDropped  Status = "dropped"
)

// ParseStatus normalises the backend's status string.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	case StatusDropped:
		return StatusDropped, nil
	}
	return "", fmt.Errorf("domain: unknown status %q", value)
}

// UnmarshalJSON normalises through ParseStatus so "Pending" and "PENDING"
// compare equal to StatusPending. Unknown statuses are an error.
func (s *Status) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("domain: decode status: %w", err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether no further action is possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusDropped
}

// Label is the title-cased status used in listings.
func (s Status) Label() string {
	if s == "" {
		return "Not started"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Action is the verb a user submits against a pending transaction.
type Action string

const (
	ActionApprove Action = "approved"
	ActionReject  Action = "rejected"
	ActionDrop    Action = "dropped"
)

// ParseAction accepts the wire verbs plus the short imperative forms.
func ParseAction(value string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "approved", "approve":
		return ActionApprove, nil
	case "rejected", "reject":
		return ActionReject, nil
	case "dropped", "drop":
		return ActionDrop, nil
	}
	return "", fmt.Errorf("domain: unknown action %q", value)
}

// Result is the status a transaction ends in after the action.
func (a Action) Result() Status {
	return Status(a)
}

// Verb is the imperative label shown on buttons.
func (a Action) Verb() string {
	switch a {
	case ActionApprove:
		return "Approve"
	case ActionReject:
		return "Reject"
	case ActionDrop:
		return "Drop"
	}
	return string(a)
}

// WorkflowTransaction is one stage instance of an initiative's workflow.
type WorkflowTransaction struct {
	ID             int64      `json:"id"`
	InitiativeID   int64      `json:"initiativeId"`
	StageNumber    int        `json:"stageNumber"`
	StageName      string     `json:"stageName"`
	Site           string     `json:"site,omitempty"`
	ApproveStatus  Status     `json:"approveStatus"`
	Comment        string     `json:"comment,omitempty"`
	ActionBy       string     `json:"actionBy,omitempty"`
	ActionDate     *Timestamp `json:"actionDate,omitempty"`
	PendingWith    string     `json:"pendingWith,omitempty"`
	RequiredRole   Role       `json:"requiredRole,omitempty"`
	AssignedUserID *int64     `json:"assignedUserId,omitempty"`
	NextStageName  string     `json:"nextStageName,omitempty"`
	NextUser       string     `json:"nextUser,omitempty"`
	IsVisible      YesNo      `json:"isVisible"`
	RequiresMoc    YesNo      `json:"requiresMoc"`
	RequiresCapex  YesNo      `json:"requiresCapex"`
	MocNumber      string     `json:"mocNumber,omitempty"`
	CapexNumber    string     `json:"capexNumber,omitempty"`
	CreatedAt      *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt      *Timestamp `json:"updatedAt,omitempty"`
	Version        int64      `json:"version,omitempty"`
}

// Pending reports whether the transaction still awaits an action.
func (t WorkflowTransaction) Pending() bool {
	return t.ApproveStatus == StatusPending
}

// PendingFor reports whether the transaction is pending with the given email.
func (t WorkflowTransaction) PendingFor(email string) bool {
	return t.Pending() && SameEmail(t.PendingWith, email)
}

// TransactionsByStage indexes transactions by stage number. When a stage has
// more than one row the pending one wins, then the latest id.
func TransactionsByStage(txs []WorkflowTransaction) map[int]WorkflowTransaction {
	out := make(map[int]WorkflowTransaction, len(txs))
	for _, tx := range txs {
		existing, ok := out[tx.StageNumber]
		switch {
		case !ok:
			out[tx.StageNumber] = tx
		case tx.Pending() && !existing.Pending():
			out[tx.StageNumber] = tx
		case tx.Pending() == existing.Pending() && tx.ID > existing.ID:
			out[tx.StageNumber] = tx
		}
	}
	return out
}
