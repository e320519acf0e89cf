package domain

import "strings"

// Timeline entry statuses.
const (
	TimelinePending    = "PENDING"
	TimelineInProgress = "IN_PROGRESS"
	TimelineCompleted  = "COMPLETED"
	TimelineDelayed    = "DELAYED"
)

// TimelineEntry is a planned/actual task record for an initiative.
type TimelineEntry struct {
	ID                int64  `json:"id"`
	InitiativeID      int64  `json:"initiativeId"`
	StageName         string `json:"stageName"`
	PlannedStartDate  *Date  `json:"plannedStartDate,omitempty"`
	PlannedEndDate    *Date  `json:"plannedEndDate,omitempty"`
	ActualStartDate   *Date  `json:"actualStartDate,omitempty"`
	ActualEndDate     *Date  `json:"actualEndDate,omitempty"`
	Status            string `json:"status"`
	ResponsiblePerson string `json:"responsiblePerson,omitempty"`
	Remarks           string `json:"remarks,omitempty"`
	Completed         YesNo  `json:"completed"`
}

// Done reports whether the entry counts as completed.
func (t TimelineEntry) Done() bool {
	return bool(t.Completed) || strings.EqualFold(t.Status, TimelineCompleted)
}

// AllCompleted reports whether every entry is done. An empty slice is not.
func AllCompleted(entries []TimelineEntry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, entry := range entries {
		if !entry.Done() {
			return false
		}
	}
	return true
}
