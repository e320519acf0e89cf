package approval

import (
	"strings"

	"github.com/kingrea/opex/internal/domain"
)

// Choice is a tri-state yes/no radio.
type Choice int

const (
	ChoiceUnset Choice = iota
	ChoiceYes
	ChoiceNo
)

// ChoiceFrom converts a parsed flag.
func ChoiceFrom(flag domain.YesNo) Choice {
	if flag {
		return ChoiceYes
	}
	return ChoiceNo
}

// Toggle cycles unset -> yes -> no -> yes.
func (c Choice) Toggle() Choice {
	if c == ChoiceYes {
		return ChoiceNo
	}
	return ChoiceYes
}

func (c Choice) String() string {
	switch c {
	case ChoiceYes:
		return "Yes"
	case ChoiceNo:
		return "No"
	}
	return "-"
}

// Gate is the outcome of an external completeness check.
type Gate struct {
	Checked   bool
	Satisfied bool
	Err       error
}

// FormState is the in-memory input for one stage panel. It survives failed
// submissions so the user can retry.
type FormState struct {
	Comment string

	// assign-lead
	Candidates []domain.User
	AssigneeID int64

	// moc-capex
	Moc         Choice
	MocNumber   string
	Capex       Choice
	CapexNumber string

	// timeline-gate and monitoring-gate
	Gate Gate

	// fa-validation
	Eligible   []domain.MonitoringEntry
	EntriesErr error
	Selected   map[int64]bool
	FAComment  string
}

// TrimmedComment returns the comment without surrounding whitespace.
func (f FormState) TrimmedComment() string {
	return strings.TrimSpace(f.Comment)
}

// HasComment reports whether a non-blank comment was entered.
func (f FormState) HasComment() bool {
	return f.TrimmedComment() != ""
}

// ToggleEntry flips the selection of an eligible entry. Ineligible ids are
// ignored.
func (f *FormState) ToggleEntry(id int64) {
	if !f.isEligible(id) {
		return
	}
	if f.Selected == nil {
		f.Selected = map[int64]bool{}
	}
	if f.Selected[id] {
		delete(f.Selected, id)
		return
	}
	f.Selected[id] = true
}

// AllSelected reports whether every eligible entry is selected.
func (f FormState) AllSelected() bool {
	if len(f.Eligible) == 0 {
		return false
	}
	for _, entry := range f.Eligible {
		if !f.Selected[entry.ID] {
			return false
		}
	}
	return true
}

// SelectAll selects exactly the eligible set, or clears it when it is
// already fully selected.
func (f *FormState) SelectAll() {
	if f.AllSelected() {
		f.Selected = map[int64]bool{}
		return
	}
	f.Selected = make(map[int64]bool, len(f.Eligible))
	for _, entry := range f.Eligible {
		f.Selected[entry.ID] = true
	}
}

// SelectedIDs returns selected entry ids in eligible order.
func (f FormState) SelectedIDs() []int64 {
	var out []int64
	for _, entry := range f.Eligible {
		if f.Selected[entry.ID] {
			out = append(out, entry.ID)
		}
	}
	return out
}

// Assignee returns the chosen candidate.
func (f FormState) Assignee() (domain.User, bool) {
	for _, user := range f.Candidates {
		if user.ID == f.AssigneeID && f.AssigneeID != 0 {
			return user, true
		}
	}
	return domain.User{}, false
}

func (f FormState) isEligible(id int64) bool {
	for _, entry := range f.Eligible {
		if entry.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or maps with f.
func (f FormState) Clone() FormState {
	out := f
	if f.Candidates != nil {
		out.Candidates = append([]domain.User(nil), f.Candidates...)
	}
	if f.Eligible != nil {
		out.Eligible = append([]domain.MonitoringEntry(nil), f.Eligible...)
	}
	if f.Selected != nil {
		out.Selected = make(map[int64]bool, len(f.Selected))
		for id, on := range f.Selected {
			out.Selected[id] = on
		}
	}
	return out
}
