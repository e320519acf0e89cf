package approval

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/workflow"
)

// CommentRequired is the reason shown while the comment is blank.
const CommentRequired = "A comment is required"

// ValidationResult says which actions the form currently allows.
type ValidationResult struct {
	CanApprove bool
	CanReject  bool
	CanDrop    bool
	Reasons    []string
}

// Allows reports whether action is enabled.
func (v ValidationResult) Allows(action domain.Action) bool {
	switch action {
	case domain.ActionApprove:
		return v.CanApprove
	case domain.ActionReject:
		return v.CanReject
	case domain.ActionDrop:
		return v.CanDrop
	}
	return false
}

// Banner is a coloured status line rendered above the actions.
type Banner struct {
	Text string
	OK   bool
}

// Panel describes what a stage panel renders.
type Panel struct {
	Kind    workflow.FormKind
	Title   string
	Hint    string
	Banners []Banner
}

// FormStrategy implements one form kind. Strategies only judge the approve
// path; comment and reject/drop rules are shared.
type FormStrategy interface {
	Kind() workflow.FormKind
	// ApprovalBlockers lists why approve is not yet possible.
	ApprovalBlockers(form FormState) []string
	// Apply adds the stage fields of an approval to req.
	Apply(form FormState, req *api.ProcessRequest)
	// Describe returns the panel descriptor.
	Describe(stage workflow.StageDefinition, form FormState) Panel
}

// Registry maps form kinds to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[workflow.FormKind]FormStrategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[workflow.FormKind]FormStrategy{}}
}

// DefaultRegistry returns a registry with every built-in strategy.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(informationalForm{})
	r.MustRegister(assignLeadForm{})
	r.MustRegister(mocCapexForm{})
	r.MustRegister(gateForm{kind: workflow.FormTimelineGate, entity: "timeline"})
	r.MustRegister(gateForm{kind: workflow.FormMonitoringGate, entity: "monitoring"})
	r.MustRegister(faValidationForm{})
	r.MustRegister(closureForm{})
	return r
}

// Register installs a strategy. Returns an error if the kind already exists.
func (r *Registry) Register(strategy FormStrategy) error {
	if strategy == nil {
		return fmt.Errorf("approval: strategy is required")
	}
	kind := strategy.Kind()
	if kind == "" {
		return fmt.Errorf("approval: strategy kind is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[kind]; exists {
		return fmt.Errorf("approval: %s already registered", kind)
	}
	r.strategies[kind] = strategy
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(strategy FormStrategy) {
	if err := r.Register(strategy); err != nil {
		panic(err)
	}
}

// Resolve returns the strategy for kind, falling back to informational.
func (r *Registry) Resolve(kind workflow.FormKind) FormStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if strategy, ok := r.strategies[kind]; ok {
		return strategy
	}
	if strategy, ok := r.strategies[workflow.FormInformational]; ok {
		return strategy
	}
	return informationalForm{}
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []workflow.FormKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]workflow.FormKind, 0, len(r.strategies))
	for kind := range r.strategies {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Validate combines the shared rules with the stage strategy.
func (r *Registry) Validate(stage workflow.StageDefinition, form FormState) ValidationResult {
	result := ValidationResult{}
	if !form.HasComment() {
		result.Reasons = append(result.Reasons, CommentRequired)
	}
	blockers := r.Resolve(stage.Form).ApprovalBlockers(form)
	result.Reasons = append(result.Reasons, blockers...)
	if form.HasComment() {
		result.CanApprove = len(blockers) == 0
		result.CanReject = stage.Rejectable()
		result.CanDrop = stage.AllowDrop
	}
	return result
}

// Payload builds the process request for action.
func (r *Registry) Payload(stage workflow.StageDefinition, form FormState, action domain.Action) api.ProcessRequest {
	req := api.ProcessRequest{
		Action:  action,
		Remarks: form.TrimmedComment(),
	}
	if action == domain.ActionApprove {
		r.Resolve(stage.Form).Apply(form, &req)
	}
	return req
}

// Describe returns the panel for stage.
func (r *Registry) Describe(stage workflow.StageDefinition, form FormState) Panel {
	return r.Resolve(stage.Form).Describe(stage, form)
}

type informationalForm struct{}

func (informationalForm) Kind() workflow.FormKind { return workflow.FormInformational }

func (informationalForm) ApprovalBlockers(FormState) []string { return nil }

func (informationalForm) Apply(FormState, *api.ProcessRequest) {}

func (informationalForm) Describe(stage workflow.StageDefinition, _ FormState) Panel {
	return Panel{Kind: workflow.FormInformational, Title: stage.Name, Hint: stage.Description}
}

type closureForm struct{}

func (closureForm) Kind() workflow.FormKind { return workflow.FormClosure }

func (closureForm) ApprovalBlockers(FormState) []string { return nil }

func (closureForm) Apply(FormState, *api.ProcessRequest) {}

func (closureForm) Describe(stage workflow.StageDefinition, _ FormState) Panel {
	return Panel{
		Kind:  workflow.FormClosure,
		Title: stage.Name,
		Hint:  "Closing is final. Add a closing comment to approve.",
	}
}

type assignLeadForm struct{}

func (assignLeadForm) Kind() workflow.FormKind { return workflow.FormAssignLead }

func (assignLeadForm) ApprovalBlockers(form FormState) []string {
	if form.AssigneeID == 0 {
		return []string{"Select an Initiative Lead"}
	}
	if len(form.Candidates) > 0 {
		if _, ok := form.Assignee(); !ok {
			return []string{"The selected user is not an Initiative Lead at this site"}
		}
	}
	return nil
}

func (assignLeadForm) Apply(form FormState, req *api.ProcessRequest) {
	if form.AssigneeID != 0 {
		id := form.AssigneeID
		req.AssignedUserID = &id
	}
}

func (assignLeadForm) Describe(stage workflow.StageDefinition, form FormState) Panel {
	panel := Panel{Kind: workflow.FormAssignLead, Title: stage.Name, Hint: "Choose the Initiative Lead for this site."}
	if len(form.Candidates) == 0 {
		panel.Banners = append(panel.Banners, Banner{Text: "No Initiative Leads found for this site"})
	}
	return panel
}

type mocCapexForm struct{}

func (mocCapexForm) Kind() workflow.FormKind { return workflow.FormMocCapex }

func (mocCapexForm) ApprovalBlockers(form FormState) []string {
	var reasons []string
	switch form.Moc {
	case ChoiceUnset:
		reasons = append(reasons, "Choose whether MOC is required")
	case ChoiceYes:
		if strings.TrimSpace(form.MocNumber) == "" {
			reasons = append(reasons, "Enter the MOC number")
		}
	}
	switch form.Capex {
	case ChoiceUnset:
		reasons = append(reasons, "Choose whether CAPEX is required")
	case ChoiceYes:
		if strings.TrimSpace(form.CapexNumber) == "" {
			reasons = append(reasons, "Enter the CAPEX number")
		}
	}
	return reasons
}

func (mocCapexForm) Apply(form FormState, req *api.ProcessRequest) {
	if form.Moc != ChoiceUnset {
		req.RequiresMoc = domain.Flag(form.Moc == ChoiceYes)
		if form.Moc == ChoiceYes {
			req.MocNumber = strings.TrimSpace(form.MocNumber)
		}
	}
	if form.Capex != ChoiceUnset {
		req.RequiresCapex = domain.Flag(form.Capex == ChoiceYes)
		if form.Capex == ChoiceYes {
			req.CapexNumber = strings.TrimSpace(form.CapexNumber)
		}
	}
}

func (mocCapexForm) Describe(stage workflow.StageDefinition, _ FormState) Panel {
	return Panel{Kind: workflow.FormMocCapex, Title: stage.Name, Hint: "Record MOC and CAPEX requirements with their reference numbers."}
}

// gateForm blocks approval until an external completeness check passes.
type gateForm struct {
	kind   workflow.FormKind
	entity string
}

func (g gateForm) Kind() workflow.FormKind { return g.kind }

func (g gateForm) ApprovalBlockers(form FormState) []string {
	switch {
	case form.Gate.Err != nil:
		return []string{fmt.Sprintf("Could not check %s completion", g.entity)}
	case !form.Gate.Checked:
		return []string{fmt.Sprintf("Checking %s completion", g.entity)}
	case !form.Gate.Satisfied:
		return []string{g.pendingText()}
	}
	return nil
}

func (gateForm) Apply(FormState, *api.ProcessRequest) {}

func (g gateForm) Describe(stage workflow.StageDefinition, form FormState) Panel {
	panel := Panel{Kind: g.kind, Title: stage.Name, Hint: stage.Description}
	switch {
	case form.Gate.Err != nil:
		panel.Banners = append(panel.Banners, Banner{Text: fmt.Sprintf("Could not check %s completion: %v", g.entity, form.Gate.Err)})
	case !form.Gate.Checked:
		panel.Banners = append(panel.Banners, Banner{Text: fmt.Sprintf("Checking %s completion...", g.entity)})
	case form.Gate.Satisfied:
		panel.Banners = append(panel.Banners, Banner{Text: g.doneText(), OK: true})
	default:
		panel.Banners = append(panel.Banners, Banner{Text: g.pendingText()})
	}
	return panel
}

func (g gateForm) doneText() string {
	if g.kind == workflow.FormTimelineGate {
		return "All timeline entries are completed"
	}
	return "All monitoring entries are finalized"
}

func (g gateForm) pendingText() string {
	if g.kind == workflow.FormTimelineGate {
		return "All timeline entries must be completed before approval"
	}
	return "All monitoring entries must be finalized before approval"
}

type faValidationForm struct{}

func (faValidationForm) Kind() workflow.FormKind { return workflow.FormFAValidation }

func (faValidationForm) ApprovalBlockers(form FormState) []string {
	if form.EntriesErr != nil {
		return []string{"Could not load monitoring entries"}
	}
	if len(form.Eligible) > 0 && len(form.SelectedIDs()) == 0 {
		return []string{"Select at least one monitoring entry to validate"}
	}
	return nil
}

func (faValidationForm) Apply(FormState, *api.ProcessRequest) {}

func (faValidationForm) Describe(stage workflow.StageDefinition, form FormState) Panel {
	panel := Panel{Kind: workflow.FormFAValidation, Title: stage.Name, Hint: "Select the finalized entries to validate."}
	switch {
	case form.EntriesErr != nil:
		panel.Banners = append(panel.Banners, Banner{Text: fmt.Sprintf("Could not load monitoring entries: %v", form.EntriesErr)})
	case len(form.Eligible) == 0:
		panel.Banners = append(panel.Banners, Banner{Text: "No entries awaiting F&A validation", OK: true})
	default:
		panel.Banners = append(panel.Banners, Banner{
			Text: fmt.Sprintf("%d of %d entries selected", len(form.SelectedIDs()), len(form.Eligible)),
			OK:   len(form.SelectedIDs()) > 0,
		})
	}
	return panel
}
