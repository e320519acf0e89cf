package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/opex/internal/domain"
)

// FormKind selects the input panel a stage renders.
type FormKind string

// Known form kinds.
const (
	FormInformational  FormKind = "informational"
	FormAssignLead     FormKind = "assign-lead"
	FormMocCapex       FormKind = "moc-capex"
	FormTimelineGate   FormKind = "timeline-gate"
	FormMonitoringGate FormKind = "monitoring-gate"
	FormFAValidation   FormKind = "fa-validation"
	FormClosure        FormKind = "closure"
)

// FormKinds lists every supported kind.
var FormKinds = []FormKind{
	FormInformational,
	FormAssignLead,
	FormMocCapex,
	FormTimelineGate,
	FormMonitoringGate,
	FormFAValidation,
	FormClosure,
}

func (k FormKind) known() bool {
	for _, kind := range FormKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Screens a stage or redirect can point at. They double as tab identifiers.
const (
	ScreenOverview   = "overview"
	ScreenWorkflow   = "workflow"
	ScreenTimeline   = "timeline-tracker"
	ScreenMonitoring = "monthly-monitoring"
	ScreenFiles      = "files"
)

// AllRoles in a tab's role list makes it visible to everyone.
const AllRoles = "*"

// StageDefinition declares one workflow stage.
type StageDefinition struct {
	Number      int           `json:"number" yaml:"number"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Form        FormKind      `json:"form" yaml:"form"`
	Roles       []domain.Role `json:"roles" yaml:"roles"`
	Screen      string        `json:"screen,omitempty" yaml:"screen,omitempty"`
	AllowReject *bool         `json:"allow_reject,omitempty" yaml:"allow_reject,omitempty"`
	AllowDrop   bool          `json:"allow_drop,omitempty" yaml:"allow_drop,omitempty"`
}

// Rejectable reports whether reject is offered at this stage.
func (s StageDefinition) Rejectable() bool {
	if s.AllowReject == nil {
		return s.Form != FormClosure
	}
	return *s.AllowReject
}

// HasRole reports whether role may act on the stage.
func (s StageDefinition) HasRole(role domain.Role) bool {
	for _, candidate := range s.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

func (s StageDefinition) clone() StageDefinition {
	clone := s
	if len(s.Roles) > 0 {
		clone.Roles = append([]domain.Role(nil), s.Roles...)
	}
	if s.AllowReject != nil {
		value := *s.AllowReject
		clone.AllowReject = &value
	}
	return clone
}

// RedirectRule sends a user to another screen after approving a stage.
type RedirectRule struct {
	Stage  int         `json:"stage" yaml:"stage"`
	Role   domain.Role `json:"role" yaml:"role"`
	Screen string      `json:"screen" yaml:"screen"`
}

// TabDefinition declares an initiative detail tab and who may see it.
type TabDefinition struct {
	ID    string   `json:"id" yaml:"id"`
	Label string   `json:"label" yaml:"label"`
	Roles []string `json:"roles" yaml:"roles"`
}

// VisibleTo reports whether role may open the tab.
func (t TabDefinition) VisibleTo(role domain.Role) bool {
	for _, candidate := range t.Roles {
		if candidate == AllRoles || domain.Role(candidate) == role {
			return true
		}
	}
	return false
}

// Catalog is the single table of stages, redirects and tab permissions.
type Catalog struct {
	Stages    []StageDefinition `json:"stages" yaml:"stages"`
	Redirects []RedirectRule    `json:"redirects,omitempty" yaml:"redirects,omitempty"`
	Tabs      []TabDefinition   `json:"tabs,omitempty" yaml:"tabs,omitempty"`
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	clone := Catalog{}
	if len(c.Stages) > 0 {
		clone.Stages = make([]StageDefinition, len(c.Stages))
		for i, stage := range c.Stages {
			clone.Stages[i] = stage.clone()
		}
	}
	if len(c.Redirects) > 0 {
		clone.Redirects = append([]RedirectRule(nil), c.Redirects...)
	}
	if len(c.Tabs) > 0 {
		clone.Tabs = make([]TabDefinition, len(c.Tabs))
		for i, tab := range c.Tabs {
			tab.Roles = append([]string(nil), tab.Roles...)
			clone.Tabs[i] = tab
		}
	}
	return clone
}

// Normalized clones the catalog, upper-cases role codes, fills defaults,
// sorts stages by number and validates the result.
func (c Catalog) Normalized() (Catalog, error) {
	clone := c.Clone()
	for i := range clone.Stages {
		stage := &clone.Stages[i]
		stage.Name = strings.TrimSpace(stage.Name)
		stage.Description = strings.TrimSpace(stage.Description)
		stage.Form = FormKind(strings.ToLower(strings.TrimSpace(string(stage.Form))))
		if stage.Form == "" {
			stage.Form = FormInformational
		}
		if stage.Screen == "" {
			stage.Screen = ScreenWorkflow
		}
		for j, role := range stage.Roles {
			stage.Roles[j] = domain.ParseRole(string(role))
		}
	}
	sort.SliceStable(clone.Stages, func(i, j int) bool {
		return clone.Stages[i].Number < clone.Stages[j].Number
	})
	for i := range clone.Redirects {
		clone.Redirects[i].Role = domain.ParseRole(string(clone.Redirects[i].Role))
		clone.Redirects[i].Screen = strings.TrimSpace(clone.Redirects[i].Screen)
	}
	for i := range clone.Tabs {
		tab := &clone.Tabs[i]
		tab.ID = strings.TrimSpace(tab.ID)
		if tab.Label == "" {
			tab.Label = tab.ID
		}
		for j, role := range tab.Roles {
			if role != AllRoles {
				tab.Roles[j] = string(domain.ParseRole(role))
			}
		}
	}
	if err := clone.Validate(); err != nil {
		return Catalog{}, err
	}
	return clone, nil
}

// Validate ensures the catalog is self-consistent.
func (c Catalog) Validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("workflow: at least one stage is required")
	}
	seen := map[int]struct{}{}
	dropStages := 0
	for idx, stage := range c.Stages {
		if stage.Number <= 0 {
			return fmt.Errorf("workflow: stage[%d]: number must be positive", idx)
		}
		if _, exists := seen[stage.Number]; exists {
			return fmt.Errorf("workflow: duplicate stage number %d", stage.Number)
		}
		seen[stage.Number] = struct{}{}
		if stage.Name == "" {
			return fmt.Errorf("workflow: stage %d: name is required", stage.Number)
		}
		if !stage.Form.known() {
			return fmt.Errorf("workflow: stage %d: unknown form %q", stage.Number, stage.Form)
		}
		if len(stage.Roles) == 0 {
			return fmt.Errorf("workflow: stage %d: at least one role is required", stage.Number)
		}
		for _, role := range stage.Roles {
			if !role.Known() {
				return fmt.Errorf("workflow: stage %d: unknown role %s", stage.Number, role)
			}
		}
		if stage.Form == FormClosure && stage.Rejectable() {
			return fmt.Errorf("workflow: stage %d: closure stages cannot be rejected", stage.Number)
		}
		if stage.AllowDrop {
			dropStages++
		}
	}
	if dropStages != 1 {
		return fmt.Errorf("workflow: exactly one stage must allow drop, found %d", dropStages)
	}
	tabs := map[string]struct{}{}
	for _, tab := range c.Tabs {
		if tab.ID == "" {
			return fmt.Errorf("workflow: tab id is required")
		}
		if _, exists := tabs[tab.ID]; exists {
			return fmt.Errorf("workflow: duplicate tab %s", tab.ID)
		}
		tabs[tab.ID] = struct{}{}
	}
	if len(tabs) > 0 {
		for _, stage := range c.Stages {
			if _, ok := tabs[stage.Screen]; !ok {
				return fmt.Errorf("workflow: stage %d references unknown screen %s", stage.Number, stage.Screen)
			}
		}
	}
	for idx, rule := range c.Redirects {
		if _, ok := seen[rule.Stage]; !ok {
			return fmt.Errorf("workflow: redirect[%d] references unknown stage %d", idx, rule.Stage)
		}
		if !rule.Role.Known() {
			return fmt.Errorf("workflow: redirect[%d]: unknown role %s", idx, rule.Role)
		}
		if rule.Screen == "" {
			return fmt.Errorf("workflow: redirect[%d]: screen is required", idx)
		}
		if len(tabs) > 0 {
			if _, ok := tabs[rule.Screen]; !ok {
				return fmt.Errorf("workflow: redirect[%d] references unknown screen %s", idx, rule.Screen)
			}
		}
	}
	return nil
}
