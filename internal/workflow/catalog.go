package workflow

import (
	"fmt"

	"github.com/kingrea/opex/internal/domain"
)

// FallbackDescription is returned for stage numbers outside the catalog.
const FallbackDescription = "No description available for this stage."

// Stage returns the definition for number.
func (c Catalog) Stage(number int) (StageDefinition, bool) {
	for _, stage := range c.Stages {
		if stage.Number == number {
			return stage, true
		}
	}
	return StageDefinition{}, false
}

// StageName is total: unknown numbers yield "Stage <n>".
func (c Catalog) StageName(number int) string {
	if stage, ok := c.Stage(number); ok {
		return stage.Name
	}
	return fmt.Sprintf("Stage %d", number)
}

// StageDescription is total: unknown numbers yield FallbackDescription.
func (c Catalog) StageDescription(number int) string {
	if stage, ok := c.Stage(number); ok && stage.Description != "" {
		return stage.Description
	}
	return FallbackDescription
}

// Numbers returns the stage numbers in ascending order.
func (c Catalog) Numbers() []int {
	out := make([]int, 0, len(c.Stages))
	for _, stage := range c.Stages {
		out = append(out, stage.Number)
	}
	return out
}

// Len returns the number of stages.
func (c Catalog) Len() int { return len(c.Stages) }

// RolesForStage lists the roles authorised to act on a stage.
func (c Catalog) RolesForStage(number int) []domain.Role {
	stage, ok := c.Stage(number)
	if !ok {
		return nil
	}
	return append([]domain.Role(nil), stage.Roles...)
}

// StagesForRole lists, ascending, the stages a role may act on.
func (c Catalog) StagesForRole(role domain.Role) []int {
	var out []int
	for _, stage := range c.Stages {
		if stage.HasRole(role) {
			out = append(out, stage.Number)
		}
	}
	return out
}

// CanAct reports whether role is authorised for stage.
func (c Catalog) CanAct(role domain.Role, number int) bool {
	stage, ok := c.Stage(number)
	return ok && stage.HasRole(role)
}

// DropStage returns the one stage that offers drop.
func (c Catalog) DropStage() int {
	for _, stage := range c.Stages {
		if stage.AllowDrop {
			return stage.Number
		}
	}
	return 0
}

// Redirect returns the screen to open after role approves stage.
func (c Catalog) Redirect(stage int, role domain.Role) (string, bool) {
	for _, rule := range c.Redirects {
		if rule.Stage == stage && rule.Role == role {
			return rule.Screen, true
		}
	}
	return "", false
}

// VisibleTabs lists the tabs role may open, in catalog order.
func (c Catalog) VisibleTabs(role domain.Role) []TabDefinition {
	var out []TabDefinition
	for _, tab := range c.Tabs {
		if tab.VisibleTo(role) {
			out = append(out, tab)
		}
	}
	return out
}

// TabVisible reports whether role may open the tab with id.
func (c Catalog) TabVisible(role domain.Role, id string) bool {
	for _, tab := range c.Tabs {
		if tab.ID == id {
			return tab.VisibleTo(role)
		}
	}
	return false
}

// Tab returns the tab definition for id.
func (c Catalog) Tab(id string) (TabDefinition, bool) {
	for _, tab := range c.Tabs {
		if tab.ID == id {
			return tab, true
		}
	}
	return TabDefinition{}, false
}
