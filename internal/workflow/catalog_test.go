package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/opex/internal/domain"
)

func TestDefaultCatalogNamesEveryStage(t *testing.T) {
	catalog := Default()
	require.Equal(t, 11, catalog.Len())
	for n := 1; n <= 11; n++ {
		assert.NotEmpty(t, catalog.StageName(n), "stage %d name", n)
		assert.NotEqual(t, FallbackDescription, catalog.StageDescription(n), "stage %d description", n)
	}
}

func TestStageLookupsFallBack(t *testing.T) {
	catalog := Default()
	for _, n := range []int{0, -3, 12, 99} {
		assert.Equal(t, "Stage "+itoa(n), catalog.StageName(n))
		assert.Equal(t, FallbackDescription, catalog.StageDescription(n))
	}
}

func TestStagesForRoleMatchesAuthorisationTable(t *testing.T) {
	catalog := Default()
	cases := map[domain.Role][]int{
		domain.RoleHeadOfDept:     {2},
		domain.RoleSiteTSDLead:    {3, 7},
		domain.RoleSiteHead:       {4},
		domain.RoleCorporateTSD:   {8},
		domain.RoleInitiativeLead: {1, 5, 6, 9, 11},
		domain.RoleFinance:        {10},
	}
	for role, want := range cases {
		assert.Equal(t, want, catalog.StagesForRole(role), "role %s", role)
	}
	assert.Empty(t, catalog.StagesForRole(domain.RoleViewer))
	assert.Equal(t, []domain.Role{domain.RoleSiteHead}, catalog.RolesForStage(4))
}

func TestDropOfferedOnlyAtCMOReview(t *testing.T) {
	catalog := Default()
	assert.Equal(t, 8, catalog.DropStage())
	for _, stage := range catalog.Stages {
		assert.Equal(t, stage.Number == 8, stage.AllowDrop, "stage %d", stage.Number)
	}
	closure, ok := catalog.Stage(11)
	require.True(t, ok)
	assert.False(t, closure.Rejectable())
}

func TestRedirects(t *testing.T) {
	catalog := Default()
	screen, ok := catalog.Redirect(6, domain.RoleInitiativeLead)
	assert.True(t, ok)
	assert.Equal(t, ScreenTimeline, screen)

	screen, ok = catalog.Redirect(7, domain.RoleSiteTSDLead)
	assert.True(t, ok)
	assert.Equal(t, ScreenMonitoring, screen)

	_, ok = catalog.Redirect(6, domain.RoleSiteTSDLead)
	assert.False(t, ok)
}

func TestVisibleTabs(t *testing.T) {
	catalog := Default()
	ids := func(role domain.Role) []string {
		var out []string
		for _, tab := range catalog.VisibleTabs(role) {
			out = append(out, tab.ID)
		}
		return out
	}
	assert.Equal(t, []string{ScreenOverview, ScreenWorkflow, ScreenMonitoring, ScreenFiles}, ids(domain.RoleFinance))
	assert.Equal(t, []string{ScreenOverview, ScreenWorkflow, ScreenTimeline, ScreenMonitoring}, ids(domain.RoleViewer))
	assert.True(t, catalog.TabVisible(domain.Role("UNKNOWN"), ScreenWorkflow))
	assert.False(t, catalog.TabVisible(domain.RoleSiteHead, ScreenMonitoring))
}

func TestLoadCatalogFileOverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.yaml")
	payload := "stages:\n  - {number: 1, name: Only, roles: [IL], allow_drop: true}\n"
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	catalog, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())
	assert.Equal(t, "Only", catalog.StageName(1))

	fallback, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 11, fallback.Len())
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	first := Default()
	first.Stages[0].Name = "mutated"
	assert.Equal(t, "Register Initiative", Default().StageName(1))
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
