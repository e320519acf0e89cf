package demoserver

import (
	"fmt"
	"time"

	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/workflow"
)

// Seeded sites.
const (
	SiteDahej     = "Dahej"
	SiteTaloja    = "Taloja"
	SiteCorporate = "Corporate"
)

// SeedUsers are the demo accounts. Every one signs in with DefaultPassword.
var SeedUsers = []domain.User{
	{ID: 1, Email: "asha.patil@dahej.demo", FullName: "Asha Patil", Role: domain.RoleInitiativeLead, Site: SiteDahej, Discipline: "Process"},
	{ID: 2, Email: "kiran.rao@dahej.demo", FullName: "Kiran Rao", Role: domain.RoleSiteTSDLead, Site: SiteDahej, Discipline: "TSD"},
	{ID: 3, Email: "meera.shah@dahej.demo", FullName: "Meera Shah", Role: domain.RoleSiteHead, Site: SiteDahej},
	{ID: 4, Email: "vikram.desai@dahej.demo", FullName: "Vikram Desai", Role: domain.RoleHeadOfDept, Site: SiteDahej, Discipline: "Utilities"},
	{ID: 5, Email: "neha.kulkarni@corp.demo", FullName: "Neha Kulkarni", Role: domain.RoleCorporateTSD, Site: SiteCorporate},
	{ID: 6, Email: "sanjay.iyer@corp.demo", FullName: "Sanjay Iyer", Role: domain.RoleFinance, Site: SiteCorporate},
	{ID: 7, Email: "priya.nair@corp.demo", FullName: "Priya Nair", Role: domain.RoleViewer, Site: SiteCorporate},
	{ID: 8, Email: "arjun.singh@taloja.demo", FullName: "Arjun Singh", Role: domain.RoleInitiativeLead, Site: SiteTaloja, Discipline: "Mechanical"},
	{ID: 9, Email: "farah.khan@taloja.demo", FullName: "Farah Khan", Role: domain.RoleSiteTSDLead, Site: SiteTaloja},
	{ID: 10, Email: "dev.joshi@taloja.demo", FullName: "Dev Joshi", Role: domain.RoleSiteHead, Site: SiteTaloja},
	{ID: 11, Email: "lata.menon@taloja.demo", FullName: "Lata Menon", Role: domain.RoleHeadOfDept, Site: SiteTaloja},
	{ID: 42, Email: "rohan.mehta@dahej.demo", FullName: "Rohan Mehta", Role: domain.RoleInitiativeLead, Site: SiteDahej, Discipline: "Electrical"},
}

type seedInitiative struct {
	initiative domain.Initiative
	stage      int
	status     string
	lead       int64
}

// Seed returns the initial demo dataset.
func Seed(catalog workflow.Catalog, now time.Time) State {
	b := &seedBuilder{catalog: catalog, now: now.UTC(), state: State{NextID: 1000}}
	b.state.Users = append([]domain.User(nil), SeedUsers...)

	start := domain.NewDate(now.Year(), now.Month(), 1)
	b.add(seedInitiative{
		initiative: domain.Initiative{
			ID: 101, InitiativeNo: "DHJ/OPX/001", Title: "Steam trap replacement in utilities block",
			Description: "Replace failed steam traps identified in the ultrasonic survey.",
			Site:        SiteDahej, Discipline: "Utilities", Priority: "High",
			ExpectedSavings: 1850000, BudgetType: domain.BudgetBudgeted, StartDate: start,
			CreatedByID: 1, TargetOutcome: "Steam loss reduction", TargetValue: 12, ConfidenceLevel: 80,
			BaselineData: "Steam loss 4.2 t/day", Assumption1: "Steam cost stays at current tariff",
		},
		stage: 4,
	})
	b.add(seedInitiative{
		initiative: domain.Initiative{
			ID: 102, InitiativeNo: "DHJ/OPX/002", Title: "VFD on cooling tower fans",
			Description: "Install variable frequency drives on CT fans 1 to 4.",
			Site:        SiteDahej, Discipline: "Electrical", Priority: "Medium",
			ExpectedSavings: 940000, BudgetType: domain.BudgetNonBudgeted, StartDate: start,
			CreatedByID: 42, RequiresMoc: true, MocNumber: "MOC-DHJ-2231", TargetOutcome: "Power reduction",
			TargetValue: 18, ConfidenceLevel: 70,
		},
		stage: 6,
		lead:  42,
	})
	b.add(seedInitiative{
		initiative: domain.Initiative{
			ID: 103, InitiativeNo: "TLJ/OPX/001", Title: "Compressed air leak programme",
			Description: "Quarterly leak survey and tagging of the compressed air network.",
			Site:        SiteTaloja, Discipline: "Mechanical", Priority: "Medium",
			ExpectedSavings: 620000, BudgetType: domain.BudgetBudgeted, StartDate: start,
			CreatedByID: 8, TargetOutcome: "Air demand reduction", TargetValue: 9, ConfidenceLevel: 75,
		},
		stage: 8,
		lead:  8,
	})
	b.add(seedInitiative{
		initiative: domain.Initiative{
			ID: 104, InitiativeNo: "DHJ/OPX/003", Title: "Boiler feed pump impeller trimming",
			Description: "Trim impellers to match the actual duty point.",
			Site:        SiteDahej, Discipline: "Mechanical", Priority: "Low",
			ExpectedSavings: 410000, ActualSavings: 265000, BudgetType: domain.BudgetBudgeted, StartDate: start,
			CreatedByID: 1, TargetOutcome: "Pump power reduction", TargetValue: 6, ConfidenceLevel: 90,
		},
		stage: 10,
		lead:  1,
	})
	b.add(seedInitiative{
		initiative: domain.Initiative{
			ID: 105, InitiativeNo: "TLJ/OPX/002", Title: "Condensate recovery to deaerator",
			Site: SiteTaloja, Discipline: "Utilities", Priority: "High",
			ExpectedSavings: 1200000, BudgetType: domain.BudgetNonBudgeted, StartDate: start,
			CreatedByID: 8,
		},
		stage:  2,
		status: domain.InitiativeStatusRejected,
	})

	b.timeline(101, domain.TimelinePending)
	b.timeline(102, domain.TimelineCompleted, domain.TimelineInProgress)
	b.timeline(103, domain.TimelineCompleted, domain.TimelineCompleted)
	b.timeline(104, domain.TimelineCompleted, domain.TimelineCompleted, domain.TimelineCompleted)
	b.monitoring(103, 2, 1, 0)
	b.monitoring(104, 3, 3, 1)
	return b.state
}

type seedBuilder struct {
	catalog workflow.Catalog
	now     time.Time
	state   State
}

func (b *seedBuilder) id() int64 {
	b.state.NextID++
	return b.state.NextID
}

func (b *seedBuilder) user(id int64) domain.User {
	for _, user := range b.state.Users {
		if user.ID == id {
			return user
		}
	}
	return domain.User{}
}

// add records an initiative whose stages before seed.stage are approved
// and whose stage seed.stage is pending, or rejected when status says so.
func (b *seedBuilder) add(seed seedInitiative) {
	in := seed.initiative
	creator := b.user(in.CreatedByID)
	in.CreatedByName = creator.FullName
	in.CreatedByEmail = creator.Email
	in.CurrentStage = seed.stage
	in.Status = domain.InitiativeStatusActive
	if seed.status != "" {
		in.Status = seed.status
	}
	created := b.now.Add(-time.Duration(seed.stage*72) * time.Hour)
	in.CreatedAt = domain.NewTimestamp(created)
	in.UpdatedAt = domain.NewTimestamp(b.now)
	b.state.Initiatives = append(b.state.Initiatives, in)

	for number := 1; number <= seed.stage; number++ {
		owner := ownerFor(b.catalog, b.state.Users, in, seed.lead, number)
		tx := domain.WorkflowTransaction{
			ID:            b.id(),
			InitiativeID:  in.ID,
			StageNumber:   number,
			StageName:     b.catalog.StageName(number),
			Site:          in.Site,
			ApproveStatus: domain.StatusApproved,
			PendingWith:   owner.Email,
			RequiredRole:  requiredRole(b.catalog, number),
			IsVisible:     true,
			CreatedAt:     domain.NewTimestamp(created.Add(time.Duration(number-1) * 72 * time.Hour)),
			Version:       1,
		}
		if number < seed.stage || seed.status != "" {
			tx.Comment = "Reviewed and approved"
			tx.ActionBy = owner.Email
			tx.ActionDate = domain.NewTimestamp(created.Add(time.Duration(number) * 72 * time.Hour))
			tx.Version = 2
			if number == 4 && seed.lead != 0 {
				lead := seed.lead
				tx.AssignedUserID = &lead
			}
			if number == seed.stage && seed.status == domain.InitiativeStatusRejected {
				tx.ApproveStatus = domain.StatusRejected
				tx.Comment = "Payback period too long for this year"
			}
		} else {
			tx.ApproveStatus = domain.StatusPending
		}
		if next, ok := b.catalog.Stage(number + 1); ok {
			tx.NextStageName = next.Name
		}
		b.state.Transactions = append(b.state.Transactions, tx)
	}
}

func (b *seedBuilder) timeline(initiativeID int64, statuses ...string) {
	names := []string{"Procurement", "Installation", "Commissioning"}
	for i, status := range statuses {
		start := b.now.AddDate(0, 0, -30+i*10)
		entry := domain.TimelineEntry{
			ID:               b.id(),
			InitiativeID:     initiativeID,
			StageName:        names[i%len(names)],
			PlannedStartDate: domain.NewDate(start.Year(), start.Month(), start.Day()),
			PlannedEndDate:   domain.NewDate(start.Year(), start.Month(), start.Day()+7),
			Status:           status,
		}
		if status == domain.TimelineCompleted {
			entry.Completed = true
			entry.ActualStartDate = entry.PlannedStartDate
			entry.ActualEndDate = entry.PlannedEndDate
		}
		b.state.Timeline = append(b.state.Timeline, entry)
	}
}

// monitoring adds count months, the first finalized of them finalized and
// the first approved of those already validated by F&A.
func (b *seedBuilder) monitoring(initiativeID int64, count, finalized, approved int) {
	for i := 0; i < count; i++ {
		month := b.now.AddDate(0, -count+i, 0)
		target := 50000.0
		achieved := target * (0.85 + 0.1*float64(i))
		entry := domain.MonitoringEntry{
			ID:              b.id(),
			InitiativeID:    initiativeID,
			MonitoringMonth: month.Format("2006-01"),
			KPIDescription:  "Monthly savings (INR)",
			TargetValue:     target,
			AchievedValue:   achieved,
			IsFinalized:     domain.YesNo(i < finalized),
			FAApproval:      domain.YesNo(i < approved),
			EnteredBy:       fmt.Sprintf("initiative-%d", initiativeID),
			CreatedAt:       domain.NewTimestamp(month),
		}
		if entry.FAApproval {
			entry.FAComments = "Matches ledger"
		}
		b.state.Monitoring = append(b.state.Monitoring, entry)
	}
}

func requiredRole(catalog workflow.Catalog, stage int) domain.Role {
	roles := catalog.RolesForStage(stage)
	if len(roles) == 0 {
		return ""
	}
	return roles[0]
}

// ownerFor picks who a stage is pending with: the assigned lead for lead
// stages, else the first user holding the stage role at the site.
func ownerFor(catalog workflow.Catalog, users []domain.User, in domain.Initiative, lead int64, stage int) domain.User {
	roles := catalog.RolesForStage(stage)
	for _, role := range roles {
		if role != domain.RoleInitiativeLead {
			continue
		}
		for _, id := range []int64{lead, in.CreatedByID} {
			for _, user := range users {
				if id != 0 && user.ID == id {
					return user
				}
			}
		}
	}
	for _, role := range roles {
		for _, user := range users {
			if user.Role != role {
				continue
			}
			if role.Corporate() || user.Site == in.Site {
				return user
			}
		}
	}
	return domain.User{}
}
