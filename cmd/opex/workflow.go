package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/approval"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/query"
	"github.com/kingrea/opex/internal/workflow"
)

func stagesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "Show the workflow stage catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts, setupOptions{console: true, noBackend: true})
			if err != nil {
				return err
			}
			defer rt.close()

			rows := make([][]string, 0, rt.catalog.Len())
			for _, stage := range rt.catalog.Stages {
				roles := make([]string, 0, len(stage.Roles))
				for _, role := range stage.Roles {
					roles = append(roles, role.String())
				}
				actions := "approve"
				if stage.Rejectable() {
					actions += ", reject"
				}
				if stage.AllowDrop {
					actions += ", drop"
				}
				rows = append(rows, []string{
					strconv.Itoa(stage.Number),
					stage.Name,
					string(stage.Form),
					strings.Join(roles, ", "),
					actions,
				})
			}
			fprintf(cmd, "%s\n", renderTable([]string{"#", "Stage", "Form", "Roles", "Actions"}, rows))
			if drop := rt.catalog.DropStage(); drop > 0 {
				fprintf(cmd, "Drop defers an initiative to the next fiscal year at stage %d (%s)\n", drop, rt.catalog.StageName(drop))
			}
			return nil
		},
	}
}

func initiativesCmd(opts *globalOptions) *cobra.Command {
	var filter domain.InitiativeFilter
	cmd := &cobra.Command{
		Use:     "initiatives",
		Aliases: []string{"ls"},
		Short:   "List initiatives visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()
			user, err := rt.identity()
			if err != nil {
				return err
			}
			if filter.Site == "" && !user.Role.Corporate() {
				filter.Site = user.Site
			}

			src := query.NewSource(rt.client, rt.cache)
			initiatives, err := src.ListInitiatives(cmd.Context(), filter)
			if err != nil {
				return friendly(err)
			}
			if len(initiatives) == 0 {
				fprintf(cmd, "No initiatives found\n")
				return nil
			}
			rows := make([][]string, 0, len(initiatives))
			for _, in := range initiatives {
				progress := "-"
				if p, err := src.Progress(cmd.Context(), in.ID); err == nil {
					progress = fmt.Sprintf("%.1f%%", p.Percentage)
				}
				rows = append(rows, []string{
					strconv.FormatInt(in.ID, 10),
					in.InitiativeNo,
					in.Title,
					in.Site,
					rt.catalog.StageName(in.CurrentStage),
					in.Status,
					progress,
				})
			}
			fprintf(cmd, "%s\n", renderTable([]string{"ID", "Number", "Title", "Site", "Stage", "Status", "Progress"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Site, "site", "", "Only initiatives at this site")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only initiatives with this status")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Match title or number")
	return cmd
}

func pendingCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending <initiative-id>",
		Short: "Show where an initiative is waiting and whether you can act",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()
			user, err := rt.identity()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			initiative, err := rt.client.GetInitiative(ctx, id)
			if err != nil {
				return friendly(err)
			}
			txs, err := rt.client.VisibleTransactions(ctx, id)
			if err != nil {
				return friendly(err)
			}
			progress, err := rt.client.Progress(ctx, id)
			if err != nil {
				progress = domain.ComputeProgress(id, txs)
			}

			fprintf(cmd, "%s (%s)\n", initiative.Title, initiative.Site)
			fprintf(cmd, "Progress: %d/%d stages (%.1f%%)\n", progress.CompletedStages, progress.TotalStages, progress.Percentage)
			current, ok, err := rt.client.CurrentPending(ctx, id)
			if err != nil {
				return friendly(err)
			}
			if !ok {
				fprintf(cmd, "Nothing pending\n")
				return nil
			}
			fprintf(cmd, "Pending: stage %d %s, with %s\n",
				current.StageNumber, rt.catalog.StageName(current.StageNumber), firstNonEmpty(current.PendingWith, string(current.RequiredRole), "-"))

			actionable, ok := approval.FindActionable(txs, user, rt.catalog)
			if !ok {
				fprintf(cmd, "No action required from you\n")
				return nil
			}
			fprintf(cmd, "You can act on transaction %d (stage %d %s, matched by %s)\n",
				actionable.Transaction.ID, actionable.Stage.Number, actionable.Stage.Name, actionable.Match)
			if screen := actionable.Stage.Screen; screen != "" && screen != workflow.ScreenWorkflow {
				label := screen
				if tab, ok := rt.catalog.Tab(screen); ok {
					label = tab.Label
				}
				fprintf(cmd, "Supporting data: the %s tab\n", label)
			}
			return nil
		},
	}
}

// processFlags are the stage inputs accepted by `opex process`.
type processFlags struct {
	initiative  int64
	action      string
	comment     string
	assignee    int64
	moc         string
	mocNumber   string
	capex       string
	capexNumber string
	entries     []int64
	faComment   string
}

// apply copies the flags onto a prepared form.
func (f processFlags) apply(form *approval.FormState) error {
	form.Comment = f.comment
	if f.assignee != 0 {
		found := false
		for _, candidate := range form.Candidates {
			if candidate.ID == f.assignee {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("user %d is not an eligible assignee", f.assignee)
		}
		form.AssigneeID = f.assignee
	}
	if f.moc != "" {
		flag, err := domain.ParseYesNo(f.moc)
		if err != nil {
			return fmt.Errorf("--moc: %w", err)
		}
		form.Moc = approval.ChoiceFrom(flag)
	}
	form.MocNumber = f.mocNumber
	if f.capex != "" {
		flag, err := domain.ParseYesNo(f.capex)
		if err != nil {
			return fmt.Errorf("--capex: %w", err)
		}
		form.Capex = approval.ChoiceFrom(flag)
	}
	form.CapexNumber = f.capexNumber
	for _, id := range f.entries {
		eligible := false
		for _, entry := range form.Eligible {
			if entry.ID == id {
				eligible = true
				break
			}
		}
		if !eligible {
			return fmt.Errorf("monitoring entry %d is not awaiting F&A approval", id)
		}
		if !form.Selected[id] {
			form.ToggleEntry(id)
		}
	}
	form.FAComment = f.faComment
	return nil
}

func processCmd(opts *globalOptions) *cobra.Command {
	var flags processFlags
	cmd := &cobra.Command{
		Use:   "process <transaction-id>",
		Short: "Approve, reject or drop a pending stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txID, err := parseID(args[0])
			if err != nil {
				return err
			}
			action, err := domain.ParseAction(flags.action)
			if err != nil {
				return err
			}
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()
			user, err := rt.identity()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			txs, err := rt.client.VisibleTransactions(ctx, flags.initiative)
			if err != nil {
				return friendly(err)
			}
			var tx domain.WorkflowTransaction
			found := false
			for _, candidate := range txs {
				if candidate.ID == txID {
					tx, found = candidate, true
					break
				}
			}
			if !found {
				return fmt.Errorf("transaction %d not found on initiative %d", txID, flags.initiative)
			}
			actionable, ok := approval.FindActionable(txs, user, rt.catalog)
			if !ok || actionable.Transaction.ID != txID {
				return fmt.Errorf("transaction %d is not waiting on you", txID)
			}
			initiative, err := rt.client.GetInitiative(ctx, flags.initiative)
			if err != nil {
				return friendly(err)
			}

			dispatcher := approval.NewDispatcher(rt.client,
				approval.WithCatalog(rt.catalog),
				approval.WithCache(rt.cache),
				approval.WithLogger(rt.log.With("approval")),
				approval.WithLogbook(rt.journal),
			)
			stage := actionable.Stage
			form, err := dispatcher.Registry().Prepare(ctx, rt.client, stage, initiative)
			if err != nil {
				return friendly(err)
			}
			if err := flags.apply(&form); err != nil {
				return err
			}
			panel := dispatcher.Registry().Describe(stage, form)
			for _, banner := range panel.Banners {
				warnf(cmd, "%s\n", banner.Text)
			}
			if validation := dispatcher.Validate(tx, form); !validation.Allows(action) {
				if len(validation.Reasons) == 0 {
					return fmt.Errorf("%s is not available at stage %d", action.Verb(), stage.Number)
				}
				return fmt.Errorf("%s is not available: %s", action.Verb(), strings.Join(validation.Reasons, "; "))
			}

			result, err := dispatcher.Submit(ctx, approval.Submission{
				Transaction: tx,
				Action:      action,
				Form:        form,
				User:        user,
			})
			if err != nil {
				if errors.Is(err, api.ErrUnauthorized) {
					return errSessionExpired
				}
				return errors.New(approval.FailureMessage(err))
			}
			fprintf(cmd, "Stage %d %s: %s\n", stage.Number, action, stage.Name)
			if result.Redirect != "" {
				fprintf(cmd, "Next: open the %s screen\n", result.Redirect)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Int64Var(&flags.initiative, "initiative", 0, "Initiative the transaction belongs to")
	f.StringVar(&flags.action, "action", "approve", "approve, reject or drop")
	f.StringVar(&flags.comment, "comment", "", "Remarks recorded with the action")
	f.Int64Var(&flags.assignee, "assignee", 0, "User id of the initiative lead (assign-lead stage)")
	f.StringVar(&flags.moc, "moc", "", "Whether MOC is required (yes/no)")
	f.StringVar(&flags.mocNumber, "moc-number", "", "MOC number when MOC is required")
	f.StringVar(&flags.capex, "capex", "", "Whether CAPEX is required (yes/no)")
	f.StringVar(&flags.capexNumber, "capex-number", "", "CAPEX number when CAPEX is required")
	f.Int64SliceVar(&flags.entries, "fa-entries", nil, "Monitoring entry ids to approve (F&A validation stage)")
	f.StringVar(&flags.faComment, "fa-comment", "", "F&A comment stored on approved entries")
	_ = cmd.MarkFlagRequired("initiative")
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Headers(headers...).
		Rows(rows...).
		String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
