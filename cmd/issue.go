package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issueboard/internal/board"
	"github.com/joescharf/issueboard/internal/filter"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/output"
	"github.com/joescharf/issueboard/internal/store"
)

var (
	issueTitle    string
	issueDesc     string
	issuePriority string
	issueStatus   string
	issueAssign   string
	issueYes      bool
	issueDraft    bool

	filterStatus   string
	filterPriority string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage board issues",
	Long:  "File, list, edit and watch issues on the board.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new issue",
	Long: `Add a new issue. If recent issues look similar you are asked
whether to proceed anyway; --yes skips the question.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Long:  "Update an issue. Status changes follow Open -> In Progress -> Done.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd, args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

var issueSimilarCmd = &cobra.Command{
	Use:   "similar <title>",
	Short: "List recent issues that look like duplicates of a title",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSimilarRun(strings.Join(args, " "))
	},
}

var issueWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a filtered list that updates as issues change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueWatchRun()
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: Low, Medium, High (default Medium)")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "", "Initial status: Open, In Progress, Done (default Open)")
	issueAddCmd.Flags().StringVar(&issueAssign, "assign", "", "Assignee (default Unassigned)")
	issueAddCmd.Flags().BoolVarP(&issueYes, "yes", "y", false, "Create even if similar issues exist")
	issueAddCmd.Flags().BoolVar(&issueDraft, "draft", false, "Draft a description with the LLM when none is given")
	_ = issueAddCmd.MarkFlagRequired("title")

	for _, c := range []*cobra.Command{issueListCmd, issueWatchCmd} {
		c.Flags().StringVar(&filterStatus, "status", filter.All, "Filter by status: All, Open, In Progress, Done")
		c.Flags().StringVar(&filterPriority, "priority", filter.All, "Filter by priority: All, Low, Medium, High")
	}

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority")
	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")
	issueUpdateCmd.Flags().StringVar(&issueAssign, "assign", "", "New assignee (empty for Unassigned)")

	issueDeleteCmd.Flags().BoolVarP(&issueYes, "yes", "y", false, "Delete without asking")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	issueCmd.AddCommand(issueSimilarCmd)
	issueCmd.AddCommand(issueWatchCmd)
	rootCmd.AddCommand(issueCmd)
}

// boardSession returns the board engine and the logged-in principal.
func boardSession(ctx context.Context) (*board.Service, models.Principal, error) {
	b, err := getBoard()
	if err != nil {
		return nil, models.Principal{}, err
	}
	p, err := currentPrincipal(ctx)
	if err != nil {
		return nil, models.Principal{}, err
	}
	return b, p, nil
}

func issueAddRun() error {
	ctx := context.Background()
	b, p, err := boardSession(ctx)
	if err != nil {
		return err
	}

	fields := models.IssueFields{
		Title:       issueTitle,
		Description: issueDesc,
		AssignedTo:  issueAssign,
	}
	if issuePriority != "" {
		if fields.Priority, err = models.ParsePriority(issuePriority); err != nil {
			return err
		}
	}
	if issueStatus != "" {
		if fields.Status, err = models.ParseStatus(issueStatus); err != nil {
			return err
		}
	}

	if issueDraft && fields.Description == "" {
		fields.Description = draftDescription(ctx, fields.Title)
	}

	if dryRun {
		matches, err := b.CheckSimilar(ctx, p, fields.Title)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would add issue: %s", fields.Title)
		if len(matches) > 0 {
			ui.DryRunMsg("%d similar issue(s) exist; you would be asked to confirm", len(matches))
		}
		return nil
	}

	adm := b.NewAdmission(p)
	state, err := adm.Submit(ctx, fields)
	if err != nil {
		return err
	}
	if state == board.PendingConfirmation {
		ui.Warning("Similar issues already exist:")
		printRefs(adm.Matches())
		if !issueYes && !ui.Confirm("Proceed anyway?") {
			_ = adm.Cancel()
			ui.Info("Nothing was created.")
			return nil
		}
		if _, err := adm.Confirm(ctx); err != nil {
			return err
		}
	}

	issue := adm.Issue()
	ui.Success("Created issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

// draftDescription asks the LLM for a description. Failures only warn.
func draftDescription(ctx context.Context, title string) string {
	client := newLLMClient()
	if client == nil {
		ui.Warning("No anthropic.api_key configured; skipping description draft")
		return ""
	}
	ui.VerboseLog("Drafting description for %q", title)
	desc, err := client.DraftDescription(ctx, title)
	if err != nil {
		ui.Warning("Could not draft a description: %v", err)
		return ""
	}
	return desc
}

func issueListRun() error {
	ctx := context.Background()
	b, p, err := boardSession(ctx)
	if err != nil {
		return err
	}

	issues, err := b.List(ctx, p, filterStatus, filterPriority)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}
	return renderIssueTable(issues)
}

func renderIssueTable(issues []*models.Issue) error {
	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Assignee", "Created"})
	for _, issue := range issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			output.StatusColor(issue.Status),
			output.PriorityColor(issue.Priority),
			issue.AssignedTo,
			timeAgo(issue.CreatedAt),
		})
	}
	return table.Render()
}

func issueShowRun(id string) error {
	ctx := context.Background()
	b, p, err := boardSession(ctx)
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, b, p, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(issue.Status))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(issue.Priority))
	fmt.Fprintf(ui.Out, "  Assignee:   %s\n", issue.AssignedTo)
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s by %s\n", issue.CreatedAt.Format(time.RFC3339), issue.CreatedBy)
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	return nil
}

func issueUpdateRun(cmd *cobra.Command, id string) error {
	ctx := context.Background()
	b, p, err := boardSession(ctx)
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, b, p, id)
	if err != nil {
		return err
	}

	var patch models.IssuePatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		patch.Title = &issueTitle
	}
	if flags.Changed("desc") {
		patch.Description = &issueDesc
	}
	if flags.Changed("assign") {
		patch.AssignedTo = &issueAssign
	}
	if flags.Changed("priority") {
		pr, err := models.ParsePriority(issuePriority)
		if err != nil {
			return err
		}
		patch.Priority = &pr
	}
	if flags.Changed("status") {
		st, err := models.ParseStatus(issueStatus)
		if err != nil {
			return err
		}
		patch.Status = &st
	}

	if patch.Empty() {
		return fmt.Errorf("no updates specified (use --title, --desc, --priority, --status, or --assign)")
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s", shortID(issue.ID))
		return nil
	}

	if _, err := b.Update(ctx, p, issue.ID, patch); err != nil {
		return err
	}

	ui.Success("Updated issue %s", output.Cyan(shortID(issue.ID)))
	return nil
}

func issueDeleteRun(id string) error {
	ctx := context.Background()
	b, p, err := boardSession(ctx)
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, b, p, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", shortID(issue.ID), issue.Title)
		return nil
	}

	if !issueYes && !ui.Confirm(fmt.Sprintf("Delete issue %q?", issue.Title)) {
		ui.Info("Nothing was deleted.")
		return nil
	}

	if err := b.Delete(ctx, p, issue.ID); err != nil {
		return err
	}

	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

func issueSimilarRun(title string) error {
	ctx := context.Background()
	b, p, err := boardSession(ctx)
	if err != nil {
		return err
	}

	matches, err := b.CheckSimilar(ctx, p, title)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		ui.Info("No similar issues.")
		return nil
	}
	printRefs(matches)
	return nil
}

func issueWatchRun() error {
	b, p, err := boardSession(context.Background())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	view, err := b.Watch(p, filterStatus, filterPriority, func(issues []*models.Issue) {
		// Clear the screen and redraw from the top.
		fmt.Fprint(ui.Out, "\033[H\033[2J")
		c := filter.Count(issues)
		fmt.Fprintf(ui.Out, "Status: %s  Priority: %s  %d issue(s)  %s\n\n",
			orAll(filterStatus), orAll(filterPriority), c.Total, time.Now().Format("15:04:05"))
		if len(issues) > 0 {
			_ = renderIssueTable(issues)
		}
	})
	if err != nil {
		return err
	}
	defer view.Close()

	<-ctx.Done()
	return nil
}

func orAll(v string) string {
	if v == "" {
		return filter.All
	}
	return v
}

func printRefs(refs []models.IssueRef) {
	for _, m := range refs {
		fmt.Fprintf(ui.Out, "  %s  %s\n", output.Cyan(shortID(m.ID)), m.Title)
	}
}

// findIssue finds an issue by full ID or unique prefix.
func findIssue(ctx context.Context, b *board.Service, p models.Principal, id string) (*models.Issue, error) {
	issue, err := b.Get(ctx, p, id)
	if err == nil {
		return issue, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	upper := strings.ToUpper(id)
	issues, err := b.List(ctx, p, "", "")
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range issues {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", id, len(matches))
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
