package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/advisor"
	"github.com/civicworks/capital-triage/internal/briefing"
	"github.com/civicworks/capital-triage/internal/config"
	"github.com/civicworks/capital-triage/internal/gateway"
	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/pipeline"
	"github.com/civicworks/capital-triage/internal/report"
	"github.com/civicworks/capital-triage/internal/repository"
	"github.com/civicworks/capital-triage/internal/retrieval"
	"github.com/civicworks/capital-triage/internal/scheduler"
	"github.com/civicworks/capital-triage/internal/seed"
	"github.com/civicworks/capital-triage/pkg/database"
	"github.com/civicworks/capital-triage/pkg/utils"
)

var (
	configPath string
	budgetFlag float64
)

// app bundles the wired pipeline for one CLI invocation.
type app struct {
	cfg          *config.Config
	repos        pipeline.Repos
	orchestrator *pipeline.Orchestrator
	gateway      *gateway.Gateway
	seeder       *seed.Loader
	scheduler    *scheduler.Scheduler
	logger       *zap.Logger
	close        func()
}

func main() {
	_ = gotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "captriage",
		Short: "Municipal capital-work triage pipeline",
		Long: `captriage turns citizen-reported issues into a quarterly capital work plan:
deterministic risk scoring forms project candidates, a policy engine decides
which funding decisions need human sign-off, and a greedy scheduler places
approved work onto a 13-week crew timeline.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().Float64Var(&budgetFlag, "budget", 0, "override quarterly budget in dollars")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(approvalsCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(resultsCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if budgetFlag > 0 {
		cfg.Pipeline.QuarterlyBudget = budgetFlag
	}

	// CLI output goes to the terminal; keep log noise in a file unless
	// explicitly configured otherwise.
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      "warn",
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, err
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrator(db, logger).Run(); err != nil {
		db.Close()
		return nil, err
	}

	repos := pipeline.Repos{
		DB:         db,
		Issues:     repository.NewIssueRepository(db.DB, logger),
		Candidates: repository.NewCandidateRepository(db.DB, logger),
		Decisions:  repository.NewDecisionRepository(db.DB, logger),
		Schedule:   repository.NewScheduleRepository(db.DB, logger),
		Capacity:   repository.NewCapacityRepository(db.DB, logger),
		Audit:      repository.NewAuditRepository(db.DB, logger),
	}

	ruleAdvisor := advisor.NewRuleAdvisor()
	var adv advisor.Advisor = ruleAdvisor
	if cfg.OpenAI.APIKey != "" {
		primary := advisor.NewOpenAIAdvisor(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Temperature, logger)
		adv = advisor.NewFallbackAdvisor(primary, ruleAdvisor, logger)
	}

	retriever := retrieval.NewCorpusRetriever(nil, logger)
	briefings := briefing.NewBuilder(retriever, nil, cfg.OpenAI.Model, logger)
	gw := gateway.New(repos.Decisions, repos.Audit, gateway.Options{}, logger)
	sched := scheduler.New(cfg.Pipeline.HorizonWeeks, logger)
	orchestrator := pipeline.New(repos, adv, briefings, gw, sched, cfg.Pipeline.QuarterlyBudget, logger)

	return &app{
		cfg:          cfg,
		repos:        repos,
		orchestrator: orchestrator,
		gateway:      gw,
		seeder:       seed.NewLoader(repos.Issues, repos.Capacity, logger),
		scheduler:    sched,
		logger:       logger,
		close: func() {
			_ = logger.Sync()
			_ = db.Close()
		},
	}, nil
}

func withApp(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Reset the database and load the sample data set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if err := a.orchestrator.Reset(); err != nil {
					return err
				}
				if err := a.repos.Issues.DeleteAll(); err != nil {
					return err
				}
				seeded, err := a.seeder.Load()
				if err != nil {
					return err
				}
				fmt.Printf("Seeded %d issues and %d crews\n", seeded, len(seed.CrewCapacities()))
				return nil
			})
		},
	}
}

func runCmd() *cobra.Command {
	var autoApprove bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run formation and governance; optionally approve and schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx := context.Background()

				formation, err := a.orchestrator.RunFormation(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Formation: %d formed, %d below threshold, %d already formed\n",
					len(formation.Formed), formation.SkippedLowRisk, formation.SkippedExisting)

				governance, err := a.orchestrator.RunGovernance(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Governance: %d auto-resolved, %d escalated, %d already decided\n",
					governance.AutoResolved, governance.Escalated, governance.Skipped)

				if !autoApprove {
					pending, err := a.gateway.Pending()
					if err != nil {
						return err
					}
					if len(pending) > 0 {
						fmt.Printf("\n%d decisions await review. Run 'captriage approvals list'.\n", len(pending))
						return nil
					}
				} else {
					approved, err := a.orchestrator.ApproveAll()
					if err != nil {
						return err
					}
					fmt.Printf("Auto-approved %d escalated decisions\n", len(approved.Applied))
				}

				scheduling, err := a.orchestrator.RunScheduling(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Scheduling: %d scheduled, %d blocked\n", scheduling.Scheduled, scheduling.Blocked)
				renderGantt(scheduling.Tasks, a.scheduler.HorizonWeeks())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "adopt every proposed decision without review")
	return cmd
}

func approvalsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "approvals", Short: "Review escalated decisions"}
	cmd.AddCommand(approvalsListCmd())
	cmd.AddCommand(approvalsSubmitCmd())
	return cmd
}

func approvalsListCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the pending approval queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				pending, err := a.gateway.Pending()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Println("No pending approvals")
					return nil
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Project", "Title", "Cost", "Risk", "Proposed", "Conf", "Reasons"})
				for _, p := range pending {
					tw.AppendRow(table.Row{
						p.ProjectID,
						truncate(p.Title, 40),
						fmt.Sprintf("$%.1fM", p.EstimatedCost/1_000_000),
						fmt.Sprintf("%.1f", p.RiskScore),
						p.Decision,
						fmt.Sprintf("%d%%", p.Confidence),
						joinCodes(p.ReasonCodes),
					})
				}
				tw.Render()

				if verbose {
					for _, p := range pending {
						printBriefing(p)
					}
				}

				budget, err := a.orchestrator.BudgetStatus()
				if err != nil {
					return err
				}
				fmt.Printf("\nBudget: $%.1fM allocated of $%.1fM ($%.1fM remaining)\n",
					budget.Allocated/1_000_000, budget.Total/1_000_000, budget.Remaining/1_000_000)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include reviewer briefings")
	return cmd
}

func printBriefing(p *models.PendingDecision) {
	if p.Briefing == nil {
		return
	}
	fmt.Printf("\n%s: %s\n", p.ProjectID, p.Title)
	for _, reason := range p.Briefing.EscalationReason {
		fmt.Printf("  escalated: %s\n", reason)
	}
	for _, risk := range p.Briefing.KeyRisks {
		fmt.Printf("  risk:      %s\n", risk)
	}
	for _, policy := range p.Briefing.RelevantPolicies {
		fmt.Printf("  policy:    %s\n", policy)
	}
	for _, precedent := range p.Briefing.HistoricalPrecedents {
		fmt.Printf("  precedent: %s\n", precedent)
	}
}

func approvalsSubmitCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "submit <project-id> <APPROVE|REJECT>",
		Short: "Record a verdict on an escalated decision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				result, err := a.gateway.Submit([]models.HumanVerdict{{
					ProjectID: args[0],
					Decision:  strings.ToUpper(args[1]),
					Reason:    reason,
				}})
				if err != nil {
					return err
				}
				if len(result.Errors) > 0 {
					e := result.Errors[0]
					return fmt.Errorf("%s: %s", e.ProjectID, e.Message)
				}
				fmt.Printf("Recorded %s for %s (%d still pending)\n",
					strings.ToUpper(args[1]), args[0], result.Pending)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reviewer justification")
	return cmd
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Place approved projects onto the quarter timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				result, err := a.orchestrator.RunScheduling(context.Background())
				if err != nil {
					return err
				}
				fmt.Printf("Scheduled %d projects, %d blocked\n", result.Scheduled, result.Blocked)
				renderGantt(result.Tasks, a.scheduler.HorizonWeeks())
				return nil
			})
		},
	}
}

func resultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Show the full pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				results, err := a.orchestrator.Results()
				if err != nil {
					return err
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Project", "Title", "Risk", "Cost", "Decision", "Final"})
				decisionFor := make(map[string]*models.PolicyDecision, len(results.Decisions))
				for _, d := range results.Decisions {
					decisionFor[d.ProjectID] = d
				}
				for _, c := range results.Candidates {
					decision, final := "-", "-"
					if d, ok := decisionFor[c.ProjectID]; ok {
						decision = fmt.Sprintf("%s (%s)", d.Decision, d.Authorization)
						if d.FinalDecision != nil {
							final = *d.FinalDecision
						}
					}
					tw.AppendRow(table.Row{
						c.ProjectID, truncate(c.Title, 40),
						fmt.Sprintf("%.1f", c.RiskScore),
						fmt.Sprintf("$%.1fM", c.EstimatedCost/1_000_000),
						decision, final,
					})
				}
				tw.Render()

				fmt.Printf("\nBudget: $%.1fM allocated of $%.1fM, %d approvals pending\n",
					results.Budget.Allocated/1_000_000, results.Budget.Total/1_000_000, results.Pending)
				renderGantt(results.Tasks, a.scheduler.HorizonWeeks())
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the pipeline outcome as an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				results, err := a.orchestrator.Results()
				if err != nil {
					return err
				}
				if err := report.NewExcelWriter(a.logger).Write(results, output); err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "triage-report.xlsx", "output file path")
	return cmd
}

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the most recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				events, err := a.repos.Audit.GetRecent(limit)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					fmt.Println("No audit events")
					return nil
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Event", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{
						e.CreatedAt.Format("2006-01-02 15:04:05"),
						e.EventType,
						e.Actor,
						truncate(e.Payload, 60),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of events to show")
	return cmd
}

// renderGantt prints a week-by-week text timeline of scheduled tasks.
func renderGantt(tasks []*models.ScheduleTask, horizonWeeks int) {
	if len(tasks) == 0 {
		return
	}

	fmt.Println()
	header := table.Row{"Project", "Crew"}
	for week := 1; week <= horizonWeeks; week++ {
		header = append(header, fmt.Sprintf("%d", week))
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)

	for _, t := range tasks {
		row := table.Row{t.ProjectID, t.CrewType}
		for week := 1; week <= horizonWeeks; week++ {
			cell := ""
			if t.Status == models.TaskScheduled && t.StartWeek <= week && week <= t.EndWeek {
				cell = "█"
			} else if t.Status == models.TaskBlocked && week == 1 {
				cell = "✗"
			}
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func joinCodes(codes []models.ReasonCode) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
