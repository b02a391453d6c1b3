package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/advisor"
	"github.com/civicworks/capital-triage/internal/briefing"
	"github.com/civicworks/capital-triage/internal/config"
	"github.com/civicworks/capital-triage/internal/gateway"
	"github.com/civicworks/capital-triage/internal/pipeline"
	"github.com/civicworks/capital-triage/internal/report"
	"github.com/civicworks/capital-triage/internal/repository"
	"github.com/civicworks/capital-triage/internal/retrieval"
	"github.com/civicworks/capital-triage/internal/scheduler"
	"github.com/civicworks/capital-triage/internal/seed"
	"github.com/civicworks/capital-triage/internal/server"
	"github.com/civicworks/capital-triage/pkg/database"
	"github.com/civicworks/capital-triage/pkg/utils"
)

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting capital triage service",
		zap.Int("port", cfg.Server.Port),
		zap.Float64("quarterly_budget", cfg.Pipeline.QuarterlyBudget))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := database.NewMigrator(db, logger).Run(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
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
	var briefingClient *openai.Client
	if cfg.OpenAI.APIKey != "" {
		primary := advisor.NewOpenAIAdvisor(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Temperature, logger)
		adv = advisor.NewFallbackAdvisor(primary, ruleAdvisor, logger)
		briefingClient = openai.NewClient(cfg.OpenAI.APIKey)
		logger.Info("Model advisor enabled", zap.String("model", cfg.OpenAI.Model))
	} else {
		logger.Info("No API key configured, using rule-based advisor")
	}

	retriever := retrieval.NewCorpusRetriever(nil, logger)
	briefings := briefing.NewBuilder(retriever, briefingClient, cfg.OpenAI.Model, logger)
	gw := gateway.New(repos.Decisions, repos.Audit, gateway.Options{}, logger)
	sched := scheduler.New(cfg.Pipeline.HorizonWeeks, logger)
	orchestrator := pipeline.New(repos, adv, briefings, gw, sched, cfg.Pipeline.QuarterlyBudget, logger)

	srv := server.New(cfg.Server, server.Deps{
		Pipeline:  orchestrator,
		Gateway:   gw,
		Seeder:    seed.NewLoader(repos.Issues, repos.Capacity, logger),
		Issues:    repos.Issues,
		Report:    report.NewExcelWriter(logger),
		ReportDir: cfg.Report.OutputDir,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
