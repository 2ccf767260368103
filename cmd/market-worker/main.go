package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/app"
	"carbon-scribe/credit-market/internal/config"
	"carbon-scribe/credit-market/internal/logger"
	"carbon-scribe/credit-market/internal/reports/export"
	"carbon-scribe/credit-market/internal/reports/scheduler"
)

const (
	auditJob  = "conservation-audit"
	exportJob = "holdings-export"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "run a single conservation audit and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	log, err := logger.New(logger.Config{
		Debug:       cfg.Logging.Debug,
		Level:       cfg.Logging.Level,
		SentryDSN:   cfg.Logging.SentryDSN,
		Environment: cfg.Logging.Environment,
		Tags:        map[string]string{"service": "market-worker"},
	})
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer log.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	if *once {
		report, err := application.Reports.RunConservationAudit(ctx)
		application.Close(context.Background())
		if err != nil {
			log.Fatal("Conservation audit failed", zap.Error(err))
		}
		if !report.Balanced {
			log.Fatal("Ledger is out of balance",
				zap.Int64("total_minted", report.TotalMinted),
				zap.Int64("total_balances", report.TotalBalances))
		}
		return
	}

	manager := scheduler.NewScheduleManager(log.Named("scheduler"), scheduler.DefaultScheduleManagerConfig())
	if err := manager.AddJob(auditJob, cfg.Reports.AuditCron, func(ctx context.Context) error {
		_, err := application.Reports.RunConservationAudit(ctx)
		return err
	}); err != nil {
		log.Fatal("Failed to schedule conservation audit", zap.Error(err))
	}

	if cfg.Reports.ExportCron != "" {
		format, err := export.ParseFormat(cfg.Reports.ExportFormat)
		if err != nil {
			log.Fatal("Invalid export format", zap.Error(err))
		}
		if err := manager.AddJob(exportJob, cfg.Reports.ExportCron, func(ctx context.Context) error {
			_, err := application.Reports.UploadHoldings(ctx, format, "market-worker")
			return err
		}); err != nil {
			log.Fatal("Failed to schedule holdings export", zap.Error(err))
		}
	}

	if err := manager.Start(); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	log.Info("Worker started", zap.Any("jobs", manager.Jobs()))

	// Audit once at startup instead of waiting for the first tick
	if err := manager.RunNow(auditJob); err != nil {
		log.Error("Initial audit failed", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("Shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduler did not stop cleanly", zap.Error(err))
	}
	application.Close(shutdownCtx)

	log.Info("Worker exiting")
}
