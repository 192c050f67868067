package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"library-ledger-backend/internal/bootstrap"
	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/config"
	"library-ledger-backend/internal/jobs"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/scheduler"
	"library-ledger-backend/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-reservations', 'all')")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Library Ledger cronjob runner...", "log_level", cfg.Log.Level)

	ctx := context.Background()
	clk := clock.System()

	stores, err := bootstrap.OpenStores(ctx, cfg, clk.Now)
	if err != nil {
		logger.Error("Failed to open stores", "error", err)
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer stores.Close(ctx)

	publisher := bootstrap.Publisher(cfg)
	defer publisher.Close()

	policy := cfg.Policy()
	jobServices := &jobs.Services{
		Lending: service.NewLendingService(stores.Units, stores.Ledger, stores.Members, clk, policy, publisher),
		Query:   service.NewQueryService(stores.Units, stores.Ledger, policy),
		Email:   bootstrap.EmailService(cfg),
	}
	jobRunner := jobs.NewJobRunner(stores.Ledger, stores.Units, stores.Members, jobServices, clk, cfg)

	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "expire-reservations":
		jobRunner.ExpireReservations()
	case "send-overdue-reminders":
		jobRunner.SendOverdueReminders()
	case "send-due-soon-reminders":
		jobRunner.SendDueSoonReminders()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - expire-reservations\n")
		fmt.Printf("  - send-overdue-reminders\n")
		fmt.Printf("  - send-due-soon-reminders\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
