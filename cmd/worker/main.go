package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/repository/postgres"
	"github.com/ignite/bulkmail/internal/service/recipient"
	trackingsvc "github.com/ignite/bulkmail/internal/service/tracking"
	"github.com/ignite/bulkmail/internal/tracking"
	"github.com/ignite/bulkmail/internal/worker"
	_ "github.com/lib/pq"
)

func main() {
	log.Println("Starting bulkmail worker...")

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Campaign watchdog (reverts campaigns stuck in 'sending')
	watchdog := worker.NewCampaignWatchdog(postgres.NewCampaignRepo(db), cfg.Dispatch.WatchdogInterval(), cfg.Dispatch.StaleAfter())
	go watchdog.Start(ctx)
	log.Printf("Campaign watchdog started (every %s, stale after %s)", cfg.Dispatch.WatchdogInterval(), cfg.Dispatch.StaleAfter())

	// Tracking queue consumer, only when events go through SQS
	var consumer *tracking.Consumer
	if cfg.Tracking.Queue.Type == "sqs" && cfg.Tracking.Queue.SQSQueueURL != "" {
		client, err := tracking.NewSQSClient(ctx, cfg.Tracking.Queue.Region)
		if err != nil {
			log.Fatalf("Failed to create SQS client: %v", err)
		}
		ledger := trackingsvc.NewLedger(postgres.NewTrackingRepo(db), recipient.NewResolver(postgres.NewRecipientRepo(db)))
		consumer = tracking.NewConsumer(client, cfg.Tracking.Queue.SQSQueueURL, ledger)
		consumer.Start(ctx)
	}

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	if consumer != nil {
		consumer.Stop()
	}
	cancel()

	log.Println("Worker stopped")
}
