package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq"
)

// Serves only the public tracking endpoints, so they can run on their own
// host and scale apart from the authenticated API.
func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}

	ledger := trackingsvc.NewLedger(postgres.NewTrackingRepo(db), recipient.NewResolver(postgres.NewRecipientRepo(db)))

	var (
		recorder tracking.Recorder
		wait     func()
	)
	if cfg.Tracking.Queue.Type == "sqs" {
		if cfg.Tracking.Queue.SQSQueueURL == "" {
			log.Fatal("TRACKING_SQS_QUEUE_URL is required when TRACKING_QUEUE=sqs")
		}
		client, err := tracking.NewSQSClient(context.Background(), cfg.Tracking.Queue.Region)
		if err != nil {
			log.Fatalf("sqs: %v", err)
		}
		pub := tracking.NewPublisher(client, cfg.Tracking.Queue.SQSQueueURL)
		recorder, wait = pub, pub.Wait
	} else {
		direct := tracking.NewDirectRecorder(ledger, cfg.Tracking.UpdateTimeout())
		recorder, wait = direct, direct.Wait
	}

	handler, err := tracking.NewHandler(ledger, recorder)
	if err != nil {
		log.Fatalf("tracking handler: %v", err)
	}
	router := handler.Routes()
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.TrackingPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("tracking service listening on %s (queue=%s)", srv.Addr, cfg.Tracking.Queue.Type)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down tracking service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	wait()
}
