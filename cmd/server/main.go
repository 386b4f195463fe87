package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/bulkmail/internal/api"
	"github.com/ignite/bulkmail/internal/attachment"
	"github.com/ignite/bulkmail/internal/auth"
	"github.com/ignite/bulkmail/internal/compose"
	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/dispatch"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/distlock"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/pkg/telemetry"
	"github.com/ignite/bulkmail/internal/repository/postgres"
	"github.com/ignite/bulkmail/internal/service/analytics"
	"github.com/ignite/bulkmail/internal/service/campaign"
	"github.com/ignite/bulkmail/internal/service/recipient"
	"github.com/ignite/bulkmail/internal/service/sending"
	trackingsvc "github.com/ignite/bulkmail/internal/service/tracking"
	"github.com/ignite/bulkmail/internal/tracking"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func main() {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("Connected to PostgreSQL at %s", extractHost(cfg.Database.URL))

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unavailable (%v), using PostgreSQL advisory locks", err)
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("Connected to Redis for dispatch locks")
		}
	}

	// Repositories
	campaignRepo := postgres.NewCampaignRepo(db)
	recipientRepo := postgres.NewRecipientRepo(db)
	trackingRepo := postgres.NewTrackingRepo(db)
	settingsRepo := postgres.NewTransportSettingsRepo(db)

	// Services
	campaigns := campaign.NewService(campaignRepo)
	resolver := recipient.NewResolver(recipientRepo)
	ledger := trackingsvc.NewLedger(trackingRepo, resolver)
	settings := sending.NewSource(settingsRepo, fallbackSettings(cfg.Transport))
	reports := analytics.NewService(campaigns, ledger, trackingRepo, recipientRepo)

	attachments, err := buildAttachmentStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize attachment storage: %v", err)
	}

	dialer := esp.NewSelector(
		esp.NewSMTPDialer(cfg.Transport.SMTP.Timeout()),
		esp.NewSESDialer(esp.SESOptions{
			Region:           cfg.Transport.SES.Region,
			AccessKey:        cfg.Transport.SES.AccessKey,
			SecretKey:        cfg.Transport.SES.SecretKey,
			ConfigurationSet: cfg.Transport.SES.ConfigurationSet,
		}),
	)

	engine := dispatch.NewEngine(dispatch.Deps{
		Campaigns:   campaignRepo,
		Recipients:  resolver,
		Ledger:      ledger,
		Settings:    settings,
		Dialer:      dialer,
		Attachments: attachments,
		Composer:    compose.NewComposer(cfg.Tracking.BaseURL),
		Locker:      distlock.NewLocker(redisClient, db, cfg.Redis.LockTTL()),
	}, dispatch.Config{Throttle: cfg.Dispatch.Throttle(), LockTTL: cfg.Redis.LockTTL()})

	recorder, waitRecorder, err := buildRecorder(ctx, cfg.Tracking, ledger)
	if err != nil {
		log.Fatalf("Failed to initialize tracking recorder: %v", err)
	}
	trackHandler, err := tracking.NewHandler(ledger, recorder)
	if err != nil {
		log.Fatalf("Failed to initialize tracking handler: %v", err)
	}

	if len(cfg.Auth.APIKeys) == 0 {
		log.Println("WARNING: no API keys configured, authenticated endpoints will reject every request")
	}
	handlers := api.NewHandlers(campaigns, engine, reports, attachments)
	router := api.SetupRoutes(handlers, auth.NewKeyStore(cfg.Auth.APIKeys), trackHandler, cfg.Server.CORSOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s (transport=%s, tracking=%s, queue=%s)",
			addr, cfg.Transport.Provider, cfg.Tracking.BaseURL, cfg.Tracking.Queue.Type)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Stopping dispatch runs...")
	if abandoned := engine.Shutdown(shutdownCtx); len(abandoned) > 0 {
		log.Printf("Dispatch runs still active at shutdown, left to the watchdog: %v", abandoned)
	}
	waitRecorder()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// fallbackSettings is the transport used by owners without stored settings.
func fallbackSettings(cfg config.TransportConfig) domain.TransportSettings {
	return domain.TransportSettings{
		Kind:               domain.TransportKind(cfg.Provider),
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		Username:           cfg.SMTP.Username,
		Password:           cfg.SMTP.Password,
		FromName:           cfg.SMTP.FromName,
		FromEmail:          cfg.SMTP.FromEmail,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
	}
}

func buildAttachmentStore(ctx context.Context, cfg config.StorageConfig) (*attachment.Router, error) {
	local, err := attachment.NewLocalStore(cfg.LocalPath)
	if err != nil {
		return nil, err
	}
	if cfg.S3Bucket == "" {
		if cfg.Type == "s3" {
			return nil, fmt.Errorf("storage type s3 requires S3_BUCKET")
		}
		return attachment.NewRouter(local, local, nil), nil
	}

	s3Store, err := attachment.NewS3Store(ctx, cfg.S3Bucket, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	if cfg.Type == "s3" {
		log.Printf("Attachments stored in s3://%s", cfg.S3Bucket)
		return attachment.NewRouter(s3Store, local, s3Store), nil
	}
	return attachment.NewRouter(local, local, s3Store), nil
}

// buildRecorder returns the recorder for fire-and-forget tracking updates
// and a function that waits for pending ones.
func buildRecorder(ctx context.Context, cfg config.TrackingConfig, ledger tracking.Ledger) (tracking.Recorder, func(), error) {
	if cfg.Queue.Type == "sqs" {
		if cfg.Queue.SQSQueueURL == "" {
			return nil, nil, fmt.Errorf("tracking queue sqs requires TRACKING_SQS_QUEUE_URL")
		}
		client, err := tracking.NewSQSClient(ctx, cfg.Queue.Region)
		if err != nil {
			return nil, nil, err
		}
		pub := tracking.NewPublisher(client, cfg.Queue.SQSQueueURL)
		return pub, pub.Wait, nil
	}
	direct := tracking.NewDirectRecorder(ledger, cfg.UpdateTimeout())
	return direct, direct.Wait, nil
}
