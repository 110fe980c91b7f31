package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/alert"
	"github.com/endharassment/cybertip-reporter/internal/cybertip"
	"github.com/endharassment/cybertip-reporter/internal/enrichment"
	"github.com/endharassment/cybertip-reporter/internal/geo"
	"github.com/endharassment/cybertip-reporter/internal/model"
	"github.com/endharassment/cybertip-reporter/internal/preservation"
	"github.com/endharassment/cybertip-reporter/internal/retry"
	"github.com/endharassment/cybertip-reporter/internal/server"
	"github.com/endharassment/cybertip-reporter/internal/signing"
	"github.com/endharassment/cybertip-reporter/internal/store"
	"github.com/endharassment/cybertip-reporter/internal/submission"
)

func main() {
	listenAddr := flag.String("listen", envOr("REPORTER_LISTEN", ":8080"), "HTTP listen address")
	dbPath := flag.String("db", envOr("REPORTER_DB_PATH", "./reporter.db"), "SQLite database path")
	settingsPath := flag.String("org-settings", os.Getenv("REPORTER_ORG_SETTINGS"), "JSON file of org settings to load at startup")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	// Failures go to their own unsampled stream.
	failureLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("channel", "cybertip_failures")

	db, err := store.NewSQLiteStore(ctx, *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *settingsPath != "" {
		if err := loadOrgSettings(ctx, db, *settingsPath); err != nil {
			log.Fatalf("Failed to load org settings: %v", err)
		}
	}

	var signer signing.Signer
	if seedHex := os.Getenv("REPORTER_SIGNING_SEED"); seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			log.Fatalf("REPORTER_SIGNING_SEED must be hex: %v", err)
		}
		s, err := signing.NewEd25519Signer(seed)
		if err != nil {
			log.Fatalf("Failed to create signer: %v", err)
		}
		signer = s
	} else {
		log.Println("WARNING: REPORTER_SIGNING_SEED not set; requests to org endpoints will be unsigned")
	}

	transport := cybertip.NewClient(cybertip.Config{
		ProductionBaseURL: envOr("REPORTER_CYBERTIP_URL", cybertip.ProductionBaseURL),
		TestBaseURL:       envOr("REPORTER_CYBERTIP_TEST_URL", cybertip.TestBaseURL),
		RequestsPerSecond: envFloat("REPORTER_CYBERTIP_RPS", 0),
		Burst:             envInt("REPORTER_CYBERTIP_BURST", 1),
	}, logger)
	orgClient := &http.Client{Timeout: 30 * time.Second}

	pipeline := submission.New(db, transport,
		enrichment.NewGateway(orgClient, signer, retry.Default, logger),
		preservation.NewNotifier(orgClient, signer, retry.Default, logger),
		submission.Config{
			MaxConcurrency:      envInt("REPORTER_MAX_CONCURRENCY", 4),
			PrivateThreadTypeID: os.Getenv("REPORTER_PRIVATE_THREAD_TYPE"),
		},
		logger)
	pipeline.SetFailureLogger(failureLogger)
	pipeline.SetPolicy(submission.ParseDenyList(os.Getenv("REPORTER_DENY_ORGS")))

	if key := os.Getenv("REPORTER_SENDGRID_KEY"); key != "" {
		pipeline.SetAlerter(alert.NewEmailAlerter(&alert.RealSendGridSender{APIKey: key}, alert.Config{
			FromAddress: envOr("REPORTER_ALERT_FROM", "cybertip-alerts@endharassment.net"),
			FromName:    envOr("REPORTER_ALERT_FROM_NAME", "CyberTip Reporter"),
			ToAddress:   os.Getenv("REPORTER_ALERT_TO"),
			ToName:      envOr("REPORTER_ALERT_TO_NAME", "Trust & Safety On-Call"),
			SandboxMode: os.Getenv("REPORTER_SENDGRID_SANDBOX") == "true",
		}))
		log.Println("Failure alerts enabled")
	}

	if os.Getenv("REPORTER_GEOLOCATE") == "true" {
		pipeline.SetLocator(geo.NewLocator(geo.NewCymruClient(), geo.DefaultCacheTTL))
		log.Println("Subject geolocation enabled")
	}

	srv := server.NewServer(server.Config{
		APIToken: os.Getenv("REPORTER_API_TOKEN"),
		RateLimit: server.RateLimiterConfig{
			SubmissionsPerMinute: envInt("REPORTER_ORG_SUBMISSIONS_PER_MIN", 30),
			Burst:                envInt("REPORTER_ORG_SUBMISSION_BURST", 10),
			CleanupInterval:      5 * time.Minute,
		},
	}, pipeline, db, logger)
	defer srv.Stop()

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	// Submissions in flight may be uploading; give them time to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}

func loadOrgSettings(ctx context.Context, db store.SettingsStore, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var orgs []model.OrgSettings
	if err := json.Unmarshal(data, &orgs); err != nil {
		return err
	}
	for i := range orgs {
		if err := db.UpsertOrgSettings(ctx, &orgs[i]); err != nil {
			return err
		}
	}
	log.Printf("Loaded settings for %d orgs", len(orgs))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s must be an integer: %v", key, err)
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("%s must be a number: %v", key, err)
	}
	return f
}
