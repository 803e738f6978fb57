package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/Mindburn-Labs/agora/pkg/auction"
	"github.com/Mindburn-Labs/agora/pkg/blobstore"
	"github.com/Mindburn-Labs/agora/pkg/broadcast"
	"github.com/Mindburn-Labs/agora/pkg/config"
	"github.com/Mindburn-Labs/agora/pkg/lifecycle"
	"github.com/Mindburn-Labs/agora/pkg/observability"
	"github.com/Mindburn-Labs/agora/pkg/registry"
	"github.com/Mindburn-Labs/agora/pkg/reputation"
	"github.com/Mindburn-Labs/agora/pkg/store"
)

// runServe starts the marketplace node: persistent stores, the lifecycle
// sweeper, and optional Redis, Postgres, and OTLP integrations. It blocks
// until SIGINT or SIGTERM.
func runServe(stdout, stderr io.Writer) int {
	cfg := config.Load()
	initLogger(cfg.LogLevel)
	logger := slog.Default().With("component", "node")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "agora-node",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.SampleRate,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEnabled,
		Insecure:       cfg.Environment == "development",
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "observability init:", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	db, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "open store:", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	contractStore, err := store.NewSQLiteContractStore(db)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "contract store:", err)
		return 1
	}
	bidStore, err := store.NewSQLiteBidStore(db)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "bid store:", err)
		return 1
	}
	deliveryStore, err := store.NewSQLiteDeliveryStore(db)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "delivery store:", err)
		return 1
	}
	perfStore, err := store.NewSQLitePerformanceStore(db)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "performance store:", err)
		return 1
	}

	blobs, err := blobstore.New(ctx, blobstore.FactoryConfig{
		Backend: blobstore.Backend(cfg.BlobBackend),
		BaseDir: cfg.BlobDir,
		Bucket:  cfg.BlobBucket,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "blobstore:", err)
		return 1
	}

	rep := reputation.NewEngine(perfStore, reputation.DefaultBadgeThresholds())

	mgr := lifecycle.NewManager(contractStore, bidStore, deliveryStore, rep, auction.NewEngine(rep)).
		WithBlobStore(blobs).
		WithObservability(obs).
		WithDefaultBiddingWindow(cfg.DefaultBiddingWindow)

	if weights := loadDefaultWeights(cfg.WeightProfileDir, logger); weights != nil {
		mgr.WithWeights(*weights)
	}

	if cfg.RedisAddr != "" {
		mgr.WithBroadcaster(broadcast.Multi{
			broadcast.NewLogBroadcaster(),
			broadcast.NewRedisBroadcaster(cfg.RedisAddr, "", 0, "agora.events"),
		})
		logger.InfoContext(ctx, "redis broadcaster enabled", "addr", cfg.RedisAddr)
	}

	if cfg.PostgresURL != "" {
		pg, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "open registry:", err)
			return 1
		}
		defer func() { _ = pg.Close() }()
		reg := registry.NewPostgresRegistry(pg)
		if err := reg.Init(ctx); err != nil {
			_, _ = fmt.Fprintln(stderr, "init registry:", err)
			return 1
		}
		mgr.WithRegistry(reg)
		logger.InfoContext(ctx, "agent registry enabled")
	}

	sweeper := lifecycle.NewSweeper(mgr, contractStore, cfg.SweepInterval)
	go sweeper.Run(ctx)

	_, _ = fmt.Fprintf(stdout, "agora node running (store %s, sweep %s)\n", cfg.SQLitePath, cfg.SweepInterval)
	<-ctx.Done()
	logger.Info("shutting down")
	return 0
}

func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// loadDefaultWeights reads the "default" weight profile if the profile
// directory carries one. Absence is not an error.
func loadDefaultWeights(dir string, logger *slog.Logger) *auction.Weights {
	profile, err := auction.LoadProfile(dir, "default")
	if err != nil {
		logger.Debug("no default weight profile", "dir", dir, "error", err)
		return nil
	}
	return &profile.Weights
}
