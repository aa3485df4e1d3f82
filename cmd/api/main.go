package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"YONASettlement/internal/assets"
	"YONASettlement/internal/config"
	"YONASettlement/internal/descriptor"
	"YONASettlement/internal/events"
	internalhttp "YONASettlement/internal/http"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/locks"
	"YONASettlement/internal/members"
	"YONASettlement/internal/pathfinding"
	"YONASettlement/internal/services"
	"YONASettlement/internal/settlement"
	"YONASettlement/internal/store"
	"YONASettlement/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.Insecure)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, closeStore, err := store.Open(ctx, cfg.DB.DSN, cfg.DB.Seed)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	publisher, err := events.New(events.Config{
		Driver:  cfg.Events.Driver,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
		NATSURL: cfg.Events.NATSURL,
		Subject: cfg.Events.Subject,
	})
	if err != nil {
		return err
	}
	defer publisher.Close()

	rpc, err := ledger.NewMultiRPCClient(cfg.Ledger.RPCEndpoints, cfg.Ledger.FailoverThreshold, cfg.LedgerTimeout())
	if err != nil {
		return err
	}
	ledgerClient := ledger.NewClient(rpc, cfg.Ledger.BookLimit, logger.Named("ledger"))

	resolver := assets.NewResolver(st, issuerCache(cfg, rdb), logger.Named("assets"))
	engine := &pathfinding.Engine{
		Books:   ledgerClient,
		Issuers: resolver,
		Bridges: cfg.Pathfinding.Bridges,
		Logger:  logger.Named("pathfinding"),
	}

	memberClient := members.NewClient(cfg.MemberTimeout(), logger.Named("members"))
	memberClient.ClientID = cfg.Members.ClientID
	memberClient.Probe = cfg.Members.ProbeAvailability

	svc := &services.PaymentService{
		Store:     st,
		Directory: st,
		Members:   memberClient,
		Verifier:  descriptor.NewVerifier(),
		Simulator: &settlement.Simulator{
			Routes: engine,
			Ledger: ledgerClient,
			Logger: logger.Named("settlement"),
		},
		Ledger:            ledgerClient,
		Issuers:           resolver,
		Locks:             intentLocker(cfg, rdb),
		Events:            publisher,
		PublicURL:         cfg.Server.PublicURL,
		StrictCorrelation: cfg.Webhooks.StrictCorrelation,
		Logger:            logger.Named("payments"),
	}

	h := internalhttp.NewHandler(svc, st, memberClient, ledgerClient, logger.Named("http"))
	h.HistoryPages = cfg.Ledger.HistoryPages
	srv := internalhttp.NewServer(h, cfg.Server.CORSOrigins, logger.Named("http"))

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("public_url", cfg.Server.PublicURL),
			zap.Bool("memory_store", cfg.UsesMemoryStore()),
			zap.String("rpc", rpc.BaseURL()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctxShutdown)
}

func issuerCache(cfg *config.Config, rdb *redis.Client) assets.Cache {
	if cfg.Assets.CacheDriver == "redis" && rdb != nil {
		return assets.NewRedisCache(rdb, cfg.CacheTTL())
	}
	return assets.NewMemoryCache(cfg.Assets.CacheSize, cfg.CacheTTL())
}

func intentLocker(cfg *config.Config, rdb *redis.Client) locks.Locker {
	if cfg.Locks.Driver == "redis" && rdb != nil {
		return locks.NewRedisLocker(rdb, cfg.LockTTL(), cfg.LockWait())
	}
	return locks.NewLocalLocker()
}
