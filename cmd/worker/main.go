package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"YONASettlement/internal/config"
	"YONASettlement/internal/events"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/store"
	"YONASettlement/internal/telemetry"
	"YONASettlement/internal/worker"

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

	if cfg.UsesMemoryStore() {
		logger.Fatal("worker needs a shared postgres store; memory:// is process local")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, cfg.DB.DSN, "")
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer closeStore()

	publisher, err := events.New(events.Config{
		Driver:  cfg.Events.Driver,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
		NATSURL: cfg.Events.NATSURL,
		Subject: cfg.Events.Subject,
	})
	if err != nil {
		logger.Fatal("events init failed", zap.Error(err))
	}
	defer publisher.Close()

	rpc, err := ledger.NewMultiRPCClient(cfg.Ledger.RPCEndpoints, cfg.Ledger.FailoverThreshold, cfg.LedgerTimeout())
	if err != nil {
		logger.Fatal("rpc init failed", zap.Error(err))
	}

	wsEndpoints := cfg.Ledger.WSEndpoints
	if len(wsEndpoints) == 0 {
		for _, rpcURL := range cfg.Ledger.RPCEndpoints {
			if ws := ledger.DefaultWSEndpoint(rpcURL); ws != "" {
				wsEndpoints = append(wsEndpoints, ws)
			}
		}
	}

	w := &worker.Worker{
		Store:               st,
		History:             rpc,
		Events:              publisher,
		WSEndpoints:         wsEndpoints,
		WSFailoverThreshold: cfg.Ledger.FailoverThreshold,
		RefreshInterval:     time.Duration(cfg.Worker.RefreshSeconds) * time.Second,
		ReconnectDelay:      time.Duration(cfg.Worker.ReconnectSeconds) * time.Second,
		MaxIntents:          cfg.Worker.MaxIntents,
		Logger:              logger.Named("worker"),
	}

	logger.Info("worker started",
		zap.String("rpc", rpc.BaseURL()),
		zap.Strings("ws", wsEndpoints),
	)
	w.Run(ctx)
	logger.Info("worker stopped")
}
