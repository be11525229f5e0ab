// Command coordinatord runs the CRDT coordinator: it serves §6's transport
// contract over HTTP, owns the KV-backed persistence drain, and reports
// OpenTelemetry traces for both. Lifecycle mirrors the teacher's
// cmd/analyzer: load config, build a logger, start the long-running
// subsystems, block on a signal, shut everything down in order.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/replistore/crdb/internal/kvstore"
	"github.com/replistore/crdb/internal/persistence"
	"github.com/replistore/crdb/internal/transport"
	"github.com/replistore/crdb/pkg/rconfig"
	"github.com/replistore/crdb/pkg/rlog"
	"github.com/replistore/crdb/pkg/rtelemetry"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

const shutdownGracePeriod = 10 * time.Second

func main() {
	configPath := flag.String("c", "", "path to coordinator config file")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coordinatord %s (commit %s, built %s)\n", version, gitCommit, buildTime)
		return
	}

	cfg, err := rconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordinatord: load config: %v\n", err)
		os.Exit(1)
	}

	logger := rlog.New(rlog.ParseLevel(cfg.Log.Level), os.Stdout)

	shutdownTelemetry, err := rtelemetry.Init(context.Background(), rtelemetry.LoadFromRconfig(cfg.Telemetry))
	if err != nil {
		logger.Warn("coordinatord: telemetry init failed, continuing without tracing: %v", err)
	}

	store, err := kvstore.New(&cfg.KVStore)
	if err != nil {
		logger.Error("coordinatord: build kv store: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	persist := persistence.New(&cfg.Persistence, store, logger.WithField("component", "persistence"))
	go persist.Start(ctx)

	hub := transport.NewRoomHub()
	registry := transport.NewRegistry(hub, persist, logger.WithField("component", "registry"))
	server := transport.NewCoordinatorServer(cfg.Coordinator.ListenAddr, registry, hub, logger.WithField("component", "transport"))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("coordinatord: listening on %s", cfg.Coordinator.ListenAddr)

	select {
	case sig := <-sigChan:
		logger.Info("coordinatord: received signal %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("coordinatord: transport server failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("coordinatord: transport shutdown error: %v", err)
	}

	cancel() // stops the persistence drain loop
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("coordinatord: telemetry shutdown error: %v", err)
	}

	logger.Info("coordinatord: stopped")
}
