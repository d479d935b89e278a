// Package main provides barterd, the Mina<->Zcash atomic-swap operator
// daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klingon-exchange/barterd/internal/config"
	"github.com/klingon-exchange/barterd/internal/l1"
	"github.com/klingon-exchange/barterd/internal/l2"
	"github.com/klingon-exchange/barterd/internal/oracle"
	"github.com/klingon-exchange/barterd/internal/resolver"
	"github.com/klingon-exchange/barterd/internal/settlement"
	"github.com/klingon-exchange/barterd/internal/swap"
	"github.com/klingon-exchange/barterd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

const trackedKeysFile = "tracked_keys.json"

func main() {
	log := logging.New(logging.DefaultConfig())
	logging.SetDefault(log)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("failed to load configuration", "error", err)
	}

	log = logging.New(&logging.Config{Level: cfg.LogLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("barterd starting", "version", version, "commit", commit, "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator, worker, err := wire(cfg, log)
	if err != nil {
		log.Fatal("failed to wire components", "error", err)
	}

	if err := coordinator.Initialize(ctx); err != nil {
		log.Fatal("failed to initialize coordinator", "error", err)
	}

	coordinator.Start(ctx)
	worker.Start(ctx)
	log.Info("barterd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	coordinator.Stop()
	worker.Stop()
	cancel()
	log.Info("goodbye")
}

func wire(cfg *config.Config, log *logging.Logger) (*swap.Coordinator, *settlement.Worker, error) {
	signer, err := l1.NewKeySignerFromHex(cfg.OperatorPrivateKey)
	if err != nil {
		return nil, nil, err
	}

	tracked, err := l1.NewTrackedKeyStore(trackedKeysFile)
	if err != nil {
		return nil, nil, err
	}

	proofs := l1.NewMiMCProofSystem()
	l1Client := l1.NewGraphQLClient(cfg.L1GraphQLEndpoint, cfg.L1PoolAddress, signer, proofs, tracked, log.Component("l1"))

	allocator := l2.NewRangeAllocator(cfg.L2BasePort, cfg.L2PortRange)
	l2Client := l2.NewHTTPClient(cfg.L2DaemonBaseURL, cfg.L2OperatorToken, allocator, log.Component("l2"))

	oracleClient := oracle.NewHTTPClient(cfg.OracleURL, cfg.OracleKey, cfg.OracleTTL)
	resolverClient := resolver.NewHTTPClient(cfg.ResolverURL, cfg.ResolverKey, log.Component("resolver"))

	coordinator := swap.NewCoordinator(swap.Config{
		L1:           l1Client,
		L2:           l2Client,
		Oracle:       oracleClient,
		Resolver:     resolverClient,
		Tracked:      tracked,
		PollInterval: cfg.PollInterval,
	})

	worker := settlement.NewWorker(settlement.Config{
		Client:     l1Client,
		Proofs:     proofs,
		Interval:   cfg.SettlementInterval,
		MinActions: cfg.SettlementMinAction,
		Log:        log.Component("settlement"),
	})

	return coordinator, worker, nil
}
