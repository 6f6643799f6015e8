package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/fitforge/fitcore/internal/addressable"
	"github.com/fitforge/fitcore/internal/competition"
	"github.com/fitforge/fitcore/internal/config"
	"github.com/fitforge/fitcore/internal/kvcache"
	"github.com/fitforge/fitcore/internal/membership"
	"github.com/fitforge/fitcore/internal/ops"
	"github.com/fitforge/fitcore/internal/publish"
	"github.com/fitforge/fitcore/internal/relaypool"
	"github.com/fitforge/fitcore/internal/workout"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	okColor  = color.New(color.FgGreen).SprintFunc()
	errColor = color.New(color.FgRed).SprintFunc()
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		handleInit()
		return
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("fitcore %s (commit %s, built %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("fitcore - decentralized fitness-competition core over Nostr")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  fitcore init              Print an example configuration")
		fmt.Println("  fitcore --version         Show version information")
		fmt.Println("  fitcore --config <path>   Start with a configuration file")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s loading configuration: %v\n", errColor("error"), err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errColor("error"), err)
		os.Exit(1)
	}
}

// app bundles the services a caller embedding fitcore would wire together.
// cmd/fitcore exists to prove the composition root compiles and to give
// operators a minimal CLI over it, not to be a full product surface.
type app struct {
	logger      *ops.Logger
	store       *addressable.Store
	pool        *relaypool.Pool
	publisher   *publish.Engine
	membership  *membership.Service
	competition *competition.Service
	workout     *workout.Service
	periodic    *ops.PeriodicBackup
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := ops.NewLogger(cfg.Logging)

	cache, err := kvcache.Open(cfg.Storage.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cache.Close()

	store := addressable.New(cache, 2*time.Second, logger.Logger)

	pool := relaypool.New(ctx, relaypool.Config{
		DefaultRelays:        cfg.Pool.DefaultRelays,
		ConnectTimeout:       cfg.Pool.ConnectionTimeout(),
		PingInterval:         cfg.Pool.PingInterval(),
		ReconnectDelay:       cfg.Pool.ReconnectDelay(),
		MaxReconnectAttempts: cfg.Pool.MaxReconnectAttempts,
		PublishDeadline:      cfg.Pool.PublishDeadline(),
		SubscriptionDeadline: cfg.Pool.SubscriptionDeadline(),
		MinRelaysForEOSE:     cfg.Pool.MinRelaysForEOSE,
	}, logger.Logger)

	// Connecting to the configured relays and warming the addressable store
	// from the on-disk cache are independent; run them concurrently and
	// fail startup together if either one does.
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if !pool.WaitForMinimumConnection(gctx, cfg.Pool.MinRelaysForEOSE, cfg.Pool.ConnectionTimeout()) {
			return fmt.Errorf("could not reach minimum relay connections")
		}
		return nil
	})
	group.Go(func() error {
		return store.Preload(gctx)
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	status := pool.Status()
	fmt.Printf("%s connected to %d/%d relays\n", okColor("✓"), status.ConnectedCount, status.RelayCount)

	backupMgr := ops.NewBackupManager(logger, cfg.Storage.CachePath)
	backupDir := filepath.Join(filepath.Dir(cfg.Storage.CachePath), "backups")
	periodic := ops.NewPeriodicBackup(backupMgr, cfg.Storage.CachePath, backupDir, 6*time.Hour, logger)
	go periodic.Start(ctx)

	application := &app{
		logger:      logger,
		store:       store,
		pool:        pool,
		publisher:   publish.New(pool, cfg.Pool.PublishDeadline()),
		membership:  membership.New(store, pool),
		competition: competition.New(store, pool),
		workout:     workout.New(pool),
		periodic:    periodic,
	}
	application.logger.Info("fitcore ready", "connected_relays", status.ConnectedCount, "total_relays", status.RelayCount)

	fmt.Println()
	fmt.Println(okColor("fitcore is running. Press Ctrl+C to shut down."))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("shutting down...")
	application.periodic.Stop()
	cancel()
	return nil
}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading example config: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(exampleConfig))
}
