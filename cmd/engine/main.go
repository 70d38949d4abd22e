package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/rawblock/whale-classifier/internal/bitcoin"
	"github.com/rawblock/whale-classifier/internal/classify"
	"github.com/rawblock/whale-classifier/internal/config"
	"github.com/rawblock/whale-classifier/internal/dedup"
	"github.com/rawblock/whale-classifier/internal/ingest"
	"github.com/rawblock/whale-classifier/internal/labels"
	"github.com/rawblock/whale-classifier/internal/models"
	"github.com/rawblock/whale-classifier/internal/ops"
	"github.com/rawblock/whale-classifier/internal/pipeline"
	"github.com/rawblock/whale-classifier/internal/price"
	"github.com/rawblock/whale-classifier/internal/registry"
	"github.com/rawblock/whale-classifier/internal/sink"
	"github.com/rawblock/whale-classifier/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "start":
		os.Exit(runStart())
	case "stats":
		os.Exit(runStats())
	case "cleanup-duplicates":
		os.Exit(runCleanupDuplicates(os.Args[2:]))
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: engine <start|stats|cleanup-duplicates [--dry-run|--live]>")
}

// runStart wires the full pipeline and blocks until SIGINT/SIGTERM.
func runStart() int {
	log.Println("Starting whale-classifier engine...")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded (%v), relying on process environment", err)
	}

	cfg, err := config.Load(config.GetEnvOrDefault("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("FATAL: failed to load config: %v", err)
	}

	reg := registry.New()
	if err := reg.Rehydrate(cfg.RegistrySnapshotPath); err != nil {
		log.Printf("Warning: whale registry rehydrate failed: %v", err)
	}
	stop := make(chan struct{})
	go reg.RunSnapshotLoop(cfg.RegistrySnapshotPath, time.Duration(cfg.RegistrySnapshotIntervalSecs)*time.Second, stop)
	defer close(stop)

	var store sink.Store
	var l2 dedup.Lookback
	pgStore, err := sink.Connect(context.Background(), config.RequireEnv("DATABASE_URL"))
	if err != nil {
		log.Printf("Warning: failed to connect to PostgreSQL, continuing without durable storage: %v", err)
	} else {
		defer pgStore.Close()
		if err := pgStore.InitSchema(context.Background()); err != nil {
			log.Printf("Warning: schema init failed: %v", err)
		}
		store = pgStore
		l2 = pgStore
	}

	dlq := sink.NewDeadLetterQueue(1000)
	sentiment := sink.NewSentimentCounters()
	var audit *sink.AuditLog
	if f, err := os.OpenFile(config.GetEnvOrDefault("AUDIT_LOG_PATH", "whale_audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		audit = sink.NewAuditLog(f)
	} else {
		log.Printf("Warning: failed to open audit log: %v", err)
	}

	if store == nil {
		store = noopStore{}
	}
	sk := sink.NewSink(store, dlq, sentiment, audit)

	labelStore, err := labels.NewStore(config.GetEnvOrDefault("LABELS_DSN", ""))
	if err != nil {
		log.Printf("Warning: label persistent store unavailable, running cache-only: %v", err)
	}
	labelProvider := labels.NewProvider(labels.Config{
		CacheCapacity:      cfg.LabelCacheCapacity,
		CacheStripes:       cfg.LabelCacheStripes,
		TTL:                time.Duration(cfg.LabelTTLSeconds) * time.Second,
		NegativeTTL:        time.Duration(cfg.LabelNegativeCacheSeconds) * time.Second,
		RemoteRatePerSec:   cfg.RemoteExplorerRatePerSec,
		RemoteCallDeadline: time.Duration(cfg.LabelCallDeadlineSeconds) * time.Second,
	}, labelStoreOrNil(labelStore), nil)

	priceResolver := price.NewResolver(time.Duration(cfg.PriceStalenessSeconds) * time.Second)

	engine := classify.NewEngine()
	deps := classify.Deps{
		Registry:                 reg,
		BridgeDirectionHeuristic: cfg.BridgeDirectionHeuristic,
	}

	fanin := ingest.NewFanIn(cfg.FanInQueueSize, false)

	hub := ops.NewHub()
	go hub.Run()

	p := pipeline.New(cfg, fanin, labelProvider, priceResolver, engine, deps, l2, reg, sk, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipelineDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(pipelineDone)
	}()

	sources, supervisors := buildSources(fanin)
	for _, s := range supervisors {
		go s.Run(ctx)
	}

	router := ops.SetupRouter(reg, dlq, sentiment, hub, healthCheckers(supervisors))
	addr := config.GetEnvOrDefault("OPS_LISTEN_ADDR", cfg.OpsListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	srvErr := make(chan error, 1)
	go func() { srvErr <- router.Run(addr) }()

	log.Printf("Engine running on %s with %d ingestion sources", addr, len(sources))

	select {
	case <-sig:
		log.Println("shutdown signal received, draining...")
	case err := <-srvErr:
		log.Printf("ops server exited: %v", err)
	}

	supervisor.Shutdown(cancel, pipelineDone)

	if err := reg.Snapshot(cfg.RegistrySnapshotPath); err != nil {
		log.Printf("Warning: final registry snapshot failed: %v", err)
	}

	return 0
}

func runStats() int {
	cfg, err := config.Load(config.GetEnvOrDefault("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Printf("FATAL: failed to load config: %v", err)
		return 1
	}
	reg := registry.New()
	if err := reg.Rehydrate(cfg.RegistrySnapshotPath); err != nil {
		log.Printf("FATAL: failed to read registry snapshot: %v", err)
		return 1
	}
	log.Println("registry snapshot loaded; inspect via /stats/:whale on a running engine")
	return 0
}

// cleanupSweepWindow bounds how far back cleanup-duplicates looks for
// whale/token partitions to re-run the suppressor over; the suppressor's
// own match window (10s) still governs which pairs within a partition
// actually match.
const cleanupSweepWindow = 24 * time.Hour

// runCleanupDuplicates re-runs the near-duplicate suppressor over storage's
// recent records, one whale/token partition at a time, reporting (or with
// --live, applying) every suppression and merge it finds.
func runCleanupDuplicates(args []string) int {
	live := false
	for _, a := range args {
		switch a {
		case "--live":
			live = true
		case "--dry-run":
			live = false
		default:
			fmt.Fprintf(os.Stderr, "unknown flag %q\n", a)
			return 2
		}
	}

	ctx := context.Background()
	dsn := config.RequireEnv("DATABASE_URL")
	store, err := sink.Connect(ctx, dsn)
	if err != nil {
		log.Printf("FATAL: failed to connect to PostgreSQL: %v", err)
		return 1
	}
	defer store.Close()

	keys, err := store.DistinctWhaleTokenKeys(ctx, time.Now().Add(-cleanupSweepWindow))
	if err != nil {
		log.Printf("FATAL: failed to list whale/token partitions: %v", err)
		return 1
	}

	var suppressedCount, mergedCount int
	for _, key := range keys {
		records, err := store.RecentRecords(ctx, key.WhaleAddress, key.TokenSymbol, cleanupSweepWindow, 200)
		if err != nil {
			log.Printf("Warning: failed to load records for %s/%s: %v", key.WhaleAddress, key.TokenSymbol, err)
			continue
		}
		sort.Slice(records, func(i, j int) bool { return records[i].BlockTime.Before(records[j].BlockTime) })

		suppressor := dedup.NewSuppressor(nil)
		for _, rec := range records {
			outcome := suppressor.Check(ctx, rec)
			switch {
			case outcome.Merged:
				mergedCount++
				log.Printf("cleanup-duplicates: %s (%s) merges into %s, confidence %.2f wins",
					outcome.Event.IncomingHash, outcome.Event.Pattern, outcome.Event.ExistingHash, rec.Confidence)
				if live {
					if err := store.UpdateConfidence(ctx, outcome.Event.ExistingHash, rec); err != nil {
						log.Printf("Warning: failed to update %s: %v", outcome.Event.ExistingHash, err)
						continue
					}
					if err := store.DeleteRecord(ctx, outcome.Event.IncomingHash); err != nil {
						log.Printf("Warning: failed to delete merged duplicate %s: %v", outcome.Event.IncomingHash, err)
					}
				}
			case outcome.Suppressed:
				suppressedCount++
				log.Printf("cleanup-duplicates: %s (%s) suppressed by higher-confidence %s",
					outcome.Event.IncomingHash, outcome.Event.Pattern, outcome.Event.ExistingHash)
				if live {
					if err := store.DeleteRecord(ctx, outcome.Event.IncomingHash); err != nil {
						log.Printf("Warning: failed to delete suppressed duplicate %s: %v", outcome.Event.IncomingHash, err)
					}
				}
			}
		}
	}

	log.Printf("cleanup-duplicates: live=%v scanned %d whale/token partitions, %d merged, %d suppressed",
		live, len(keys), mergedCount, suppressedCount)
	return 0
}

// buildSources constructs the ingestion sources enabled via environment
// configuration, each wrapped in its own supervisor.
func buildSources(fanin *ingest.FanIn) ([]ingest.Source, []*supervisor.Supervisor) {
	var sources []ingest.Source

	if rpcURL := os.Getenv("ETH_RPC_URL"); rpcURL != "" {
		tokens := parseAddresses(os.Getenv("WATCH_TOKENS"))
		stream, err := ingest.NewChainLogStream(rpcURL, models.ChainEthereum, tokens)
		if err != nil {
			log.Printf("Warning: failed to start chain log stream: %v", err)
		} else {
			sources = append(sources, stream)
		}
	}

	if host := os.Getenv("BTC_RPC_HOST"); host != "" {
		client, err := bitcoin.NewClient(bitcoin.Config{
			Host: host,
			User: os.Getenv("BTC_RPC_USER"),
			Pass: os.Getenv("BTC_RPC_PASS"),
		})
		if err != nil {
			log.Printf("Warning: failed to connect to Bitcoin RPC: %v", err)
		} else {
			start, _ := strconv.ParseInt(config.GetEnvOrDefault("BTC_START_HEIGHT", "0"), 10, 64)
			sources = append(sources, ingest.NewBitcoinPoller(client, 30*time.Second, start))
		}
	}

	if endpoint := os.Getenv("ALERT_FEED_ENDPOINT"); endpoint != "" {
		minUSD, _ := strconv.Atoi(config.GetEnvOrDefault("ALERT_FEED_MIN_USD", "500000"))
		sources = append(sources, ingest.NewAlertFeed(endpoint, os.Getenv("ALERT_FEED_API_KEY"), minUSD, 15*time.Second))
	}

	supervisors := make([]*supervisor.Supervisor, len(sources))
	for i, s := range sources {
		supervisors[i] = supervisor.New(sourceRunnable{source: s, fanin: fanin})
	}
	return sources, supervisors
}

// sourceRunnable adapts an ingest.Source into supervisor.Runnable.
type sourceRunnable struct {
	source ingest.Source
	fanin  *ingest.FanIn
}

func (r sourceRunnable) Name() string { return r.source.ID() }

func (r sourceRunnable) Run(ctx context.Context) error {
	return ingest.RunSource(ctx, r.source, r.fanin)
}

func healthCheckers(supervisors []*supervisor.Supervisor) []ops.HealthChecker {
	out := make([]ops.HealthChecker, len(supervisors))
	for i, s := range supervisors {
		out[i] = s
	}
	return out
}

func parseAddresses(csv string) []common.Address {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]common.Address, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, common.HexToAddress(p))
	}
	return out
}

func labelStoreOrNil(s *labels.Store) labels.PersistentStore {
	if s == nil {
		return nil
	}
	return s
}

// noopStore discards writes when no durable storage is configured, so the
// pipeline still drains (dead-lettering every record) rather than blocking.
type noopStore struct{}

func (noopStore) Upsert(context.Context, models.WhaleRecord) error {
	return fmt.Errorf("no durable store configured")
}

