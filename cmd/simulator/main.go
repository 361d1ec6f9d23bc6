package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"freight_auction/internal/agent"
	"freight_auction/internal/config"
	"freight_auction/internal/domain"
	"freight_auction/internal/messaging/inproc"
	"freight_auction/internal/orchestrator"
	sqlitestore "freight_auction/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.freight_auction/config.toml)")
	dbPathFlag := flag.String("db", "", "journal database path override")
	metricsAddrFlag := flag.String("metrics", "", "metrics listen address override")
	agentsFlag := flag.Int("agents", 0, "number of vehicle agents override")
	ticks := flag.Int("ticks", 0, "run this many ticks then exit (0: run until interrupted)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath != "" {
			log.Fatalf("load config: %v", err)
		}
		// No config file is fine; everything has a default.
		cfg = config.Config{}
	}

	sim := cfg.Simulation
	dbPath := firstNonEmpty(*dbPathFlag, sim.Journal.DBPath, "data/freight_auction.db")
	metricsAddr := firstNonEmpty(*metricsAddrFlag, sim.Metrics.Addr, ":9190")
	agentCount := sim.Agents
	if *agentsFlag > 0 {
		agentCount = *agentsFlag
	}
	if agentCount <= 0 {
		agentCount = 6
	}

	dbPath = filepath.Clean(dbPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatalf("create db directory: %v", err)
	}

	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		log.Fatalf("open journal store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate journal store: %v", err)
	}

	bus := inproc.New(256)
	svc := orchestrator.New(store, bus, orchestrator.Config{
		ItemLimit:       sim.ItemLimit,
		PriceVariance:   sim.PriceVariance,
		PayMultiplier:   sim.PayMultiplier,
		AuctionDuration: sim.AuctionDuration,
		RebidWindow:     sim.RebidWindow,
		WorldWidth:      sim.WorldWidth,
		WorldHeight:     sim.WorldHeight,
		TickInterval:    time.Duration(sim.TickIntervalMS) * time.Millisecond,
		Seed:            sim.Seed,
	}, log.Default())

	seed := sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	depot := svc.Depot()
	for i := 0; i < agentCount; i++ {
		id := fmt.Sprintf("agent-%d", i)
		account := domain.NewAccount(id, 0)
		pos := domain.Point{
			X: rng.Float64() * depot.X * 2,
			Y: rng.Float64() * depot.Y * 2,
		}
		v := agent.New(id, account, 15+rng.Int63n(15), 4+float64(rng.Intn(4)), pos, depot, svc.Items(), log.Default())
		svc.AddVehicle(v)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()

	log.Printf("simulator starting: agents=%d db=%s metrics=%s", agentCount, dbPath, metricsAddr)

	if *ticks > 0 {
		for i := 0; i < *ticks && ctx.Err() == nil; i++ {
			svc.Tick(ctx)
		}
		log.Printf("simulator finished %d ticks", *ticks)
		return
	}
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("simulator run: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
