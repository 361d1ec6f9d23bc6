package orchestrator

import (
	"context"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"freight_auction/internal/agent"
	"freight_auction/internal/auction"
	"freight_auction/internal/domain"
	"freight_auction/internal/messaging/inproc"
	"freight_auction/internal/metrics"
)

const orchestratorActor = "orchestrator"

type Store interface {
	RecordItem(ctx context.Context, item domain.Item, tick int64) error
	RecordEvent(ctx context.Context, ev domain.TaskEvent) error
	RecordSettlement(ctx context.Context, st domain.Settlement) error
}

type Config struct {
	ItemLimit       int
	PriceVariance   int64
	PayMultiplier   int64
	AuctionDuration int64
	RebidWindow     int64
	WorldWidth      float64
	WorldHeight     float64
	TickInterval    time.Duration
	Seed            int64
}

func (c Config) withDefaults() Config {
	if c.ItemLimit <= 0 {
		c.ItemLimit = 30
	}
	if c.PriceVariance <= 0 {
		c.PriceVariance = 1
	}
	if c.PayMultiplier <= 0 {
		c.PayMultiplier = 1
	}
	if c.AuctionDuration <= 0 {
		c.AuctionDuration = 20
	}
	if c.RebidWindow <= 0 {
		c.RebidWindow = 2
	}
	if c.WorldWidth <= 0 {
		c.WorldWidth = 800
	}
	if c.WorldHeight <= 0 {
		c.WorldHeight = 800
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	return c
}

// Service owns the authoritative auction registry and drives the market
// in discrete ticks: spawn items, fund their auctions, bump expired
// unclaimed ones, run every agent's round, broadcast each mutation to all
// optimizers, and sweep settled auctions out while journaling everything.
type Service struct {
	cfg    Config
	store  Store
	bus    *inproc.Bus
	logger *log.Logger

	registry *auction.Registry
	items    map[string]*domain.Item
	agents   []*agent.Vehicle
	client   *domain.Account
	arbiter  *domain.Account
	depot    domain.Point
	rng      *rand.Rand
	tick     atomic.Int64
}

func New(store Store, bus *inproc.Bus, cfg Config, logger *log.Logger) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		logger:   logger,
		registry: auction.NewRegistry(),
		items:    make(map[string]*domain.Item),
		client:   domain.NewAccount("client", 0),
		arbiter:  domain.NewAccount("arbiter", 0),
		depot:    domain.Point{X: cfg.WorldWidth / 2, Y: cfg.WorldHeight / 2},
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Clock is the logical clock every auction in this market runs on.
func (s *Service) Clock() domain.Clock {
	return s.tick.Load
}

// Items is the shared item catalog handed to vehicles.
func (s *Service) Items() map[string]*domain.Item {
	return s.items
}

func (s *Service) Registry() *auction.Registry {
	return s.registry
}

func (s *Service) Client() *domain.Account {
	return s.client
}

func (s *Service) Depot() domain.Point {
	return s.depot
}

func (s *Service) AddVehicle(v *agent.Vehicle) {
	v.Subscribe(s.bus)
	s.agents = append(s.agents, v)
}

// Run advances the market until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one full market round. Broadcasts happen as mutations occur,
// and every agent drains its inbox before its own round, so no round ever
// acts on a pre-mutation view.
func (s *Service) Tick(ctx context.Context) {
	s.tick.Add(1)
	s.spawnItems(ctx)
	s.bumpExpired(ctx)
	s.updateAgents(ctx)
	s.sweepSettled(ctx)
	metrics.SetLiveAuctions(s.registry.Len())
}

func (s *Service) spawnItems(ctx context.Context) {
	if len(s.agents) == 0 {
		return
	}
	minSize, maxSize := s.agents[0].Size(), s.agents[0].Size()
	for _, v := range s.agents[1:] {
		if v.Size() < minSize {
			minSize = v.Size()
		}
		if v.Size() > maxSize {
			maxSize = v.Size()
		}
	}

	now := s.tick.Load()
	for len(s.items) < s.cfg.ItemLimit {
		size := minSize/2 + s.rng.Int63n(maxSize/2-minSize/2+1)
		if size < 1 {
			size = 1
		}
		pos := domain.Point{
			X: s.rng.Float64() * s.cfg.WorldWidth,
			Y: s.rng.Float64() * s.cfg.WorldHeight,
		}
		price := int64(domain.Dist(pos, s.depot)) * size * size * (1 + s.rng.Int63n(s.cfg.PriceVariance))
		if price < size*size {
			price = size * size
		}

		item := &domain.Item{ID: uuid.NewString(), Size: size, Pos: pos, Price: price}
		a, err := auction.New(s.client, 2*price, item.ID, s.cfg.PayMultiplier, s.arbiter, s.cfg.AuctionDuration, s.cfg.RebidWindow, s.Clock())
		if err != nil {
			s.logger.Printf("create auction for item %s: %v", item.ID, err)
			return
		}
		s.items[item.ID] = item
		s.registry.Put(item.ID, a)
		metrics.ItemSpawned()

		if err := s.store.RecordItem(ctx, *item, now); err != nil {
			s.logger.Printf("journal item %s: %v", item.ID, err)
		}
		s.journalEvent(ctx, item.ID, domain.EventCreated, orchestratorActor, a)
		s.broadcast(item.ID, a)
	}
}

// bumpExpired re-lists every auction that expired without a bid: the item
// price doubles and funds a top-up, which recomputes the opening bid and
// pushes the deadline out for another full duration.
func (s *Service) bumpExpired(ctx context.Context) {
	s.registry.Each(func(taskID string, a *auction.Auction) {
		snap := a.Snapshot()
		if snap.Settled || snap.Open || snap.Contractor != nil {
			return
		}
		item, ok := s.items[taskID]
		if !ok {
			return
		}
		item.Price *= 2
		if _, err := a.Extend(s.client, item.Price, s.cfg.AuctionDuration); err != nil {
			s.logger.Printf("extend auction %s: %v", taskID, err)
			return
		}
		metrics.AuctionExtended()
		s.journalEvent(ctx, taskID, domain.EventExtended, orchestratorActor, a)
		s.broadcast(taskID, a)
	})
}

func (s *Service) updateAgents(ctx context.Context) {
	for _, v := range s.agents {
		taskID, ok := v.Tick()
		if !ok {
			continue
		}
		a, found := s.registry.Get(taskID)
		if !found {
			continue
		}
		s.journalEvent(ctx, taskID, domain.EventBid, v.ID(), a)
		s.broadcast(taskID, a)
	}
}

// sweepSettled collects settled auctions, journals their payouts and
// removes them in a second phase so the scan never mutates the registry
// under itself.
func (s *Service) sweepSettled(ctx context.Context) {
	now := s.tick.Load()
	var settled []string
	s.registry.Each(func(taskID string, a *auction.Auction) {
		snap := a.Snapshot()
		if !snap.Settled {
			return
		}
		contractor := ""
		if snap.Contractor != nil {
			contractor = snap.Contractor.ID
		}
		if err := s.store.RecordSettlement(ctx, domain.Settlement{
			TaskID:     taskID,
			Contractor: contractor,
			Pay:        snap.SettledPay,
			Refund:     snap.SettledRefund,
			Tick:       now,
		}); err != nil {
			s.logger.Printf("journal settlement %s: %v", taskID, err)
		}
		s.journalEvent(ctx, taskID, domain.EventSettled, contractor, a)
		metrics.AuctionSettled()
		s.broadcast(taskID, a)
		settled = append(settled, taskID)
	})
	s.registry.Remove(settled...)
}

func (s *Service) journalEvent(ctx context.Context, taskID string, kind domain.EventKind, actor string, a *auction.Auction) {
	snap := a.Snapshot()
	if err := s.store.RecordEvent(ctx, domain.TaskEvent{
		TaskID:   taskID,
		Kind:     kind,
		Actor:    actor,
		Price:    snap.CurrentBid,
		Deadline: snap.Deadline,
		Tick:     s.tick.Load(),
	}); err != nil {
		s.logger.Printf("journal %s event for %s: %v", kind, taskID, err)
	}
}

func (s *Service) broadcast(taskID string, a *auction.Auction) {
	if err := s.bus.Broadcast(inproc.Update{TaskID: taskID, Auction: a}); err != nil {
		s.logger.Printf("broadcast update for %s: %v", taskID, err)
	}
}
