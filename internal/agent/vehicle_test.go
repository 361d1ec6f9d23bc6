package agent

import (
	"io"
	"log"
	"testing"

	"freight_auction/internal/auction"
	"freight_auction/internal/domain"
	"freight_auction/internal/messaging/inproc"
)

func testClock(now *int64) domain.Clock {
	return func() int64 { return *now }
}

func TestVehicleWinsCommitsAndPicksUp(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 1000)
	arbiter := domain.NewAccount("arbiter", 0)
	account := domain.NewAccount("agent-0", 0)

	item := &domain.Item{ID: "t1", Size: 2, Pos: domain.Point{X: 0, Y: 20}, Price: 100}
	items := map[string]*domain.Item{item.ID: item}

	a, err := auction.New(client, 100, item.ID, 1, arbiter, 5, 0, testClock(&now))
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}

	depot := domain.Point{X: 0, Y: 0}
	v := New("agent-0", account, 3, 10, depot, depot, items, log.New(io.Discard, "", 0))

	bus := inproc.New(8)
	v.Subscribe(bus)
	if err := bus.Publish("agent-0", inproc.Update{TaskID: item.ID, Auction: a}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Round one: the vehicle learns about the auction and bids. Cost is
	// 40 distance at speed 10, clamped up to the lowest legal bid 26.
	taskID, ok := v.Tick()
	if !ok || taskID != item.ID {
		t.Fatalf("bid on %q (%v), want %s", taskID, ok, item.ID)
	}
	if got := a.CurrentBid(); got != 26 {
		t.Fatalf("bid price = %d, want 26", got)
	}
	if a.Contractor() != account {
		t.Fatalf("vehicle must lead after its bid")
	}

	// Round two: the auction has closed, the win commits the trip and the
	// vehicle starts driving.
	now = 5
	if _, ok := v.Tick(); ok {
		t.Fatalf("no live auctions left, nothing to bid on")
	}
	if got := v.Pos(); got.Y != 10 {
		t.Fatalf("vehicle must be en route, pos = %v", got)
	}

	// Round three: arrive, settle and take the item off the map.
	if _, ok := v.Tick(); ok {
		t.Fatalf("unexpected bid while driving")
	}
	if got := account.Balance(); got != 26 {
		t.Fatalf("pickup must pay the winning bid, balance = %d", got)
	}
	if got := v.Delivered(); got != 4 {
		t.Fatalf("delivered load = %d, want 4", got)
	}
	if _, stillThere := items[item.ID]; stillThere {
		t.Fatalf("picked-up item must leave the catalog")
	}
	if got := a.Escrow(); got != 0 {
		t.Fatalf("escrow after pickup settlement = %d, want 0", got)
	}
}

func TestVehicleDropsOutbidStops(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 1000)
	arbiter := domain.NewAccount("arbiter", 0)
	account := domain.NewAccount("agent-0", 0)
	rival := domain.NewAccount("rival", 0)

	item := &domain.Item{ID: "t1", Size: 2, Pos: domain.Point{X: 0, Y: 20}, Price: 100}
	items := map[string]*domain.Item{item.ID: item}

	a, err := auction.New(client, 100, item.ID, 1, arbiter, 5, 0, testClock(&now))
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}

	depot := domain.Point{X: 0, Y: 0}
	v := New("agent-0", account, 3, 10, depot, depot, items, log.New(io.Discard, "", 0))
	bus := inproc.New(8)
	v.Subscribe(bus)
	if err := bus.Publish("agent-0", inproc.Update{TaskID: item.ID, Auction: a}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, ok := v.Tick(); !ok {
		t.Fatalf("expected a first bid")
	}
	if err := a.Bid(rival, 20); err != nil {
		t.Fatalf("rival bid: %v", err)
	}
	if err := bus.Publish("agent-0", inproc.Update{TaskID: item.ID, Auction: a}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// The next round notices the rival, frees the slot and may bid again.
	if _, ok := v.Tick(); !ok {
		t.Fatalf("outbid vehicle should counter while still profitable")
	}
	if a.Contractor() != account {
		t.Fatalf("counter-bid must retake the lead")
	}
}
