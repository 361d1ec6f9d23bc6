package bidder

import (
	"math"
	"testing"

	"freight_auction/internal/auction"
	"freight_auction/internal/domain"
)

func testClock(now *int64) domain.Clock {
	return func() int64 { return *now }
}

func mapCost(costs map[string]float64) CostFunc {
	return func(a *auction.Auction, _ map[string]*auction.Auction) float64 {
		c, ok := costs[a.Description()]
		if !ok {
			return math.Inf(1)
		}
		return c
	}
}

func newAuction(t *testing.T, client, arbiter *domain.Account, id string, deposit, payMultiplier int64, now *int64) *auction.Auction {
	t.Helper()
	a, err := auction.New(client, deposit, id, payMultiplier, arbiter, 100, 0, testClock(now))
	if err != nil {
		t.Fatalf("create auction %s: %v", id, err)
	}
	return a
}

func TestSelectAndBidSecondBestPricing(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 10000)
	arbiter := domain.NewAccount("arbiter", 0)
	self := domain.NewAccount("agent", 0)

	// Best: pay 100, cost 60 -> utility 40. Second: pay 50, cost 40 ->
	// utility 10. The winning bid cedes only the switching surplus:
	// (100 - 40 + 10) / 1 = 70.
	a1 := newAuction(t, client, arbiter, "t1", 200, 1, &now)
	a2 := newAuction(t, client, arbiter, "t2", 100, 1, &now)

	o := New(self, mapCost(map[string]float64{"t1": 60, "t2": 40}))
	o.OnAuctionUpdate("t1", a1)
	o.OnAuctionUpdate("t2", a2)

	taskID, ok := o.SelectAndBid(true)
	if !ok || taskID != "t1" {
		t.Fatalf("selected %q (%v), want t1", taskID, ok)
	}
	if got := a1.CurrentBid(); got != 70 {
		t.Fatalf("bid price = %d, want 70", got)
	}
	if a1.Contractor() != self {
		t.Fatalf("agent must lead the auction it bid on")
	}
	if _, leading := o.Participating()["t1"]; !leading {
		t.Fatalf("selected auction must be recorded as participating")
	}
}

func TestSelectAndBidGreedyWithoutSecondBest(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 10000)
	arbiter := domain.NewAccount("arbiter", 0)
	self := domain.NewAccount("agent", 0)

	a1 := newAuction(t, client, arbiter, "t1", 200, 1, &now)
	o := New(self, mapCost(map[string]float64{"t1": 60}))
	o.OnAuctionUpdate("t1", a1)

	if _, ok := o.SelectAndBid(true); !ok {
		t.Fatalf("expected a bid")
	}
	// Full-surplus bid at break-even: 100 - 40 = 60.
	if got := a1.CurrentBid(); got != 60 {
		t.Fatalf("bid price = %d, want 60", got)
	}
}

func TestSelectAndBidClampsIntoLegalInterval(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 10000)
	arbiter := domain.NewAccount("arbiter", 0)
	self := domain.NewAccount("agent", 0)

	// Zero cost drives the raw target to 0; the clamp lifts it to the
	// lowest legal bid, currentBid/2 + 1 = 51.
	a1 := newAuction(t, client, arbiter, "t1", 200, 1, &now)
	o := New(self, mapCost(map[string]float64{"t1": 0}))
	o.OnAuctionUpdate("t1", a1)

	if _, ok := o.SelectAndBid(true); !ok {
		t.Fatalf("expected a bid")
	}
	if got := a1.CurrentBid(); got != 51 {
		t.Fatalf("clamped bid = %d, want 51", got)
	}
}

func TestSelectAndBidSkipsInfeasibleAndParticipating(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 10000)
	arbiter := domain.NewAccount("arbiter", 0)
	self := domain.NewAccount("agent", 0)

	a1 := newAuction(t, client, arbiter, "t1", 200, 1, &now)
	a2 := newAuction(t, client, arbiter, "t2", 200, 1, &now)

	// t1 is infeasible (no cost entry -> +Inf), t2 is profitable.
	o := New(self, mapCost(map[string]float64{"t2": 10}))
	o.OnAuctionUpdate("t1", a1)
	o.OnAuctionUpdate("t2", a2)

	taskID, ok := o.SelectAndBid(true)
	if !ok || taskID != "t2" {
		t.Fatalf("selected %q (%v), want t2", taskID, ok)
	}
	// Already leading t2 and t1 still infeasible: nothing to do.
	if taskID, ok := o.SelectAndBid(true); ok {
		t.Fatalf("second round selected %q, want no selection", taskID)
	}
}

func TestSelectAndBidFirstSeenWinsTies(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 10000)
	arbiter := domain.NewAccount("arbiter", 0)
	self := domain.NewAccount("agent", 0)

	a1 := newAuction(t, client, arbiter, "t1", 200, 1, &now)
	a2 := newAuction(t, client, arbiter, "t2", 200, 1, &now)

	o := New(self, mapCost(map[string]float64{"t1": 60, "t2": 60}))
	o.OnAuctionUpdate("t1", a1)
	o.OnAuctionUpdate("t2", a2)

	taskID, ok := o.SelectAndBid(true)
	if !ok || taskID != "t1" {
		t.Fatalf("selected %q (%v), want the first-seen t1", taskID, ok)
	}
}

func TestSelectAndBidRejectionSkipsRound(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 10000)
	arbiter := domain.NewAccount("arbiter", 0)
	self := domain.NewAccount("agent", 0)

	// deposit 3, multiplier 2 -> opening bid 1. The legal interval
	// collapses: no integer improves on 1 by more than 1% without
	// undercutting by half.
	a1 := newAuction(t, client, arbiter, "t1", 3, 2, &now)
	o := New(self, mapCost(map[string]float64{"t1": 0}))
	o.OnAuctionUpdate("t1", a1)

	if taskID, ok := o.SelectAndBid(true); ok {
		t.Fatalf("selected %q, want rejected round", taskID)
	}
	if len(o.Participating()) != 0 {
		t.Fatalf("rejected bid must not record participation")
	}
	if a1.Contractor() != nil {
		t.Fatalf("rejected bid must not claim the auction")
	}
}

func TestOnAuctionUpdateOutbidRemoval(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 10000)
	arbiter := domain.NewAccount("arbiter", 0)
	self := domain.NewAccount("agent", 0)
	rival := domain.NewAccount("rival", 0)

	a1 := newAuction(t, client, arbiter, "t1", 200, 1, &now)
	o := New(self, mapCost(map[string]float64{"t1": 60}))
	o.OnAuctionUpdate("t1", a1)
	if _, ok := o.SelectAndBid(true); !ok {
		t.Fatalf("expected a bid")
	}

	if err := a1.Bid(rival, 40); err != nil {
		t.Fatalf("rival bid: %v", err)
	}
	o.OnAuctionUpdate("t1", a1)
	if _, leading := o.Participating()["t1"]; leading {
		t.Fatalf("outbid agent must leave participating on the next notification")
	}
	if o.Live() != 1 {
		t.Fatalf("outbid auction must stay live, live = %d", o.Live())
	}
}

func TestReconcileClosedReportsWinsAndForgets(t *testing.T) {
	now := int64(0)
	client := domain.NewAccount("client", 10000)
	arbiter := domain.NewAccount("arbiter", 0)
	self := domain.NewAccount("agent", 0)

	a1 := newAuction(t, client, arbiter, "t1", 200, 1, &now)
	o := New(self, mapCost(map[string]float64{"t1": 60}))
	o.OnAuctionUpdate("t1", a1)
	if _, ok := o.SelectAndBid(true); !ok {
		t.Fatalf("expected a bid")
	}

	if won := o.ReconcileClosed(); len(won) != 0 {
		t.Fatalf("open auction must not be reported won")
	}

	now = 100
	won := o.ReconcileClosed()
	if len(won) != 1 || won[0] != a1 {
		t.Fatalf("closed led auction must be reported won, got %v", won)
	}
	if o.Live() != 0 || len(o.Participating()) != 0 {
		t.Fatalf("closed auction must leave both maps")
	}

	// A late notification must not resurrect the task.
	o.OnAuctionUpdate("t1", a1)
	if o.Live() != 0 {
		t.Fatalf("closed task id must never resurrect")
	}
}
