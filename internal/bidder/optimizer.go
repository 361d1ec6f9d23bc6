package bidder

import (
	"freight_auction/internal/auction"
	"freight_auction/internal/domain"
	"freight_auction/internal/metrics"
)

// CostFunc scores the marginal cost of servicing an auction given the
// auctions the agent already leads. math.Inf(1) (or route.Infeasible)
// marks a task the agent cannot take; that is a valid result, not an
// error.
type CostFunc func(a *auction.Auction, participating map[string]*auction.Auction) float64

// Optimizer is one agent's per-round decision engine. It tracks every
// live auction it has been notified about, caches utilities, and each
// round enters at most one auction at a second-best price.
//
// The optimizer is driven from a single goroutine per agent (the tick
// loop); it holds no lock of its own. Auction handles it reads and bids
// against serialize internally.
type Optimizer struct {
	self *domain.Account
	cost CostFunc

	live          map[string]*auction.Auction
	participating map[string]*auction.Auction
	utilities     map[string]float64
	order         []string            // arrival order, for first-seen tie-breaks
	closed        map[string]struct{} // ids that may never resurrect
}

func New(self *domain.Account, cost CostFunc) *Optimizer {
	return &Optimizer{
		self:          self,
		cost:          cost,
		live:          make(map[string]*auction.Auction),
		participating: make(map[string]*auction.Auction),
		utilities:     make(map[string]float64),
		closed:        make(map[string]struct{}),
	}
}

// Utility is the agent-specific net value of winning: the auction's
// current pay minus the marginal cost of servicing it.
func (o *Optimizer) Utility(a *auction.Auction) float64 {
	return float64(a.CurrentPay()) - o.cost(a, o.participating)
}

// ReconcileClosed removes every auction that is no longer accepting bids
// and reports the ones this agent won. Closed ids are collected first and
// removed in a second phase, and can never re-enter via a late
// notification.
func (o *Optimizer) ReconcileClosed() []*auction.Auction {
	var won []*auction.Auction
	var closed []string
	for _, id := range o.order {
		a, ok := o.live[id]
		if !ok {
			continue
		}
		if a.AcceptingBids() {
			continue
		}
		if a.Contractor() == o.self {
			won = append(won, a)
		}
		closed = append(closed, id)
	}
	for _, id := range closed {
		delete(o.live, id)
		delete(o.utilities, id)
		delete(o.participating, id)
		o.closed[id] = struct{}{}
	}
	if len(closed) > 0 {
		kept := o.order[:0]
		for _, id := range o.order {
			if _, ok := o.live[id]; ok {
				kept = append(kept, id)
			}
		}
		o.order = kept
	}
	return won
}

// SelectAndBid picks the highest-utility auction the agent is not already
// leading and bids just enough to stay preferred over its second-best
// alternative: break-even cost plus the second-best utility, scaled to
// bid-price units and clamped into the legal interval. At most one bid is
// submitted per round; a rejected bid (the price moved concurrently)
// yields no selection and is not retried within the round.
func (o *Optimizer) SelectAndBid(recompute bool) (string, bool) {
	best, second := "", ""
	bestU, secondU := 0.0, 0.0
	for _, id := range o.order {
		a, ok := o.live[id]
		if !ok {
			continue
		}
		if _, leading := o.participating[id]; leading {
			continue
		}
		if recompute {
			o.utilities[id] = o.Utility(a)
		}
		u := o.utilities[id]
		if u <= 0 {
			continue
		}
		switch {
		case best == "" || u > bestU:
			second, secondU = best, bestU
			best, bestU = id, u
		case second == "" || u > secondU:
			second, secondU = id, u
		}
	}
	if best == "" {
		return "", false
	}

	target := o.live[best]
	snap := target.Snapshot()
	breakEven := float64(snap.CurrentPay) - bestU
	price := breakEven
	if second != "" {
		price += secondU
	}
	bid := int64(price) / snap.PayMultiplier
	if hi := snap.CurrentBid*99/100 - 1; bid > hi {
		bid = hi
	}
	if lo := snap.CurrentBid/2 + 1; bid < lo {
		bid = lo
	}
	if err := target.Bid(o.self, bid); err != nil {
		// TODO: classify the rejection. A stale snapshot (price moved
		// concurrently) should stay silent, a policy violation should
		// surface to the caller. Both skip the round for now.
		metrics.BidRejected()
		return "", false
	}
	metrics.BidAccepted()
	o.participating[best] = target
	return best, true
}

// OnAuctionUpdate records the latest state of an auction on any event
// touching it (creation, bid, extension, cancellation, confirmation). If
// this agent was leading and the update shows another contractor, the
// agent has been outbid and drops out of participating. The utility is
// recomputed unconditionally.
func (o *Optimizer) OnAuctionUpdate(taskID string, a *auction.Auction) {
	if _, done := o.closed[taskID]; done {
		return
	}
	if _, leading := o.participating[taskID]; leading && a.Contractor() != o.self {
		delete(o.participating, taskID)
	}
	if _, seen := o.live[taskID]; !seen {
		o.order = append(o.order, taskID)
	}
	o.live[taskID] = a
	o.utilities[taskID] = o.Utility(a)
}

// Participating returns the auctions this agent currently leads, keyed by
// task id. The map is the optimizer's own; callers must not mutate it.
func (o *Optimizer) Participating() map[string]*auction.Auction {
	return o.participating
}

// Live reports how many auctions the optimizer is tracking.
func (o *Optimizer) Live() int {
	return len(o.live)
}
