package auction

import (
	"errors"
	"fmt"
	"sync"

	"freight_auction/internal/domain"
)

var (
	// ErrBidRejected covers every violated bid precondition: closed
	// auction, price outside the legal interval, forbidden caller.
	ErrBidRejected = errors.New("bid rejected")
	// ErrUnauthorized means the caller holds none of the roles the
	// operation requires.
	ErrUnauthorized = errors.New("caller not authorized")
	// ErrNotReady means the operation needs the deadline to have passed
	// (confirm) or not passed (extend of a claimed auction).
	ErrNotReady = errors.New("auction still open")
	// ErrAlreadySettled guards settlement idempotence: escrow is zeroed
	// exactly once.
	ErrAlreadySettled = errors.New("auction already settled")
)

// Auction sells one transport task to the lowest qualifying bidder. It
// owns the escrowed balance and every transition rule; all mutation is
// serialized on the internal mutex so concurrent bids are applied one at
// a time against the just-updated price.
type Auction struct {
	mu sync.Mutex

	description   string
	payMultiplier int64
	escrow        int64
	currentBid    int64
	contractor    *domain.Account // nil while unclaimed
	client        *domain.Account
	arbiter       *domain.Account
	deadline      int64
	rebidWindow   int64
	clock         domain.Clock

	settled       bool
	settledPay    int64
	settledRefund int64
}

// Snapshot is the consistent read view broadcast to bid optimizers. Open
// is evaluated against the auction's clock at snapshot time.
type Snapshot struct {
	Description   string
	PayMultiplier int64
	Escrow        int64
	CurrentBid    int64
	CurrentPay    int64
	Contractor    *domain.Account
	Deadline      int64
	Open          bool
	Settled       bool
	SettledPay    int64
	SettledRefund int64
}

// New escrows deposit from the client and opens bidding at
// deposit/(payMultiplier+1). The arbiter may force settlement later but
// may never bid.
func New(client *domain.Account, deposit int64, description string, payMultiplier int64, arbiter *domain.Account, duration, rebidWindow int64, clock domain.Clock) (*Auction, error) {
	if deposit <= 0 {
		return nil, fmt.Errorf("auction deposit must be positive, got %d", deposit)
	}
	if payMultiplier <= 0 {
		return nil, fmt.Errorf("pay multiplier must be positive, got %d", payMultiplier)
	}
	if client == nil || arbiter == nil {
		return nil, fmt.Errorf("auction requires client and arbiter accounts")
	}
	client.Add(-deposit)
	return &Auction{
		description:   description,
		payMultiplier: payMultiplier,
		escrow:        deposit,
		currentBid:    deposit / (payMultiplier + 1),
		client:        client,
		arbiter:       arbiter,
		deadline:      clock() + duration,
		rebidWindow:   rebidWindow,
		clock:         clock,
	}, nil
}

// Bid replaces the current leader with caller at price. Each accepted bid
// must land in [currentBid/2, currentBid*0.99): at most a 50% undercut,
// strictly more than a 1% improvement. The arbiter and the standing
// contractor may not bid. A late bid pushes the deadline out by the rebid
// window so every accepted bid gets a reaction window.
func (a *Auction) Bid(caller *domain.Account, price int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock()
	if a.settled || now >= a.deadline {
		return fmt.Errorf("%w: auction is closed", ErrBidRejected)
	}
	if price*2 < a.currentBid {
		return fmt.Errorf("%w: price %d undercuts %d by more than half", ErrBidRejected, price, a.currentBid)
	}
	if price*100 >= a.currentBid*99 {
		return fmt.Errorf("%w: price %d improves on %d by less than 1%%", ErrBidRejected, price, a.currentBid)
	}
	if caller == a.arbiter {
		return fmt.Errorf("%w: arbiter may not bid", ErrBidRejected)
	}
	if caller == a.contractor {
		return fmt.Errorf("%w: contractor may not re-bid against itself", ErrBidRejected)
	}
	a.currentBid = price
	a.contractor = caller
	if d := now + a.rebidWindow; d > a.deadline {
		a.deadline = d
	}
	return nil
}

// Extend tops up the escrow and pushes the deadline out. Client only.
// While unclaimed the opening price is recomputed from the new balance; a
// claimed auction can only be extended while still open (once the
// deadline passes with a contractor, settlement is the only way forward).
func (a *Auction) Extend(caller *domain.Account, topup, extension int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.client {
		return 0, fmt.Errorf("%w: only the client may extend", ErrUnauthorized)
	}
	if a.settled {
		return 0, ErrAlreadySettled
	}
	if topup < 0 || extension < 0 {
		return 0, fmt.Errorf("%w: top-up and extension must be non-negative", ErrUnauthorized)
	}
	if a.contractor != nil && a.clock() >= a.deadline {
		return 0, fmt.Errorf("%w: claimed auction is awaiting settlement", ErrNotReady)
	}
	a.client.Add(-topup)
	a.escrow += topup
	if a.contractor == nil {
		a.currentBid = a.escrow / (a.payMultiplier + 1)
	}
	a.deadline += extension
	return a.deadline, nil
}

// Confirm settles the auction once the deadline has passed: the
// contractor receives currentBid*payMultiplier, the client the remainder,
// and the escrow is zeroed. Unclaimed auctions refund the client in full.
// Only the client, the contractor or the arbiter may settle; the fulfilled
// flag is the caller's assessment and is recorded by the journal, not by
// the escrow split. A second call fails with ErrAlreadySettled.
func (a *Auction) Confirm(caller *domain.Account, fulfilled bool) error {
	_ = fulfilled
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clock() < a.deadline {
		return fmt.Errorf("%w: cannot settle before the deadline", ErrNotReady)
	}
	if caller != a.client && caller != a.arbiter && (a.contractor == nil || caller != a.contractor) {
		return fmt.Errorf("%w: settlement requires client, contractor or arbiter", ErrUnauthorized)
	}
	if a.settled {
		return ErrAlreadySettled
	}
	a.settle(a.currentPay())
	return nil
}

// Cancel withdraws a participant. A contractor cancel resets the auction
// to unclaimed with the opening price recomputed from escrow. A client
// cancel settles immediately: the contractor is compensated with the
// standing bid price while the auction is open, or paid in full once it
// has closed claimed.
func (a *Auction) Cancel(caller *domain.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return ErrAlreadySettled
	}
	switch {
	case a.contractor != nil && caller == a.contractor:
		a.contractor = nil
		a.currentBid = a.escrow / (a.payMultiplier + 1)
		return nil
	case caller == a.client:
		pay := int64(0)
		if a.contractor != nil {
			pay = a.currentBid
			if a.clock() >= a.deadline {
				pay = a.currentPay()
			}
		}
		a.settle(pay)
		return nil
	default:
		return fmt.Errorf("%w: only the client or the contractor may cancel", ErrUnauthorized)
	}
}

func (a *Auction) settle(pay int64) {
	if a.contractor != nil {
		a.contractor.Add(pay)
	} else {
		pay = 0
	}
	refund := a.escrow - pay
	a.client.Add(refund)
	a.escrow = 0
	a.settled = true
	a.settledPay = pay
	a.settledRefund = refund
}

func (a *Auction) AcceptingBids() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.settled && a.clock() < a.deadline
}

func (a *Auction) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Description:   a.description,
		PayMultiplier: a.payMultiplier,
		Escrow:        a.escrow,
		CurrentBid:    a.currentBid,
		CurrentPay:    a.currentPay(),
		Contractor:    a.contractor,
		Deadline:      a.deadline,
		Open:          !a.settled && a.clock() < a.deadline,
		Settled:       a.settled,
		SettledPay:    a.settledPay,
		SettledRefund: a.settledRefund,
	}
}

func (a *Auction) currentPay() int64 {
	return a.currentBid * a.payMultiplier
}

func (a *Auction) Description() string {
	return a.description
}

func (a *Auction) PayMultiplier() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payMultiplier
}

func (a *Auction) CurrentBid() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentBid
}

func (a *Auction) CurrentPay() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentPay()
}

// Contractor returns the current leader, or nil while unclaimed.
func (a *Auction) Contractor() *domain.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.contractor
}

func (a *Auction) Client() *domain.Account {
	return a.client
}

func (a *Auction) Deadline() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deadline
}

func (a *Auction) Escrow() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.escrow
}

func (a *Auction) Settled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settled
}
