package domain

import (
	"math"
	"sync"
	"time"
)

// Clock returns the current logical time in ticks. All deadline arithmetic
// in the market runs on this clock, never on wall time.
type Clock func() int64

// Account is a market participant: a vehicle agent, the auctioning client
// or the arbiter. Identity is the handle itself; two callers are the same
// participant exactly when they hold the same *Account.
type Account struct {
	ID string

	mu      sync.Mutex
	balance int64
}

func NewAccount(id string, balance int64) *Account {
	return &Account{ID: id, balance: balance}
}

func (a *Account) Balance() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Add applies a signed balance change. Balances may go negative: the
// simulation client funds auctions on credit.
func (a *Account) Add(delta int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance += delta
}

type Point struct {
	X float64
	Y float64
}

func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Item is one transport task: a square parcel of the given size (radius)
// waiting at Pos. Size squared is its load footprint in a vehicle.
type Item struct {
	ID    string `json:"id"`
	Size  int64  `json:"size"`
	Pos   Point  `json:"pos"`
	Price int64  `json:"price"`
}

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventBid       EventKind = "bid"
	EventExtended  EventKind = "extended"
	EventCancelled EventKind = "cancelled"
	EventSettled   EventKind = "settled"
)

// TaskEvent is one journaled auction mutation.
type TaskEvent struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	Kind      EventKind `json:"kind"`
	Actor     string    `json:"actor"`
	Price     int64     `json:"price"`
	Deadline  int64     `json:"deadline"`
	Tick      int64     `json:"tick"`
	CreatedAt time.Time `json:"created_at"`
}

// Settlement is the journaled outcome of a confirmed auction.
type Settlement struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	Contractor string    `json:"contractor"`
	Pay        int64     `json:"pay"`
	Refund     int64     `json:"refund"`
	Tick       int64     `json:"tick"`
	CreatedAt  time.Time `json:"created_at"`
}
