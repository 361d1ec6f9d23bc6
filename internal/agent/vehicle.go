package agent

import (
	"log"

	"freight_auction/internal/auction"
	"freight_auction/internal/bidder"
	"freight_auction/internal/domain"
	"freight_auction/internal/messaging/inproc"
	"freight_auction/internal/route"
)

// Vehicle is one autonomous transport agent: an account, a planned
// itinerary and a bid optimizer. The orchestrator drives it once per tick
// through Tick; the vehicle itself never mutates auctions except through
// the optimizer's bid and its own settlement on pickup.
//
// The item catalog is the orchestrator's map, shared read/write under the
// single-threaded tick model: a vehicle removes an item when it picks it
// up.
type Vehicle struct {
	id      string
	account *domain.Account
	size    int64
	speed   float64
	pos     domain.Point
	dropoff domain.Point
	items   map[string]*domain.Item

	pending *route.Itinerary
	trip    []route.Stop
	won     map[string]*auction.Auction
	opt     *bidder.Optimizer

	updates <-chan inproc.Update
	logger  *log.Logger

	carried   int64
	delivered int64
}

func New(id string, account *domain.Account, size int64, speed float64, pos, dropoff domain.Point, items map[string]*domain.Item, logger *log.Logger) *Vehicle {
	if logger == nil {
		logger = log.Default()
	}
	v := &Vehicle{
		id:      id,
		account: account,
		size:    size,
		speed:   speed,
		pos:     pos,
		dropoff: dropoff,
		items:   items,
		pending: route.NewItinerary(dropoff, size*size, speed),
		won:     make(map[string]*auction.Auction),
		logger:  logger,
	}
	v.opt = bidder.New(account, v.insertionCost)
	return v
}

// Subscribe attaches the vehicle to the orchestrator's update bus.
func (v *Vehicle) Subscribe(bus *inproc.Bus) {
	v.updates = bus.Register(v.id)
}

// insertionCost is the vehicle's cost model: the cheapest-insertion
// distance for the auctioned item over the pending itinerary, in travel
// ticks. Unknown items and items that would exceed capacity are
// infeasible.
func (v *Vehicle) insertionCost(a *auction.Auction, participating map[string]*auction.Auction) float64 {
	item, ok := v.items[a.Description()]
	if !ok {
		return route.Infeasible
	}
	return v.pending.Cost(item.Pos, item.Size)
}

// Tick runs one decision round: drain notifications, reconcile closed
// auctions, drop outbid stops, commit a trip once every pending auction
// is won, advance along the route, then bid on at most one auction.
// Returns the task id bid on, if any.
func (v *Vehicle) Tick() (string, bool) {
	v.drainUpdates()

	for _, a := range v.opt.ReconcileClosed() {
		v.won[a.Description()] = a
	}

	// Outbid auctions leave the itinerary and release their load.
	participating := v.opt.Participating()
	for _, s := range v.pending.Stops() {
		if _, leading := participating[s.TaskID]; leading {
			continue
		}
		if _, isWon := v.won[s.TaskID]; isWon {
			continue
		}
		v.pending.Remove(s.TaskID)
	}

	// Commit the trip once idle and every planned stop has been won.
	if len(v.trip) == 0 {
		stops := v.pending.Stops()
		if len(stops) > 0 && len(v.won) == len(stops) {
			v.trip = v.pending.Commit()
		}
	}

	v.advance()

	taskID, ok := v.opt.SelectAndBid(true)
	if ok {
		if item, found := v.items[taskID]; found {
			slot, _ := v.pending.BestSlot(item.Pos)
			v.pending.Insert(slot, route.Stop{TaskID: taskID, Pos: item.Pos, Size: item.Size})
		}
	}
	return taskID, ok
}

func (v *Vehicle) drainUpdates() {
	if v.updates == nil {
		return
	}
	for {
		select {
		case u, ok := <-v.updates:
			if !ok {
				v.updates = nil
				return
			}
			v.opt.OnAuctionUpdate(u.TaskID, u.Auction)
		default:
			return
		}
	}
}

func (v *Vehicle) advance() {
	if len(v.trip) == 0 {
		// Head home and unload.
		if domain.Dist(v.pos, v.dropoff) < float64(v.size) {
			v.carried = 0
			return
		}
		v.pos = stepToward(v.pos, v.dropoff, v.speed)
		return
	}

	stop := v.trip[0]
	item, ok := v.items[stop.TaskID]
	if !ok {
		v.trip = v.trip[1:]
		delete(v.won, stop.TaskID)
		return
	}
	v.pos = stepToward(v.pos, item.Pos, v.speed)
	if domain.Dist(v.pos, item.Pos) >= float64(v.size+item.Size) {
		return
	}

	// Pickup: settle the won auction and take the item off the map.
	if a := v.won[stop.TaskID]; a != nil {
		if err := a.Confirm(v.account, true); err != nil {
			v.logger.Printf("agent %s settle %s failed: %v", v.id, stop.TaskID, err)
		}
		delete(v.won, stop.TaskID)
	}
	v.carried += item.Size * item.Size
	v.delivered += item.Size * item.Size
	delete(v.items, stop.TaskID)
	v.trip = v.trip[1:]
}

func stepToward(from, to domain.Point, speed float64) domain.Point {
	d := domain.Dist(from, to)
	if d == 0 || d <= speed {
		return to
	}
	return domain.Point{
		X: from.X + (to.X-from.X)*speed/d,
		Y: from.Y + (to.Y-from.Y)*speed/d,
	}
}

func (v *Vehicle) ID() string { return v.id }

func (v *Vehicle) Size() int64 { return v.size }

func (v *Vehicle) Account() *domain.Account { return v.account }

func (v *Vehicle) Pos() domain.Point { return v.pos }

// Delivered is the total load picked up over the vehicle's lifetime, in
// area units.
func (v *Vehicle) Delivered() int64 { return v.delivered }

// Optimizer exposes the decision engine, primarily for tests and
// diagnostics.
func (v *Vehicle) Optimizer() *bidder.Optimizer { return v.opt }
