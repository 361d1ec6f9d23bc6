package route

import (
	"math"

	"freight_auction/internal/domain"
)

// Infeasible is the cost of a stop the vehicle cannot carry.
var Infeasible = math.Inf(1)

// Stop is one tentative pickup on a vehicle's route.
type Stop struct {
	TaskID string
	Pos    domain.Point
	Size   int64
}

// Itinerary holds the stops a vehicle has bid for but not yet committed
// to, in visit order, plus the fixed dropoff that bounds the route at
// both ends. Capacity is the vehicle's load budget in area units; a stop
// of size s consumes s*s of it.
type Itinerary struct {
	dropoff  domain.Point
	capacity int64
	speed    float64
	load     int64
	stops    []Stop
}

func NewItinerary(dropoff domain.Point, capacity int64, speed float64) *Itinerary {
	if speed <= 0 {
		speed = 1
	}
	return &Itinerary{dropoff: dropoff, capacity: capacity, speed: speed}
}

// BestSlot finds the insertion position for p that adds the least travel
// distance: dist(p, prev) + dist(p, next) - dist(prev, next), with the
// dropoff standing in for a missing neighbor at either end.
func (it *Itinerary) BestSlot(p domain.Point) (int, float64) {
	bestIdx, bestCost := 0, Infeasible
	for i := 0; i <= len(it.stops); i++ {
		prev := it.dropoff
		if i > 0 {
			prev = it.stops[i-1].Pos
		}
		next := it.dropoff
		if i < len(it.stops) {
			next = it.stops[i].Pos
		}
		added := domain.Dist(p, prev) + domain.Dist(p, next) - domain.Dist(prev, next)
		if added < bestCost {
			bestIdx, bestCost = i, added
		}
	}
	return bestIdx, bestCost
}

// Cost scores adding an item at its cheapest slot, in travel ticks. An
// item that would push the load past capacity costs Infeasible regardless
// of position.
func (it *Itinerary) Cost(p domain.Point, size int64) float64 {
	if it.load+size*size > it.capacity {
		return Infeasible
	}
	_, added := it.BestSlot(p)
	return math.Round(added / it.speed)
}

func (it *Itinerary) Insert(i int, s Stop) {
	if i < 0 {
		i = 0
	}
	if i > len(it.stops) {
		i = len(it.stops)
	}
	it.stops = append(it.stops, Stop{})
	copy(it.stops[i+1:], it.stops[i:])
	it.stops[i] = s
	it.load += s.Size * s.Size
}

func (it *Itinerary) Remove(taskID string) bool {
	for i, s := range it.stops {
		if s.TaskID == taskID {
			it.stops = append(it.stops[:i], it.stops[i+1:]...)
			it.load -= s.Size * s.Size
			return true
		}
	}
	return false
}

// Commit hands the planned stops over for execution and resets the
// itinerary for the next planning round.
func (it *Itinerary) Commit() []Stop {
	stops := it.stops
	it.stops = nil
	it.load = 0
	return stops
}

// Stops returns the planned stops in visit order. The slice is a copy.
func (it *Itinerary) Stops() []Stop {
	out := make([]Stop, len(it.stops))
	copy(out, it.stops)
	return out
}

func (it *Itinerary) Load() int64 {
	return it.load
}

func (it *Itinerary) Dropoff() domain.Point {
	return it.dropoff
}
