// Package metrics exposes the market's Prometheus metrics:
//   - auction_items_spawned_total          – items put up for auction
//   - auction_bids_total{result}           – bids by outcome (accepted|rejected)
//   - auction_extensions_total             – deadline bumps of unclaimed auctions
//   - auction_settlements_total            – auctions settled and paid out
//   - auctions_live                        – auctions currently in the registry
//
// Registered in init() and served by the HTTP handler the simulator
// starts at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	itemsSpawned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_items_spawned_total",
			Help: "Items put up for auction",
		},
	)

	bids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Bids by outcome",
		},
		[]string{"result"}, // accepted|rejected
	)

	extensions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_extensions_total",
			Help: "Deadline extensions of expired unclaimed auctions",
		},
	)

	settlements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_settlements_total",
			Help: "Auctions settled and paid out",
		},
	)

	liveAuctions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auctions_live",
			Help: "Auctions currently in the registry",
		},
	)
)

func init() {
	prometheus.MustRegister(itemsSpawned, bids, extensions, settlements, liveAuctions)
}

func ItemSpawned() { itemsSpawned.Inc() }

func BidAccepted() { bids.WithLabelValues("accepted").Inc() }

func BidRejected() { bids.WithLabelValues("rejected").Inc() }

func AuctionExtended() { extensions.Inc() }

func AuctionSettled() { settlements.Inc() }

func SetLiveAuctions(n int) { liveAuctions.Set(float64(n)) }
