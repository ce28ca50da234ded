package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "bookings_blocked_total",
			Help:      "Booking attempts rejected by the trust gate, by reason.",
		},
		[]string{"reason"},
	)

	strikesReported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "strikes_reported_total",
			Help:      "No-show strikes recorded.",
		},
	)

	bansApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "bans_applied_total",
			Help:      "Temporary booking bans applied.",
		},
	)

	promotionsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "promotions_applied_total",
			Help:      "Best-promotion selections by discount type.",
		},
		[]string{"discount_type"},
	)

	batchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "batch_items_total",
			Help:      "Cron batch items by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsBlocked,
			strikesReported,
			bansApplied,
			promotionsApplied,
			batchItems,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncBlocked increments the blocked-booking counter for a reason code.
func IncBlocked(reason string) {
	bookingsBlocked.WithLabelValues(reason).Inc()
}

// IncStrike increments the recorded-strike counter.
func IncStrike() {
	strikesReported.Inc()
}

// IncBan increments the applied-ban counter.
func IncBan() {
	bansApplied.Inc()
}

// IncPromotionApplied increments the promotion counter for a discount type.
func IncPromotionApplied(discountType string) {
	promotionsApplied.WithLabelValues(discountType).Inc()
}

// IncBatchItem increments the batch counter for an outcome label.
func IncBatchItem(outcome string) {
	batchItems.WithLabelValues(outcome).Inc()
}
