package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	holdsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_holds_created_total",
			Help: "Holds successfully placed, per court",
		},
		[]string{"court_id"},
	)

	holdConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_hold_conflicts_total",
			Help: "Hold attempts rejected by conflict detection, per court",
		},
		[]string{"court_id"},
	)

	bookingsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_confirmed_total",
			Help: "Holds promoted to confirmed bookings, per court",
		},
		[]string{"court_id"},
	)

	intentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_intents_created_total",
			Help: "Payment intents created",
		},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_settlements_total",
			Help: "Settlement attempts by result",
		},
		[]string{"result"},
	)

	sweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_sweep_reaped_total",
			Help: "Rows moved to a terminal state by the expiry sweeps",
		},
		[]string{"sweep"},
	)

	liveHolds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booking_live_holds",
			Help: "Live holds currently mirrored in redis",
		},
	)
)

func TrackHoldCreated(courtID string) {
	holdsCreated.WithLabelValues(courtID).Inc()
}

func TrackHoldConflict(courtID string) {
	holdConflicts.WithLabelValues(courtID).Inc()
}

func TrackBookingConfirmed(courtID string) {
	bookingsConfirmed.WithLabelValues(courtID).Inc()
}

func TrackIntentCreated() {
	intentsCreated.Inc()
}

// TrackSettlement records a settlement attempt. Results: success,
// failure, expired, reference_gone.
func TrackSettlement(result string) {
	settlements.WithLabelValues(result).Inc()
}

func TrackSweep(sweep string) {
	sweeps.WithLabelValues(sweep).Inc()
}

// Monitor samples the redis hold mirror so dashboards can show live
// hold pressure without touching the database.
type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}
	if redisClient != nil {
		go monitor.collectMetrics()
	}
	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		keys, err := m.redis.Keys(ctx, "hold:*").Result()
		if err != nil {
			continue
		}
		liveHolds.Set(float64(len(keys)))
	}
}
