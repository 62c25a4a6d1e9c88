package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stoyanka",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stoyanka",
			Name:      "reservation_transitions_total",
			Help:      "Reservation status transitions by resulting status.",
		},
		[]string{"status"},
	)

	spotReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stoyanka",
			Name:      "spot_reservations_total",
			Help:      "Ledger reserve outcomes (ok / out_of_stock).",
		},
		[]string{"outcome"},
	)

	otpVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stoyanka",
			Name:      "otp_verifications_total",
			Help:      "OTP verification outcomes by phase.",
		},
		[]string{"phase", "outcome"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stoyanka",
			Name:      "events_published_total",
			Help:      "Events pushed to the broadcast bus by family.",
		},
		[]string{"family"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationTransitions,
			spotReservations,
			otpVerifications,
			eventsPublished,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncTransition increments the transition counter for the resulting status.
func IncTransition(status string) {
	reservationTransitions.WithLabelValues(status).Inc()
}

// IncReserve records a ledger reserve outcome.
func IncReserve(outcome string) {
	spotReservations.WithLabelValues(outcome).Inc()
}

// IncOtp records an OTP verification outcome.
func IncOtp(phase, outcome string) {
	otpVerifications.WithLabelValues(phase, outcome).Inc()
}

// IncEvent records a published event family.
func IncEvent(family string) {
	eventsPublished.WithLabelValues(family).Inc()
}
