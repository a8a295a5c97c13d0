package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_submissions_total",
			Help: "Booking request submissions by result code",
		},
		[]string{"code"},
	)

	offersDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_offers_total",
			Help: "Offers created for submitted booking requests",
		},
	)

	deliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_offer_deliveries_total",
			Help: "Offer events handed to vendor sessions",
		},
	)

	acceptancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_acceptances_total",
			Help: "Acceptance attempts by result code",
		},
		[]string{"code"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_transitions_total",
			Help: "Applied ride status transitions",
		},
		[]string{"from", "to"},
	)

	pendingOffers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_pending_offers",
			Help: "Offers waiting for a vendor",
		},
	)

	offersExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_offers_expired_total",
			Help: "Offers closed because nobody accepted them in time",
		},
	)
)

// MustRegisterMetrics registers the dispatcher collectors with reg.
func MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		submissionsTotal,
		offersDispatched,
		deliveriesTotal,
		acceptancesTotal,
		transitionsTotal,
		pendingOffers,
		offersExpired,
	)
}
