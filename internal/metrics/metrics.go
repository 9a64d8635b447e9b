package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skibook_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skibook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skibook_bookings_total",
			Help: "Total number of bookings",
		},
		[]string{"status", "payment_method"},
	)

	BookingCancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skibook_booking_cancellations_total",
			Help: "Total number of booking cancellations",
		},
	)

	SlotConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skibook_slot_conflicts_total",
			Help: "Booking or hold attempts rejected because the slot was taken",
		},
	)

	HoldsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skibook_holds_created_total",
			Help: "Total number of slot holds created for checkouts",
		},
	)

	HoldsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skibook_holds_swept_total",
			Help: "Total number of expired holds released by the sweeper",
		},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skibook_webhooks_total",
			Help: "Payment webhooks by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ReconcileResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skibook_reconcile_results_total",
			Help: "Reconciliation poll results",
		},
		[]string{"result"},
	)

	BonusesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skibook_bonuses_awarded_total",
			Help: "Bonus credits by bonus type",
		},
		[]string{"type"},
	)

	BonusesRevokedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skibook_bonuses_revoked_total",
			Help: "Bonus awards taken back after a booking was cancelled",
		},
		[]string{"type"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skibook_notifications_total",
			Help: "Notifications pushed to the bot queue",
		},
		[]string{"kind", "status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skibook_notification_queue_length",
			Help: "Current length of the notification queue",
		},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skibook_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter",
		},
	)

	WalletTopUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skibook_wallet_topups_total",
			Help: "Total number of wallet top-ups",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(status, paymentMethod string) {
	BookingsTotal.WithLabelValues(status, paymentMethod).Inc()
}

func RecordBookingCancellation() {
	BookingCancellationsTotal.Inc()
}

func RecordSlotConflict() {
	SlotConflictsTotal.Inc()
}

func RecordHoldCreated() {
	HoldsCreatedTotal.Inc()
}

func RecordHoldsSwept(n int) {
	if n > 0 {
		HoldsSweptTotal.Add(float64(n))
	}
}

func RecordWebhook(provider, outcome string) {
	WebhooksTotal.WithLabelValues(provider, outcome).Inc()
}

func RecordReconcile(result string) {
	ReconcileResultsTotal.WithLabelValues(result).Inc()
}

func RecordBonus(bonusType string) {
	BonusesAwardedTotal.WithLabelValues(bonusType).Inc()
}

func RecordBonusRevoked(bonusType string) {
	BonusesRevokedTotal.WithLabelValues(bonusType).Inc()
}

func RecordNotification(kind, status string) {
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}

func RecordWalletTopUp() {
	WalletTopUpsTotal.Inc()
}

func RecordRateLimited() {
	RateLimitedTotal.Inc()
}
