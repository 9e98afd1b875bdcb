// Package metrics exposes prometheus counters for orders and notifications.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Order results.
const (
	OrderCreated            = "created"
	OrderInvalidPlan        = "invalid_plan"
	OrderAmountMismatch     = "amount_mismatch"
	OrderGatewayUnavailable = "gateway_unavailable"
	OrderLedgerFailed       = "ledger_failed"
	OrderRateLimited        = "rate_limited"
)

// Notification results.
const (
	NotificationApplied            = "applied"
	NotificationDuplicate          = "duplicate"
	NotificationIgnored            = "ignored"
	NotificationInvalidSignature   = "invalid_signature"
	NotificationMalformed          = "malformed"
	NotificationUnknownTransaction = "unknown_transaction"
	NotificationStorageConflict    = "storage_conflict"
	NotificationError              = "error"
	NotificationAttemptFailed      = "attempt_failed"
	NotificationSettledConflict    = "settled_conflict"
)

// Metrics holds the service collectors.
type Metrics struct {
	orders          *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	conflictRetries prometheus.Counter
	orphanedIntents prometheus.Counter
	stalePending    prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered on the default registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New constructs and registers collectors. A nil registerer skips registration.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "creditledger_orders_total",
			Help: "Order creation attempts by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "creditledger_notifications_total",
			Help: "Payment notifications by processing result.",
		}, []string{"result"}),
		conflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_storage_conflict_retries_total",
			Help: "Reconciliation attempts retried after a storage conflict.",
		}),
		orphanedIntents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_orphaned_intents_total",
			Help: "Gateway orders created without a matching ledger entry.",
		}),
		stalePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditledger_stale_pending_transactions",
			Help: "Pending transactions older than the audit threshold.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.orders, m.notifications, m.conflictRetries, m.orphanedIntents, m.stalePending)
	}
	return m
}

// ObserveOrder counts an order creation attempt.
func (m *Metrics) ObserveOrder(result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(result).Inc()
}

// ObserveNotification counts a processed notification.
func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// ObserveConflictRetry counts a storage conflict retry.
func (m *Metrics) ObserveConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

// ObserveOrphanedIntent counts a gateway order left without a ledger entry.
func (m *Metrics) ObserveOrphanedIntent() {
	if m == nil {
		return
	}
	m.orphanedIntents.Inc()
}

// SetStalePending records the current stale pending transaction count.
func (m *Metrics) SetStalePending(count int64) {
	if m == nil {
		return
	}
	m.stalePending.Set(float64(count))
}
