// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Gateway metrics
	GatewayCacheLookups *prometheus.CounterVec
	GatewaySharedCalls  *prometheus.CounterVec
	BalanceFetchErrors  *prometheus.CounterVec
	DetailFetchErrors   prometheus.Counter
	GroupsDispatched    prometheus.Counter

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Sync metrics
	SyncCyclesTotal  *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	TransfersAdded   prometheus.Counter
	BalancesMerged   prometheus.Counter
	RefreshCoalesced prometheus.Counter

	// Watcher metrics
	WatcherNotifications prometheus.Counter

	// Health metrics
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wallet_tracker"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		GatewayCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "cache_lookups_total",
			Help:      "Gateway response cache lookups by operation and result",
		}, []string{"operation", "result"}),
		GatewaySharedCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "shared_calls_total",
			Help:      "Requests served by an identical in-flight call",
		}, []string{"operation"}),
		BalanceFetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "balance_fetch_errors_total",
			Help:      "Per-account balance fetch failures by error kind",
		}, []string{"kind"}),
		DetailFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "detail_fetch_errors_total",
			Help:      "Transaction detail fetches swallowed after failure",
		}),
		GroupsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "groups_dispatched_total",
			Help:      "Account groups dispatched by batch calls",
		}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Solana RPC call failures by method",
		}, []string{"method"}),

		SyncCyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Refresh cycles by fetch mode and terminal stage",
		}, []string{"mode", "stage"}),
		SyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),
		TransfersAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transfers_added_total",
			Help:      "New classified transfers merged into the cache",
		}),
		BalancesMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "balances_merged_total",
			Help:      "Account balances merged into the cache",
		}),
		RefreshCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "refresh_coalesced_total",
			Help:      "Refresh requests folded into an already queued cycle",
		}),

		WatcherNotifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "notifications_total",
			Help:      "Account activity notifications received over websocket",
		}),

		LastSuccessfulSync: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of the last completed refresh cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordCacheLookup records a gateway cache hit or miss.
func RecordCacheLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.GatewayCacheLookups.WithLabelValues(operation, result).Inc()
}

// RecordSharedCall records a request that joined an in-flight call.
func RecordSharedCall(operation string) {
	DefaultMetrics.GatewaySharedCalls.WithLabelValues(operation).Inc()
}

// RecordBalanceError records a per-account balance failure.
func RecordBalanceError(kind string) {
	DefaultMetrics.BalanceFetchErrors.WithLabelValues(kind).Inc()
}

// RecordDetailError records a swallowed transaction detail failure.
func RecordDetailError() {
	DefaultMetrics.DetailFetchErrors.Inc()
}

// RecordGroupDispatched counts one dispatched account group.
func RecordGroupDispatched() {
	DefaultMetrics.GroupsDispatched.Inc()
}

// RecordRPCCall records RPC call latency and failure.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordSyncCycle records a finished refresh cycle.
func RecordSyncCycle(mode, stage string, durationSeconds float64) {
	DefaultMetrics.SyncCyclesTotal.WithLabelValues(mode, stage).Inc()
	DefaultMetrics.SyncDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordTransfersAdded adds to the merged transfer counter.
func RecordTransfersAdded(n int) {
	DefaultMetrics.TransfersAdded.Add(float64(n))
}

// RecordBalancesMerged adds to the merged balance counter.
func RecordBalancesMerged(n int) {
	DefaultMetrics.BalancesMerged.Add(float64(n))
}

// RecordRefreshCoalesced counts a coalesced refresh request.
func RecordRefreshCoalesced() {
	DefaultMetrics.RefreshCoalesced.Inc()
}

// RecordWatcherNotification counts a websocket activity notification.
func RecordWatcherNotification() {
	DefaultMetrics.WatcherNotifications.Inc()
}

// RecordSyncSuccess stamps the last successful sync time (unix seconds).
func RecordSyncSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulSync.Set(float64(unixSeconds))
}
