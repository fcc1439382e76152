package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesledger_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mesledger_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesledger_ledger_operations_total",
		Help: "Tool ledger operations by kind and result",
	}, []string{"operation", "result"})

	ledgerUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesledger_ledger_units_total",
		Help: "Tool units moved by the ledger",
	}, []string{"operation"})

	ledgerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mesledger_ledger_duration_seconds",
		Help:    "Duration of tool ledger operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	toolStock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mesledger_tool_quantity_available",
		Help: "Last observed available quantity per tool",
	}, []string{"tool_code"})

	codesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesledger_codes_generated_total",
		Help: "Business codes generated by prefix and lock mode",
	}, []string{"prefix", "lock"})

	lowStockTools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mesledger_low_stock_tools",
		Help: "Active tools at or below their minimum stock",
	})

	overdueIssuances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mesledger_overdue_issuances",
		Help: "Issuances past their expected return date with units outstanding",
	})

	stockScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesledger_stock_scans_total",
		Help: "Stock watcher scans by result",
	}, []string{"result"})

	dashboardClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mesledger_dashboard_clients",
		Help: "Connected live dashboard clients",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLedger records one issue, return or restock attempt.
func ObserveLedger(operation, result string, units int64, duration time.Duration) {
	ledgerOperations.WithLabelValues(operation, result).Inc()
	ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if result == "success" && units > 0 {
		ledgerUnits.WithLabelValues(operation).Add(float64(units))
	}
}

// SetToolStock publishes the latest known availability of a tool.
func SetToolStock(toolCode string, quantity int64) {
	toolStock.WithLabelValues(toolCode).Set(float64(quantity))
}

// ObserveCodeGenerated counts a generated code. lock is "redis" or "local".
func ObserveCodeGenerated(prefix, lock string) {
	codesGenerated.WithLabelValues(prefix, lock).Inc()
}

// ObserveStockScan publishes the outcome of a stock watcher pass.
func ObserveStockScan(result string, lowStock, overdue int) {
	stockScans.WithLabelValues(result).Inc()
	if result == "success" {
		lowStockTools.Set(float64(lowStock))
		overdueIssuances.Set(float64(overdue))
	}
}

// DashboardClientConnected and DashboardClientDisconnected track live
// dashboard subscribers.
func DashboardClientConnected() { dashboardClients.Inc() }

func DashboardClientDisconnected() { dashboardClients.Dec() }
