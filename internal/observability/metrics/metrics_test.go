package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddlewareUsesPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tools/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := HTTPMetricsMiddleware(mux)

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/tools/{id}", "418"))
	assert.Equal(t, float64(2), got)
}

func TestObserveLedger(t *testing.T) {
	before := testutil.ToFloat64(ledgerUnits.WithLabelValues("issue"))
	ObserveLedger("issue", "success", 3, time.Millisecond)
	ObserveLedger("issue", "insufficient_stock", 5, time.Millisecond)
	assert.Equal(t, before+3, testutil.ToFloat64(ledgerUnits.WithLabelValues("issue")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ledgerOperations.WithLabelValues("issue", "insufficient_stock")))
}

func TestSetToolStock(t *testing.T) {
	SetToolStock("TOOL-20240101-0001", 4)
	assert.Equal(t, float64(4), testutil.ToFloat64(toolStock.WithLabelValues("TOOL-20240101-0001")))
}

func TestObserveStockScan(t *testing.T) {
	ObserveStockScan("success", 2, 1)
	ObserveStockScan("error", 9, 9)
	assert.Equal(t, float64(2), testutil.ToFloat64(lowStockTools))
	assert.Equal(t, float64(1), testutil.ToFloat64(overdueIssuances))
}
