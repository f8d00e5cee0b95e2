package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCallCounts(t *testing.T) {
	before := testutil.ToFloat64(rpcCalls.WithLabelValues("getBudgets", OutcomeOK))
	ObserveCall("getBudgets", OutcomeOK, 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(rpcCalls.WithLabelValues("getBudgets", OutcomeOK)))
}

func TestStatusLabels(t *testing.T) {
	EventPublished("transaction.sync", nil)
	EventPublished("transaction.sync", errors.New("down"))
	assert.GreaterOrEqual(t, testutil.ToFloat64(eventsPublished.WithLabelValues("transaction.sync", "error")), 1.0)

	CacheLookup("sessions", true)
	CacheLookup("sessions", false)
	assert.GreaterOrEqual(t, testutil.ToFloat64(cacheLookups.WithLabelValues("sessions", "miss")), 1.0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveHTTP("GET", 200, time.Millisecond)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "budgetshare_http_request_duration_seconds"))
}
