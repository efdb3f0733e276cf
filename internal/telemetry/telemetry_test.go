package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/probe/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe/7", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestObserveLookupAndCache(t *testing.T) {
	before := testutil.ToFloat64(estimateLookupsTotal.WithLabelValues("timeout"))
	ObserveLookup("timeout", 3*time.Second)
	ObserveLookup("timeout", 0)
	require.Equal(t, before+2, testutil.ToFloat64(estimateLookupsTotal.WithLabelValues("timeout")))

	hits := testutil.ToFloat64(estimateCacheRequestsTotal.WithLabelValues("hit"))
	ObserveCache("hit")
	require.Equal(t, hits+1, testutil.ToFloat64(estimateCacheRequestsTotal.WithLabelValues("hit")))
}

func TestBrowserSessionGauge(t *testing.T) {
	start := testutil.ToFloat64(estimateBrowserSessionsActive)
	IncBrowserSessions()
	require.Equal(t, start+1, testutil.ToFloat64(estimateBrowserSessionsActive))
	DecBrowserSessions()
	require.Equal(t, start, testutil.ToFloat64(estimateBrowserSessionsActive))
}

func TestInitTracerProvider(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "graded-card-estimator",
		SampleRatio: 1,
	})
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(context.Background()))
}
