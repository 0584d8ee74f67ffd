package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestMiddlewareLabelsRoutePattern records the chi route pattern rather than
// the raw path, so tracker IDs do not explode the route label.
func TestMiddlewareLabelsRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/trackers/{tracker_id}/contributors", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/trackers/"+id+"/contributors", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	require.Equal(t, before+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")))
	require.True(t, httpRequestDurationSeconds.DeleteLabelValues(http.MethodGet, "/v1/trackers/{tracker_id}/contributors"))
	require.False(t, httpRequestDurationSeconds.DeleteLabelValues(http.MethodGet, "/v1/trackers/a/contributors"))
}

// TestMiddlewareWithoutRouterUsesUnknownRoute falls back to "unknown" when no
// chi routing context is present and defaults the status to 200.
func TestMiddlewareWithoutRouterUsesUnknownRoute(t *testing.T) {
	Init()
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPatch, "200"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/anything", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPatch, "200")))
	require.True(t, httpRequestDurationSeconds.DeleteLabelValues(http.MethodPatch, "unknown"))
}
