package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/citemetric/scholarcrawl/internal/progress"
)

func testRouter(tracker *Tracker, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, tracker.Snapshot())
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func TestStatusEndpoints(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{Stage: progress.StageProfileStart, UserID: "u1"},
		{Stage: progress.StageProfileDone, UserID: "u1"},
	}))

	srv := httptest.NewServer(testRouter(tracker, prometheus.NewRegistry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	statusResp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer statusResp.Body.Close()
	require.Equal(t, "application/json", statusResp.Header.Get("Content-Type"))

	var snap Snapshot
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&snap))
	require.Equal(t, 1, snap.ProfilesStarted)
	require.Equal(t, 1, snap.ProfilesSucceeded)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestServerShutdown(t *testing.T) {
	t.Parallel()

	srv := NewServer("127.0.0.1:0", NewTracker(), prometheus.NewRegistry(), nil)
	srv.Start()
	require.NoError(t, srv.Shutdown(context.Background()))
}
