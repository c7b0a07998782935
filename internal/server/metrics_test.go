package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/askdocs-go/internal/apperr"
	"github.com/54b3r/askdocs-go/internal/chat"
)

// newMetricsTestServer builds a routed Server backed by a fresh isolated
// registry so tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T, bot chatBot) (*Server, http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, h := newRoutedServer(t, bot, &Config{MetricsRegistry: reg, MetricsGatherer: reg})
	return s, h, reg
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, h, _ := newMetricsTestServer(t, newFakeBot("answer", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("want 200, got %d", w.Code)
	}
	ct := w.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_ChatOutcomeCounted(t *testing.T) {
	t.Parallel()

	okServer, okH, _ := newMetricsTestServer(t, newFakeBot("answer", nil))
	postChat(okH, `{"message":"q"}`, "")
	postChat(okH, `{"message":"q"}`, "")

	if got := testutil.ToFloat64(okServer.metrics.chatRequestsTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("want ok=2, got %v", got)
	}
	if got := testutil.ToFloat64(okServer.metrics.chatInFlight); got != 0 {
		t.Errorf("want in_flight=0 after requests complete, got %v", got)
	}

	failServer, failHandler, _ := newMetricsTestServer(t, newFakeBot("", apperr.ErrSynthesisFailure))
	postChat(failHandler, `{"message":"q"}`, "")

	if got := testutil.ToFloat64(failServer.metrics.chatRequestsTotal.WithLabelValues("synthesis")); got != 1 {
		t.Errorf("want synthesis=1, got %v", got)
	}
}

func Test_Metrics_HTTPRequestsByPattern(t *testing.T) {
	t.Parallel()
	s, h, _ := newMetricsTestServer(t, newFakeBot("answer", nil))

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("GET", "GET /api/health", "200")); got != 3 {
		t.Errorf("want 3 health requests, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("want 1 unmatched 404, got %v", got)
	}
}

func Test_Metrics_ObserveStage(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	var observer chat.StageObserver = m
	observer.ObserveStage(chat.StageRetrieve, 20*time.Millisecond, nil)
	observer.ObserveStage(chat.StageSynthesize, time.Second, errors.New("boom"))

	if n := testutil.CollectAndCount(m.stageDurationSeconds); n != 2 {
		t.Errorf("want 2 stage series, got %d", n)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "askdocs_pipeline_stage_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["stage"] == chat.StageSynthesize && labels["outcome"] == "internal" {
				found = true
				if c := metric.GetHistogram().GetSampleCount(); c != 1 {
					t.Errorf("want 1 sample, got %d", c)
				}
			}
		}
	}
	if !found {
		t.Error(`askdocs_pipeline_stage_duration_seconds{stage="synthesize",outcome="internal"} not found`)
	}
}
