package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheEventCounts(t *testing.T) {
	m := New()
	m.CacheEvent("metadata", "hit")
	m.CacheEvent("metadata", "hit")
	m.CacheEvent("metadata", "miss")

	if got := testutil.ToFloat64(m.cacheEvents.WithLabelValues("metadata", "hit")); got != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheEvents.WithLabelValues("metadata", "miss")); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
}

func TestObserveUpstreamOutcome(t *testing.T) {
	m := New()
	m.ObserveUpstream("links", time.Now(), nil)
	m.ObserveUpstream("links", time.Now(), errors.New("boom"))

	if got := testutil.ToFloat64(m.upstreamRequests.WithLabelValues("links", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CacheEvent("links", "hit")
	m.ObserveUpstream("links", time.Now(), nil)
	m.Response("redirect")
	if m.Handler() == nil {
		t.Fatalf("nil metrics should still return a handler")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Response("stream")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/-/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `zfile_responses_total{mode="stream"} 1`) {
		t.Fatalf("expected responses counter in exposition, got:\n%s", body)
	}
}
