package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollectorsAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.CacheHits.Inc()
	a.Truncations.WithLabelValues("cycle").Inc()

	body := scrape(t, a)
	if !strings.Contains(body, "topicgraph_cache_hits_total 1") {
		t.Errorf("hits missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, `topicgraph_truncations_total{reason="cycle"} 1`) {
		t.Errorf("truncations missing from exposition:\n%s", body)
	}
	if strings.Contains(scrape(t, b), "topicgraph_cache_hits_total 1") {
		t.Error("collectors share state")
	}
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	return w.Body.String()
}
