package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(EventRegister)
	m.Inc(EventRegister)
	m.Inc(DropTargetGone)

	ts := httptest.NewServer(PrometheusHandler(m))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := string(body)

	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(out, `beacon_signaling_events_total{event="register"} 2`) {
		t.Fatalf("missing register counter in output:\n%s", out)
	}
	if !strings.Contains(out, `beacon_signaling_events_total{event="drop_target_gone"} 1`) {
		t.Fatalf("missing drop counter in output:\n%s", out)
	}
}

func TestPrometheusHandlerNilMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsSnapshotIsCopy(t *testing.T) {
	m := New()
	m.Inc("a")
	snap := m.Snapshot()
	snap["a"] = 99
	if got := m.Get("a"); got != 1 {
		t.Fatalf("snapshot mutation leaked into registry: %d", got)
	}
}
