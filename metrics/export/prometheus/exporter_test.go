package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hackforge/hackauth/internal/metrics"
)

type fakeSource struct {
	snapshot metrics.Snapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() metrics.Snapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64              { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: metrics.New(metrics.Config{}).Snapshot()})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistograms(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: metrics.Snapshot{
			Counters: map[metrics.ID]uint64{
				metrics.LoginSuccess:         7,
				metrics.RefreshReuseDetected: 1,
			},
			Histograms: map[metrics.ID][]uint64{
				metrics.ValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"hackauth_login_success_total 7",
		"hackauth_refresh_reuse_detected_total 1",
		"hackauth_validate_latency_seconds_bucket{le=\"0.005\"} 1",
		"hackauth_validate_latency_seconds_bucket{le=\"+Inf\"} 36",
		"hackauth_validate_latency_seconds_count 36",
		"hackauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hackauth_refresh_latency_seconds") {
		t.Fatal("histograms absent from the snapshot must not be rendered")
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	m := metrics.New(metrics.Config{Enabled: true})
	m.Inc(metrics.Logout)
	exp := NewExporter(fakeSource{snapshot: m.Snapshot()})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "hackauth_logout_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}
