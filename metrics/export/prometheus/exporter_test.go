package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	stepAuth "github.com/MrEthical07/stepAuth"
)

type fakeSource struct {
	snapshot stepAuth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() stepAuth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: stepAuth.MetricsSnapshot{
			Counters:   map[stepAuth.MetricID]uint64{},
			Histograms: map[stepAuth.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: stepAuth.MetricsSnapshot{
			Counters: map[stepAuth.MetricID]uint64{
				stepAuth.MetricSignInComplete: 7,
			},
			Histograms: map[stepAuth.MetricID][]uint64{
				stepAuth.MetricProviderLatency: {1, 2, 0, 0, 0, 0, 0, 1},
			},
		},
		dropped: 3,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE stepauth_signin_complete_total counter\nstepauth_signin_complete_total 7\n",
		"stepauth_challenge_issued_total 0\n",
		`stepauth_provider_latency_seconds_bucket{le="0.01"} 3`,
		`stepauth_provider_latency_seconds_bucket{le="+Inf"} 4`,
		"stepauth_provider_latency_seconds_count 4\n",
		"stepauth_audit_dropped_total 3\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}

	if exp.Render() != out {
		t.Fatal("expected deterministic output")
	}
}

func TestRenderOmitsHistogramWhenLatencyDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: stepAuth.MetricsSnapshot{
			Counters:   map[stepAuth.MetricID]uint64{stepAuth.MetricSignInStarted: 1},
			Histograms: map[stepAuth.MetricID][]uint64{},
		},
	})
	if strings.Contains(exp.Render(), "stepauth_provider_latency_seconds") {
		t.Fatal("expected no histogram series")
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	engine := newMetricsEngine(t)
	exp := NewExporter(engine)

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain; version=0.0.4") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "stepauth_puzzle_generated_total 1\n") {
		t.Fatalf("expected generated puzzle counter, got:\n%s", rec.Body.String())
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("unexpected escape %q", got)
	}
}
