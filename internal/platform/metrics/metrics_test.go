package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(body)
}

func TestMetrics_Observe(t *testing.T) {
	m := New()
	m.ObserveRequest("POST", "/auth/login", 401, 20*time.Millisecond)
	m.ObserveRequest("POST", "/auth/login", 401, 30*time.Millisecond)
	m.ObserveAdmission("auth", "denied")
	m.ObserveRotation("reused")
	m.AddSwept(3)
	m.AddSwept(-1)
	m.IncAuditMirrorError()

	out := scrape(t, m)
	for _, want := range []string{
		`opsgate_http_requests_total{method="POST",route="/auth/login",status="401"} 2`,
		`opsgate_admission_decisions_total{class="auth",outcome="denied"} 1`,
		`opsgate_refresh_rotations_total{outcome="reused"} 1`,
		`opsgate_refresh_records_swept_total 3`,
		`opsgate_audit_mirror_errors_total 1`,
		`opsgate_http_request_duration_seconds_count{method="POST",route="/auth/login"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/healthz", 200, time.Millisecond)
	m.ObserveAdmission("general", "allowed")
	m.ObserveRotation("rotated")
	m.AddSwept(1)
	m.IncAuditMirrorError()
}

func TestMetrics_RuntimeCollectors(t *testing.T) {
	if !strings.Contains(scrape(t, New()), "go_goroutines") {
		t.Error("Go runtime collector should be registered")
	}
}
