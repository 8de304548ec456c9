package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazz-dev/shipcheck/internal/metrics"
)

func scrape(t *testing.T, r *metrics.Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorder_Exposition(t *testing.T) {
	r := metrics.New()
	r.ObserveCheck("file_structure", "PASS", 5*time.Millisecond)
	r.ObserveCheck("api_endpoints", "FAIL", time.Second)
	r.ObserveCheck("api_endpoints", "FAIL", time.Second)
	r.ObserveRun("FAIL", 2*time.Second, time.Unix(1760000000, 0))
	r.EvidenceFailed("report")

	body := scrape(t, r)

	assert.Contains(t, body, `shipcheck_check_results_total{check="file_structure",status="PASS"} 1`)
	assert.Contains(t, body, `shipcheck_check_results_total{check="api_endpoints",status="FAIL"} 2`)
	assert.Contains(t, body, `shipcheck_runs_total{status="FAIL"} 1`)
	assert.Contains(t, body, `shipcheck_run_duration_seconds_count 1`)
	assert.Contains(t, body, `shipcheck_evidence_write_errors_total{artifact="report"} 1`)
	assert.Contains(t, body, `shipcheck_last_run_timestamp_seconds 1.76e+09`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a, b := metrics.New(), metrics.New()
	a.ObserveRun("PASS", time.Second, time.Now())

	assert.Contains(t, scrape(t, a), `shipcheck_runs_total{status="PASS"} 1`)
	assert.NotContains(t, scrape(t, b), `shipcheck_runs_total{status="PASS"}`)
}
