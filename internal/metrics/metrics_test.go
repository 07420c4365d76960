package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.ObserveAPIEndpointDuration("chunk", http.MethodPost, 200, 15*time.Millisecond)
	m.ObserveAPIEndpointDuration("chunk", http.MethodPost, 500, time.Millisecond)
	m.ObserveRecognition("ocrmypdf", "timeout", time.Minute)
	m.ObserveStage("render", 3*time.Millisecond)
	m.ObserveDocument("completed", "heuristic", "header", 4, 1, 2)
	m.SetQueueDepth(3)

	out := scrape(t, m)
	assert.Contains(t, out, `docstruct_http_requests_total 2`)
	assert.Contains(t, out, `docstruct_http_errors_total 1`)
	assert.Contains(t, out, `docstruct_recognition_calls_total{engine="ocrmypdf",outcome="timeout"} 1`)
	assert.Contains(t, out, `docstruct_pipeline_documents_total{outcome="completed",rules="heuristic"} 1`)
	assert.Contains(t, out, `docstruct_pipeline_chunks_total{mode="header"} 4`)
	assert.Contains(t, out, `docstruct_pipeline_tables_removed_total 1`)
	assert.Contains(t, out, `docstruct_pipeline_warnings_total 2`)
	assert.Contains(t, out, `docstruct_pipeline_queue_depth 3`)
	assert.Contains(t, out, `docstruct_pipeline_stage_seconds_count{stage="render"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAPIEndpointDuration("x", "GET", 200, time.Second)
		m.ObserveRecognition("noop", "error", 0)
		m.ObserveStage("chunk", 0)
		m.ObserveDocument("failed", "", "", 0, 0, 0)
		m.SetQueueDepth(1)
	})
}
