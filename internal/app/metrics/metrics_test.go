package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ai-subtitler/internal/app/errors"
	"ai-subtitler/internal/app/model"
)

func TestMetrics_Queue(t *testing.T) {
	m := New()

	m.ObserveDepth(3)
	m.ObserveRunning(2)
	m.ObserveExecution(2*time.Second, nil)
	m.ObserveExecution(time.Second, errors.New("boom"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.running))
	assert.Equal(t, 2, testutil.CollectAndCount(m.executions))
}

func TestMetrics_Pipeline(t *testing.T) {
	m := New()

	m.ObserveStage("extract", 300*time.Millisecond)
	m.ObserveOutcome(model.StatusCompleted, "")
	m.ObserveOutcome(model.StatusFailed, apperrors.KindExtractionFailed)
	m.ObserveOutcome(model.StatusFailed, apperrors.KindExtractionFailed)
	m.ObserveOutcome(model.StatusFailed, "")

	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("completed", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("failed", "ExtractionFailed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("failed", "Unknown")))
}

func TestMetrics_Providers(t *testing.T) {
	m := New()

	m.RecordSuccess("openai", 1500, 12)
	m.RecordFailure("deepgram", "rate_limit")
	m.RecordFailure("deepgram", "rate_limit")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("openai", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("deepgram", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerErrors.WithLabelValues("deepgram", "rate_limit")))
}

func TestMetrics_Maintenance(t *testing.T) {
	m := New()
	m.ObserveSweep(4)
	m.ObserveReaped(1)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.swept))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reaped))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDepth(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subtitler_queue_depth 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
