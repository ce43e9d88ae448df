package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordSubmission(t *testing.T) {
	m := New()
	m.RecordSubmission("demo", 5*time.Millisecond)
	m.RecordSubmission("demo", 5*time.Millisecond)
	m.RecordSubmission("transport_failure", time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("demo")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("transport_failure")))
}

func TestRecordSubmission_NilReceiver(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() { m.RecordSubmission("demo", time.Millisecond) })
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordSubmission("live_success", 10*time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.True(t, strings.Contains(body, `ragex_submissions_total{outcome="live_success"} 1`), body)
	require.Contains(t, body, "ragex_dispatch_duration_seconds_bucket")
}
