package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAccumulate(t *testing.T) {
	m := New()

	m.ResponsesTotal.WithLabelValues("ai").Inc()
	m.ResponsesTotal.WithLabelValues("ai").Inc()
	m.ResponsesTotal.WithLabelValues("fallback").Inc()
	m.AdmissionDenied.WithLabelValues("hourly").Inc()
	m.LLMTokensTotal.Add(150)

	require.Equal(t, 2.0, testutil.ToFloat64(m.ResponsesTotal.WithLabelValues("ai")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ResponsesTotal.WithLabelValues("fallback")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionDenied.WithLabelValues("hourly")))
	require.Equal(t, 150.0, testutil.ToFloat64(m.LLMTokensTotal))
}

func TestMetrics_HandlerServesExposition(t *testing.T) {
	m := New()
	m.ResponsesTotal.WithLabelValues("rules").Inc()
	m.LLMRequestSeconds.WithLabelValues("openrouter", "success").Observe(0.42)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, recorder.Code)
	body := recorder.Body.String()
	require.Contains(t, body, "replytheory_responses_total")
	require.Contains(t, body, "replytheory_llm_request_seconds_bucket")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.SendFailuresTotal.Inc()

	require.Equal(t, 1.0, testutil.ToFloat64(a.SendFailuresTotal))
	require.Equal(t, 0.0, testutil.ToFloat64(b.SendFailuresTotal))
}
