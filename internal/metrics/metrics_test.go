package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinationEvaluated(t *testing.T) {
	r := NewRegistry()

	r.CombinationEvaluated(1000)
	r.CombinationEvaluated(500)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.CombinationsEvaluated))
	assert.Equal(t, 1500.0, testutil.ToFloat64(r.Trials))
}

func TestAPIRequest(t *testing.T) {
	r := NewRegistry()

	r.APIRequest("TIME_SERIES_DAILY", "ok")
	r.APIRequest("TIME_SERIES_DAILY", "ok")
	r.APIRequest("TIME_SERIES_DAILY", "rate_limited")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.AlphaVantageRequests.WithLabelValues("TIME_SERIES_DAILY", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AlphaVantageRequests.WithLabelValues("TIME_SERIES_DAILY", "rate_limited")))
}

func TestRunLifecycle(t *testing.T) {
	r := NewRegistry()

	r.RunStarted()
	r.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ActiveRuns))

	r.RunFinished("completed", 3*time.Second, 2.75)
	r.RunFinished("failed", time.Second, 99)

	assert.Equal(t, 0.0, testutil.ToFloat64(r.ActiveRuns))
	assert.Equal(t, 2.75, testutil.ToFloat64(r.BestSharpe))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("failed")))
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.CombinationEvaluated(10)

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sharpescan_combinations_evaluated_total 1")
	assert.Contains(t, string(body), "sharpescan_trials_total 10")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.CombinationEvaluated(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CombinationsEvaluated))
}
