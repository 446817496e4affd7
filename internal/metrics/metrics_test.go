package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/transcript-qa/internal/services"
)

func TestObservePipelineEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())

	var hook services.Hook = m
	hook.Observe(services.Event{Stage: services.StageLoadDone, Count: 1, Duration: time.Second})
	hook.Observe(services.Event{Stage: services.StageEmbedDone, Count: 12, Duration: 2 * time.Second})
	hook.Observe(services.Event{Stage: services.StageQueryStart})
	hook.Observe(services.Event{Stage: services.StageRetrieveDone, Count: 4, Duration: time.Millisecond})
	hook.Observe(services.Event{Stage: services.StageStreamChunk, Fragment: "a"})
	hook.Observe(services.Event{Stage: services.StageStreamChunk, Fragment: "b"})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DocumentsLoaded))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.SegmentsIndexed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueriesTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AnswerFragments))
	assert.Equal(t, 3, testutil.CollectAndCount(m.StageDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RetrievedSegments))
}

func TestObserveStageErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Observe(services.Event{Stage: services.StageEmbedDone, Count: 5, Err: errors.New("timeout")})
	m.Observe(services.Event{Stage: services.StageEmbedDone, Err: errors.New("timeout")})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.StageErrorsTotal.WithLabelValues("embed_done")))
	// 失败的阶段不计入成功计数
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SegmentsIndexed))
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveHTTP(http.MethodPost, "/api/ask", http.StatusOK, 150*time.Millisecond)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tqa_http_requests_total{method="POST",path="/api/ask",status="200"} 1`)
	assert.Contains(t, string(body), "tqa_http_request_duration_seconds_bucket")
}
