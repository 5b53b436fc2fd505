package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mocacore/pkg/domain"
)

type recordedObservation struct {
	op      string
	success bool
}

type captureMetrics struct {
	mu  sync.Mutex
	obs []recordedObservation
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, recordedObservation{op: op, success: success})
}

func TestServiceReportsOperationsToCollaborators(t *testing.T) {
	metrics := &captureMetrics{}
	var traces bytes.Buffer
	tracer := NewJSONTracer(&traces)
	obsCore, logs := observer.New(zapcore.DebugLevel)
	svc := newTestService(t, WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(zap.New(obsCore)))

	reg := register(t, svc, "obs@example.com", 16)
	_, err := svc.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	record(t, svc, reg, "naming", 2)

	require.Len(t, metrics.obs, 3)
	assert.Equal(t, recordedObservation{op: "create_user", success: true}, metrics.obs[0])
	assert.Equal(t, recordedObservation{op: "get_session", success: false}, metrics.obs[1])
	assert.Equal(t, "record_section_result", metrics.obs[2].op)

	entries := tracer.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "error", entries[1].Status)
	assert.Contains(t, entries[1].Error, "not found")

	lines := strings.Split(strings.TrimSpace(traces.String()), "\n")
	require.Len(t, lines, 3)
	var decoded JSONTraceEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "create_user", decoded.Operation)

	assert.Equal(t, 1, logs.FilterMessage("operation rejected").Len())
	recorded := logs.FilterMessage("section result recorded").All()
	require.Len(t, recorded, 1)
	assert.Equal(t, "naming", recorded[0].ContextMap()["section"])
}

func TestRunMapsDeadlineToTransient(t *testing.T) {
	svc := newTestService(t, WithStorageTimeout(time.Millisecond))
	err := svc.run(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("gave up")
	})
	assert.ErrorIs(t, err, domain.ErrTransient)

	err = svc.run(context.Background(), "fast", func(context.Context) error { return domain.ErrInvalidInput })
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NotErrorIs(t, err, domain.ErrTransient)
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	rec := NewPrometheusMetricsRecorder()
	ctx := context.Background()
	rec.Observe(ctx, "create_user", true, 3*time.Millisecond)
	rec.Observe(ctx, "create_user", false, time.Millisecond)
	rec.Observe(ctx, "create_user", true, 2*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.operations.WithLabelValues("create_user", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("create_user", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.latency))

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mocacore_service_operations_total{operation="create_user",status="success"} 2`)
	assert.Contains(t, string(body), "mocacore_service_operation_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
	assert.NotNil(t, rec.Registry())
}

func TestJSONTracerRetention(t *testing.T) {
	tracer := NewJSONTracer(nil)
	tracer.limit = 2
	for _, op := range []string{"a", "b", "c"} {
		_, span := tracer.Start(context.Background(), op)
		span.End(nil)
		span.End(errors.New("ignored second end"))
	}
	entries := tracer.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Operation)
	assert.Equal(t, "c", entries[1].Operation)
	assert.Equal(t, "success", entries[1].Status)
}
