package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doctrans/internal/config"
	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/store"
)

func TestChecker_CheckSendsAlerts(t *testing.T) {
	t.Parallel()

	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{ErrorThreshold: 2, WebhookURL: ts.URL}
	src := &mockTasks{counts: []store.TaskCount{
		{Status: model.TaskStatusError, Stage: model.StageProcessing, Count: 3},
	}}
	checker := NewChecker(newTestCollector(src, nil), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertErroredTasks, alerts[0].Type)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	t.Parallel()

	cfg := config.MonitoringConfig{ErrorThreshold: 1}
	checker := NewChecker(newTestCollector(&mockTasks{countErr: eris.New("down")}, nil), NewAlerter(cfg), cfg)
	assert.Nil(t, checker.Check(context.Background()))
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := config.MonitoringConfig{IntervalSecs: 1}
	checker := NewChecker(newTestCollector(&mockTasks{}, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	t.Parallel()

	checker := NewChecker(newTestCollector(&mockTasks{}, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	// Zero interval falls back to the default; a canceled context returns at once.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
