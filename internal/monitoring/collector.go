package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/resilience"
	"github.com/sells-group/doctrans/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	TasksTotal     int            `json:"tasks_total"`
	ByStatus       map[string]int `json:"by_status"`
	ByStage        map[string]int `json:"by_stage"`
	InProgress     int            `json:"in_progress"`
	Completed      int            `json:"completed"`
	Errored        int            `json:"errored"`
	AwaitingEditor int            `json:"awaiting_editor"`

	// Stuck lists tasks sitting in an automated stage longer than the
	// configured window.
	Stuck []string `json:"stuck,omitempty"`

	// OpenBreakers names outbound services whose circuit is not closed.
	OpenBreakers []string `json:"open_breakers,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// TaskSource abstracts the store methods needed by the collector.
type TaskSource interface {
	CountTasks(ctx context.Context) ([]store.TaskCount, error)
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]model.TranslationTask, error)
}

// automatedStages are stages a task only leaves through queue work.
var automatedStages = map[model.TaskStage]bool{
	model.StageQueuedForProcessing: true,
	model.StageProcessing:          true,
	model.StageQueuedForMT:         true,
	model.StageMachineTranslating:  true,
}

// Collector gathers metrics from the store and circuit breakers.
type Collector struct {
	tasks      TaskSource
	breakers   *resilience.Breakers
	stuckAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(tasks TaskSource, breakers *resilience.Breakers, stuckAfter time.Duration) *Collector {
	return &Collector{tasks: tasks, breakers: breakers, stuckAfter: stuckAfter, now: time.Now}
}

// Collect gathers a snapshot of task metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		ByStatus:    make(map[string]int),
		ByStage:     make(map[string]int),
		CollectedAt: now,
	}

	counts, err := c.tasks.CountTasks(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count tasks")
	}
	for _, tc := range counts {
		snap.TasksTotal += tc.Count
		snap.ByStatus[string(tc.Status)] += tc.Count
		snap.ByStage[string(tc.Stage)] += tc.Count
		switch tc.Status {
		case model.TaskStatusInProgress:
			snap.InProgress += tc.Count
			if tc.Stage == model.StageQueuedForEditing {
				snap.AwaitingEditor += tc.Count
			}
		case model.TaskStatusCompleted:
			snap.Completed += tc.Count
		case model.TaskStatusError:
			snap.Errored += tc.Count
		}
	}

	if c.stuckAfter > 0 {
		cutoff := now.Add(-c.stuckAfter)
		for _, status := range []model.TaskStatus{model.TaskStatusNew, model.TaskStatusInProgress} {
			tasks, err := c.tasks.ListTasks(ctx, store.TaskFilter{Status: status, Limit: 1000})
			if err != nil {
				return nil, eris.Wrap(err, "monitoring: list active tasks")
			}
			for _, t := range tasks {
				if automatedStages[t.Stage] && t.UpdatedAt.Before(cutoff) {
					snap.Stuck = append(snap.Stuck, t.ID)
				}
			}
		}
		sort.Strings(snap.Stuck)
	}

	if c.breakers != nil {
		for name, state := range c.breakers.States() {
			if state != resilience.StateClosed {
				snap.OpenBreakers = append(snap.OpenBreakers, name)
			}
		}
		sort.Strings(snap.OpenBreakers)
	}

	return snap, nil
}
