package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/doctrans/internal/resilience"
)

// TemporalConfig configures the Temporal-backed queue.
type TemporalConfig struct {
	TaskQueue          string
	ActivityTimeout    time.Duration
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int32
}

// WorkflowInput is the argument of TaskJobWorkflow.
type WorkflowInput struct {
	Job                Job           `json:"job"`
	ActivityTimeout    time.Duration `json:"activity_timeout"`
	InitialInterval    time.Duration `json:"initial_interval"`
	BackoffCoefficient float64       `json:"backoff_coefficient"`
	MaximumInterval    time.Duration `json:"maximum_interval"`
	MaximumAttempts    int32         `json:"maximum_attempts"`
}

// Temporal enqueues each job as a TaskJobWorkflow execution whose id is the
// job key, so a second start for the same task and stage is rejected while
// the first is running.
type Temporal struct {
	client client.Client
	cfg    TemporalConfig
}

// NewTemporal creates a Temporal queue on c.
func NewTemporal(c client.Client, cfg TemporalConfig) *Temporal {
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = "doctrans"
	}
	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = 10 * time.Minute
	}
	return &Temporal{client: c, cfg: cfg}
}

// Enqueue implements Queue.
func (q *Temporal) Enqueue(ctx context.Context, job Job) error {
	opts := client.StartWorkflowOptions{
		ID:        job.Key(),
		TaskQueue: q.cfg.TaskQueue,
	}
	in := WorkflowInput{
		Job:                job,
		ActivityTimeout:    q.cfg.ActivityTimeout,
		InitialInterval:    q.cfg.InitialInterval,
		BackoffCoefficient: q.cfg.BackoffCoefficient,
		MaximumInterval:    q.cfg.MaximumInterval,
		MaximumAttempts:    q.cfg.MaximumAttempts,
	}
	_, err := q.client.ExecuteWorkflow(ctx, opts, TaskJobWorkflow, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return eris.Wrapf(ErrDuplicateJob, "queue: %s", job.Key())
		}
		return eris.Wrapf(err, "queue: start workflow %s", job.Key())
	}
	return nil
}

// TaskJobWorkflow runs one job as a retried activity.
func TaskJobWorkflow(ctx workflow.Context, in WorkflowInput) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: in.ActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    in.InitialInterval,
			BackoffCoefficient: in.BackoffCoefficient,
			MaximumInterval:    in.MaximumInterval,
			MaximumAttempts:    in.MaximumAttempts,
		},
	})

	var a *JobActivities
	err := workflow.ExecuteActivity(ctx, a.RunJob, in.Job).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("job failed permanently",
			"task_id", in.Job.TaskID,
			"kind", string(in.Job.Kind),
			"error", err,
		)
	}
	return err
}

// JobActivities exposes the job handler as a Temporal activity.
type JobActivities struct {
	Handler Handler
}

// RunJob runs the handler. Permanent errors are reported as non-retryable.
func (a *JobActivities) RunJob(ctx context.Context, job Job) error {
	err := a.Handler(ctx, job)
	if err != nil && resilience.IsPermanent(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "permanent", err)
	}
	return err
}

// NewTemporalWorker builds a worker that runs TaskJobWorkflow and RunJob on
// taskQueue. The caller starts and stops it.
func NewTemporalWorker(c client.Client, taskQueue string, handler Handler) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(TaskJobWorkflow)
	w.RegisterActivity(&JobActivities{Handler: handler})
	return w
}
