// Package queue runs pipeline stage jobs asynchronously, either in-process
// or as Temporal workflows.
package queue

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doctrans/internal/model"
)

// Kind names the pipeline stage a job runs.
type Kind string

const (
	KindProcess     Kind = "process"
	KindTranslate   Kind = "translate"
	KindReconstruct Kind = "reconstruct"
)

// Job is one unit of stage work for one task.
type Job struct {
	TaskID   string             `json:"task_id"`
	TaskType model.DocumentType `json:"task_type"`
	Kind     Kind               `json:"kind"`
}

// Key identifies the job. At most one job per key is in flight.
func (j Job) Key() string {
	return "task-" + j.TaskID + "-" + string(j.Kind)
}

// ErrDuplicateJob is returned when a job with the same key is already
// queued or running.
var ErrDuplicateJob = eris.New("queue: job already in flight")

// Handler executes a job. Errors wrapped with resilience.NewPermanentError
// are not retried.
type Handler func(ctx context.Context, job Job) error

// Queue accepts jobs for asynchronous execution.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}
