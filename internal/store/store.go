// Package store persists translation tasks, their segments and the
// sensitive-data mappings produced by anonymization.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doctrans/internal/model"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = eris.New("store: not found")

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	Status   model.TaskStatus   `json:"status,omitempty"`
	Stage    model.TaskStage    `json:"stage,omitempty"`
	Type     model.DocumentType `json:"type,omitempty"`
	EditorID string             `json:"editor_id,omitempty"`
	Limit    int                `json:"limit,omitempty"`
	Offset   int                `json:"offset,omitempty"`
}

// TaskCount is the number of tasks in one status/stage combination.
type TaskCount struct {
	Status model.TaskStatus `json:"status"`
	Stage  model.TaskStage  `json:"stage"`
	Count  int              `json:"count"`
}

// TaskRepository stores TranslationTask aggregates.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.TranslationTask) error
	GetTask(ctx context.Context, id string) (*model.TranslationTask, error)
	// SaveTask overwrites the whole row. Last writer wins.
	SaveTask(ctx context.Context, task *model.TranslationTask) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.TranslationTask, error)
	CountTasks(ctx context.Context) ([]TaskCount, error)
}

// SegmentRepository stores segments keyed by task.
type SegmentRepository interface {
	// SaveSegments inserts or replaces segments by id.
	SaveSegments(ctx context.Context, segments []model.Segment) error
	SaveSegment(ctx context.Context, segment model.Segment) error
	// GetSegments returns a task's segments ordered by Order.
	GetSegments(ctx context.Context, taskID string) ([]model.Segment, error)
}

// MappingRepository stores sensitive-data mappings. Mappings are write-once.
type MappingRepository interface {
	SaveMappings(ctx context.Context, mappings []model.SensitiveDataMapping) error
	// GetMappings returns the mappings of every segment of a task.
	GetMappings(ctx context.Context, taskID string) ([]model.SensitiveDataMapping, error)
}

// Store composes the repositories with lifecycle methods.
type Store interface {
	TaskRepository
	SegmentRepository
	MappingRepository

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(filter TaskFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}
