// Package pipeline drives translation tasks through parsing, anonymization,
// machine translation, editing and reconstruction. Stage work runs as queue
// jobs; each stage ends in a state transition whose event decides what is
// enqueued next.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doctrans/internal/anonymize"
	"github.com/sells-group/doctrans/internal/format"
	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/mt"
	"github.com/sells-group/doctrans/internal/queue"
	"github.com/sells-group/doctrans/internal/resilience"
	"github.com/sells-group/doctrans/internal/store"
)

// ErrInvalidInput is returned when a task request is missing required fields.
var ErrInvalidInput = eris.New("pipeline: invalid input")

// Anonymizer replaces sensitive values in segments with placeholder tokens.
// *anonymize.Merger satisfies it.
type Anonymizer interface {
	Merge(ctx context.Context, segments []model.Segment, language string) (*anonymize.Result, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source used for transitions.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithEventSink sets where transition events are published.
func WithEventSink(sink EventSink) Option {
	return func(p *Pipeline) { p.events = sink }
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// Pipeline orchestrates the stages of a translation task.
type Pipeline struct {
	store      store.Store
	queue      queue.Queue
	formats    *format.Registry
	anonymizer Anonymizer
	translator mt.Client
	events     EventSink
	now        func() time.Time
	newID      func() string
}

// New creates a Pipeline. A nil anonymizer disables anonymization; segments
// are then translated from their source text.
func New(st store.Store, q queue.Queue, formats *format.Registry, anon Anonymizer, translator mt.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      st,
		queue:      q,
		formats:    formats,
		anonymizer: anon,
		translator: translator,
		events:     LogSink{},
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewTaskInput is the request to create a task.
type NewTaskInput struct {
	Type                   model.DocumentType `json:"type"`
	Content                string             `json:"content"`
	SourceLanguage         string             `json:"source_language"`
	TargetLanguage         string             `json:"target_language"`
	LanguagePairID         string             `json:"language_pair_id"`
	MachineTranslationOnly bool               `json:"machine_translation_only"`
}

func (in NewTaskInput) validate() error {
	switch {
	case !in.Type.Valid():
		return eris.Wrapf(ErrInvalidInput, "unsupported document type %q", in.Type)
	case strings.TrimSpace(in.Content) == "":
		return eris.Wrap(ErrInvalidInput, "content is required")
	case in.SourceLanguage == "" || in.TargetLanguage == "":
		return eris.Wrap(ErrInvalidInput, "source and target language are required")
	}
	return nil
}

// CreateTask persists a new task and enqueues its processing job.
func (p *Pipeline) CreateTask(ctx context.Context, in NewTaskInput) (*model.TranslationTask, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	pairID := in.LanguagePairID
	if pairID == "" {
		pairID = in.SourceLanguage + "-" + in.TargetLanguage
	}

	task, ev := model.NewTask(p.newID(), in.Type, in.Content, in.SourceLanguage, in.TargetLanguage, pairID, p.clock())
	task.MachineTranslationOnly = in.MachineTranslationOnly
	if err := p.store.CreateTask(ctx, &task); err != nil {
		return nil, eris.Wrap(err, "pipeline: create task")
	}
	p.publish(ctx, ev)

	if err := p.enqueue(ctx, task, queue.KindProcess); err != nil {
		p.fail(ctx, task.ID, err)
		return nil, err
	}
	return &task, nil
}

// HandleJob runs one queued stage job. It is the queue.Handler for both the
// local and Temporal queues.
func (p *Pipeline) HandleJob(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindProcess:
		return p.Process(ctx, job.TaskID)
	case queue.KindTranslate:
		return p.Translate(ctx, job.TaskID)
	case queue.KindReconstruct:
		return p.Finalize(ctx, job.TaskID)
	default:
		return resilience.NewPermanentError(eris.Errorf("pipeline: unknown job kind %q", job.Kind))
	}
}

// Task returns a task by id.
func (p *Pipeline) Task(ctx context.Context, id string) (*model.TranslationTask, error) {
	return p.store.GetTask(ctx, id)
}

// Segments returns a task's segments in document order.
func (p *Pipeline) Segments(ctx context.Context, taskID string) ([]model.Segment, error) {
	if _, err := p.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return p.store.GetSegments(ctx, taskID)
}

func (p *Pipeline) clock() time.Time {
	return p.now().UTC()
}

func (p *Pipeline) publish(ctx context.Context, ev model.Event) {
	p.events.Publish(ctx, ev)
}

// commit saves a transitioned task and publishes its event.
func (p *Pipeline) commit(ctx context.Context, task model.TranslationTask, ev model.Event) error {
	if err := p.store.SaveTask(ctx, &task); err != nil {
		return eris.Wrapf(err, "pipeline: save task %s", task.ID)
	}
	p.publish(ctx, ev)
	return nil
}

func (p *Pipeline) enqueue(ctx context.Context, task model.TranslationTask, kind queue.Kind) error {
	err := p.queue.Enqueue(ctx, queue.Job{TaskID: task.ID, TaskType: task.Type, Kind: kind})
	if eris.Is(err, queue.ErrDuplicateJob) {
		zap.L().Debug("pipeline: job already in flight",
			zap.String("task_id", task.ID),
			zap.String("kind", string(kind)),
		)
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "pipeline: enqueue %s", kind)
	}
	return nil
}

// fail records a stage failure on the latest stored copy of the task.
// Tasks that were canceled or finished meanwhile are left alone.
func (p *Pipeline) fail(ctx context.Context, taskID string, cause error) {
	log := zap.L().With(zap.String("task_id", taskID))
	cur, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		log.Warn("pipeline: load task to record error", zap.Error(err))
		return
	}
	if cur.Status.Terminal() {
		return
	}
	failed, ev, err := cur.HandleProcessingError(cause.Error(), p.clock())
	if err != nil {
		log.Warn("pipeline: cannot record processing error", zap.Error(err))
		return
	}
	if err := p.commit(ctx, failed, ev); err != nil {
		log.Warn("pipeline: persist processing error", zap.Error(err))
	}
}

// superseded reports whether a stage's results should be dropped because
// the task left the in-progress state while the stage was running.
func (p *Pipeline) superseded(ctx context.Context, taskID string, stage model.TaskStage) (bool, error) {
	cur, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return false, eris.Wrap(err, "pipeline: reload task")
	}
	if cur.Status != model.TaskStatusInProgress || cur.Stage != stage {
		zap.L().Info("pipeline: task changed during stage, dropping results",
			zap.String("task_id", taskID),
			zap.String("stage", string(stage)),
			zap.String("status", string(cur.Status)),
		)
		return true, nil
	}
	return false, nil
}

// trackStage logs the duration and outcome of one stage run.
func trackStage(taskID, name string, fn func() error) error {
	log := zap.L().With(zap.String("task_id", taskID), zap.String("stage", name))
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: stage failed",
			zap.Int64("duration_ms", duration),
			zap.String("error_class", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: stage complete", zap.Int64("duration_ms", duration))
	return nil
}

// react enqueues the work that follows a stage transition.
func (p *Pipeline) react(ctx context.Context, task model.TranslationTask, ev model.Event) error {
	switch ev.Kind {
	case model.EventProcessingCompleted:
		return p.enqueue(ctx, task, queue.KindTranslate)
	case model.EventMTCompleted:
		if task.MachineTranslationOnly {
			return p.enqueue(ctx, task, queue.KindReconstruct)
		}
		p.publish(ctx, model.QueuedForEditingEvent(task, ev.At))
	case model.EventTaskRetried:
		switch {
		case task.Stage == model.StageQueuedForProcessing:
			return p.enqueue(ctx, task, queue.KindProcess)
		case task.Stage == model.StageQueuedForMT:
			return p.enqueue(ctx, task, queue.KindTranslate)
		case task.Stage == model.StageQueuedForEditing && task.MachineTranslationOnly:
			return p.enqueue(ctx, task, queue.KindReconstruct)
		}
	}
	return nil
}

// skipTerminal logs and reports whether a job arrived for a finished task.
func skipTerminal(task *model.TranslationTask, kind queue.Kind) bool {
	if !task.Status.Terminal() {
		return false
	}
	zap.L().Info("pipeline: skipping job for finished task",
		zap.String("task_id", task.ID),
		zap.String("kind", string(kind)),
		zap.String("status", string(task.Status)),
	)
	return true
}
