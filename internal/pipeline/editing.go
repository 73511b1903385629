package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doctrans/internal/format"
	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/validate"
)

// StartEditing assigns an editor to a task waiting for review.
func (p *Pipeline) StartEditing(ctx context.Context, taskID, editorID string) (*model.TranslationTask, error) {
	return p.transition(ctx, taskID, func(t model.TranslationTask) (model.TranslationTask, model.Event, error) {
		return t.StartEditing(editorID, p.clock())
	})
}

// SubmitEdits validates an editor's segment edits, stores them and completes
// the task with the reconstructed document. Edits are keyed by segment id.
// Nothing is stored when any edit fails validation or the document cannot
// be rebuilt.
func (p *Pipeline) SubmitEdits(ctx context.Context, taskID string, edits map[string]string) (*model.TranslationTask, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load task")
	}
	if err := checkEditing(task); err != nil {
		return nil, err
	}

	segments, err := p.store.GetSegments(ctx, taskID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load segments")
	}
	if err := validate.ValidateSubmission(segments, edits); err != nil {
		return nil, err
	}

	now := p.clock()
	changed := make([]model.Segment, 0, len(edits))
	for i := range segments {
		text, ok := edits[segments[i].ID]
		if !ok {
			continue
		}
		segments[i].EditedContent = model.StringPtr(text)
		segments[i].UpdatedAt = now
		changed = append(changed, segments[i])
	}

	mappings, err := p.store.GetMappings(ctx, taskID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load mappings")
	}
	final, err := p.formats.Reconstruct(task.Type, reconstructInput(task, segments, mappings))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reconstruct")
	}

	// The task may have been canceled or rejected while the document was
	// rebuilt; complete the stored copy, not the one loaded above.
	cur, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reload task")
	}
	if err := checkEditing(cur); err != nil {
		return nil, err
	}
	done, ev, err := cur.CompleteTask(final, p.clock())
	if err != nil {
		return nil, err
	}
	if err := p.store.SaveSegments(ctx, changed); err != nil {
		return nil, eris.Wrap(err, "pipeline: save edits")
	}
	if err := p.commit(ctx, done, ev); err != nil {
		return nil, err
	}
	zap.L().Info("pipeline: task completed",
		zap.String("task_id", taskID),
		zap.String("editor_id", cur.EditorID),
		zap.Int("edited_segments", len(changed)),
	)
	return &done, nil
}

func checkEditing(task *model.TranslationTask) error {
	if task.Stage == model.StageEditing && task.Status == model.TaskStatusInProgress {
		return nil
	}
	return &model.InvalidStateError{
		Op:       "submit edits",
		TaskID:   task.ID,
		Expected: []model.StatePair{{Stage: model.StageEditing, Status: model.TaskStatusInProgress}},
		Actual:   model.StatePair{Stage: task.Stage, Status: task.Status},
	}
}

// Reconstruct rebuilds the document from the current segment contents
// without changing the task.
func (p *Pipeline) Reconstruct(ctx context.Context, taskID string) (string, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: load task")
	}
	return p.reconstruct(ctx, task)
}

func (p *Pipeline) reconstruct(ctx context.Context, task *model.TranslationTask) (string, error) {
	segments, err := p.store.GetSegments(ctx, task.ID)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: load segments")
	}
	mappings, err := p.store.GetMappings(ctx, task.ID)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: load mappings")
	}
	out, err := p.formats.Reconstruct(task.Type, reconstructInput(task, segments, mappings))
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: reconstruct task %s", task.ID)
	}
	return out, nil
}

func reconstructInput(task *model.TranslationTask, segments []model.Segment, mappings []model.SensitiveDataMapping) format.ReconstructInput {
	in := format.ReconstructInput{
		Segments:       segments,
		Mappings:       mappings,
		TargetLanguage: task.TargetLanguage,
	}
	if task.OriginalStructure != nil {
		in.Structure = *task.OriginalStructure
	}
	return in
}

// RejectTask ends an in-progress task with a reason.
func (p *Pipeline) RejectTask(ctx context.Context, taskID, reason string) (*model.TranslationTask, error) {
	return p.transition(ctx, taskID, func(t model.TranslationTask) (model.TranslationTask, model.Event, error) {
		return t.RejectTask(reason, p.clock())
	})
}

// CancelTask ends an in-progress task. Jobs already running for it finish
// their call and then drop their results.
func (p *Pipeline) CancelTask(ctx context.Context, taskID, reason string) (*model.TranslationTask, error) {
	return p.transition(ctx, taskID, func(t model.TranslationTask) (model.TranslationTask, model.Event, error) {
		return t.CancelTask(reason, p.clock())
	})
}

// RetryTask re-queues an errored task at the stage that failed.
func (p *Pipeline) RetryTask(ctx context.Context, taskID string) (*model.TranslationTask, error) {
	var next model.TranslationTask
	var event model.Event
	out, err := p.transition(ctx, taskID, func(t model.TranslationTask) (model.TranslationTask, model.Event, error) {
		var err error
		next, event, err = t.Retry(p.clock())
		return next, event, err
	})
	if err != nil {
		return nil, err
	}
	if err := p.react(ctx, next, event); err != nil {
		return nil, err
	}
	return out, nil
}

// transition loads a task, applies fn and commits the result.
func (p *Pipeline) transition(ctx context.Context, taskID string, fn func(model.TranslationTask) (model.TranslationTask, model.Event, error)) (*model.TranslationTask, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load task")
	}
	next, ev, err := fn(*task)
	if err != nil {
		return nil, err
	}
	if err := p.commit(ctx, next, ev); err != nil {
		return nil, err
	}
	return &next, nil
}
