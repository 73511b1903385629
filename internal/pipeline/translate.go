package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/mt"
	"github.com/sells-group/doctrans/internal/queue"
	"github.com/sells-group/doctrans/internal/resilience"
)

// Translate sends a task's anonymized segments to machine translation and
// stores the results on the segments.
func (p *Pipeline) Translate(ctx context.Context, taskID string) error {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load task")
	}
	if skipTerminal(task, queue.KindTranslate) {
		return nil
	}

	started, ev, err := task.StartMachineTranslation(p.clock())
	if err != nil {
		return resilience.NewPermanentError(err)
	}
	if err := p.commit(ctx, started, ev); err != nil {
		return err
	}

	err = trackStage(taskID, "translate", func() error {
		return p.translate(ctx, started)
	})
	if err != nil {
		p.fail(ctx, taskID, err)
	}
	return err
}

func (p *Pipeline) translate(ctx context.Context, task model.TranslationTask) error {
	segments, err := p.store.GetSegments(ctx, task.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load segments")
	}

	resp := &mt.Response{}
	if len(segments) > 0 {
		items := make([]mt.Item, len(segments))
		for i, s := range segments {
			items[i] = mt.Item{ID: s.ID, Content: s.TranslatableContent()}
		}
		resp, err = p.translator.Translate(ctx, items, task.SourceLanguage, task.TargetLanguage)
		if err != nil {
			return eris.Wrap(err, "pipeline: machine translation")
		}
	}

	translated := make(map[string]string, len(resp.Results))
	for _, r := range resp.Results {
		translated[r.SegmentID] = r.TranslatedText
	}
	now := p.clock()
	for i := range segments {
		text, ok := translated[segments[i].ID]
		if !ok {
			return eris.Errorf("pipeline: no translation returned for segment %s", segments[i].ID)
		}
		segments[i].MachineTranslatedContent = model.StringPtr(text)
		segments[i].UpdatedAt = now
	}
	if extra := len(translated) - len(segments); extra > 0 {
		zap.L().Warn("pipeline: translations returned for unknown segments",
			zap.String("task_id", task.ID),
			zap.Int("unknown", extra),
		)
	}

	if stale, err := p.superseded(ctx, task.ID, model.StageMachineTranslating); err != nil || stale {
		return err
	}
	if err := p.store.SaveSegments(ctx, segments); err != nil {
		return eris.Wrap(err, "pipeline: save translations")
	}

	done, ev, err := task.CompleteMachineTranslation(p.clock())
	if err != nil {
		return resilience.NewPermanentError(err)
	}
	if err := p.commit(ctx, done, ev); err != nil {
		return err
	}
	return p.react(ctx, done, ev)
}

// Finalize completes a machine-translation-only task by reconstructing the
// document from the machine translations.
func (p *Pipeline) Finalize(ctx context.Context, taskID string) error {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load task")
	}
	if skipTerminal(task, queue.KindReconstruct) {
		return nil
	}
	if !task.MachineTranslationOnly || task.Stage != model.StageQueuedForEditing {
		return resilience.NewPermanentError(eris.Errorf(
			"pipeline: task %s at %s/%s cannot be finalized without an editor", task.ID, task.Stage, task.Status))
	}

	cur := *task
	if cur.Status == model.TaskStatusError {
		retried, ev, err := cur.Retry(p.clock())
		if err != nil {
			return resilience.NewPermanentError(err)
		}
		if err := p.commit(ctx, retried, ev); err != nil {
			return err
		}
		cur = retried
	}

	err = trackStage(taskID, "reconstruct", func() error {
		final, err := p.reconstruct(ctx, &cur)
		if err != nil {
			return err
		}
		done, ev, err := cur.CompleteTask(final, p.clock())
		if err != nil {
			return resilience.NewPermanentError(err)
		}
		return p.commit(ctx, done, ev)
	})
	if err != nil {
		p.fail(ctx, taskID, err)
	}
	return err
}
