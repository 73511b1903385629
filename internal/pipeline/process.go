package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doctrans/internal/format"
	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/queue"
	"github.com/sells-group/doctrans/internal/resilience"
)

// Process parses a task's document into segments, anonymizes them and
// records the document structure. Parse failures are permanent; anonymizer
// and storage failures are retried by the queue.
func (p *Pipeline) Process(ctx context.Context, taskID string) error {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load task")
	}
	if skipTerminal(task, queue.KindProcess) {
		return nil
	}

	started, ev, err := task.StartProcessing(p.clock())
	if err != nil {
		return resilience.NewPermanentError(err)
	}
	if err := p.commit(ctx, started, ev); err != nil {
		return err
	}

	err = trackStage(taskID, "process", func() error {
		return p.process(ctx, started)
	})
	if err != nil {
		p.fail(ctx, taskID, err)
	}
	return err
}

func (p *Pipeline) process(ctx context.Context, task model.TranslationTask) error {
	parsed, err := p.formats.Parse(task.Type, task.OriginalContent)
	if err != nil {
		return resilience.NewPermanentError(err)
	}
	if parsed.SourceLanguage != "" && parsed.SourceLanguage != task.SourceLanguage {
		zap.L().Warn("pipeline: document declares a different source language",
			zap.String("task_id", task.ID),
			zap.String("task_language", task.SourceLanguage),
			zap.String("document_language", parsed.SourceLanguage),
		)
	}

	existing, err := p.store.GetSegments(ctx, task.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load existing segments")
	}
	now := p.clock()
	segments := adoptSegmentIDs(parsed.Segments, existing)
	for i := range segments {
		segments[i].TaskID = task.ID
		segments[i].CreatedAt = now
		segments[i].UpdatedAt = now
	}

	var mappings []model.SensitiveDataMapping
	if p.anonymizer != nil {
		res, err := p.anonymizer.Merge(ctx, segments, task.SourceLanguage)
		if err != nil {
			return eris.Wrap(err, "pipeline: anonymize")
		}
		segments, mappings = res.Segments, res.Mappings
	} else {
		for i := range segments {
			segments[i].AnonymizedContent = segments[i].SourceContent
		}
	}

	if stale, err := p.superseded(ctx, task.ID, model.StageProcessing); err != nil || stale {
		return err
	}

	if err := p.store.SaveSegments(ctx, segments); err != nil {
		return eris.Wrap(err, "pipeline: save segments")
	}
	if len(existing) > 0 {
		prior, err := p.store.GetMappings(ctx, task.ID)
		if err != nil {
			return eris.Wrap(err, "pipeline: load existing mappings")
		}
		mappings = newMappings(mappings, prior)
	}
	if err := p.store.SaveMappings(ctx, mappings); err != nil {
		return eris.Wrap(err, "pipeline: save mappings")
	}

	structure := parsed.Structure
	done, ev, err := task.CompleteProcessing(&structure, format.WordCount(segments), p.clock())
	if err != nil {
		return resilience.NewPermanentError(err)
	}
	if err := p.commit(ctx, done, ev); err != nil {
		return err
	}
	zap.L().Info("pipeline: document processed",
		zap.String("task_id", task.ID),
		zap.Int("segments", len(segments)),
		zap.Int("mappings", len(mappings)),
		zap.Int("word_count", done.WordCount),
	)
	return p.react(ctx, done, ev)
}

// adoptSegmentIDs gives re-parsed segments the ids of segments stored by an
// earlier attempt at the same position, so a redelivered job overwrites
// rather than duplicates them.
func adoptSegmentIDs(parsed, existing []model.Segment) []model.Segment {
	byOrder := make(map[int]string, len(existing))
	for _, s := range existing {
		byOrder[s.Order] = s.ID
	}
	out := make([]model.Segment, len(parsed))
	copy(out, parsed)
	for i := range out {
		if id, ok := byOrder[out[i].Order]; ok {
			out[i].ID = id
		}
	}
	return out
}

// newMappings drops mappings whose segment already has the same token stored.
func newMappings(fresh, prior []model.SensitiveDataMapping) []model.SensitiveDataMapping {
	seen := make(map[string]bool, len(prior))
	for _, m := range prior {
		seen[m.SegmentID+"\x00"+m.TokenIdentifier] = true
	}
	out := fresh[:0:0]
	for _, m := range fresh {
		if !seen[m.SegmentID+"\x00"+m.TokenIdentifier] {
			out = append(out, m)
		}
	}
	return out
}
