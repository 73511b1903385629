// Package anonymize runs a task's segments through the anonymizer and merges
// the placeholders and mappings it returns back onto the segments.
package anonymize

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/pkg/anonymizer"
)

// ErrPartialResult is returned in fail-closed mode when the anonymizer
// answers for fewer segments than it was sent.
var ErrPartialResult = eris.New("anonymize: anonymizer returned fewer results than segments")

// Result holds the anonymized segments and the mappings created for them.
type Result struct {
	Segments []model.Segment
	Mappings []model.SensitiveDataMapping
	// Unanonymized counts segments that kept their source text because the
	// anonymizer returned no result for them.
	Unanonymized int
}

// Option configures a Merger.
type Option func(*Merger)

// WithTimeout bounds the batch call.
func WithTimeout(d time.Duration) Option {
	return func(m *Merger) { m.timeout = d }
}

// WithFailClosed makes a short result an error instead of a warning.
func WithFailClosed(v bool) Option {
	return func(m *Merger) { m.failClosed = v }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) { m.now = now }
}

// Merger sends all of a task's segments to the anonymizer in one batch.
type Merger struct {
	client     anonymizer.Client
	timeout    time.Duration
	failClosed bool
	now        func() time.Time
}

// NewMerger returns a Merger backed by client.
func NewMerger(client anonymizer.Client, opts ...Option) *Merger {
	m := &Merger{client: client, timeout: 2 * time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge anonymizes segments in order. Segments without a matching result
// keep AnonymizedContent equal to SourceContent. A failed batch call is
// returned as an error and nothing is merged.
func (m *Merger) Merge(ctx context.Context, segments []model.Segment, language string) (*Result, error) {
	out := &Result{Segments: make([]model.Segment, len(segments))}
	copy(out.Segments, segments)
	for i := range out.Segments {
		out.Segments[i].AnonymizedContent = out.Segments[i].SourceContent
	}
	if len(segments) == 0 {
		return out, nil
	}

	items := make([]anonymizer.Item, len(segments))
	for i, s := range segments {
		items[i] = anonymizer.Item{Text: s.SourceContent, Language: language}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	results, err := m.client.AnonymizeBatch(callCtx, items)
	if err != nil {
		return nil, eris.Wrap(err, "anonymize: batch call")
	}

	if len(results) < len(segments) {
		out.Unanonymized = len(segments) - len(results)
		if m.failClosed {
			return nil, eris.Wrapf(ErrPartialResult, "anonymize: %d of %d segments unanswered", out.Unanonymized, len(segments))
		}
		zap.L().Warn("anonymize: partial result, unmatched segments keep source text",
			zap.Int("segments", len(segments)),
			zap.Int("results", len(results)),
			zap.Int("unanonymized", out.Unanonymized),
		)
	}

	now := m.now().UTC()
	for i := range out.Segments {
		if i >= len(results) {
			break
		}
		r := results[i]
		seg := &out.Segments[i]
		if r.AnonymizedText != "" {
			seg.AnonymizedContent = r.AnonymizedText
		}
		for _, mp := range r.Mappings {
			if mp.Token == "" {
				continue
			}
			out.Mappings = append(out.Mappings, model.SensitiveDataMapping{
				ID:              uuid.NewString(),
				SegmentID:       seg.ID,
				TokenIdentifier: mp.Token,
				SensitiveType:   mp.EntityType,
				OriginalValue:   mp.Original,
				CreatedAt:       now,
			})
		}
	}
	return out, nil
}
