package mt

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of segments sent per MT request.
const DefaultBatchSize = 50

// Batcher splits a request into fixed-size sub-batches and sends them to the
// wrapped client one after another.
type Batcher struct {
	client Client
	size   int
}

// NewBatcher returns a Batcher. A non-positive size uses DefaultBatchSize.
func NewBatcher(client Client, size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{client: client, size: size}
}

// Translate implements Client. Results of all sub-batches are concatenated
// in request order. The first failing sub-batch aborts the whole call.
func (b *Batcher) Translate(ctx context.Context, items []Item, sourceLang, targetLang string) (*Response, error) {
	out := &Response{Results: make([]Translation, 0, len(items))}
	total := (len(items) + b.size - 1) / b.size

	for i, n := 0, 0; i < len(items); i, n = i+b.size, n+1 {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "mt: translate canceled")
		}
		end := min(i+b.size, len(items))

		start := time.Now()
		resp, err := b.client.Translate(ctx, items[i:end], sourceLang, targetLang)
		if err != nil {
			return nil, eris.Wrapf(err, "mt: batch %d/%d", n+1, total)
		}
		zap.L().Debug("mt: batch translated",
			zap.Int("batch", n+1),
			zap.Int("batches", total),
			zap.Int("segments", end-i),
			zap.Int("results", len(resp.Results)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		out.Results = append(out.Results, resp.Results...)
	}
	return out, nil
}
