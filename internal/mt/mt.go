// Package mt defines the machine translation port used by the pipeline and
// its implementations: the HTTP MT service and an LLM-backed translator.
package mt

import (
	"context"

	"github.com/sells-group/doctrans/pkg/mtclient"
)

// Item is one segment to translate. Content is the segment's translatable
// text including any <g>/<ph> markers and placeholder tokens.
type Item struct {
	ID      string
	Content string
}

// Translation is the translated text for one segment.
type Translation struct {
	SegmentID      string
	TranslatedText string
}

// Response carries the translations returned for a request.
type Response struct {
	Results []Translation
}

// Client translates batches of segments.
type Client interface {
	Translate(ctx context.Context, items []Item, sourceLang, targetLang string) (*Response, error)
}

// HTTPTranslator adapts the MT service client to Client.
type HTTPTranslator struct {
	client mtclient.Client
}

// NewHTTPTranslator wraps client.
func NewHTTPTranslator(client mtclient.Client) *HTTPTranslator {
	return &HTTPTranslator{client: client}
}

// Translate implements Client.
func (h *HTTPTranslator) Translate(ctx context.Context, items []Item, sourceLang, targetLang string) (*Response, error) {
	req := make([]mtclient.Item, len(items))
	for i, it := range items {
		req[i] = mtclient.Item{ID: it.ID, Content: it.Content}
	}
	results, err := h.client.Translate(ctx, req, sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	out := &Response{Results: make([]Translation, len(results))}
	for i, r := range results {
		out.Results[i] = Translation{SegmentID: r.SegmentID, TranslatedText: r.TranslatedText}
	}
	return out, nil
}
