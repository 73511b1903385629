// Package format splits source documents into translatable segments and
// rebuilds them from translated segments. Each document type has a Handler;
// handlers are looked up through a Registry keyed by model.DocumentType.
package format

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/doctrans/internal/model"
)

// ErrNoTranslatableContent is returned when a document yields no segments
// that could be sent for translation.
var ErrNoTranslatableContent = eris.New("format: no translatable content")

// ParseResult is the output of parsing one document.
type ParseResult struct {
	Segments  []model.Segment
	Structure model.OriginalStructure

	// SourceLanguage and TargetLanguage are set when the document declares
	// them (XLIFF).
	SourceLanguage string
	TargetLanguage string
}

// ReconstructInput carries everything a handler needs to rebuild a document.
type ReconstructInput struct {
	Structure model.OriginalStructure
	Segments  []model.Segment
	Mappings  []model.SensitiveDataMapping

	// TargetLanguage fills in documents that did not declare one.
	TargetLanguage string
}

// Handler parses and reconstructs one document type.
type Handler interface {
	Type() model.DocumentType
	Parse(raw string) (*ParseResult, error)
	Reconstruct(in ReconstructInput) (string, error)
}

// Registry maps document types to handlers.
type Registry struct {
	handlers map[model.DocumentType]Handler
}

// NewRegistry returns a registry holding the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[model.DocumentType]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Type()] = h
	}
	return r
}

// DefaultRegistry returns a registry with the plain text, HTML and XLIFF handlers.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPlainText(), NewHTML(), NewXLIFF())
}

// Handler returns the handler for typ.
func (r *Registry) Handler(typ model.DocumentType) (Handler, error) {
	h, ok := r.handlers[typ]
	if !ok {
		return nil, eris.Errorf("format: unsupported document type %q", typ)
	}
	return h, nil
}

// Types lists the registered document types.
func (r *Registry) Types() []model.DocumentType {
	out := make([]model.DocumentType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse parses raw with the handler registered for typ.
func (r *Registry) Parse(typ model.DocumentType, raw string) (*ParseResult, error) {
	h, err := r.Handler(typ)
	if err != nil {
		return nil, err
	}
	return h.Parse(raw)
}

// Reconstruct rebuilds a document with the handler registered for typ.
func (r *Registry) Reconstruct(typ model.DocumentType, in ReconstructInput) (string, error) {
	h, err := r.Handler(typ)
	if err != nil {
		return "", err
	}
	return h.Reconstruct(in)
}

var reMarkup = regexp.MustCompile(`<[^>]+>`)

// WordCount counts whitespace-separated words across the segments' source
// content, ignoring markers and any other markup.
func WordCount(segments []model.Segment) int {
	n := 0
	for _, s := range segments {
		n += len(strings.Fields(reMarkup.ReplaceAllString(s.SourceContent, " ")))
	}
	return n
}

// newSegment builds a segment with a fresh id.
func newSegment(order int, kind model.SegmentKind, content string) model.Segment {
	return model.Segment{
		ID:            uuid.NewString(),
		Order:         order,
		Kind:          kind,
		SourceContent: content,
	}
}

// sortedByOrder returns a copy of segments sorted by Order.
func sortedByOrder(segments []model.Segment) []model.Segment {
	out := make([]model.Segment, len(segments))
	copy(out, segments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// restoreSensitive replaces every anonymization token in content with the
// original value it stood for. Tokens are matched literally.
func restoreSensitive(content string, mappings []model.SensitiveDataMapping) string {
	for _, m := range mappings {
		if m.TokenIdentifier == "" {
			continue
		}
		re := regexp.MustCompile(regexp.QuoteMeta(m.TokenIdentifier))
		content = re.ReplaceAllLiteralString(content, m.OriginalValue)
	}
	return content
}

// finalContent is the effective segment text with sensitive values restored.
func finalContent(seg model.Segment, bySegment map[string][]model.SensitiveDataMapping) string {
	return restoreSensitive(seg.EffectiveContent(), bySegment[seg.ID])
}
