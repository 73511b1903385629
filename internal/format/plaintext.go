package format

import (
	"regexp"
	"strings"

	"github.com/sells-group/doctrans/internal/model"
)

const defaultParagraphBreak = 2

var (
	// reParagraphBreak matches the end of a line followed by one or more
	// blank lines. Blank lines may carry spaces, tabs or a \r.
	reParagraphBreak = regexp.MustCompile(`[ \t]*\r?\n(?:[ \t]*\r?\n)+`)
	reLeadingBlank   = regexp.MustCompile(`^(?:[ \t]*\r?\n)+`)
)

// PlainText splits text into paragraphs on blank lines.
type PlainText struct{}

// NewPlainText returns the plain text handler.
func NewPlainText() *PlainText { return &PlainText{} }

// Type implements Handler.
func (*PlainText) Type() model.DocumentType { return model.DocumentTypePlainText }

// Parse implements Handler. Each paragraph becomes a segment recording how
// many newlines separated it from the previous one; the first paragraph
// records zero. The whitespace around paragraphs is kept verbatim in the
// metadata so reconstruction reproduces it.
func (*PlainText) Parse(raw string) (*ParseResult, error) {
	lead := reLeadingBlank.FindString(raw)
	rest := raw[len(lead):]
	body := strings.TrimRight(rest, " \t\r\n")
	if body == "" {
		return &ParseResult{}, nil
	}

	var segments []model.Segment
	emit := func(chunk, sep string) {
		content := strings.ReplaceAll(chunk, "\r\n", "\n")
		preceding := strings.Count(sep, "\n")
		if len(segments) == 0 {
			preceding = 0
		}
		seg := newSegment(len(segments), model.SegmentKindText, content)
		seg.Metadata.ParagraphIndex = len(segments)
		seg.Metadata.PrecedingNewlines = model.IntPtr(preceding)
		seg.Metadata.Separator = sep
		seg.Metadata.CRLF = content != chunk
		segments = append(segments, seg)
	}

	start, sep := 0, lead
	for _, b := range reParagraphBreak.FindAllStringIndex(body, -1) {
		emit(body[start:b[0]], sep)
		sep = body[b[0]:b[1]]
		start = b[1]
	}
	emit(body[start:], sep)
	segments[len(segments)-1].Metadata.Trailing = rest[len(body):]

	return &ParseResult{Segments: segments}, nil
}

// Reconstruct implements Handler. Paragraphs are joined with their recorded
// separators, falling back to their newline counts; a missing count means
// one blank line.
func (*PlainText) Reconstruct(in ReconstructInput) (string, error) {
	bySegment := model.MappingsBySegment(in.Mappings)
	sorted := sortedByOrder(in.Segments)
	var b strings.Builder
	for i, seg := range sorted {
		b.WriteString(separator(i, seg.Metadata))
		content := finalContent(seg, bySegment)
		if seg.Metadata.CRLF {
			content = strings.ReplaceAll(strings.ReplaceAll(content, "\r\n", "\n"), "\n", "\r\n")
		}
		b.WriteString(content)
		if i == len(sorted)-1 {
			b.WriteString(seg.Metadata.Trailing)
		}
	}
	return b.String(), nil
}

func separator(i int, meta model.FormatMetadata) string {
	if meta.Separator != "" {
		return meta.Separator
	}
	n := defaultParagraphBreak
	switch {
	case meta.PrecedingNewlines != nil:
		n = *meta.PrecedingNewlines
	case i == 0:
		n = 0
	}
	return strings.Repeat("\n", n)
}
