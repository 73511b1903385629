package model

import "time"

// SegmentKind describes which format produced a segment.
type SegmentKind string

const (
	SegmentKindHTMLBlock SegmentKind = "HTML_BLOCK"
	SegmentKindText      SegmentKind = "TEXT"
	SegmentKindXLIFFUnit SegmentKind = "XLIFF_UNIT"
)

// FormatMetadata carries the positional data each format needs to put a
// segment back where it came from. Only the fields for the segment's kind are set.
type FormatMetadata struct {
	// HTML
	Tag      string `json:"tag,omitempty"`
	TableRow int    `json:"table_row,omitempty"`
	TableCol int    `json:"table_col,omitempty"`

	// XLIFF
	FileID  string `json:"file_id,omitempty"`
	UnitID  string `json:"unit_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
	// GroupPath lists the enclosing group ids, outermost first. GroupID is
	// its last element.
	GroupPath []string `json:"group_path,omitempty"`

	// Plain text
	ParagraphIndex    int  `json:"paragraph_index,omitempty"`
	PrecedingNewlines *int `json:"preceding_newlines,omitempty"`
	// Separator is the exact whitespace before the paragraph; for the first
	// paragraph it holds the leading blank lines of the document.
	Separator string `json:"separator,omitempty"`
	// Trailing is the whitespace after the last paragraph.
	Trailing string `json:"trailing,omitempty"`
	// CRLF marks a paragraph whose line breaks were \r\n. Content always
	// carries \n.
	CRLF bool `json:"crlf,omitempty"`
}

// Segment is one translatable unit of a document.
type Segment struct {
	ID                       string                  `json:"id"`
	TaskID                   string                  `json:"translation_task_id"`
	Order                    int                     `json:"order"`
	Kind                     SegmentKind             `json:"kind"`
	SourceContent            string                  `json:"source_content"`
	AnonymizedContent        string                  `json:"anonymized_content"`
	MachineTranslatedContent *string                 `json:"machine_translated_content,omitempty"`
	EditedContent            *string                 `json:"edited_content,omitempty"`
	SpecialTokens            map[string]SpecialToken `json:"special_token_map,omitempty"`
	Metadata                 FormatMetadata          `json:"format_metadata"`
	CreatedAt                time.Time               `json:"created_at"`
	UpdatedAt                time.Time               `json:"updated_at"`
}

// EffectiveContent is the content used downstream: edited, then machine
// translated, then source.
func (s Segment) EffectiveContent() string {
	if s.EditedContent != nil {
		return *s.EditedContent
	}
	if s.MachineTranslatedContent != nil {
		return *s.MachineTranslatedContent
	}
	return s.SourceContent
}

// TranslatableContent is what MT and editors see: the anonymized text when
// anonymization ran, otherwise the source.
func (s Segment) TranslatableContent() string {
	if s.AnonymizedContent != "" {
		return s.AnonymizedContent
	}
	return s.SourceContent
}

// StringPtr returns a pointer to a copy of v.
func StringPtr(v string) *string {
	return &v
}

// IntPtr returns a pointer to a copy of v.
func IntPtr(v int) *int {
	return &v
}
