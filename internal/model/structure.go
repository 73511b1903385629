package model

// NodeType distinguishes the three kinds of structure node.
type NodeType string

const (
	NodeElement    NodeType = "element"
	NodeText       NodeType = "text"
	NodeSegmentRef NodeType = "segment_ref"
	// NodeRaw holds markup re-emitted byte for byte (doctype, comments kept
	// outside segments, skipped script/style subtrees).
	NodeRaw NodeType = "raw"
)

// Attr is an HTML attribute. Attributes are stored as a slice so that
// reconstruction re-emits them in source order.
type Attr struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// StructureNode is one node of the non-segment skeleton of a document.
type StructureNode struct {
	Type         NodeType         `json:"type"`
	Tag          string           `json:"tag,omitempty"`
	Attrs        []Attr           `json:"attrs,omitempty"`
	Children     []*StructureNode `json:"children,omitempty"`
	Text         string           `json:"text,omitempty"`
	SegmentOrder int              `json:"segment_order,omitempty"`
}

// XliffFile is the file-level metadata of one <file> element.
type XliffFile struct {
	ID             string `json:"id"`
	Original       string `json:"original,omitempty"`
	Datatype       string `json:"datatype,omitempty"`
	Tool           string `json:"tool,omitempty"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// XliffMetadata replaces the node tree for XLIFF documents: there is no
// shared skeleton, only per-file attributes and the detected version.
type XliffMetadata struct {
	Version        string      `json:"version"`
	SourceLanguage string      `json:"source_language,omitempty"`
	TargetLanguage string      `json:"target_language,omitempty"`
	Files          []XliffFile `json:"files,omitempty"`
}

// Major returns "1" for XLIFF 1.x documents and "2" for 2.x.
func (m XliffMetadata) Major() string {
	if len(m.Version) > 0 && m.Version[0] == '2' {
		return "2"
	}
	return "1"
}

// File returns the file metadata with the given id.
func (m XliffMetadata) File(id string) (XliffFile, bool) {
	for _, f := range m.Files {
		if f.ID == id {
			return f, true
		}
	}
	return XliffFile{}, false
}

// OriginalStructure is built once at parse time and consumed once at
// reconstruction. Exactly one of Root and Xliff is set for HTML and XLIFF;
// plain text has neither.
type OriginalStructure struct {
	Root  *StructureNode `json:"root,omitempty"`
	Xliff *XliffMetadata `json:"xliff,omitempty"`
}
