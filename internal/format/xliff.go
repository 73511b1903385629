package format

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/language"

	"github.com/sells-group/doctrans/internal/marker"
	"github.com/sells-group/doctrans/internal/model"
)

const (
	xliff12Namespace = "urn:oasis:names:tc:xliff:document:1.2"
	xliff20Namespace = "urn:oasis:names:tc:xliff:document:2.0"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;",
)

type xliffDoc struct {
	XMLName xml.Name    `xml:"xliff"`
	Version string      `xml:"version,attr"`
	SrcLang string      `xml:"srcLang,attr"`
	TrgLang string      `xml:"trgLang,attr"`
	Files   []xliffFile `xml:"file"`
}

// xliffFile keeps the units and groups of a file in document order, both
// for 1.2 (<file><body>) and 2.x (<file> holds them directly).
type xliffFile struct {
	ID             string
	Original       string
	SourceLanguage string
	TargetLanguage string
	Datatype       string
	ToolID         string
	Header         *xliffHeader
	Body           xliffContainer
}

func (f *xliffFile) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "id":
			f.ID = a.Value
		case "original":
			f.Original = a.Value
		case "source-language":
			f.SourceLanguage = a.Value
		case "target-language":
			f.TargetLanguage = a.Value
		case "datatype":
			f.Datatype = a.Value
		case "tool-id":
			f.ToolID = a.Value
		}
	}
	return f.Body.decodeChildren(d, func(el xml.StartElement) (bool, error) {
		switch el.Name.Local {
		case "header":
			f.Header = &xliffHeader{}
			return true, d.DecodeElement(f.Header, &el)
		case "body":
			return true, f.Body.decodeChildren(d, nil)
		}
		return false, nil
	})
}

type xliffHeader struct {
	Tool struct {
		ID string `xml:"tool-id,attr"`
	} `xml:"tool"`
}

// xliffContainer is a <body> or <group>. Items holds exactly one of its
// fields each.
type xliffContainer struct {
	ID    string
	Items []xliffItem
}

type xliffItem struct {
	TransUnit *transUnit
	Unit      *xliffUnit
	Group     *xliffContainer
}

func (c *xliffContainer) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if a.Name.Local == "id" {
			c.ID = a.Value
		}
	}
	return c.decodeChildren(d, nil)
}

// decodeChildren reads up to the end of the current element. Elements other
// than units and groups go to other first and are skipped when it does not
// handle them.
func (c *xliffContainer) decodeChildren(d *xml.Decoder, other func(xml.StartElement) (bool, error)) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			if err := c.decodeChild(d, el, other); err != nil {
				return err
			}
		}
	}
}

func (c *xliffContainer) decodeChild(d *xml.Decoder, el xml.StartElement, other func(xml.StartElement) (bool, error)) error {
	switch el.Name.Local {
	case "trans-unit":
		u := &transUnit{}
		if err := d.DecodeElement(u, &el); err != nil {
			return err
		}
		c.Items = append(c.Items, xliffItem{TransUnit: u})
	case "unit":
		u := &xliffUnit{}
		if err := d.DecodeElement(u, &el); err != nil {
			return err
		}
		c.Items = append(c.Items, xliffItem{Unit: u})
	case "group":
		g := &xliffContainer{}
		if err := d.DecodeElement(g, &el); err != nil {
			return err
		}
		c.Items = append(c.Items, xliffItem{Group: g})
	default:
		if other != nil {
			handled, err := other(el)
			if err != nil || handled {
				return err
			}
		}
		return d.Skip()
	}
	return nil
}

type transUnit struct {
	ID     string    `xml:"id,attr"`
	Source xliffText `xml:"source"`
}

type xliffUnit struct {
	ID       string         `xml:"id,attr"`
	Segments []xliffSegment `xml:"segment"`
}

type xliffSegment struct {
	Source xliffText `xml:"source"`
}

// xliffText holds the raw inner XML of a <source>.
type xliffText struct {
	Inner string `xml:",innerxml"`
}

// XLIFF handles XLIFF 1.2 (<trans-unit>) and 2.x (<unit><segment>) files.
// Each translation unit becomes one segment.
type XLIFF struct{}

// NewXLIFF returns the XLIFF handler.
func NewXLIFF() *XLIFF { return &XLIFF{} }

// Type implements Handler.
func (*XLIFF) Type() model.DocumentType { return model.DocumentTypeXLIFF }

// Parse implements Handler. Unlike HTML, structural problems are hard
// errors: malformed XML, a document without units, or an empty first source.
func (*XLIFF) Parse(raw string) (*ParseResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, eris.New("xliff: empty document")
	}

	var doc xliffDoc
	dec := xml.NewDecoder(strings.NewReader(raw))
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xliff: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "xliff: decode document")
	}

	meta := &model.XliffMetadata{Version: detectVersion(doc)}
	if meta.Major() == "2" {
		meta.SourceLanguage = normalizeLanguage(doc.SrcLang)
		meta.TargetLanguage = normalizeLanguage(doc.TrgLang)
	}

	c := &unitCollector{}
	for i, f := range doc.Files {
		file := model.XliffFile{
			ID:             fileID(f, i),
			Original:       f.Original,
			Datatype:       f.Datatype,
			Tool:           f.ToolID,
			SourceLanguage: normalizeLanguage(f.SourceLanguage),
			TargetLanguage: normalizeLanguage(f.TargetLanguage),
		}
		if file.Tool == "" && f.Header != nil {
			file.Tool = f.Header.Tool.ID
		}
		meta.Files = append(meta.Files, file)
		if meta.SourceLanguage == "" {
			meta.SourceLanguage = file.SourceLanguage
		}
		if meta.TargetLanguage == "" {
			meta.TargetLanguage = file.TargetLanguage
		}

		c.collect(file.ID, nil, f.Body.Items)
	}

	if c.err != nil {
		return nil, c.err
	}
	if len(c.segments) == 0 {
		return nil, eris.Wrap(ErrNoTranslatableContent, "xliff: no translation units found")
	}
	if strings.TrimSpace(c.segments[0].SourceContent) == "" {
		return nil, eris.Wrapf(ErrNoTranslatableContent, "xliff: unit %q has an empty source", c.segments[0].Metadata.UnitID)
	}

	return &ParseResult{
		Segments:       c.segments,
		Structure:      model.OriginalStructure{Xliff: meta},
		SourceLanguage: meta.SourceLanguage,
		TargetLanguage: meta.TargetLanguage,
	}, nil
}

type unitCollector struct {
	segments []model.Segment
	err      error
}

func (c *unitCollector) collect(fileID string, groups []string, items []xliffItem) {
	for _, it := range items {
		switch {
		case it.TransUnit != nil:
			c.add(fileID, groups, it.TransUnit.ID, it.TransUnit.Source)
		case it.Unit != nil:
			sources := make([]xliffText, 0, len(it.Unit.Segments))
			for _, s := range it.Unit.Segments {
				sources = append(sources, s.Source)
			}
			c.add(fileID, groups, it.Unit.ID, sources...)
		case it.Group != nil:
			path := append(append([]string(nil), groups...), it.Group.ID)
			c.collect(fileID, path, it.Group.Items)
		}
	}
}

func (c *unitCollector) add(fileID string, groups []string, unitID string, sources ...xliffText) {
	if c.err != nil {
		return
	}
	codes := &codeReader{tokens: map[string]model.SpecialToken{}}
	var content strings.Builder
	for _, s := range sources {
		if err := codes.read(&content, s.Inner); err != nil {
			c.err = eris.Wrapf(err, "xliff: unit %q source", unitID)
			return
		}
	}
	seg := newSegment(len(c.segments), model.SegmentKindXLIFFUnit, content.String())
	seg.Metadata.FileID = fileID
	seg.Metadata.UnitID = unitID
	if len(groups) > 0 {
		seg.Metadata.GroupID = groups[len(groups)-1]
		seg.Metadata.GroupPath = groups
	}
	if len(codes.tokens) > 0 {
		seg.SpecialTokens = codes.tokens
	}
	c.segments = append(c.segments, seg)
}

// Inline elements that enclose translatable text. Every other inline
// element (<x/>, <bx/>, <ph>, <bpt>, <sc/>, ...) is kept as an opaque code.
var wrappingCodes = map[string]bool{"g": true, "pc": true, "mrk": true}

// codeReader turns the inner XML of a <source> into segment text, replacing
// inline codes with markers backed by special tokens. Token ids run across
// all sources of one unit.
type codeReader struct {
	tokens map[string]model.SpecialToken
	next   int
	src    string
	dec    *xml.Decoder
}

func (r *codeReader) read(b *strings.Builder, inner string) error {
	if !strings.Contains(inner, "<") && !strings.Contains(inner, "&") {
		b.WriteString(inner)
		return nil
	}
	r.src = "<s>" + inner + "</s>"
	r.dec = xml.NewDecoder(strings.NewReader(r.src))
	if _, err := r.dec.Token(); err != nil {
		return err
	}
	_, err := r.content(b)
	return err
}

// content renders text and codes up to the next end element and returns
// the offset where that end element starts.
func (r *codeReader) content(b *strings.Builder) (int64, error) {
	for {
		start := r.dec.InputOffset()
		tok, err := r.dec.Token()
		if err != nil {
			return 0, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			return start, nil
		case xml.StartElement:
			if err := r.code(b, t, start); err != nil {
				return 0, err
			}
		}
	}
}

func (r *codeReader) code(b *strings.Builder, el xml.StartElement, start int64) error {
	r.next++
	tok := model.SpecialToken{ID: r.next, Tag: el.Name.Local}
	for _, a := range el.Attr {
		if tok.Attrs == nil {
			tok.Attrs = map[string]string{}
		}
		tok.Attrs[a.Name.Local] = a.Value
	}

	if !wrappingCodes[el.Name.Local] {
		if err := r.dec.Skip(); err != nil {
			return err
		}
		tok.Kind = model.TokenInlineCode
		tok.OriginalMarkup = r.src[start:r.dec.InputOffset()]
		r.tokens[tok.Key()] = tok
		b.WriteString(tok.Marker(""))
		return nil
	}

	tok.Kind = model.TokenInlineFormatting
	openEnd := r.dec.InputOffset()
	var inner strings.Builder
	closeStart, err := r.content(&inner)
	if err != nil {
		return err
	}
	tok.InnerHTML = r.src[openEnd:closeStart]
	tok.OriginalMarkup = r.src[start:r.dec.InputOffset()]
	r.tokens[tok.Key()] = tok
	b.WriteString(tok.Marker(inner.String()))
	return nil
}

func detectVersion(doc xliffDoc) string {
	if doc.Version != "" {
		return doc.Version
	}
	if doc.XMLName.Space == xliff20Namespace || doc.SrcLang != "" {
		return "2.0"
	}
	return "1.2"
}

func fileID(f xliffFile, i int) string {
	switch {
	case f.ID != "":
		return f.ID
	case f.Original != "":
		return f.Original
	default:
		return fmt.Sprintf("f%d", i+1)
	}
}

// normalizeLanguage canonicalizes a BCP 47 tag, keeping the input when it
// does not parse.
func normalizeLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	return t.String()
}

// Reconstruct implements Handler. Segments are grouped by file in the order
// the files were declared; units keep their group wrappers.
func (*XLIFF) Reconstruct(in ReconstructInput) (string, error) {
	meta := in.Structure.Xliff
	if meta == nil {
		return "", eris.New("xliff: structure has no xliff metadata")
	}
	bySegment := model.MappingsBySegment(in.Mappings)

	files := append([]model.XliffFile(nil), meta.Files...)
	known := make(map[string]bool, len(files))
	for _, f := range files {
		known[f.ID] = true
	}
	perFile := map[string][]model.Segment{}
	for _, seg := range sortedByOrder(in.Segments) {
		id := seg.Metadata.FileID
		if !known[id] {
			files = append(files, model.XliffFile{ID: id})
			known[id] = true
		}
		perFile[id] = append(perFile[id], seg)
	}

	targetLang := meta.TargetLanguage
	if targetLang == "" {
		targetLang = normalizeLanguage(in.TargetLanguage)
	}

	var b strings.Builder
	b.WriteString(xml.Header)
	v2 := meta.Major() == "2"
	if v2 {
		fmt.Fprintf(&b, `<xliff version="%s" xmlns="%s"`, escapeXML(orDefault(meta.Version, "2.0")), xliff20Namespace)
		writeXMLAttr(&b, "srcLang", meta.SourceLanguage)
		writeXMLAttr(&b, "trgLang", targetLang)
		b.WriteString(">\n")
	} else {
		fmt.Fprintf(&b, `<xliff version="%s" xmlns="%s">`+"\n", escapeXML(orDefault(meta.Version, "1.2")), xliff12Namespace)
	}

	for _, f := range files {
		segs := perFile[f.ID]
		if len(segs) == 0 {
			continue
		}
		if v2 {
			b.WriteString(`  <file`)
			writeXMLAttr(&b, "id", f.ID)
			writeXMLAttr(&b, "original", f.Original)
			b.WriteString(">\n")
		} else {
			fileTarget := f.TargetLanguage
			if fileTarget == "" {
				fileTarget = targetLang
			}
			b.WriteString(`  <file`)
			writeXMLAttr(&b, "original", orDefault(f.Original, f.ID))
			writeXMLAttr(&b, "source-language", orDefault(f.SourceLanguage, meta.SourceLanguage))
			writeXMLAttr(&b, "target-language", fileTarget)
			writeXMLAttr(&b, "datatype", orDefault(f.Datatype, "plaintext"))
			writeXMLAttr(&b, "tool-id", f.Tool)
			b.WriteString(">\n    <body>\n")
		}

		base := "    "
		if !v2 {
			base = "      "
		}
		indent := func(depth int) string { return base + strings.Repeat("  ", depth) }

		var open []string
		for _, seg := range segs {
			path := groupPath(seg)
			keep := commonPrefix(open, path)
			for len(open) > keep {
				open = open[:len(open)-1]
				b.WriteString(indent(len(open)) + "</group>\n")
			}
			for len(open) < len(path) {
				b.WriteString(indent(len(open)) + "<group")
				writeXMLAttr(&b, "id", path[len(open)])
				b.WriteString(">\n")
				open = append(open, path[len(open)])
			}

			unitIndent := indent(len(open))
			source := xliffContent(seg.SourceContent, seg)
			target := xliffContent(finalContent(seg, bySegment), seg)
			if v2 {
				fmt.Fprintf(&b, "%s<unit id=\"%s\">\n%s  <segment>\n%s    <source>%s</source>\n%s    <target>%s</target>\n%s  </segment>\n%s</unit>\n",
					unitIndent, escapeXML(seg.Metadata.UnitID), unitIndent, unitIndent, source, unitIndent, target, unitIndent, unitIndent)
			} else {
				fmt.Fprintf(&b, "%s<trans-unit id=\"%s\">\n%s  <source>%s</source>\n%s  <target>%s</target>\n%s</trans-unit>\n",
					unitIndent, escapeXML(seg.Metadata.UnitID), unitIndent, source, unitIndent, target, unitIndent)
			}
		}
		for len(open) > 0 {
			open = open[:len(open)-1]
			b.WriteString(indent(len(open)) + "</group>\n")
		}

		if v2 {
			b.WriteString("  </file>\n")
		} else {
			b.WriteString("    </body>\n  </file>\n")
		}
	}
	b.WriteString("</xliff>\n")
	return b.String(), nil
}

// xliffContent escapes segment text for a <source> or <target>, putting the
// recorded inline codes back in place of their markers.
func xliffContent(content string, seg model.Segment) string {
	if len(seg.SpecialTokens) == 0 {
		return escapeXML(content)
	}
	var b strings.Builder
	tr := &tokenRestorer{src: content, tags: marker.Tags(content), seg: seg, text: escapeXML}
	tr.restore(&b, false)
	return b.String()
}

func groupPath(seg model.Segment) []string {
	if len(seg.Metadata.GroupPath) > 0 {
		return seg.Metadata.GroupPath
	}
	if seg.Metadata.GroupID != "" {
		return []string{seg.Metadata.GroupID}
	}
	return nil
}

func commonPrefix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func escapeXML(s string) string { return xmlEscaper.Replace(s) }

func writeXMLAttr(b *strings.Builder, key, val string) {
	if val == "" {
		return
	}
	b.WriteString(" " + key + `="` + escapeXML(val) + `"`)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
