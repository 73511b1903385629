package format

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/doctrans/internal/marker"
	"github.com/sells-group/doctrans/internal/model"
)

// ErrNoBody is returned for a full HTML document without a body element.
var ErrNoBody = eris.New("html: document has no body")

var (
	blockTags = map[string]bool{
		"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"div": true, "blockquote": true, "li": true, "td": true, "th": true,
	}

	// Tags kept out of segmentation and re-emitted untouched.
	skippedTags = map[string]bool{
		"style": true, "script": true, "meta": true, "noscript": true, "template": true,
	}

	reFullDocument = regexp.MustCompile(`(?i)<!doctype|<html[\s>]|<head[\s>]|<body[\s>]`)
	reShell        = regexp.MustCompile(`^(<[A-Za-z][^>]*>)([\s\S]*)(</[A-Za-z][A-Za-z0-9]*\s*>)$`)

	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;")
)

// HTML segments documents at leaf block elements. Inline markup inside a
// block is replaced by <g>/<ph> markers and recorded as special tokens.
type HTML struct{}

// NewHTML returns the HTML handler.
func NewHTML() *HTML { return &HTML{} }

// Type implements Handler.
func (*HTML) Type() model.DocumentType { return model.DocumentTypeHTML }

// Parse implements Handler. Input without <html>, <head>, <body> or a doctype
// is parsed as a body fragment so that reconstruction does not add them.
func (*HTML) Parse(raw string) (*ParseResult, error) {
	p := &htmlParser{}
	root := &model.StructureNode{Type: model.NodeElement}

	if reFullDocument.MatchString(raw) {
		doc, err := html.Parse(strings.NewReader(raw))
		if err != nil {
			return nil, eris.Wrap(err, "html: parse document")
		}
		if findElement(doc, atom.Body) == nil {
			return nil, ErrNoBody
		}
		for c := doc.FirstChild; c != nil; c = c.NextSibling {
			p.walk(c, root)
		}
	} else {
		body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		nodes, err := html.ParseFragment(strings.NewReader(raw), body)
		if err != nil {
			return nil, eris.Wrap(err, "html: parse fragment")
		}
		for _, n := range nodes {
			p.walk(n, root)
		}
	}

	return &ParseResult{
		Segments:  p.segments,
		Structure: model.OriginalStructure{Root: root},
	}, nil
}

type htmlParser struct {
	segments []model.Segment
}

func (p *htmlParser) walk(n *html.Node, parent *model.StructureNode) {
	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.walk(c, parent)
		}
	case html.DoctypeNode:
		parent.Children = append(parent.Children, rawNode(n))
	case html.TextNode:
		parent.Children = append(parent.Children, &model.StructureNode{Type: model.NodeText, Text: n.Data})
	case html.ElementNode:
		switch {
		case n.DataAtom == atom.Head || skippedTags[n.Data]:
			parent.Children = append(parent.Children, rawNode(n))
		case blockTags[n.Data] && !hasBlockDescendant(n) && hasContent(n):
			parent.Children = append(parent.Children, p.segmentNode(n))
		default:
			el := elementNode(n)
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				p.walk(c, el)
			}
			parent.Children = append(parent.Children, el)
		}
	}
	// Comments never reach the skeleton or a segment.
}

// segmentNode turns a leaf block into a segment and returns the skeleton
// node that references it.
func (p *htmlParser) segmentNode(n *html.Node) *model.StructureNode {
	tz := &tokenizer{tokens: map[string]model.SpecialToken{}}
	var content strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		tz.render(&content, c)
	}

	seg := newSegment(len(p.segments), model.SegmentKindHTMLBlock, content.String())
	seg.Metadata.Tag = n.Data
	seg.Metadata.TableRow, seg.Metadata.TableCol = tablePosition(n)
	if len(tz.tokens) > 0 {
		seg.SpecialTokens = tz.tokens
	}
	p.segments = append(p.segments, seg)

	el := elementNode(n)
	el.Children = []*model.StructureNode{{Type: model.NodeSegmentRef, SegmentOrder: seg.Order}}
	return el
}

// tokenizer renders the inside of a block, replacing each inline element
// with a marker. It reads the parsed tree and never modifies it, so the
// original markup stays available for OriginalMarkup.
type tokenizer struct {
	tokens map[string]model.SpecialToken
	next   int
}

func (tz *tokenizer) render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(textEscaper.Replace(n.Data))
	case html.ElementNode:
		if skippedTags[n.Data] {
			return
		}
		tz.next++
		tok := model.SpecialToken{
			ID:             tz.next,
			Kind:           model.TokenInlineFormatting,
			Tag:            n.Data,
			Attrs:          attrMap(n),
			OriginalMarkup: markup(n),
		}
		if model.IsVoidElement(n.Data) {
			if n.DataAtom == atom.Img {
				tok.Kind = model.TokenImage
				tok.Src = getAttr(n, "src")
				tok.Alt = getAttr(n, "alt")
			}
			tz.tokens[tok.Key()] = tok
			b.WriteString(tok.Marker(""))
			return
		}
		tok.InnerHTML = innerMarkup(n)
		tz.tokens[tok.Key()] = tok

		var inner strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			tz.render(&inner, c)
		}
		b.WriteString(tok.Marker(inner.String()))
	}
}

// Reconstruct implements Handler.
func (*HTML) Reconstruct(in ReconstructInput) (string, error) {
	if in.Structure.Root == nil {
		return "", eris.New("html: structure has no root node")
	}
	byOrder := make(map[int]model.Segment, len(in.Segments))
	for _, s := range in.Segments {
		byOrder[s.Order] = s
	}
	r := &htmlRebuilder{byOrder: byOrder, mappings: model.MappingsBySegment(in.Mappings)}
	var b strings.Builder
	r.emit(&b, in.Structure.Root)
	return b.String(), nil
}

type htmlRebuilder struct {
	byOrder  map[int]model.Segment
	mappings map[string][]model.SensitiveDataMapping
}

func (r *htmlRebuilder) emit(b *strings.Builder, n *model.StructureNode) {
	switch n.Type {
	case model.NodeText:
		b.WriteString(textEscaper.Replace(n.Text))
	case model.NodeRaw:
		b.WriteString(n.Text)
	case model.NodeSegmentRef:
		seg, ok := r.byOrder[n.SegmentOrder]
		if !ok {
			zap.L().Warn("html: structure references missing segment", zap.Int("order", n.SegmentOrder))
			return
		}
		restoreTokens(b, finalContent(seg, r.mappings), seg)
	case model.NodeElement:
		if n.Tag == "" {
			for _, c := range n.Children {
				r.emit(b, c)
			}
			return
		}
		b.WriteString("<" + n.Tag)
		for _, a := range n.Attrs {
			writeAttr(b, a.Key, a.Val)
		}
		if model.IsVoidElement(n.Tag) {
			b.WriteString("/>")
			return
		}
		b.WriteString(">")
		for _, c := range n.Children {
			r.emit(b, c)
		}
		b.WriteString("</" + n.Tag + ">")
	}
}

// restoreTokens writes content with every marker replaced by the markup it
// stands for. Wrapper markers keep their (possibly translated) inner text.
// Text between markers is entity-decoded once and re-escaped minimally.
func restoreTokens(b *strings.Builder, content string, seg model.Segment) {
	tr := &tokenRestorer{src: content, tags: marker.Tags(content), seg: seg, text: normalizeText}
	tr.restore(b, false)
}

// tokenRestorer is shared by the HTML and XLIFF rebuilders; text renders
// the plain text between markers in the output syntax.
type tokenRestorer struct {
	src  string
	tags []marker.Tag
	seg  model.Segment
	text func(string) string
	pos  int
	idx  int
}

// restore consumes markers until the input ends or, when nested, until the
// </g> closing the current wrapper.
func (tr *tokenRestorer) restore(b *strings.Builder, nested bool) {
	for tr.idx < len(tr.tags) {
		t := tr.tags[tr.idx]
		b.WriteString(tr.text(tr.src[tr.pos:t.Start]))
		tr.pos, tr.idx = t.End, tr.idx+1

		switch t.Kind {
		case marker.Placeholder:
			tok, ok := tr.token(t.ID)
			if ok {
				b.WriteString(tok.OriginalMarkup)
			}
		case marker.GroupOpen:
			var inner strings.Builder
			tr.restore(&inner, true)
			b.WriteString(tr.wrap(t.ID, inner.String()))
		case marker.GroupClose:
			if nested {
				return
			}
			// A stray </g> outside any wrapper is dropped.
		}
	}
	b.WriteString(tr.text(tr.src[tr.pos:]))
	tr.pos = len(tr.src)
}

func (tr *tokenRestorer) token(id string) (model.SpecialToken, bool) {
	tok, ok := tr.seg.SpecialTokens[id]
	if !ok {
		zap.L().Warn("format: marker has no recorded token, dropping it",
			zap.String("segment_id", tr.seg.ID), zap.String("token_id", id))
	}
	return tok, ok
}

func (tr *tokenRestorer) wrap(id, inner string) string {
	tok, ok := tr.token(id)
	if !ok {
		return inner
	}
	if !tok.Wrapping() {
		return tok.OriginalMarkup + inner
	}
	m := reShell.FindStringSubmatch(tok.OriginalMarkup)
	if m == nil {
		zap.L().Warn("format: cannot split token markup, emitting it verbatim",
			zap.String("segment_id", tr.seg.ID), zap.String("token_id", id))
		return tok.OriginalMarkup
	}
	return m[1] + inner + m[3]
}

func normalizeText(s string) string {
	if s == "" {
		return s
	}
	return textEscaper.Replace(html.UnescapeString(s))
}

// markup serializes n the way reconstruction emits it.
func markup(n *html.Node) string {
	var b strings.Builder
	writeMarkup(&b, n)
	return b.String()
}

func innerMarkup(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeMarkup(&b, c)
	}
	return b.String()
}

func writeMarkup(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if n.Parent != nil && skippedTags[n.Parent.Data] {
			b.WriteString(n.Data)
			return
		}
		b.WriteString(textEscaper.Replace(n.Data))
	case html.ElementNode:
		b.WriteString("<" + n.Data)
		for _, a := range n.Attr {
			writeAttr(b, attrKey(a), a.Val)
		}
		if model.IsVoidElement(n.Data) {
			b.WriteString("/>")
			return
		}
		b.WriteString(">")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeMarkup(b, c)
		}
		b.WriteString("</" + n.Data + ">")
	}
}

func writeAttr(b *strings.Builder, key, val string) {
	b.WriteString(" " + key + `="` + attrEscaper.Replace(val) + `"`)
}

func attrKey(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}

// rawNode captures a subtree as literal markup using the parser's own renderer.
func rawNode(n *html.Node) *model.StructureNode {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		zap.L().Warn("html: render raw node", zap.String("tag", n.Data), zap.Error(err))
	}
	return &model.StructureNode{Type: model.NodeRaw, Text: buf.String()}
}

func elementNode(n *html.Node) *model.StructureNode {
	el := &model.StructureNode{Type: model.NodeElement, Tag: n.Data}
	for _, a := range n.Attr {
		el.Attrs = append(el.Attrs, model.Attr{Key: attrKey(a), Val: a.Val})
	}
	return el
}

func attrMap(n *html.Node) map[string]string {
	if len(n.Attr) == 0 {
		return nil
	}
	m := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		m[attrKey(a)] = a.Val
	}
	return m
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if blockTags[c.Data] || hasBlockDescendant(c) {
			return true
		}
	}
	return false
}

// hasContent reports whether a block has something to translate or carry:
// non-blank text, or a void element such as an image that becomes a token.
func hasContent(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return true
			}
		case html.ElementNode:
			if skippedTags[c.Data] {
				continue
			}
			if model.IsVoidElement(c.Data) || hasContent(c) {
				return true
			}
		}
	}
	return false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func closest(n *html.Node, tags ...atom.Atom) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range tags {
			if n.DataAtom == a {
				return n
			}
		}
	}
	return nil
}

// tablePosition returns the 1-based row and column of the cell holding n,
// or zeros when n is not inside a table cell.
func tablePosition(n *html.Node) (row, col int) {
	cell := closest(n, atom.Td, atom.Th)
	if cell == nil || cell.Parent == nil || cell.Parent.DataAtom != atom.Tr {
		return 0, 0
	}
	tr := cell.Parent
	table := closest(tr, atom.Table)
	if table == nil {
		return 0, 0
	}

	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			col++
			if c == cell {
				break
			}
		}
	}

	var walk func(*html.Node) bool
	walk = func(x *html.Node) bool {
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.DataAtom == atom.Table {
				continue
			}
			if c.DataAtom == atom.Tr {
				row++
				if c == tr {
					return true
				}
				continue
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	if !walk(table) {
		return 0, 0
	}
	return row, col
}
