// Package marker scans the synthetic markup carried inside segment text:
// <g id="N" type="T">…</g> wrappers for inline formatting, <ph id="N" type="T"/>
// placeholders for void elements, and <ENTITY_TYPE_N> anonymization tokens.
package marker

import (
	"regexp"
	"strconv"
)

// Kind distinguishes marker tags.
type Kind int

const (
	// GroupOpen is an opening <g …> tag.
	GroupOpen Kind = iota
	// GroupClose is a closing </g> tag.
	GroupClose
	// Placeholder is a self-closing <ph …/> tag.
	Placeholder
)

// Tag is one marker tag found in a string. Start and End are byte offsets
// of the whole tag.
type Tag struct {
	Kind  Kind
	ID    string
	Type  string
	Start int
	End   int
}

var (
	reTag      = regexp.MustCompile(`<(/?)(g|ph)\b([^>]*?)(/?)>`)
	reIDAttr   = regexp.MustCompile(`\bid\s*=\s*"([^"]*)"`)
	reTypeAttr = regexp.MustCompile(`\btype\s*=\s*"([^"]*)"`)

	// Anonymization tokens look like <PERSON_1> or <EMAIL_ADDRESS_12>.
	reEntity = regexp.MustCompile(`<[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)*_[0-9]+>`)
)

// Tags returns every marker tag in s in document order. Attribute order and
// spacing inside a tag are not significant.
func Tags(s string) []Tag {
	matches := reTag.FindAllStringSubmatchIndex(s, -1)
	out := make([]Tag, 0, len(matches))
	for _, m := range matches {
		closing := m[3] > m[2]
		name := s[m[4]:m[5]]
		attrs := s[m[6]:m[7]]
		selfClosing := m[9] > m[8]

		tag := Tag{Start: m[0], End: m[1]}
		switch {
		case name == "g" && closing:
			tag.Kind = GroupClose
		case name == "g" && !selfClosing:
			tag.Kind = GroupOpen
		case name == "ph" && !closing:
			tag.Kind = Placeholder
		default:
			// </ph> or <g/> are not produced by the parser; ignore them.
			continue
		}
		if sub := reIDAttr.FindStringSubmatch(attrs); sub != nil {
			tag.ID = sub[1]
		}
		if sub := reTypeAttr.FindStringSubmatch(attrs); sub != nil {
			tag.Type = sub[1]
		}
		out = append(out, tag)
	}
	return out
}

// Count tallies a multiset of marker ids together with the type seen for
// each id (first occurrence wins).
type Count struct {
	N    map[string]int
	Type map[string]string
	// Order lists ids in first-seen order so reports are deterministic.
	Order []string
}

func newCount() Count {
	return Count{N: map[string]int{}, Type: map[string]string{}}
}

func (c *Count) add(t Tag) {
	if _, seen := c.N[t.ID]; !seen {
		c.Order = append(c.Order, t.ID)
		c.Type[t.ID] = t.Type
	}
	c.N[t.ID]++
}

// Placeholders counts <ph> markers by id.
func Placeholders(s string) Count {
	c := newCount()
	for _, t := range Tags(s) {
		if t.Kind == Placeholder {
			c.add(t)
		}
	}
	return c
}

// Groups counts opening <g> markers by id.
func Groups(s string) Count {
	c := newCount()
	for _, t := range Tags(s) {
		if t.Kind == GroupOpen {
			c.add(t)
		}
	}
	return c
}

// Entities counts anonymization tokens, keyed by the full token text.
func Entities(s string) Count {
	c := newCount()
	for _, tok := range reEntity.FindAllString(s, -1) {
		c.add(Tag{ID: tok})
	}
	return c
}

// Strip removes every marker tag from s, keeping the text wrapped by <g>.
func Strip(s string) string {
	return reTag.ReplaceAllString(s, "")
}

// IDInt parses a marker id, returning -1 when it is not numeric.
func IDInt(id string) int {
	n, err := strconv.Atoi(id)
	if err != nil {
		return -1
	}
	return n
}
