package model

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
)

// TokenKind is the closed set of special-token variants.
type TokenKind string

const (
	TokenInlineFormatting TokenKind = "INLINE_FORMATTING"
	TokenImage            TokenKind = "IMAGE"
	// TokenInlineCode is an opaque XLIFF inline code such as <x/> or <ph>.
	TokenInlineCode TokenKind = "INLINE_CODE"
)

// SpecialToken is non-translatable inline markup pulled out of an HTML block
// or an XLIFF source and replaced by a <g>/<ph> marker in the segment text.
type SpecialToken struct {
	ID             int               `json:"id"`
	Kind           TokenKind         `json:"type"`
	Tag            string            `json:"tag"`
	Attrs          map[string]string `json:"attrs,omitempty"`
	OriginalMarkup string            `json:"original_markup"`

	// InnerHTML is set for wrapping (INLINE_FORMATTING) tokens.
	InnerHTML string `json:"inner_html,omitempty"`

	// Src and Alt are set for IMAGE tokens.
	Src string `json:"src,omitempty"`
	Alt string `json:"alt,omitempty"`
}

// Key is the map key used in Segment.SpecialTokens.
func (t SpecialToken) Key() string {
	return strconv.Itoa(t.ID)
}

// Wrapping reports whether the token is rendered as <g>…</g> (true) or
// as a self-closing <ph/> (false).
func (t SpecialToken) Wrapping() bool {
	switch t.Kind {
	case TokenInlineFormatting:
		return !IsVoidElement(t.Tag)
	case TokenImage, TokenInlineCode:
		return false
	default:
		return false
	}
}

// Marker renders the synthetic marker substituted into segment text.
func (t SpecialToken) Marker(inner string) string {
	if t.Wrapping() {
		return fmt.Sprintf(`<g id="%d" type="%s">%s</g>`, t.ID, t.Tag, inner)
	}
	return fmt.Sprintf(`<ph id="%d" type="%s"/>`, t.ID, t.Tag)
}

// Validate checks that the token carries the fields its kind requires.
func (t SpecialToken) Validate() error {
	switch t.Kind {
	case TokenInlineFormatting:
		if t.Tag == "" {
			return eris.Errorf("token %d: inline formatting token has no tag", t.ID)
		}
	case TokenInlineCode:
		if t.OriginalMarkup == "" {
			return eris.Errorf("token %d: inline code has no markup", t.ID)
		}
	case TokenImage:
		if t.Tag != "img" {
			return eris.Errorf("token %d: image token must wrap <img>, got <%s>", t.ID, t.Tag)
		}
	default:
		return eris.Errorf("token %d: unknown kind %q", t.ID, t.Kind)
	}
	return nil
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// IsVoidElement reports whether an HTML tag never has content or a closing tag.
func IsVoidElement(tag string) bool {
	return voidElements[tag]
}
