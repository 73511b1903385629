package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegment_EffectiveContent(t *testing.T) {
	t.Parallel()

	seg := Segment{SourceContent: "source"}
	assert.Equal(t, "source", seg.EffectiveContent())

	seg.MachineTranslatedContent = StringPtr("mt")
	assert.Equal(t, "mt", seg.EffectiveContent())

	seg.EditedContent = StringPtr("edited")
	assert.Equal(t, "edited", seg.EffectiveContent())

	seg.EditedContent = StringPtr("")
	assert.Equal(t, "", seg.EffectiveContent(), "an explicit empty edit still wins")
}

func TestSegment_TranslatableContent(t *testing.T) {
	t.Parallel()

	seg := Segment{SourceContent: "Call John"}
	assert.Equal(t, "Call John", seg.TranslatableContent())

	seg.AnonymizedContent = "Call <PERSON_1>"
	assert.Equal(t, "Call <PERSON_1>", seg.TranslatableContent())
}

func TestSpecialToken_Marker(t *testing.T) {
	t.Parallel()

	link := SpecialToken{ID: 1, Kind: TokenInlineFormatting, Tag: "a"}
	assert.Equal(t, `<g id="1" type="a">here</g>`, link.Marker("here"))

	img := SpecialToken{ID: 2, Kind: TokenImage, Tag: "img"}
	assert.Equal(t, `<ph id="2" type="img"/>`, img.Marker(""))

	br := SpecialToken{ID: 3, Kind: TokenInlineFormatting, Tag: "br"}
	assert.Equal(t, `<ph id="3" type="br"/>`, br.Marker(""))

	code := SpecialToken{ID: 4, Kind: TokenInlineCode, Tag: "x", OriginalMarkup: `<x id="7"/>`}
	assert.False(t, code.Wrapping())
	assert.Equal(t, `<ph id="4" type="x"/>`, code.Marker(""))
}

func TestSpecialToken_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, SpecialToken{ID: 1, Kind: TokenInlineFormatting, Tag: "b"}.Validate())
	assert.NoError(t, SpecialToken{ID: 2, Kind: TokenImage, Tag: "img"}.Validate())
	assert.Error(t, SpecialToken{ID: 3, Kind: TokenImage, Tag: "span"}.Validate())
	assert.Error(t, SpecialToken{ID: 4, Kind: "VIDEO", Tag: "video"}.Validate())
	assert.Error(t, SpecialToken{ID: 5, Kind: TokenInlineFormatting}.Validate())
	assert.NoError(t, SpecialToken{ID: 6, Kind: TokenInlineCode, Tag: "x", OriginalMarkup: `<x id="1"/>`}.Validate())
	assert.Error(t, SpecialToken{ID: 7, Kind: TokenInlineCode, Tag: "x"}.Validate())
}

func TestXliffMetadata_Major(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1", XliffMetadata{Version: "1.2"}.Major())
	assert.Equal(t, "2", XliffMetadata{Version: "2.0"}.Major())
	assert.Equal(t, "1", XliffMetadata{}.Major())
}

func TestMappingsBySegment(t *testing.T) {
	t.Parallel()

	grouped := MappingsBySegment([]SensitiveDataMapping{
		{SegmentID: "a", TokenIdentifier: "<PERSON_1>"},
		{SegmentID: "b", TokenIdentifier: "<EMAIL_1>"},
		{SegmentID: "a", TokenIdentifier: "<PERSON_2>"},
	})
	assert.Len(t, grouped["a"], 2)
	assert.Len(t, grouped["b"], 1)
}
