package format

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doctrans/internal/model"
)

const xliff12 = `<?xml version="1.0" encoding="UTF-8"?>
<xliff version="1.2" xmlns="urn:oasis:names:tc:xliff:document:1.2">
  <file original="app.json" source-language="en" target-language="es" datatype="plaintext">
    <header><tool tool-id="tms"/></header>
    <body>
      <trans-unit id="greeting">
        <source>Hello &amp; welcome</source>
      </trans-unit>
      <group id="menu">
        <trans-unit id="open"><source>Open <x id="1"/>file</source></trans-unit>
        <trans-unit id="close"><source>Close</source></trans-unit>
      </group>
    </body>
  </file>
</xliff>`

const xliff20 = `<?xml version="1.0" encoding="UTF-8"?>
<xliff version="2.0" xmlns="urn:oasis:names:tc:xliff:document:2.0" srcLang="en-US" trgLang="fr">
  <file id="f1">
    <unit id="u1"><segment><source>Good morning</source></segment></unit>
    <unit id="u2"><segment><source>Good night</source></segment></unit>
  </file>
</xliff>`

func TestXLIFF_Parse12(t *testing.T) {
	t.Parallel()

	res, err := NewXLIFF().Parse(xliff12)
	require.NoError(t, err)
	require.Len(t, res.Segments, 3)

	assert.Equal(t, "Hello & welcome", res.Segments[0].SourceContent)
	assert.Equal(t, `Open <ph id="1" type="x"/>file`, res.Segments[1].SourceContent)
	assert.Equal(t, `<x id="1"/>`, res.Segments[1].SpecialTokens["1"].OriginalMarkup)
	assert.Equal(t, "menu", res.Segments[1].Metadata.GroupID)
	assert.Equal(t, "close", res.Segments[2].Metadata.UnitID)
	for i, s := range res.Segments {
		assert.Equal(t, i, s.Order)
		assert.Equal(t, "app.json", s.Metadata.FileID)
		assert.Equal(t, model.SegmentKindXLIFFUnit, s.Kind)
	}

	meta := res.Structure.Xliff
	require.NotNil(t, meta)
	assert.Equal(t, "1.2", meta.Version)
	assert.Equal(t, "en", res.SourceLanguage)
	assert.Equal(t, "es", res.TargetLanguage)
	require.Len(t, meta.Files, 1)
	assert.Equal(t, "tms", meta.Files[0].Tool)
	assert.Nil(t, res.Structure.Root)
}

func TestXLIFF_Parse20(t *testing.T) {
	t.Parallel()

	res, err := NewXLIFF().Parse(xliff20)
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, "Good morning", res.Segments[0].SourceContent)
	assert.Equal(t, "u2", res.Segments[1].Metadata.UnitID)
	assert.Equal(t, "f1", res.Segments[1].Metadata.FileID)
	assert.Equal(t, "2", res.Structure.Xliff.Major())
	assert.Equal(t, "en-US", res.SourceLanguage)
	assert.Equal(t, "fr", res.TargetLanguage)
}

func TestXLIFF_ParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		noContent bool
	}{
		{"empty", "  ", false},
		{"malformed", `<xliff version="1.2"><file><body><trans-unit>`, false},
		{"no units", `<xliff version="1.2"><file original="a"><body></body></file></xliff>`, true},
		{"empty first source", `<xliff version="1.2"><file original="a"><body><trans-unit id="1"><source> </source></trans-unit></body></file></xliff>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewXLIFF().Parse(tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.noContent, eris.Is(err, ErrNoTranslatableContent))
		})
	}
}

func TestXLIFF_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, input := range []string{xliff12, xliff20} {
		h := NewXLIFF()
		res, err := h.Parse(input)
		require.NoError(t, err)

		for i := range res.Segments {
			res.Segments[i].MachineTranslatedContent = model.StringPtr("T<" + res.Segments[i].Metadata.UnitID + ">")
		}
		out, err := h.Reconstruct(ReconstructInput{Structure: res.Structure, Segments: res.Segments})
		require.NoError(t, err)

		again, err := h.Parse(out)
		require.NoError(t, err)
		require.Len(t, again.Segments, len(res.Segments))
		for i := range res.Segments {
			assert.Equal(t, res.Segments[i].SourceContent, again.Segments[i].SourceContent)
			assert.Equal(t, res.Segments[i].Metadata.UnitID, again.Segments[i].Metadata.UnitID)
			assert.Equal(t, res.Segments[i].Metadata.GroupID, again.Segments[i].Metadata.GroupID)
		}
		assert.Equal(t, res.Structure.Xliff.Major(), again.Structure.Xliff.Major())
		assert.Contains(t, out, "&lt;")
	}
}

func TestXLIFF_Reconstruct12(t *testing.T) {
	t.Parallel()

	meta := &model.XliffMetadata{
		Version: "1.2",
		Files:   []model.XliffFile{{ID: "doc", Original: "doc", SourceLanguage: "en"}},
	}
	segs := []model.Segment{
		{ID: "s1", Order: 0, SourceContent: "Hi <PERSON_1>", Metadata: model.FormatMetadata{FileID: "doc", UnitID: "1"},
			MachineTranslatedContent: model.StringPtr("Hola <PERSON_1>")},
	}
	out, err := NewXLIFF().Reconstruct(ReconstructInput{
		Structure:      model.OriginalStructure{Xliff: meta},
		Segments:       segs,
		Mappings:       []model.SensitiveDataMapping{{SegmentID: "s1", TokenIdentifier: "<PERSON_1>", OriginalValue: "Ana & Bo"}},
		TargetLanguage: "es",
	})
	require.NoError(t, err)
	assert.Contains(t, out, `target-language="es"`)
	assert.Contains(t, out, `<trans-unit id="1">`)
	assert.Contains(t, out, `<source>Hi &lt;PERSON_1&gt;</source>`)
	assert.Contains(t, out, `<target>Hola Ana &amp; Bo</target>`)
}

func TestXLIFF_ReconstructMissingMetadata(t *testing.T) {
	t.Parallel()

	_, err := NewXLIFF().Reconstruct(ReconstructInput{})
	assert.Error(t, err)
}

func TestXLIFF_UnitsAndGroupsKeepDocumentOrder(t *testing.T) {
	t.Parallel()

	input := `<xliff version="1.2"><file original="a" source-language="en"><body>
<trans-unit id="u1"><source>one</source></trans-unit>
<group id="g1">
  <trans-unit id="u2"><source>two</source></trans-unit>
  <group id="g2"><trans-unit id="u3"><source>three</source></trans-unit></group>
  <trans-unit id="u4"><source>four</source></trans-unit>
</group>
<trans-unit id="u5"><source>five</source></trans-unit>
</body></file></xliff>`

	h := NewXLIFF()
	res, err := h.Parse(input)
	require.NoError(t, err)

	var ids []string
	for i, s := range res.Segments {
		assert.Equal(t, i, s.Order)
		ids = append(ids, s.Metadata.UnitID)
	}
	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5"}, ids)
	assert.Empty(t, res.Segments[0].Metadata.GroupPath)
	assert.Equal(t, []string{"g1"}, res.Segments[1].Metadata.GroupPath)
	assert.Equal(t, []string{"g1", "g2"}, res.Segments[2].Metadata.GroupPath)
	assert.Equal(t, "g2", res.Segments[2].Metadata.GroupID)
	assert.Equal(t, "g1", res.Segments[3].Metadata.GroupID)

	out, err := h.Reconstruct(ReconstructInput{Structure: res.Structure, Segments: res.Segments, TargetLanguage: "de"})
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, `id="u3"`), strings.Index(out, `id="u4"`))
	assert.Less(t, strings.Index(out, `id="u4"`), strings.Index(out, `id="u5"`))
	assert.Equal(t, 2, strings.Count(out, "<group"))
	assert.Equal(t, 2, strings.Count(out, "</group>"))

	again, err := h.Parse(out)
	require.NoError(t, err)
	require.Len(t, again.Segments, len(res.Segments))
	for i := range res.Segments {
		assert.Equal(t, res.Segments[i].Metadata.UnitID, again.Segments[i].Metadata.UnitID)
		assert.Equal(t, res.Segments[i].Metadata.GroupPath, again.Segments[i].Metadata.GroupPath)
	}
}

func TestXLIFF_InlineCodesSurviveTranslation(t *testing.T) {
	t.Parallel()

	input := `<xliff version="1.2"><file original="a" source-language="en" target-language="es"><body>
<trans-unit id="1"><source>Three &amp; <x id="7"/>four <g id="2" ctype="bold">bold</g></source></trans-unit>
</body></file></xliff>`

	h := NewXLIFF()
	res, err := h.Parse(input)
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)

	seg := res.Segments[0]
	assert.Equal(t, `Three & <ph id="1" type="x"/>four <g id="2" type="g">bold</g>`, seg.SourceContent)
	require.Len(t, seg.SpecialTokens, 2)
	assert.Equal(t, model.TokenInlineCode, seg.SpecialTokens["1"].Kind)
	assert.Equal(t, "7", seg.SpecialTokens["1"].Attrs["id"])
	assert.Equal(t, `<g id="2" ctype="bold">bold</g>`, seg.SpecialTokens["2"].OriginalMarkup)
	assert.Equal(t, "bold", seg.SpecialTokens["2"].InnerHTML)

	res.Segments[0].EditedContent = model.StringPtr(`Tres & <ph id="1" type="x"/>cuatro <g id="2" type="g">negrita</g>`)
	out, err := h.Reconstruct(ReconstructInput{Structure: res.Structure, Segments: res.Segments})
	require.NoError(t, err)
	assert.Contains(t, out, `<source>Three &amp; <x id="7"/>four <g id="2" ctype="bold">bold</g></source>`)
	assert.Contains(t, out, `<target>Tres &amp; <x id="7"/>cuatro <g id="2" ctype="bold">negrita</g></target>`)
}
