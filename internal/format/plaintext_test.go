package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doctrans/internal/model"
)

func precedingNewlines(t *testing.T, segs []model.Segment) []int {
	t.Helper()
	out := make([]int, 0, len(segs))
	for _, s := range segs {
		require.NotNil(t, s.Metadata.PrecedingNewlines)
		out = append(out, *s.Metadata.PrecedingNewlines)
	}
	return out
}

func TestPlainText_Parse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		contents  []string
		preceding []int
	}{
		{"two paragraphs", "First.\n\nSecond.", []string{"First.", "Second."}, []int{0, 2}},
		{"wide gap", "A\n\n\n\nB", []string{"A", "B"}, []int{0, 4}},
		{"crlf", "A\r\n\r\nB\r\n", []string{"A", "B"}, []int{0, 2}},
		{"whitespace-only separator", "A  \n \t \nB", []string{"A", "B"}, []int{0, 2}},
		{"single newline stays inside a paragraph", "line one\nline two\n\nnext", []string{"line one\nline two", "next"}, []int{0, 2}},
		{"leading blank lines", "\n\nA\n\nB", []string{"A", "B"}, []int{0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewPlainText().Parse(tt.input)
			require.NoError(t, err)
			require.Len(t, res.Segments, len(tt.contents))
			for i, s := range res.Segments {
				assert.Equal(t, tt.contents[i], s.SourceContent)
				assert.Equal(t, i, s.Order)
				assert.Equal(t, i, s.Metadata.ParagraphIndex)
				assert.Equal(t, model.SegmentKindText, s.Kind)
				assert.NotEmpty(t, s.ID)
			}
			assert.Equal(t, tt.preceding, precedingNewlines(t, res.Segments))
		})
	}
}

func TestPlainText_ParseEmpty(t *testing.T) {
	t.Parallel()

	res, err := NewPlainText().Parse("  \n\n ")
	require.NoError(t, err)
	assert.Empty(t, res.Segments)
}

func TestPlainText_RoundTrip(t *testing.T) {
	t.Parallel()

	h := NewPlainText()
	for _, input := range []string{
		"First.\n\nSecond.",
		"A\n\n\nB\n\nC",
		"only one",
		"A\r\n\r\n\r\nB\n",
		"\n\n  indented A  \n \t \nB\n\n",
		"one\r\ntwo\r\n\r\nthree",
	} {
		res, err := h.Parse(input)
		require.NoError(t, err)
		out, err := h.Reconstruct(ReconstructInput{Segments: res.Segments})
		require.NoError(t, err)
		assert.Equal(t, input, out)
	}
}

func TestPlainText_ReconstructDefaultsAndSensitive(t *testing.T) {
	t.Parallel()

	segs := []model.Segment{
		{ID: "b", Order: 1, SourceContent: "Call <PERSON_1>.", MachineTranslatedContent: model.StringPtr("Llame a <PERSON_1>.")},
		{ID: "a", Order: 0, SourceContent: "Hello."},
	}
	out, err := NewPlainText().Reconstruct(ReconstructInput{
		Segments: segs,
		Mappings: []model.SensitiveDataMapping{{SegmentID: "b", TokenIdentifier: "<PERSON_1>", OriginalValue: "Ana"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello.\n\nLlame a Ana.", out)
}

func TestPlainText_KeepsSurroundingWhitespace(t *testing.T) {
	t.Parallel()

	h := NewPlainText()
	res, err := h.Parse("\r\n\r\nline one\r\nline two  \r\n\r\nB\n\n")
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)

	first, last := res.Segments[0].Metadata, res.Segments[1].Metadata
	assert.Equal(t, "line one\nline two", res.Segments[0].SourceContent)
	assert.True(t, first.CRLF)
	assert.Equal(t, "\r\n\r\n", first.Separator)
	assert.Equal(t, "  \r\n\r\n", last.Separator)
	assert.Equal(t, "\n\n", last.Trailing)
	assert.Equal(t, []int{0, 2}, precedingNewlines(t, res.Segments))

	res.Segments[0].EditedContent = model.StringPtr("línea uno\nlínea dos")
	res.Segments[1].EditedContent = model.StringPtr("Be")
	out, err := h.Reconstruct(ReconstructInput{Segments: res.Segments})
	require.NoError(t, err)
	assert.Equal(t, "\r\n\r\nlínea uno\r\nlínea dos  \r\n\r\nBe\n\n", out)
}
