package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doctrans/internal/model"
)

const original = `Hi <PERSON_1>, see <g id="1" type="a">the <g id="2" type="b">docs</g></g><ph id="3" type="br"/> or mail <EMAIL_1>.`

func TestValidate_Symmetric(t *testing.T) {
	t.Parallel()

	for _, s := range []string{original, "", "plain text", `<ph id="1" type="img"/>`, `<PERSON_1> <PERSON_1>`} {
		res := Validate(s, s)
		assert.True(t, res.Valid, s)
		assert.Nil(t, res.Err)
	}
}

func TestValidate_ReorderedTextIsValid(t *testing.T) {
	t.Parallel()

	edited := `<ph type="br" id="3"/>Hola <PERSON_1>: escribe a <EMAIL_1> o mira <g id="1" type="a">la <g id="2" type="b">doc</g></g>.`
	assert.True(t, Validate(original, edited).Valid)
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		edited string
		check  Check
		id     string
		want   int
		got    int
	}{
		{
			name:   "removed placeholder",
			edited: `Hi <PERSON_1>, see <g id="1" type="a">the <g id="2" type="b">docs</g></g> or mail <EMAIL_1>.`,
			check:  CheckPlaceholders, id: "3", want: 1, got: 0,
		},
		{
			name:   "placeholder type changed",
			edited: `Hi <PERSON_1>, see <g id="1" type="a">the <g id="2" type="b">docs</g></g><ph id="3" type="img"/> or mail <EMAIL_1>.`,
			check:  CheckPlaceholders, id: "3", want: 1, got: 1,
		},
		{
			name:   "extra format tag",
			edited: `Hi <PERSON_1>, see <g id="1" type="a">the <g id="2" type="b">docs</g></g><ph id="3" type="br"/> <g id="4" type="i">or</g> mail <EMAIL_1>.`,
			check:  CheckFormatTags, id: "4", want: 0, got: 1,
		},
		{
			name:   "format tag removed",
			edited: `Hi <PERSON_1>, see <g id="1" type="a">the docs</g><ph id="3" type="br"/> or mail <EMAIL_1>.`,
			check:  CheckFormatTags, id: "2", want: 1, got: 0,
		},
		{
			name:   "entity deleted",
			edited: `Hi, see <g id="1" type="a">the <g id="2" type="b">docs</g></g><ph id="3" type="br"/> or mail <EMAIL_1>.`,
			check:  CheckEntities, id: "<PERSON_1>", want: 1, got: 0,
		},
		{
			name:   "entity fabricated",
			edited: `Hi <PERSON_1>, see <g id="1" type="a">the <g id="2" type="b">docs</g></g><ph id="3" type="br"/> or mail <EMAIL_1> <PHONE_1>.`,
			check:  CheckEntities, id: "<PHONE_1>", want: 0, got: 1,
		},
		{
			name:   "entity duplicated",
			edited: `Hi <PERSON_1> <PERSON_1>, see <g id="1" type="a">the <g id="2" type="b">docs</g></g><ph id="3" type="br"/> or mail <EMAIL_1>.`,
			check:  CheckEntities, id: "<PERSON_1>", want: 1, got: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Validate(original, tt.edited)
			require.False(t, res.Valid)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.check, res.Err.Check)
			assert.Equal(t, tt.id, res.Err.ID)
			assert.Equal(t, tt.want, res.Err.Expected)
			assert.Equal(t, tt.got, res.Err.Actual)
			assert.Contains(t, res.Err.Error(), tt.id)
		})
	}
}

func TestValidate_PlaceholdersCheckedFirst(t *testing.T) {
	t.Parallel()

	// Both a placeholder and an entity are missing; the placeholder wins.
	res := Validate(`<PERSON_1><ph id="1" type="br"/>`, "")
	require.NotNil(t, res.Err)
	assert.Equal(t, CheckPlaceholders, res.Err.Check)
}

func TestValidateSubmission(t *testing.T) {
	t.Parallel()

	segs := []model.Segment{
		{ID: "s1", Order: 0, SourceContent: "Hello John", AnonymizedContent: "Hello <PERSON_1>"},
		{ID: "s2", Order: 1, SourceContent: `Read <g id="1" type="a">this</g>`},
	}

	require.NoError(t, ValidateSubmission(segs, map[string]string{
		"s1": "Hola <PERSON_1>",
		"s2": `Lee <g id="1" type="a">esto</g>`,
	}))
	require.NoError(t, ValidateSubmission(segs, nil))

	err := ValidateSubmission(segs, map[string]string{
		"s1": "Hola <PERSON_1>",
		"s2": "Lee esto",
	})
	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "s2", mm.SegmentID)
	assert.Equal(t, CheckFormatTags, mm.Check)

	err = ValidateSubmission(segs, map[string]string{"s1": "Hola John"})
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, CheckEntities, mm.Check, "edits are checked against the anonymized text")

	err = ValidateSubmission(segs, map[string]string{"other": "x"})
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, CheckSegment, mm.Check)
}
