package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTags(t *testing.T) {
	t.Parallel()

	tags := Tags(`A <g id="1" type="b">x <ph type="img" id="2"/></g> <g  id="3"  type="a" >y</g>`)
	require.Len(t, tags, 5)

	assert.Equal(t, GroupOpen, tags[0].Kind)
	assert.Equal(t, "1", tags[0].ID)
	assert.Equal(t, "b", tags[0].Type)

	assert.Equal(t, Placeholder, tags[1].Kind)
	assert.Equal(t, "2", tags[1].ID, "attribute order does not matter")
	assert.Equal(t, "img", tags[1].Type)

	assert.Equal(t, GroupClose, tags[2].Kind)
	assert.Equal(t, "3", tags[3].ID)
	assert.Equal(t, GroupClose, tags[4].Kind)
}

func TestTags_IgnoresOtherMarkup(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Tags(`<b>bold</b> <PERSON_1> <p>para</p> <gx id="1">`))
}

func TestCounts(t *testing.T) {
	t.Parallel()

	s := `<ph id="1" type="br"/><ph id="1" type="br"/><g id="2" type="i">x</g> <PERSON_1> and <PERSON_1>, <EMAIL_ADDRESS_2>`

	ph := Placeholders(s)
	assert.Equal(t, 2, ph.N["1"])
	assert.Equal(t, "br", ph.Type["1"])

	g := Groups(s)
	assert.Equal(t, map[string]int{"2": 1}, g.N)

	ent := Entities(s)
	assert.Equal(t, map[string]int{"<PERSON_1>": 2, "<EMAIL_ADDRESS_2>": 1}, ent.N)
	assert.Equal(t, []string{"<PERSON_1>", "<EMAIL_ADDRESS_2>"}, ent.Order)
}

func TestStrip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Click here now", Strip(`Click <g id="1" type="a">here</g> now<ph id="2" type="br"/>`))
}

func TestIDInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 12, IDInt("12"))
	assert.Equal(t, -1, IDInt("x"))
}
