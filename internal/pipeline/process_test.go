package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/doctrans/internal/model"
)

func TestAdoptSegmentIDs(t *testing.T) {
	t.Parallel()

	parsed := []model.Segment{
		{ID: "new-0", Order: 0, SourceContent: "a"},
		{ID: "new-1", Order: 1, SourceContent: "b"},
		{ID: "new-2", Order: 2, SourceContent: "c"},
	}
	existing := []model.Segment{
		{ID: "old-0", Order: 0},
		{ID: "old-1", Order: 1},
	}

	got := adoptSegmentIDs(parsed, existing)
	assert.Equal(t, "old-0", got[0].ID)
	assert.Equal(t, "old-1", got[1].ID)
	assert.Equal(t, "new-2", got[2].ID)
	assert.Equal(t, "new-0", parsed[0].ID, "input is not modified")
}

func TestNewMappings(t *testing.T) {
	t.Parallel()

	prior := []model.SensitiveDataMapping{{ID: "m1", SegmentID: "s1", TokenIdentifier: "<PERSON_1>"}}
	fresh := []model.SensitiveDataMapping{
		{ID: "m2", SegmentID: "s1", TokenIdentifier: "<PERSON_1>"},
		{ID: "m3", SegmentID: "s1", TokenIdentifier: "<EMAIL_1>"},
		{ID: "m4", SegmentID: "s2", TokenIdentifier: "<PERSON_1>"},
	}

	got := newMappings(fresh, prior)
	assert.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].ID)
	assert.Equal(t, "m4", got[1].ID)
	assert.Len(t, fresh, 3)
}

func TestMultiSink(t *testing.T) {
	t.Parallel()

	a, b := &recordingSink{}, &recordingSink{}
	var seen []model.EventKind
	sink := MultiSink{a, LogSink{}, b, EventSinkFunc(func(_ context.Context, ev model.Event) {
		seen = append(seen, ev.Kind)
	})}

	sink.Publish(context.Background(), model.Event{Kind: model.EventTaskCanceled, TaskID: "t1", Detail: "dup"})
	assert.Equal(t, []model.EventKind{model.EventTaskCanceled}, a.kinds())
	assert.Equal(t, []model.EventKind{model.EventTaskCanceled}, b.kinds())
	assert.Equal(t, []model.EventKind{model.EventTaskCanceled}, seen)
}
