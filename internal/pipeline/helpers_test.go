package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doctrans/internal/anonymize"
	"github.com/sells-group/doctrans/internal/format"
	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/mt"
	"github.com/sells-group/doctrans/internal/queue"
	"github.com/sells-group/doctrans/internal/store"
	"github.com/sells-group/doctrans/pkg/anonymizer"
	"github.com/sells-group/doctrans/pkg/anonymizer/mocks"
)

var fixed = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const plainDoc = "Call John today.\n\nSecond line."

// recordingQueue holds jobs until the test runs them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) pop() (queue.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return queue.Job{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

func (q *recordingQueue) kinds() []queue.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queue.Kind, len(q.jobs))
	for i, j := range q.jobs {
		out[i] = j.Kind
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *recordingSink) Publish(_ context.Context, ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []model.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

// prefixTranslator "translates" by prefixing the target language. It fails
// the first failures calls and runs hook before answering.
type prefixTranslator struct {
	mu       sync.Mutex
	failures int
	calls    int
	hook     func(ctx context.Context)
}

func (tr *prefixTranslator) Translate(ctx context.Context, items []mt.Item, _, targetLang string) (*mt.Response, error) {
	tr.mu.Lock()
	tr.calls++
	fail := tr.calls <= tr.failures
	hook := tr.hook
	tr.mu.Unlock()

	if fail {
		return nil, eris.New("mt service unavailable")
	}
	if hook != nil {
		hook(ctx)
	}
	resp := &mt.Response{Results: make([]mt.Translation, len(items))}
	for i, it := range items {
		resp.Results[i] = mt.Translation{SegmentID: it.ID, TranslatedText: "[" + targetLang + "] " + it.Content}
	}
	return resp, nil
}

type harness struct {
	p     *Pipeline
	store store.Store
	queue *recordingQueue
	sink  *recordingSink
	mt    *prefixTranslator
}

func newHarness(t *testing.T, anon Anonymizer) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	h := &harness{store: st, queue: &recordingQueue{}, sink: &recordingSink{}, mt: &prefixTranslator{}}
	n := 0
	h.p = New(st, h.queue, format.DefaultRegistry(), anon, h.mt,
		WithClock(func() time.Time { return fixed }),
		WithEventSink(h.sink),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("task-%d", n)
		}),
	)
	return h
}

// personAnonymizer replaces "John" in the first segment.
func personAnonymizer(t *testing.T) Anonymizer {
	t.Helper()
	client := mocks.NewMockClient(t)
	client.On("AnonymizeBatch", mock.Anything, mock.Anything).Return([]anonymizer.Result{
		{AnonymizedText: "Call <PERSON_1> today.", Mappings: []anonymizer.Mapping{{Token: "<PERSON_1>", EntityType: "PERSON", Original: "John"}}},
		{AnonymizedText: "Second line."},
	}, nil).Maybe()
	return anonymize.NewMerger(client, anonymize.WithClock(func() time.Time { return fixed }))
}

// drain runs queued jobs until none are left and returns their errors.
func (h *harness) drain(t *testing.T) []error {
	t.Helper()
	var errs []error
	for i := 0; i < 20; i++ {
		job, ok := h.queue.pop()
		if !ok {
			return errs
		}
		if err := h.p.HandleJob(context.Background(), job); err != nil {
			errs = append(errs, err)
		}
	}
	t.Fatal("queue did not drain")
	return nil
}

func (h *harness) task(t *testing.T, id string) *model.TranslationTask {
	t.Helper()
	task, err := h.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func plainInput(mtOnly bool) NewTaskInput {
	return NewTaskInput{
		Type:                   model.DocumentTypePlainText,
		Content:                plainDoc,
		SourceLanguage:         "en",
		TargetLanguage:         "es",
		MachineTranslationOnly: mtOnly,
	}
}
