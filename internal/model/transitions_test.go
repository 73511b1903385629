package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTask() TranslationTask {
	task, _ := NewTask("task-1", DocumentTypeHTML, "<p>Hi</p>", "en", "es", "en-es", t0)
	return task
}

// advance drives a new task to the requested stage along the happy path.
func advance(t *testing.T, stage TaskStage) TranslationTask {
	t.Helper()
	task := newTestTask()
	var err error
	steps := []struct {
		stage TaskStage
		fn    func(TranslationTask) (TranslationTask, Event, error)
	}{
		{StageProcessing, func(x TranslationTask) (TranslationTask, Event, error) { return x.StartProcessing(t0) }},
		{StageQueuedForMT, func(x TranslationTask) (TranslationTask, Event, error) {
			return x.CompleteProcessing(&OriginalStructure{}, 3, t0)
		}},
		{StageMachineTranslating, func(x TranslationTask) (TranslationTask, Event, error) { return x.StartMachineTranslation(t0) }},
		{StageQueuedForEditing, func(x TranslationTask) (TranslationTask, Event, error) { return x.CompleteMachineTranslation(t0) }},
		{StageEditing, func(x TranslationTask) (TranslationTask, Event, error) { return x.StartEditing("editor-7", t0) }},
	}
	for _, s := range steps {
		if task.Stage == stage {
			return task
		}
		task, _, err = s.fn(task)
		require.NoError(t, err)
	}
	require.Equal(t, stage, task.Stage)
	return task
}

func TestNewTask(t *testing.T) {
	t.Parallel()

	task, ev := NewTask("id-1", DocumentTypeXLIFF, "<xliff/>", "en", "fr", "en-fr", t0)
	assert.Equal(t, TaskStatusNew, task.Status)
	assert.Equal(t, StageQueuedForProcessing, task.Stage)
	assert.Equal(t, EventTaskCreated, ev.Kind)
	assert.Equal(t, "id-1", ev.TaskID)
}

func TestHappyPath_EmitsOneEventPerTransition(t *testing.T) {
	t.Parallel()

	task := newTestTask()
	var kinds []EventKind

	next, ev, err := task.StartProcessing(t0)
	require.NoError(t, err)
	assert.Equal(t, StageQueuedForProcessing, ev.PreviousStage)
	assert.Equal(t, TaskStatusNew, ev.PreviousStatus)
	kinds = append(kinds, ev.Kind)

	next, ev, err = next.CompleteProcessing(&OriginalStructure{}, 12, t0)
	require.NoError(t, err)
	assert.Equal(t, 12, next.WordCount)
	kinds = append(kinds, ev.Kind)

	next, ev, err = next.StartMachineTranslation(t0)
	require.NoError(t, err)
	kinds = append(kinds, ev.Kind)

	next, ev, err = next.CompleteMachineTranslation(t0)
	require.NoError(t, err)
	assert.Equal(t, StageQueuedForEditing, next.Stage)
	kinds = append(kinds, ev.Kind)

	next, ev, err = next.StartEditing("editor-1", t0)
	require.NoError(t, err)
	assert.Equal(t, "editor-1", next.EditorID)
	kinds = append(kinds, ev.Kind)

	next, ev, err = next.CompleteTask("<p>Hola</p>", t0)
	require.NoError(t, err)
	kinds = append(kinds, ev.Kind)

	assert.Equal(t, TaskStatusCompleted, next.Status)
	assert.Equal(t, StageCompleted, next.Stage)
	require.NotNil(t, next.FinalContent)
	assert.Equal(t, "<p>Hola</p>", *next.FinalContent)
	require.NotNil(t, next.CompletedAt)
	assert.Equal(t, []EventKind{
		EventProcessingStarted, EventProcessingCompleted, EventMTStarted,
		EventMTCompleted, EventEditingStarted, EventTaskCompleted,
	}, kinds)
}

func TestCompleteTask_FromProcessing_Rejected(t *testing.T) {
	t.Parallel()

	task := advance(t, StageProcessing)
	next, ev, err := task.CompleteTask("x", t0)

	require.Error(t, err)
	var ise *InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, StatePair{StageProcessing, TaskStatusInProgress}, ise.Actual)
	assert.Contains(t, err.Error(), "EDITING/IN_PROGRESS")
	assert.Contains(t, err.Error(), "PROCESSING/IN_PROGRESS")

	assert.Equal(t, StageProcessing, next.Stage)
	assert.Equal(t, TaskStatusInProgress, next.Status)
	assert.Nil(t, next.FinalContent)
	assert.Empty(t, ev.Kind)
}

func TestStartProcessing_Twice_FailsFast(t *testing.T) {
	t.Parallel()

	task := advance(t, StageProcessing)
	_, _, err := task.StartProcessing(t0)
	require.Error(t, err)
	var ise *InvalidStateError
	assert.True(t, errors.As(err, &ise))
}

func TestCompleteTask_MachineTranslationOnly(t *testing.T) {
	t.Parallel()

	task := advance(t, StageQueuedForEditing)
	_, _, err := task.CompleteTask("x", t0)
	require.Error(t, err, "human-edited tasks must pass through EDITING")

	task.MachineTranslationOnly = true
	next, _, err := task.CompleteTask("x", t0)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, next.Status)
}

func TestStartEditing_RequiresEditor(t *testing.T) {
	t.Parallel()

	task := advance(t, StageQueuedForEditing)
	_, _, err := task.StartEditing("  ", t0)
	assert.ErrorIs(t, err, ErrEditorRequired)
}

func TestRejectTask(t *testing.T) {
	t.Parallel()

	task := advance(t, StageEditing)
	next, ev, err := task.RejectTask("source is not translatable", t0)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusRejected, next.Status)
	assert.Equal(t, StageEditing, next.Stage)
	assert.Equal(t, "source is not translatable", next.RejectionReason)
	assert.Equal(t, EventTaskRejected, ev.Kind)

	_, _, err = next.RejectTask("again", t0)
	assert.Error(t, err, "rejected tasks are terminal")

	_, _, err = task.RejectTask("", t0)
	assert.ErrorIs(t, err, ErrReasonRequired)
}

func TestCancelTask(t *testing.T) {
	t.Parallel()

	task := advance(t, StageMachineTranslating)
	next, ev, err := task.CancelTask("customer withdrew", t0)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCanceled, next.Status)
	assert.Equal(t, StageCanceled, next.Stage)
	assert.Equal(t, StageMachineTranslating, ev.PreviousStage)
	assert.True(t, next.Status.Terminal())

	_, _, err = newTestTask().CancelTask("", t0)
	assert.Error(t, err, "NEW tasks are not in progress")
}

func TestHandleProcessingError_KeepsStage(t *testing.T) {
	t.Parallel()

	task := advance(t, StageProcessing)
	next, ev, err := task.HandleProcessingError("xliff: no translation units", t0)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusError, next.Status)
	assert.Equal(t, StageProcessing, next.Stage)
	assert.Equal(t, "xliff: no translation units", next.ErrorMessage)
	assert.Equal(t, EventProcessingError, ev.Kind)
	assert.False(t, next.Status.Terminal())

	// Redelivery re-enters PROCESSING and clears the error.
	again, _, err := next.StartProcessing(t0)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusInProgress, again.Status)
	assert.Empty(t, again.ErrorMessage)
}

func TestHandleProcessingError_TerminalRejected(t *testing.T) {
	t.Parallel()

	task := advance(t, StageEditing)
	done, _, err := task.CompleteTask("x", t0)
	require.NoError(t, err)
	_, _, err = done.HandleProcessingError("late failure", t0)
	assert.Error(t, err)
}

func TestRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stage      TaskStage
		wantStage  TaskStage
		wantStatus TaskStatus
	}{
		{"processing", StageProcessing, StageQueuedForProcessing, TaskStatusNew},
		{"machine translating", StageMachineTranslating, StageQueuedForMT, TaskStatusInProgress},
		{"queued for mt", StageQueuedForMT, StageQueuedForMT, TaskStatusInProgress},
		{"editing", StageEditing, StageEditing, TaskStatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			task := advance(t, tt.stage)
			failed, _, err := task.HandleProcessingError("boom", t0)
			require.NoError(t, err)

			next, ev, err := failed.Retry(t0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStage, next.Stage)
			assert.Equal(t, tt.wantStatus, next.Status)
			assert.Equal(t, EventTaskRetried, ev.Kind)
			assert.Equal(t, "boom", ev.Detail)
		})
	}

	_, _, err := advance(t, StageEditing).Retry(t0)
	assert.Error(t, err, "only errored tasks can be retried")
}

func TestTaskStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusRejected.Terminal())
	assert.True(t, TaskStatusCanceled.Terminal())
	assert.False(t, TaskStatusError.Terminal())
	assert.False(t, TaskStatusInProgress.Terminal())
	assert.False(t, TaskStatusNew.Terminal())
}
