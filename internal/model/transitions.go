package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// StatePair is one accepted (stage, status) combination for a transition.
type StatePair struct {
	Stage  TaskStage
	Status TaskStatus
}

func (p StatePair) String() string {
	return string(p.Stage) + "/" + string(p.Status)
}

// InvalidStateError is returned when a transition is attempted from a
// stage/status the transition does not accept.
type InvalidStateError struct {
	Op       string
	TaskID   string
	Expected []StatePair
	Actual   StatePair
}

func (e *InvalidStateError) Error() string {
	exp := make([]string, len(e.Expected))
	for i, p := range e.Expected {
		exp[i] = p.String()
	}
	return fmt.Sprintf("task %s: cannot %s: expected %s, got %s",
		e.TaskID, e.Op, strings.Join(exp, " or "), e.Actual)
}

// ErrEditorRequired is returned by StartEditing when no editor id is given.
var ErrEditorRequired = eris.New("model: editor id is required")

// ErrReasonRequired is returned by RejectTask when no reason is given.
var ErrReasonRequired = eris.New("model: rejection reason is required")

func (t TranslationTask) guard(op string, accepted ...StatePair) error {
	actual := StatePair{Stage: t.Stage, Status: t.Status}
	for _, p := range accepted {
		if p == actual {
			return nil
		}
	}
	return &InvalidStateError{Op: op, TaskID: t.ID, Expected: accepted, Actual: actual}
}

func (t TranslationTask) move(kind EventKind, stage TaskStage, status TaskStatus, now time.Time) (TranslationTask, Event) {
	ev := Event{
		Kind:           kind,
		TaskID:         t.ID,
		PreviousStage:  t.Stage,
		PreviousStatus: t.Status,
		Stage:          stage,
		Status:         status,
		At:             now,
	}
	t.Stage = stage
	t.Status = status
	t.UpdatedAt = now
	return t, ev
}

func stamp(now time.Time) *time.Time {
	return &now
}

// StartProcessing moves a queued task into PROCESSING. A task left in ERROR
// while processing may be restarted, which is how queue redelivery resumes.
func (t TranslationTask) StartProcessing(now time.Time) (TranslationTask, Event, error) {
	if err := t.guard("start processing",
		StatePair{StageQueuedForProcessing, TaskStatusNew},
		StatePair{StageProcessing, TaskStatusError},
	); err != nil {
		return t, Event{}, err
	}
	next, ev := t.move(EventProcessingStarted, StageProcessing, TaskStatusInProgress, now)
	next.ErrorMessage = ""
	next.ProcessingStartedAt = stamp(now)
	return next, ev, nil
}

// CompleteProcessing records parse output and queues the task for MT.
func (t TranslationTask) CompleteProcessing(structure *OriginalStructure, wordCount int, now time.Time) (TranslationTask, Event, error) {
	if err := t.guard("complete processing",
		StatePair{StageProcessing, TaskStatusInProgress},
	); err != nil {
		return t, Event{}, err
	}
	next, ev := t.move(EventProcessingCompleted, StageQueuedForMT, TaskStatusInProgress, now)
	next.OriginalStructure = structure
	next.WordCount = wordCount
	next.ProcessingCompletedAt = stamp(now)
	return next, ev, nil
}

// StartMachineTranslation moves a task into MACHINE_TRANSLATING.
func (t TranslationTask) StartMachineTranslation(now time.Time) (TranslationTask, Event, error) {
	if err := t.guard("start machine translation",
		StatePair{StageQueuedForMT, TaskStatusInProgress},
		StatePair{StageMachineTranslating, TaskStatusError},
	); err != nil {
		return t, Event{}, err
	}
	next, ev := t.move(EventMTStarted, StageMachineTranslating, TaskStatusInProgress, now)
	next.ErrorMessage = ""
	next.MTStartedAt = stamp(now)
	return next, ev, nil
}

// CompleteMachineTranslation queues the task for editing.
func (t TranslationTask) CompleteMachineTranslation(now time.Time) (TranslationTask, Event, error) {
	if err := t.guard("complete machine translation",
		StatePair{StageMachineTranslating, TaskStatusInProgress},
	); err != nil {
		return t, Event{}, err
	}
	next, ev := t.move(EventMTCompleted, StageQueuedForEditing, TaskStatusInProgress, now)
	next.MTCompletedAt = stamp(now)
	return next, ev, nil
}

// StartEditing assigns an editor and moves the task into EDITING.
func (t TranslationTask) StartEditing(editorID string, now time.Time) (TranslationTask, Event, error) {
	if err := t.guard("start editing",
		StatePair{StageQueuedForEditing, TaskStatusInProgress},
	); err != nil {
		return t, Event{}, err
	}
	if strings.TrimSpace(editorID) == "" {
		return t, Event{}, ErrEditorRequired
	}
	next, ev := t.move(EventEditingStarted, StageEditing, TaskStatusInProgress, now)
	next.EditorID = editorID
	next.EditingStartedAt = stamp(now)
	ev.Detail = editorID
	return next, ev, nil
}

// CompleteTask stores the reconstructed document and finishes the task.
// Machine-translation-only tasks complete straight from QUEUED_FOR_EDITING.
func (t TranslationTask) CompleteTask(finalContent string, now time.Time) (TranslationTask, Event, error) {
	accepted := []StatePair{{StageEditing, TaskStatusInProgress}}
	if t.MachineTranslationOnly {
		accepted = append(accepted, StatePair{StageQueuedForEditing, TaskStatusInProgress})
	}
	if err := t.guard("complete task", accepted...); err != nil {
		return t, Event{}, err
	}
	next, ev := t.move(EventTaskCompleted, StageCompleted, TaskStatusCompleted, now)
	next.FinalContent = &finalContent
	next.CompletedAt = stamp(now)
	return next, ev, nil
}

// inProgressPairs lists every stage a task can occupy while IN_PROGRESS.
func inProgressPairs() []StatePair {
	stages := []TaskStage{
		StageProcessing, StageQueuedForMT, StageMachineTranslating,
		StageQueuedForEditing, StageEditing,
	}
	out := make([]StatePair, len(stages))
	for i, s := range stages {
		out[i] = StatePair{s, TaskStatusInProgress}
	}
	return out
}

// RejectTask ends an in-progress task as REJECTED. The stage is kept so the
// rejection point stays visible.
func (t TranslationTask) RejectTask(reason string, now time.Time) (TranslationTask, Event, error) {
	if err := t.guard("reject task", inProgressPairs()...); err != nil {
		return t, Event{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return t, Event{}, ErrReasonRequired
	}
	next, ev := t.move(EventTaskRejected, t.Stage, TaskStatusRejected, now)
	next.RejectionReason = reason
	ev.Detail = reason
	return next, ev, nil
}

// CancelTask ends an in-progress task. In-flight jobs are not interrupted;
// they observe the new status and stop on their own.
func (t TranslationTask) CancelTask(reason string, now time.Time) (TranslationTask, Event, error) {
	if err := t.guard("cancel task", inProgressPairs()...); err != nil {
		return t, Event{}, err
	}
	next, ev := t.move(EventTaskCanceled, StageCanceled, TaskStatusCanceled, now)
	next.CancellationReason = reason
	ev.Detail = reason
	return next, ev, nil
}

// HandleProcessingError flags the task as ERROR without moving its stage.
func (t TranslationTask) HandleProcessingError(message string, now time.Time) (TranslationTask, Event, error) {
	accepted := append(inProgressPairs(), StatePair{StageQueuedForProcessing, TaskStatusNew})
	if err := t.guard("handle processing error", accepted...); err != nil {
		return t, Event{}, err
	}
	next, ev := t.move(EventProcessingError, t.Stage, TaskStatusError, now)
	next.ErrorMessage = message
	ev.Detail = message
	return next, ev, nil
}

// Retry re-queues an errored task at the start of the stage that failed.
func (t TranslationTask) Retry(now time.Time) (TranslationTask, Event, error) {
	if t.Status != TaskStatusError {
		return t, Event{}, &InvalidStateError{
			Op:       "retry task",
			TaskID:   t.ID,
			Expected: []StatePair{{t.Stage, TaskStatusError}},
			Actual:   StatePair{t.Stage, t.Status},
		}
	}
	stage, status := t.Stage, TaskStatusInProgress
	switch t.Stage {
	case StageQueuedForProcessing, StageProcessing:
		stage, status = StageQueuedForProcessing, TaskStatusNew
	case StageMachineTranslating:
		stage = StageQueuedForMT
	}
	next, ev := t.move(EventTaskRetried, stage, status, now)
	ev.Detail = t.ErrorMessage
	next.ErrorMessage = ""
	return next, ev, nil
}
