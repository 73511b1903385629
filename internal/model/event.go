package model

import "time"

// EventKind names a domain event emitted by a task transition.
type EventKind string

const (
	EventTaskCreated         EventKind = "task_created"
	EventProcessingStarted   EventKind = "processing_started"
	EventProcessingCompleted EventKind = "processing_completed"
	EventMTStarted           EventKind = "mt_started"
	EventMTCompleted         EventKind = "mt_completed"
	EventQueuedForEditing    EventKind = "queued_for_editing"
	EventEditingStarted      EventKind = "editing_started"
	EventTaskCompleted       EventKind = "task_completed"
	EventTaskRejected        EventKind = "task_rejected"
	EventTaskCanceled        EventKind = "task_canceled"
	EventProcessingError     EventKind = "processing_error"
	EventTaskRetried         EventKind = "task_retried"
)

// Event is the record of one task transition. It is the only signal other
// subsystems receive about a task changing state.
type Event struct {
	Kind           EventKind  `json:"kind"`
	TaskID         string     `json:"task_id"`
	PreviousStage  TaskStage  `json:"previous_stage,omitempty"`
	PreviousStatus TaskStatus `json:"previous_status,omitempty"`
	Stage          TaskStage  `json:"stage"`
	Status         TaskStatus `json:"status"`
	Detail         string     `json:"detail,omitempty"`
	At             time.Time  `json:"at"`
}

// QueuedForEditingEvent announces that a machine-translated task is waiting
// for an editor. It follows mt_completed for tasks that need human review.
func QueuedForEditingEvent(t TranslationTask, at time.Time) Event {
	return Event{
		Kind:           EventQueuedForEditing,
		TaskID:         t.ID,
		PreviousStage:  StageMachineTranslating,
		PreviousStatus: t.Status,
		Stage:          t.Stage,
		Status:         t.Status,
		At:             at,
	}
}
