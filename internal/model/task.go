package model

import (
	"time"
)

// DocumentType identifies the source format of a translation task.
type DocumentType string

const (
	DocumentTypePlainText DocumentType = "PLAIN_TEXT"
	DocumentTypeHTML      DocumentType = "HTML"
	DocumentTypeXLIFF     DocumentType = "XLIFF"
)

// Valid reports whether t is one of the supported document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypePlainText, DocumentTypeHTML, DocumentTypeXLIFF:
		return true
	default:
		return false
	}
}

// TaskStatus is the coarse lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusError      TaskStatus = "ERROR"
	TaskStatusRejected   TaskStatus = "REJECTED"
	TaskStatusCanceled   TaskStatus = "CANCELED"
)

// Terminal reports whether no further transition may leave this status.
// ERROR is deliberately not terminal: an operator retry re-enters the pipeline.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusRejected, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// TaskStage is the fine-grained pipeline position of a task.
type TaskStage string

const (
	StageQueuedForProcessing TaskStage = "QUEUED_FOR_PROCESSING"
	StageProcessing          TaskStage = "PROCESSING"
	StageQueuedForMT         TaskStage = "QUEUED_FOR_MT"
	StageMachineTranslating  TaskStage = "MACHINE_TRANSLATING"
	StageQueuedForEditing    TaskStage = "QUEUED_FOR_EDITING"
	StageEditing             TaskStage = "EDITING"
	StageCompleted           TaskStage = "COMPLETED"
	StageCanceled            TaskStage = "CANCELED"
)

// TranslationTask is the aggregate that drives a document through the pipeline.
// Stage and status only change through the transition methods in
// transitions.go, each of which returns a new value and the event it caused.
type TranslationTask struct {
	ID                     string             `json:"id"`
	Type                   DocumentType       `json:"type"`
	OriginalContent        string             `json:"original_content"`
	OriginalStructure      *OriginalStructure `json:"original_structure,omitempty"`
	Status                 TaskStatus         `json:"status"`
	Stage                  TaskStage          `json:"current_stage"`
	LanguagePairID         string             `json:"language_pair_id"`
	SourceLanguage         string             `json:"source_language"`
	TargetLanguage         string             `json:"target_language"`
	EditorID               string             `json:"editor_id,omitempty"`
	MachineTranslationOnly bool               `json:"machine_translation_only"`
	WordCount              int                `json:"word_count"`
	RejectionReason        string             `json:"rejection_reason,omitempty"`
	CancellationReason     string             `json:"cancellation_reason,omitempty"`
	ErrorMessage           string             `json:"error_message,omitempty"`
	FinalContent           *string            `json:"final_content,omitempty"`

	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	MTStartedAt           *time.Time `json:"mt_started_at,omitempty"`
	MTCompletedAt         *time.Time `json:"mt_completed_at,omitempty"`
	EditingStartedAt      *time.Time `json:"editing_started_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// NewTask builds a task in its initial NEW/QUEUED_FOR_PROCESSING state and
// the task_created event announcing it.
func NewTask(id string, typ DocumentType, content, sourceLang, targetLang, languagePairID string, now time.Time) (TranslationTask, Event) {
	t := TranslationTask{
		ID:              id,
		Type:            typ,
		OriginalContent: content,
		Status:          TaskStatusNew,
		Stage:           StageQueuedForProcessing,
		LanguagePairID:  languagePairID,
		SourceLanguage:  sourceLang,
		TargetLanguage:  targetLang,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return t, Event{
		Kind:   EventTaskCreated,
		TaskID: id,
		Stage:  t.Stage,
		Status: t.Status,
		At:     now,
	}
}

// Active reports whether the task is currently moving through the pipeline.
func (t TranslationTask) Active() bool {
	return t.Status == TaskStatusInProgress
}
