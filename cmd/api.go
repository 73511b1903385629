package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/doctrans/internal/export"
	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/monitoring"
	"github.com/sells-group/doctrans/internal/pipeline"
	"github.com/sells-group/doctrans/internal/resilience"
	"github.com/sells-group/doctrans/internal/store"
	"github.com/sells-group/doctrans/internal/validate"
)

// maxUpload bounds request bodies, including uploaded review workbooks.
const maxUpload = 32 << 20

type api struct {
	pipeline  *pipeline.Pipeline
	tasks     store.TaskRepository
	breakers  *resilience.Breakers
	collector *monitoring.Collector
}

// buildRouter wires the task API. breakers and collector may be nil.
func buildRouter(p *pipeline.Pipeline, tasks store.TaskRepository, breakers *resilience.Breakers, collector *monitoring.Collector, origins []string) http.Handler {
	a := &api{pipeline: p, tasks: tasks, breakers: breakers, collector: collector}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Get("/metrics", a.metrics)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", a.createTask)
		r.Get("/", a.listTasks)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getTask)
			r.Get("/segments", a.getSegments)
			r.Post("/editing", a.startEditing)
			r.Post("/submission", a.submit)
			r.Post("/reject", a.reject)
			r.Post("/cancel", a.cancel)
			r.Post("/retry", a.retry)
			r.Get("/result", a.result)
			r.Get("/preview", a.preview)
			r.Get("/export", a.exportXLSX)
			r.Post("/import", a.importXLSX)
		})
	})
	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	breakers := map[string]string{}
	if a.breakers != nil {
		for name, state := range a.breakers.States() {
			breakers[name] = string(state)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "breakers": breakers})
}

func (a *api) metrics(w http.ResponseWriter, r *http.Request) {
	if a.collector == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "metrics are not enabled"})
		return
	}
	snap, err := a.collector.Collect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) createTask(w http.ResponseWriter, r *http.Request) {
	var in pipeline.NewTaskInput
	if !decode(w, r, &in) {
		return
	}
	task, err := a.pipeline.CreateTask(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (a *api) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{
		Status:   model.TaskStatus(q.Get("status")),
		Stage:    model.TaskStage(q.Get("stage")),
		Type:     model.DocumentType(q.Get("type")),
		EditorID: q.Get("editor_id"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be an integer"})
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "offset must be an integer"})
		return
	}

	tasks, err := a.tasks.ListTasks(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []model.TranslationTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (a *api) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := a.pipeline.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *api) getSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := a.pipeline.Segments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if segments == nil {
		segments = []model.Segment{}
	}
	writeJSON(w, http.StatusOK, segments)
}

func (a *api) startEditing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EditorID string `json:"editor_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	a.respondTask(w)(a.pipeline.StartEditing(r.Context(), chi.URLParam(r, "id"), req.EditorID))
}

func (a *api) submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Edits map[string]string `json:"edits"`
	}
	if !decode(w, r, &req) {
		return
	}
	a.respondTask(w)(a.pipeline.SubmitEdits(r.Context(), chi.URLParam(r, "id"), req.Edits))
}

func (a *api) reject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !decode(w, r, &req) {
		return
	}
	a.respondTask(w)(a.pipeline.RejectTask(r.Context(), chi.URLParam(r, "id"), req.Reason))
}

func (a *api) cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	a.respondTask(w)(a.pipeline.CancelTask(r.Context(), chi.URLParam(r, "id"), req.Reason))
}

func (a *api) retry(w http.ResponseWriter, r *http.Request) {
	a.respondTask(w)(a.pipeline.RetryTask(r.Context(), chi.URLParam(r, "id")))
}

func (a *api) result(w http.ResponseWriter, r *http.Request) {
	task, err := a.pipeline.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if task.Status != model.TaskStatusCompleted || task.FinalContent == nil {
		writeJSON(w, http.StatusConflict, errorBody{
			Error: fmt.Sprintf("task %s is %s/%s, not completed", task.ID, task.Stage, task.Status),
		})
		return
	}
	writeDocument(w, task.Type, *task.FinalContent)
}

func (a *api) preview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := a.pipeline.Task(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if task.OriginalStructure == nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: fmt.Sprintf("task %s has not been processed", id)})
		return
	}
	doc, err := a.pipeline.Reconstruct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, task.Type, doc)
}

func (a *api) exportXLSX(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := a.pipeline.Task(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	segments, err := a.pipeline.Segments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "task-"+id+".xlsx"))
	if err := export.WriteBilingual(w, task, segments); err != nil {
		zap.L().Error("api: export failed", zap.String("task_id", id), zap.Error(err))
	}
}

func (a *api) importXLSX(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpload))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "read body: " + err.Error()})
		return
	}
	edits, err := export.ReadEdits(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	a.respondTask(w)(a.pipeline.SubmitEdits(r.Context(), chi.URLParam(r, "id"), edits))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type errorBody struct {
	Error string `json:"error"`
	// Set for submission validation failures.
	Check     string `json:"check,omitempty"`
	SegmentID string `json:"segment_id,omitempty"`
	Marker    string `json:"marker,omitempty"`
	Expected  *int   `json:"expected,omitempty"`
	Actual    *int   `json:"actual,omitempty"`
}

func (a *api) respondTask(w http.ResponseWriter) func(*model.TranslationTask, error) {
	return func(task *model.TranslationTask, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpload)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// writeError maps pipeline errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var mismatch *validate.MismatchError
	var state *model.InvalidStateError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:     err.Error(),
			Check:     string(mismatch.Check),
			SegmentID: mismatch.SegmentID,
			Marker:    mismatch.ID,
			Expected:  &mismatch.Expected,
			Actual:    &mismatch.Actual,
		})
	case errors.As(err, &state):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, model.ErrEditorRequired),
		errors.Is(err, model.ErrReasonRequired):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDocument(w http.ResponseWriter, typ model.DocumentType, doc string) {
	switch typ {
	case model.DocumentTypeHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case model.DocumentTypeXLIFF:
		w.Header().Set("Content-Type", "application/xliff+xml; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}
