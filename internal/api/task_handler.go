package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/taskflow/internal/api/shared"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/pipeline"
	"github.com/phrazzld/taskflow/internal/platform/logger"
)

// Enqueuer queues task mutations. Each method reports whether the broker
// accepted the message.
type Enqueuer interface {
	EnqueueCreate(ctx context.Context, payload pipeline.CreatePayload) bool
	EnqueueUpdate(ctx context.Context, taskID int64, patch domain.TaskPatch) bool
	EnqueueDelete(ctx context.Context, taskID int64) bool
	EnqueueSubmit(ctx context.Context, taskID, userID int64) bool
}

// Applier applies a message synchronously.
type Applier interface {
	Apply(ctx context.Context, msg *pipeline.Message) (*pipeline.Result, error)
}

// TaskReader serves task reads.
type TaskReader interface {
	ListTasks(ctx context.Context, filter domain.TaskFilter) (*domain.TaskPage, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
}

// TaskHandler handles the /api/tasks endpoints.
type TaskHandler struct {
	queue   Enqueuer
	applier Applier
	reader  TaskReader
	logger  *slog.Logger
}

// NewTaskHandler creates a TaskHandler. A nil queue applies every mutation synchronously.
func NewTaskHandler(queue Enqueuer, applier Applier, reader TaskReader, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		queue:   queue,
		applier: applier,
		reader:  reader,
		logger:  logger.With(slog.String("component", "task_handler")),
	}
}

// Routes returns a router serving the task endpoints, to be mounted at /api/tasks.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateTask)
	r.Get("/", h.ListTasks)
	r.Get("/{id}", h.GetTask)
	r.Put("/{id}", h.UpdateTask)
	r.Patch("/{id}", h.UpdateTask)
	r.Delete("/{id}", h.DeleteTask)
	r.Post("/{id}/submit", h.SubmitTask)
	return r
}

// CreateTask handles POST /api/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	payload := req.payload()
	if h.queue != nil && h.queue.EnqueueCreate(r.Context(), payload) {
		shared.RespondWithJSON(w, r, http.StatusAccepted, QueuedResponse{Queued: true})
		return
	}

	res, err := h.applyNow(r.Context(), pipeline.OpCreateTask, payload)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, TaskResponse{
		Message: "Task created successfully",
		Data:    res.Task,
	})
}

// UpdateTask handles PUT and PATCH /api/tasks/{id}.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch := req.Patch()
	if h.queue != nil && h.queue.EnqueueUpdate(r.Context(), id, patch) {
		shared.RespondWithJSON(w, r, http.StatusAccepted, QueuedResponse{Queued: true})
		return
	}

	res, err := h.applyNow(r.Context(), pipeline.OpUpdateTask, pipeline.UpdatePayload{TaskID: id, Patch: patch})
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	if res.NoOp {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{
		Message: "Task updated successfully",
		Data:    res.Task,
	})
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if h.queue != nil && h.queue.EnqueueDelete(r.Context(), id) {
		shared.RespondWithJSON(w, r, http.StatusAccepted, QueuedResponse{Queued: true})
		return
	}

	res, err := h.applyNow(r.Context(), pipeline.OpDeleteTask, pipeline.DeletePayload{TaskID: id})
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	if res.NoOp {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{
		Message: "Task deleted successfully",
		Data:    res.Task,
	})
}

// SubmitTask handles POST /api/tasks/{id}/submit.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SubmitTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	if h.queue != nil && h.queue.EnqueueSubmit(r.Context(), id, req.UserID) {
		shared.RespondWithJSON(w, r, http.StatusAccepted, QueuedResponse{Queued: true})
		return
	}

	res, err := h.applyNow(r.Context(), pipeline.OpSubmitTask, pipeline.SubmitPayload{TaskID: id, UserID: req.UserID})
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	if res.AlreadySubmitted {
		shared.RespondWithJSON(w, r, http.StatusOK, SubmitResponse{
			Message:          "Task already submitted",
			Data:             res.Completion,
			AlreadySubmitted: true,
		})
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, SubmitResponse{
		Message: "Task submitted successfully",
		Data:    res.Completion,
	})
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTaskFilter(r)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	page, err := h.reader.ListTasks(r.Context(), filter)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskListResponse(page))
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	task, err := h.reader.GetTask(r.Context(), id)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// applyNow is the fallback taken when the broker refuses a message.
func (h *TaskHandler) applyNow(ctx context.Context, op pipeline.Operation, payload any) (*pipeline.Result, error) {
	log := logger.FromContextOrDefault(ctx, h.logger)
	log.Warn("broker unavailable, applying mutation synchronously", slog.String("operation", string(op)))

	msg, err := pipeline.NewMessage(op, payload)
	if err != nil {
		return nil, err
	}
	return h.applier.Apply(ctx, msg)
}

func (h *TaskHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := getPathID(r, "id")
	if err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).Debug("invalid task id",
			slog.String("value", chi.URLParam(r, "id")))
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid task ID", err)
		return 0, false
	}
	return id, true
}

func (h *TaskHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
