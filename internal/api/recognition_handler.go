package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paperdesk/paperdesk-api/internal/api/shared"
	"github.com/paperdesk/paperdesk-api/internal/platform/logger"
	"github.com/paperdesk/paperdesk-api/internal/recognition"
)

// StartRecognitionRequest represents the request body for starting a
// recognition task for an attachment.
type StartRecognitionRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=1"`
	LetterID    string `json:"letter_id"    validate:"required,min=1"`
	FileURL     string `json:"file_url"     validate:"required,url"`

	PageRange *PageRangeRequest `json:"page_range,omitempty"`
	MaxPages  int               `json:"max_pages,omitempty"  validate:"gte=0"`
}

// PageRangeRequest narrows recognition to a 1-based page interval.
type PageRangeRequest struct {
	Start int `json:"start" validate:"required,gte=1"`
	End   int `json:"end"   validate:"required,gte=1"`
}

// TaskResponse represents the response data for a recognition task.
type TaskResponse struct {
	TaskID      string    `json:"task_id"`
	DocumentID  string    `json:"document_id"`
	DisplayName string    `json:"display_name"`
	OwnerID     string    `json:"owner_id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	StartedAt   time.Time `json:"started_at"`
}

// ProgressResponse represents the response for a progress query.
type ProgressResponse struct {
	DocumentID string `json:"document_id"`
	Progress   int    `json:"progress"`
}

// RecognitionHandler handles recognition-task HTTP requests.
type RecognitionHandler struct {
	registry  *recognition.Registry
	validator *validator.Validate
}

// NewRecognitionHandler creates a new RecognitionHandler.
func NewRecognitionHandler(registry *recognition.Registry) *RecognitionHandler {
	return &RecognitionHandler{
		registry:  registry,
		validator: validator.New(),
	}
}

// StartTask handles POST /api/attachments/{attachmentID}/recognition requests.
func (h *RecognitionHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	attachmentID := chi.URLParam(r, "attachmentID")
	if attachmentID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing attachment ID")
		return
	}

	var req StartRecognitionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	var opts *recognition.Options
	if req.PageRange != nil {
		opts = &recognition.Options{
			PageRange: &recognition.PageRange{Start: req.PageRange.Start, End: req.PageRange.End},
		}
	} else if req.MaxPages > 0 {
		opts = &recognition.Options{MaxPages: req.MaxPages}
	}

	taskID, err := h.registry.StartTask(r.Context(), recognition.StartRequest{
		DocumentID:  attachmentID,
		DisplayName: req.DisplayName,
		OwnerID:     req.LetterID,
		SourceURL:   req.FileURL,
		Options:     opts,
	})
	if err != nil {
		var subErr *recognition.SubmissionError
		switch {
		case errors.Is(err, recognition.ErrAlreadyInProgress):
			shared.RespondWithError(w, r, http.StatusConflict,
				"Recognition is already in progress for this attachment")
		case errors.As(err, &subErr):
			log.Error("recognition submission failed",
				"attachment_id", attachmentID,
				"error", err)
			shared.RespondWithError(w, r, http.StatusBadGateway,
				"Recognition service rejected the submission")
		default:
			shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		}
		return
	}

	rec, ok := h.registry.GetByDocument(attachmentID)
	if !ok {
		// The task finished (or was cancelled) between start and read;
		// respond with what we know.
		shared.RespondWithJSON(w, r, http.StatusAccepted, TaskResponse{
			TaskID:     taskID,
			DocumentID: attachmentID,
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, recordToResponse(rec))
}

// GetTask handles GET /api/attachments/{attachmentID}/recognition requests.
func (h *RecognitionHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	attachmentID := chi.URLParam(r, "attachmentID")

	rec, ok := h.registry.GetByDocument(attachmentID)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "No recognition task for this attachment")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, recordToResponse(rec))
}

// GetProgress handles GET /api/attachments/{attachmentID}/recognition/progress
// requests. Absent tasks report zero progress rather than an error, so the
// UI can poll unconditionally.
func (h *RecognitionHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	attachmentID := chi.URLParam(r, "attachmentID")

	shared.RespondWithJSON(w, r, http.StatusOK, ProgressResponse{
		DocumentID: attachmentID,
		Progress:   h.registry.GetProgress(attachmentID),
	})
}

// ListByLetter handles GET /api/letters/{letterID}/recognitions requests.
func (h *RecognitionHandler) ListByLetter(w http.ResponseWriter, r *http.Request) {
	letterID := chi.URLParam(r, "letterID")

	records := h.registry.ListByOwner(letterID)
	responses := make([]TaskResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, recordToResponse(rec))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// CancelTask handles DELETE /api/recognition/tasks/{taskID} requests.
// Cancellation is soft: the registry stops tracking the task but the
// remote job keeps running. Idempotent, so always 204.
func (h *RecognitionHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	h.registry.Remove(taskID)
	w.WriteHeader(http.StatusNoContent)
}

// recordToResponse converts a recognition.Record to a TaskResponse.
func recordToResponse(rec recognition.Record) TaskResponse {
	return TaskResponse{
		TaskID:      rec.TaskID,
		DocumentID:  rec.DocumentID,
		DisplayName: rec.DisplayName,
		OwnerID:     rec.OwnerID,
		Status:      string(rec.Status),
		Progress:    rec.Progress,
		StartedAt:   rec.StartedAt,
	}
}
