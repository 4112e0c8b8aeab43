package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// SubmissionHistory reads archived submission outcomes.
type SubmissionHistory interface {
	GetByReference(ctx context.Context, referenceID string) (*repository.SubmissionRecord, error)
	ListByDraft(ctx context.Context, draftID string, limit int) ([]repository.SubmissionRecord, error)
}

// HistoryHandler serves the submission audit trail.
type HistoryHandler struct {
	archive SubmissionHistory
}

func NewHistoryHandler(archive SubmissionHistory) *HistoryHandler {
	return &HistoryHandler{archive: archive}
}

// ListByDraft returns the archived submission attempts for a draft, newest
// first.
func (h *HistoryHandler) ListByDraft(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		RespondError(w, r, http.StatusServiceUnavailable, "archive/unavailable", "submission archive is not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-draft-id", "draft id must be a UUID")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a positive integer")
			return
		}
		if parsed > maxHistoryLimit {
			parsed = maxHistoryLimit
		}
		limit = parsed
	}

	records, err := h.archive.ListByDraft(r.Context(), id.String(), limit)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "archive/list-failed", "could not load submission history")
		return
	}
	if records == nil {
		records = []repository.SubmissionRecord{}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"submissions": records})
}

// GetByReference returns one archived submission by its idempotency
// reference.
func (h *HistoryHandler) GetByReference(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		RespondError(w, r, http.StatusServiceUnavailable, "archive/unavailable", "submission archive is not configured")
		return
	}
	reference := chi.URLParam(r, "reference")

	record, err := h.archive.GetByReference(r.Context(), reference)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			RespondError(w, r, http.StatusNotFound, "archive/not-found", "no submission with this reference")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "archive/get-failed", "could not load submission record")
		return
	}
	RespondJSON(w, http.StatusOK, record)
}
