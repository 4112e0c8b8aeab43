package handler

import (
	"encoding/json"
	"net/http"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxUploadBytes caps document attachments at 10 MiB.
const maxUploadBytes = 10 << 20

// DraftHandler exposes the payment draft lifecycle over HTTP.
type DraftHandler struct {
	pipeline *service.Pipeline
}

func NewDraftHandler(pipeline *service.Pipeline) *DraftHandler {
	return &DraftHandler{pipeline: pipeline}
}

type createDraftRequest struct {
	Currency string `json:"currency"`
}

// CreateDraft starts a new draft for the chosen sender currency.
func (h *DraftHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-json", "invalid request body")
		return
	}

	snap, err := h.pipeline.CreateDraft(r.Context(), domain.Currency(req.Currency))
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, snap)
}

// GetDraft returns the latest draft snapshot.
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	snap, err := h.pipeline.GetDraft(r.Context(), id)
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// UpdateFields merges a partial field patch into the draft.
func (h *DraftHandler) UpdateFields(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}

	var fields map[domain.FieldKey]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-json", "invalid request body")
		return
	}
	if len(fields) == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/empty-patch", "at least one field is required")
		return
	}

	snap, err := h.pipeline.UpdateFields(r.Context(), id, fields)
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

type changeCurrencyRequest struct {
	Currency string `json:"currency"`
}

// ChangeCurrency switches the sender currency, resetting bank-derived state.
func (h *DraftHandler) ChangeCurrency(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}

	var req changeCurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-json", "invalid request body")
		return
	}

	snap, err := h.pipeline.ChangeCurrency(r.Context(), id, domain.Currency(req.Currency))
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

type bankCodeRequest struct {
	Code     string `json:"code"`
	CodeType string `json:"code_type"`
}

// EnterBankCode records a bank code entry and kicks off resolution when the
// sanitized code reaches the minimum length for its type.
func (h *DraftHandler) EnterBankCode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}

	var req bankCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-json", "invalid request body")
		return
	}

	snap, err := h.pipeline.EnterBankCode(r.Context(), id, req.Code, domain.ParseBankCodeType(req.CodeType))
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// Validation reports required fields, outstanding errors and completeness.
func (h *DraftHandler) Validation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	report, err := h.pipeline.Validation(r.Context(), id)
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, report)
}

// Rate returns the current exchange rate quote for the draft currency.
func (h *DraftHandler) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	rate, err := h.pipeline.RateSnapshot(r.Context(), id)
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rate)
}

// Attach uploads a supporting document and stores its URL on the draft.
func (h *DraftHandler) Attach(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		RespondError(w, r, http.StatusBadRequest, "upload/malformed", "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "upload/missing-file", "document file is required")
		return
	}
	defer file.Close()

	snap, err := h.pipeline.Attach(r.Context(), id, header.Filename, file)
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// Submit runs a submission attempt and returns the resulting state.
func (h *DraftHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	snap, err := h.pipeline.Submit(r.Context(), id)
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// Retry re-runs a failed submission.
func (h *DraftHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	snap, err := h.pipeline.Retry(r.Context(), id)
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// Dismiss acknowledges a terminal submission state.
func (h *DraftHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	snap, err := h.pipeline.Dismiss(r.Context(), id)
	if err != nil {
		mapServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// Discard deletes the draft.
func (h *DraftHandler) Discard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	if err := h.pipeline.Discard(r.Context(), id); err != nil {
		mapServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DraftHandler) draftID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-draft-id", "draft id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
