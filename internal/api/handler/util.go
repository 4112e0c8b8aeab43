package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/api/problem"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/service"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// validationDetails is the extended problem document for field failures.
type validationDetails struct {
	problem.Details
	Errors []service.FieldError `json:"errors"`
}

// RespondValidationError writes a 422 with the per-field failure list.
func RespondValidationError(w http.ResponseWriter, r *http.Request, vErr *service.ValidationError) {
	requestID := r.Header.Get("X-Trace-ID")
	if requestID == "" {
		requestID = w.Header().Get("X-Trace-ID")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(validationDetails{
		Details: problem.Details{
			Type:      problem.Type("draft/validation-failed"),
			Title:     http.StatusText(http.StatusUnprocessableEntity),
			Status:    http.StatusUnprocessableEntity,
			Detail:    "one or more fields are invalid",
			Instance:  r.URL.Path,
			RequestID: requestID,
		},
		Errors: vErr.Fields,
	})
}

// mapServiceError translates pipeline errors into problem responses.
func mapServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		RespondValidationError(w, r, vErr)
		return
	}

	switch {
	case errors.Is(err, service.ErrDraftNotFound):
		RespondError(w, r, http.StatusNotFound, "draft/not-found", "draft not found")
	case errors.Is(err, service.ErrSubmissionInFlight):
		RespondError(w, r, http.StatusConflict, "draft/submission-in-flight", "a submission is already in progress")
	case errors.Is(err, service.ErrAlreadySubmitted):
		RespondError(w, r, http.StatusConflict, "draft/already-submitted", "draft was already submitted")
	case errors.Is(err, service.ErrNotRetryable):
		RespondError(w, r, http.StatusConflict, "draft/not-retryable", "draft is not in a retryable state")
	case errors.Is(err, service.ErrNotDismissable):
		RespondError(w, r, http.StatusConflict, "draft/not-dismissable", "draft is not in a terminal state")
	case errors.Is(err, service.ErrMarketClosed):
		RespondError(w, r, http.StatusUnprocessableEntity, "rates/market-closed", "market is closed for this currency")
	case errors.Is(err, service.ErrRateUnavailable):
		RespondError(w, r, http.StatusUnprocessableEntity, "rates/unavailable", "exchange rate not available yet")
	default:
		var uploadErr *service.UploadError
		if errors.As(err, &uploadErr) {
			RespondError(w, r, http.StatusBadGateway, "upload/failed", "document upload failed")
			return
		}
		var subErr *service.SubmissionError
		if errors.As(err, &subErr) {
			RespondError(w, r, http.StatusBadGateway, "submission/failed", subErr.Message)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "internal", "unexpected server error")
	}
}
