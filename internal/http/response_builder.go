package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/ocr"
	"gagyebu/internal/review"
	"gagyebu/internal/services"
	"gagyebu/internal/storage"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// apiError pairs a status and a stable code for a known failure.
type apiError struct {
	status int
	code   string
}

// errorTable maps domain errors to responses. Order matters: the first
// match wins, so wrapping errors come after the errors they wrap.
var errorTable = []struct {
	err error
	apiError
}{
	{services.ErrSessionNotFound, apiError{http.StatusNotFound, "session_not_found"}},
	{review.ErrSessionClosed, apiError{http.StatusNotFound, "session_not_found"}},
	{review.ErrIndexOutOfRange, apiError{http.StatusBadRequest, "index_out_of_range"}},
	{review.ErrNoFiles, apiError{http.StatusBadRequest, "no_files"}},
	{review.ErrAnalysisInProgress, apiError{http.StatusConflict, "analysis_in_progress"}},
	{review.ErrNotAnalyzing, apiError{http.StatusConflict, "not_analyzing"}},
	{review.ErrNothingSelected, apiError{http.StatusConflict, "nothing_selected"}},
	{review.ErrAlreadySaved, apiError{http.StatusConflict, "already_saved"}},
	{review.ErrSaveInProgress, apiError{http.StatusConflict, "save_in_progress"}},
	{review.ErrNoFailures, apiError{http.StatusConflict, "no_failures"}},
	{review.ErrNoCurrent, apiError{http.StatusConflict, "no_current"}},
	{review.ErrLastItem, apiError{http.StatusConflict, "last_item"}},
	{review.ErrUnknownRecord, apiError{http.StatusConflict, "record_gone"}},
	{services.ErrInvalidMonth, apiError{http.StatusBadRequest, "invalid_month"}},
	{storage.ErrNotFound, apiError{http.StatusNotFound, "transaction_not_found"}},
	{services.ErrNoReceipt, apiError{http.StatusNotFound, "no_receipt"}},
	{errBadRequest, apiError{http.StatusBadRequest, "bad_request"}},
	{errNoImages, apiError{http.StatusBadRequest, "no_images"}},
	{ocr.ErrNoResults, apiError{http.StatusUnprocessableEntity, "no_results"}},
	{ocr.ErrCancelled, apiError{http.StatusConflict, "cancelled"}},
	{ocr.ErrAnalysisFailed, apiError{http.StatusBadGateway, "analysis_failed"}},
}

var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidDate,
	core.ErrInvalidType,
	core.ErrInvalidMethod,
	core.ErrEmptyCategory,
	core.ErrPayeeTooLong,
	core.ErrMemoTooLong,
}

// classify returns the response for err. Unknown errors are internal.
func classify(err error) apiError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apiError{http.StatusRequestEntityTooLarge, "payload_too_large"}
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return apiError{http.StatusUnprocessableEntity, "validation_failed"}
		}
	}
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.apiError
		}
	}
	return apiError{http.StatusInternalServerError, "internal_error"}
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs err and renders it. Internal errors never leak their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	msg := err.Error()
	logger := log.FromContext(r.Context())
	if e.status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldError, err, "code", e.code)
		if e.status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldError, err, "code", e.code)
	}
	writeJSON(w, e.status, ErrorResponse{Error: msg, Code: e.code})
}

// cancelledResponse is returned when an analysis was cancelled: the session
// is back to where it was before the analysis started.
type cancelledResponse struct {
	Cancelled bool            `json:"cancelled"`
	Session   review.Snapshot `json:"session"`
}

// writeSnapshot renders the outcome of a session operation.
func writeSnapshot(w http.ResponseWriter, r *http.Request, snap review.Snapshot, err error) {
	switch {
	case errors.Is(err, ocr.ErrCancelled):
		writeJSON(w, http.StatusOK, cancelledResponse{Cancelled: true, Session: snap})
	case err != nil:
		writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}
