package http

import (
	"net/http"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/review"
)

type retryRequest struct {
	Indices []int `json:"indices"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	files, err := parseFiles(w, r, s.maxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.reviews.Create(r.Context(), files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sessions/"+snap.SessionID.String())
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reviews.Get(r.PathValue("id"))
	writeSnapshot(w, r, snap, err)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.reviews.Close(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	files, err := parseFiles(w, r, s.maxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(files) == 0 {
		writeError(w, r, badRequest("no files in request"))
		return
	}
	snap, err := s.reviews.AddFiles(r.PathValue("id"), files)
	writeSnapshot(w, r, snap, err)
}

// indexed adapts a session operation taking a position to a handler.
func (s *Server) indexed(op func(id string, index int) (review.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := pathIndex(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		snap, err := op(r.PathValue("id"), i)
		writeSnapshot(w, r, snap, err)
	}
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	s.indexed(s.reviews.Remove)(w, r)
}

func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	s.indexed(s.reviews.SetCurrent)(w, r)
}

func (s *Server) handleToggleSelect(w http.ResponseWriter, r *http.Request) {
	s.indexed(s.reviews.ToggleSelect)(w, r)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.indexed(s.reviews.Undo)(w, r)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reviews.Skip(r.PathValue("id"))
	writeSnapshot(w, r, snap, err)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reviews.BulkDelete(r.PathValue("id"))
	writeSnapshot(w, r, snap, err)
}

// handleAnalyze blocks until the analysis finishes. A client disconnect
// cancels it like an explicit cancel would.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reviews.Analyze(r.Context(), r.PathValue("id"))
	writeSnapshot(w, r, snap, err)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Retry requested",
		log.FieldSessionID, r.PathValue("id"), log.FieldIndices, req.Indices)
	snap, err := s.reviews.Retry(r.Context(), r.PathValue("id"), req.Indices)
	writeSnapshot(w, r, snap, err)
}

func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reviews.RetryFailed(r.Context(), r.PathValue("id"))
	writeSnapshot(w, r, snap, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reviews.Cancel(r.PathValue("id"))
	writeSnapshot(w, r, snap, err)
}

// handleSubmit saves the current record. The body is the edited draft; an
// empty body saves the draft derived from the analysis.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var draft core.TransactionDraft
	ok, err := decodeJSON(w, r, &draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var edited *core.TransactionDraft
	if ok {
		edited = &draft
	}
	res, err := s.reviews.Submit(r.Context(), r.PathValue("id"), edited)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBulkSave answers 200 even when some records were refused; those are
// listed under failures and stay selected.
func (s *Server) handleBulkSave(w http.ResponseWriter, r *http.Request) {
	res, err := s.reviews.BulkSave(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
