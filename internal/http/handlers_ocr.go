package http

import (
	"net/http"
	"strconv"

	"gagyebu/internal/ocr"
)

// handleOCR analyses the uploaded images without opening a session.
func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	files, err := parseFiles(w, r, s.maxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	files = imagesOnly(files)
	if len(files) == 0 {
		writeError(w, r, errNoImages)
		return
	}
	results, err := s.analyzer.Analyze(r.Context(), files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ocr.Response{Results: results})
}

// handlePreview serves the bytes behind a session item's preview URI.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := s.reviews.Previews().Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "preview not found", Code: "preview_not_found"})
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
