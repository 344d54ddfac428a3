package http

import (
	"mime"
	"net/http"
	"strconv"

	"gagyebu/internal/core"
)

type transactionList struct {
	Year         int                `json:"year"`
	Month        int                `json:"month"`
	Transactions []core.Transaction `json:"transactions"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var draft core.TransactionDraft
	ok, err := decodeJSON(w, r, &draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, badRequest("missing transaction body"))
		return
	}
	tx, err := s.ledger.Create(r.Context(), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.ledger.ListMonth(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactionList{Year: year, Month: month, Transactions: txs})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ov, err := s.ledger.Overview(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// handleReceipt streams the archived image of a saved transaction.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, badRequest("invalid transaction id %q", raw))
		return
	}
	f, err := s.ledger.Receipt(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.MediaType())
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": f.Name}))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}
