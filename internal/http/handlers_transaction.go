package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"financas/internal/core"
	"financas/internal/services"
	"financas/internal/storage"
)

type createTransactionRequest struct {
	Type          string      `json:"type"`
	Category      string      `json:"category"`
	PaymentMethod string      `json:"paymentMethod"`
	Amount        json.Number `json:"amount"`
	Description   string      `json:"description"`
	Date          core.Date   `json:"date"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid JSON body: "+err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Error: "must be a positive decimal number",
			Field: "amount",
		})
		return
	}

	tx, err := s.transactions.Create(r.Context(), services.CreateParams{
		Type:          core.TransactionType(req.Type),
		Category:      core.Category(req.Category),
		PaymentMethod: core.PaymentMethod(req.PaymentMethod),
		Amount:        amount,
		Description:   req.Description,
		Date:          req.Date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.summaries.invalidate()
	writeJSON(w, r, http.StatusCreated, toTransactionResponse(*tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	from, ok := dateQueryParam(r, "from")
	if !ok {
		badRequest(w, r, "from must be YYYY-MM-DD")
		return
	}
	to, ok := dateQueryParam(r, "to")
	if !ok {
		badRequest(w, r, "to must be YYYY-MM-DD")
		return
	}

	txs, err := s.transactions.List(r.Context(), storage.TransactionFilter{
		From:        from,
		To:          to,
		RecurringID: r.URL.Query().Get("recurringTransactionId"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.transactions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTransactionResponse(*tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.transactions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.summaries.invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, ok := dateQueryParam(r, "from")
	if !ok {
		badRequest(w, r, "from must be YYYY-MM-DD")
		return
	}
	to, ok := dateQueryParam(r, "to")
	if !ok {
		badRequest(w, r, "to must be YYYY-MM-DD")
		return
	}

	if cached, hit := s.summaries.get(from, to); hit {
		writeJSON(w, r, http.StatusOK, cached)
		return
	}

	sum, err := s.transactions.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := toSummaryResponse(sum)
	s.summaries.put(from, to, resp)
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleEnums(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"types":          core.TransactionTypes(),
		"categories":     core.Categories(),
		"paymentMethods": core.PaymentMethods(),
		"frequencies":    core.Frequencies(),
	})
}
