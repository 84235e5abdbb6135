package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"financas/internal/core"
	"financas/internal/services"
)

type createRecurringRequest struct {
	Type          string      `json:"type"`
	Category      string      `json:"category"`
	PaymentMethod string      `json:"paymentMethod"`
	Amount        json.Number `json:"amount"`
	Description   string      `json:"description"`
	Frequency     string      `json:"frequency"`
	StartDate     core.Date   `json:"startDate"`
	EndDate       core.Date   `json:"endDate"`
	DayOfMonth    *int        `json:"dayOfMonth"`
	DayOfWeek     *int        `json:"dayOfWeek"`
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
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

	rt, err := s.recurring.Create(r.Context(), services.CreateRecurringParams{
		Type:          core.TransactionType(req.Type),
		Category:      core.Category(req.Category),
		PaymentMethod: core.PaymentMethod(req.PaymentMethod),
		Amount:        amount,
		Description:   req.Description,
		Frequency:     core.Frequency(req.Frequency),
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		DayOfMonth:    req.DayOfMonth,
		DayOfWeek:     req.DayOfWeek,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, toRecurringResponse(*rt))
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	defs, err := s.recurring.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]recurringResponse, 0, len(defs))
	for _, rt := range defs {
		out = append(out, toRecurringResponse(rt))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"recurringTransactions": out})
}

func (s *Server) handleGetRecurring(w http.ResponseWriter, r *http.Request) {
	rt, err := s.recurring.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toRecurringResponse(*rt))
}

func (s *Server) handleToggleRecurring(w http.ResponseWriter, r *http.Request) {
	active, err := s.recurring.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toggleResponse{ID: chi.URLParam(r, "id"), Active: active})
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := s.recurring.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.summaries.invalidate()
	w.WriteHeader(http.StatusNoContent)
}
