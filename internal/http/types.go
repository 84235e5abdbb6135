package http

import (
	"encoding/json"
	"net/http"
	"time"

	"financas/internal/core"
)

// Wire representations. Amounts cross the API as decimal strings in major
// units ("45.90"); internally everything is cents.

type recurringResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Category      string    `json:"category"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	Amount        string    `json:"amount"`
	Description   string    `json:"description,omitempty"`
	Frequency     string    `json:"frequency"`
	StartDate     core.Date `json:"startDate"`
	EndDate       core.Date `json:"endDate"`
	DayOfMonth    *int      `json:"dayOfMonth,omitempty"`
	DayOfWeek     *int      `json:"dayOfWeek,omitempty"`
	Active        bool      `json:"active"`
	LastProcessed core.Date `json:"lastProcessed"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toRecurringResponse(rt core.RecurringTransaction) recurringResponse {
	return recurringResponse{
		ID:            rt.ID,
		Type:          string(rt.Type),
		Category:      string(rt.Category),
		PaymentMethod: string(rt.PaymentMethod),
		Amount:        rt.Amount.String(),
		Description:   rt.Description,
		Frequency:     string(rt.Frequency),
		StartDate:     rt.StartDate,
		EndDate:       rt.EndDate,
		DayOfMonth:    rt.DayOfMonth,
		DayOfWeek:     rt.DayOfWeek,
		Active:        rt.Active,
		LastProcessed: rt.LastProcessed,
		CreatedAt:     rt.CreatedAt,
		UpdatedAt:     rt.UpdatedAt,
	}
}

type toggleResponse struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

type transactionResponse struct {
	ID                     string    `json:"id"`
	Type                   string    `json:"type"`
	Category               string    `json:"category"`
	PaymentMethod          string    `json:"paymentMethod,omitempty"`
	Amount                 string    `json:"amount"`
	Description            string    `json:"description,omitempty"`
	Date                   core.Date `json:"date"`
	RecurringTransactionID string    `json:"recurringTransactionId,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:                     t.ID,
		Type:                   string(t.Type),
		Category:               string(t.Category),
		PaymentMethod:          string(t.PaymentMethod),
		Amount:                 t.Amount.String(),
		Description:            t.Description,
		Date:                   t.Date,
		RecurringTransactionID: t.RecurringTransactionID,
		CreatedAt:              t.CreatedAt,
	}
}

type summaryResponse struct {
	Balance         string `json:"balance"`
	TotalIncome     string `json:"totalIncome"`
	TotalExpense    string `json:"totalExpense"`
	TotalInvestment string `json:"totalInvestment"`
}

func toSummaryResponse(s core.Summary) summaryResponse {
	return summaryResponse{
		Balance:         s.Balance.String(),
		TotalIncome:     s.TotalIncome.String(),
		TotalExpense:    s.TotalExpense.String(),
		TotalInvestment: s.TotalInvestment.String(),
	}
}

// parseAmount converts the wire amount (JSON number or numeric string)
// into cents.
func parseAmount(n json.Number) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(n.String())
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// dateQueryParam parses an optional YYYY-MM-DD query parameter. The zero
// Date means the bound is absent.
func dateQueryParam(r *http.Request, name string) (core.Date, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return core.Date{}, true
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, false
	}
	return d, true
}
