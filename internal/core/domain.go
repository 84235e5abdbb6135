package core

import (
	"fmt"
	"time"
)

const (
	Income     TransactionType = "INCOME"
	Expense    TransactionType = "EXPENSE"
	Investment TransactionType = "INVESTMENT"
)

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

const (
	CategoryAlimentacao  Category = "ALIMENTACAO"
	CategoryTransporte   Category = "TRANSPORTE"
	CategoryMoradia      Category = "MORADIA"
	CategoryLazer        Category = "LAZER"
	CategorySaude        Category = "SAUDE"
	CategoryEducacao     Category = "EDUCACAO"
	CategoryVestuario    Category = "VESTUARIO"
	CategorySalario      Category = "SALARIO"
	CategoryFreelance    Category = "FREELANCE"
	CategoryInvestimento Category = "INVESTIMENTO"
	CategoryPresente     Category = "PRESENTE"
	CategoryOutros       Category = "OUTROS"
)

const (
	PaymentPix           PaymentMethod = "PIX"
	PaymentBoleto        PaymentMethod = "BOLETO"
	PaymentCartao        PaymentMethod = "CARTAO"
	PaymentTransferencia PaymentMethod = "TRANSFERENCIA"
	PaymentDinheiro      PaymentMethod = "DINHEIRO"
)

type (
	TransactionType string

	Frequency string

	Category string

	PaymentMethod string

	Money struct {
		Cents int64
	}

	// RecurringTransaction is the durable recurrence configuration. It
	// describes how often a transaction repeats and within which window;
	// concrete transactions are generated from it by the materializer.
	RecurringTransaction struct {
		ID            string
		Type          TransactionType
		Category      Category
		PaymentMethod PaymentMethod // empty when not set
		Amount        Money
		Description   string
		Frequency     Frequency
		StartDate     Date
		EndDate       Date // zero = open-ended
		DayOfMonth    *int // 1-31, MONTHLY only
		DayOfWeek     *int // 0-6 (0 = Sunday), WEEKLY only
		Active        bool
		LastProcessed Date // zero = never processed
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// Transaction is a concrete ledger entry. Generated transactions carry
	// the id of the recurring definition they were materialized from.
	Transaction struct {
		ID                     string
		Type                   TransactionType
		Category               Category
		PaymentMethod          PaymentMethod
		Amount                 Money
		Description            string
		Date                   Date
		RecurringTransactionID string // empty for manual entries
		CreatedAt              time.Time
	}
)

// ValidationError reports the first field of a candidate record that failed
// validation. The record is rejected as a whole; nothing is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Investment:
		return true
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (c Category) Valid() bool {
	switch c {
	case CategoryAlimentacao, CategoryTransporte, CategoryMoradia,
		CategoryLazer, CategorySaude, CategoryEducacao, CategoryVestuario,
		CategorySalario, CategoryFreelance, CategoryInvestimento,
		CategoryPresente, CategoryOutros:
		return true
	}
	return false
}

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentPix, PaymentBoleto, PaymentCartao, PaymentTransferencia, PaymentDinheiro:
		return true
	}
	return false
}

// Categories lists every known category, in display order.
func Categories() []Category {
	return []Category{
		CategoryAlimentacao, CategoryTransporte, CategoryMoradia,
		CategoryLazer, CategorySaude, CategoryEducacao, CategoryVestuario,
		CategorySalario, CategoryFreelance, CategoryInvestimento,
		CategoryPresente, CategoryOutros,
	}
}

// PaymentMethods lists every known payment method.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		PaymentPix, PaymentBoleto, PaymentCartao, PaymentTransferencia, PaymentDinheiro,
	}
}

// TransactionTypes lists every transaction type.
func TransactionTypes() []TransactionType {
	return []TransactionType{Income, Expense, Investment}
}

// Frequencies lists every recurrence frequency.
func Frequencies() []Frequency {
	return []Frequency{Daily, Weekly, Monthly, Yearly}
}

// DefaultCategory returns the category applied when the caller omits one.
// Expenses have no default and must name a category explicitly.
func DefaultCategory(t TransactionType) (Category, bool) {
	switch t {
	case Income:
		return CategorySalario, true
	case Investment:
		return CategoryInvestimento, true
	}
	return "", false
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

const maxDescriptionLen = 200

// Validate enforces the structural invariants of a recurring transaction.
// The first violated field wins; anchors must match the frequency exactly
// (dayOfMonth only for MONTHLY, dayOfWeek only for WEEKLY, neither
// otherwise).
func (rt RecurringTransaction) Validate() error {
	if !rt.Type.Valid() {
		return invalid("type", "must be one of INCOME, EXPENSE, INVESTMENT")
	}
	if rt.Amount.Cents <= 0 {
		return invalid("amount", "must be greater than zero")
	}
	if !rt.Category.Valid() {
		if rt.Category == "" && rt.Type == Expense {
			return invalid("category", "required for EXPENSE")
		}
		return invalid("category", fmt.Sprintf("unknown category %q", string(rt.Category)))
	}
	if rt.PaymentMethod != "" && !rt.PaymentMethod.Valid() {
		return invalid("paymentMethod", fmt.Sprintf("unknown payment method %q", string(rt.PaymentMethod)))
	}
	if len(rt.Description) > maxDescriptionLen {
		return invalid("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLen))
	}
	if !rt.Frequency.Valid() {
		return invalid("frequency", "must be one of DAILY, WEEKLY, MONTHLY, YEARLY")
	}

	switch rt.Frequency {
	case Monthly:
		if rt.DayOfMonth == nil {
			return invalid("dayOfMonth", "required for MONTHLY frequency")
		}
		if d := *rt.DayOfMonth; d < 1 || d > 31 {
			return invalid("dayOfMonth", "must be between 1 and 31")
		}
		if rt.DayOfWeek != nil {
			return invalid("dayOfWeek", "not allowed for MONTHLY frequency")
		}
	case Weekly:
		if rt.DayOfWeek == nil {
			return invalid("dayOfWeek", "required for WEEKLY frequency")
		}
		if d := *rt.DayOfWeek; d < 0 || d > 6 {
			return invalid("dayOfWeek", "must be between 0 (Sunday) and 6 (Saturday)")
		}
		if rt.DayOfMonth != nil {
			return invalid("dayOfMonth", "not allowed for WEEKLY frequency")
		}
	default:
		if rt.DayOfMonth != nil {
			return invalid("dayOfMonth", fmt.Sprintf("not allowed for %s frequency", rt.Frequency))
		}
		if rt.DayOfWeek != nil {
			return invalid("dayOfWeek", fmt.Sprintf("not allowed for %s frequency", rt.Frequency))
		}
	}

	if rt.StartDate.IsZero() {
		return invalid("startDate", "required")
	}
	if !rt.EndDate.IsZero() && rt.EndDate.Before(rt.StartDate) {
		return invalid("endDate", "must not be before startDate")
	}
	return nil
}

// Validate enforces the invariants of a concrete transaction.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return invalid("type", "must be one of INCOME, EXPENSE, INVESTMENT")
	}
	if t.Amount.Cents <= 0 {
		return invalid("amount", "must be greater than zero")
	}
	if !t.Category.Valid() {
		return invalid("category", fmt.Sprintf("unknown category %q", string(t.Category)))
	}
	if t.PaymentMethod != "" && !t.PaymentMethod.Valid() {
		return invalid("paymentMethod", fmt.Sprintf("unknown payment method %q", string(t.PaymentMethod)))
	}
	if len(t.Description) > maxDescriptionLen {
		return invalid("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLen))
	}
	if t.Date.IsZero() {
		return invalid("date", "required")
	}
	return nil
}
