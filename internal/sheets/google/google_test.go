package google

import (
	"context"
	"strings"
	"testing"
	"time"

	"financas/internal/core"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error when GOOGLE_SPREADSHEET_ID is missing")
	}
	if !strings.Contains(err.Error(), "GOOGLE_SPREADSHEET_ID") {
		t.Errorf("error should name the missing variable, got: %v", err)
	}
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := newSheetsService(context.Background())
	if err == nil {
		t.Fatal("expected error when no credentials are configured")
	}
	if !strings.Contains(err.Error(), "credentials") {
		t.Errorf("error should mention credentials, got: %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		year     int
		expected string
	}{
		{"plain name gets prefix", "Transactions", 2025, "2025 Transactions"},
		{"already prefixed", "2024 Transactions", 2025, "2024 Transactions"},
		{"empty base", "", 2025, ""},
		{"whitespace trimmed", "  Ledger  ", 2025, "2025 Ledger"},
		{"four digit non-year kept as prefix", "9999 Sheet", 2025, "9999 Sheet"},
		{"short name", "TX", 2025, "2025 TX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.expected {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.expected)
			}
		})
	}
}

func TestTransactionRow(t *testing.T) {
	tx := core.Transaction{
		ID:            "tx-1",
		Type:          core.Expense,
		Category:      core.CategoryAlimentacao,
		PaymentMethod: core.PaymentPix,
		Amount:        core.Money{Cents: 4590},
		Description:   "mercado",
		Date:          core.NewDate(2025, time.June, 15),
	}

	row := transactionRow(tx)
	if len(row) != 7 {
		t.Fatalf("row has %d columns, want 7", len(row))
	}
	if row[0] != "2025-06-15" {
		t.Errorf("date column = %v", row[0])
	}
	if row[5] != 45.90 {
		t.Errorf("amount column = %v, want 45.90", row[5])
	}
	if row[6] != "tx-1" {
		t.Errorf("id column = %v", row[6])
	}
}

func TestAppend_RejectsInvalidTransaction(t *testing.T) {
	client := &Client{sheetName: "2025 Transactions"}

	_, err := client.Append(context.Background(), core.Transaction{})
	if err == nil {
		t.Fatal("expected validation error for empty transaction")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAppend_NotInitialized(t *testing.T) {
	client := &Client{sheetName: "2025 Transactions"}

	tx := core.Transaction{
		ID:       "tx-1",
		Type:     core.Expense,
		Category: core.CategoryOutros,
		Amount:   core.Money{Cents: 100},
		Date:     core.NewDate(2025, time.June, 15),
	}
	_, err := client.Append(context.Background(), tx)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not-initialized error, got: %v", err)
	}
}
