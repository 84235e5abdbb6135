package core

// Summary aggregates transaction totals by type over a date range.
// Balance = income - expense - investment.
type Summary struct {
	Balance         Money
	TotalIncome     Money
	TotalExpense    Money
	TotalInvestment Money
}
