package core

import (
	"sort"
	"time"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthSummary is a compact summary of the ledger for a specific year+month.
type MonthSummary struct {
	Year       int
	Month      int // 1-12
	Income     Money
	Expenses   Money
	Net        int64
	ByCategory []CategoryAmount // expenses only, largest first
}

// BudgetStatus is a budget together with what has been spent against it in a month.
type BudgetStatus struct {
	Budget
	Spent       Money
	Remaining   int64 // may be negative when over budget
	UsedPercent int
	Over        bool
}

// InMonth reports whether the date falls within year/month.
func (d Date) InMonth(year, month int) bool {
	return d.Year() == year && int(d.Month()) == month
}

// Summarize aggregates the transactions falling in year/month.
func Summarize(txs []Transaction, year, month int) MonthSummary {
	s := MonthSummary{Year: year, Month: month}
	byCat := map[string]int64{}
	for _, t := range txs {
		if !t.Date.InMonth(year, month) {
			continue
		}
		switch t.Kind {
		case KindIncome:
			s.Income.Cents += t.Amount.Cents
		case KindExpense:
			s.Expenses.Cents += t.Amount.Cents
			byCat[t.Category] += t.Amount.Cents
		}
	}
	s.Net = s.Income.Cents - s.Expenses.Cents
	for name, cents := range byCat {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if s.ByCategory[i].Amount.Cents != s.ByCategory[j].Amount.Cents {
			return s.ByCategory[i].Amount.Cents > s.ByCategory[j].Amount.Cents
		}
		return s.ByCategory[i].Name < s.ByCategory[j].Name
	})
	return s
}

// ComputeBudgetStatus derives the status of b from the expenses spent in its category.
func ComputeBudgetStatus(b Budget, spent int64) BudgetStatus {
	st := BudgetStatus{
		Budget:    b,
		Spent:     Money{Cents: spent},
		Remaining: b.Limit.Cents - spent,
		Over:      spent > b.Limit.Cents,
	}
	if b.Limit.Cents > 0 {
		st.UsedPercent = int((spent*100 + b.Limit.Cents/2) / b.Limit.Cents)
	}
	return st
}

// SortTransactions orders transactions newest date first, ties broken by ID descending.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date.Time) {
			return txs[i].Date.After(txs[j].Date.Time)
		}
		return txs[i].ID > txs[j].ID
	})
}

// MonthOf returns the year and month of t.
func MonthOf(t time.Time) (int, int) {
	return t.Year(), int(t.Month())
}
