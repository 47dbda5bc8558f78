package domain

import "github.com/shopspring/decimal"

var (
	hundred     = decimal.NewFromInt(100)
	pointsRatio = decimal.RequireFromString("0.1")
)

// Totals are the dashboard aggregates. They are always recomputed, never stored.
type Totals struct {
	TotalIncome          decimal.Decimal `json:"total_income"`
	CurrentMonthExpenses decimal.Decimal `json:"current_month_expenses"`
	Balance              decimal.Decimal `json:"balance"`
	TotalSavings         decimal.Decimal `json:"total_savings"`
	Points               int64           `json:"points"`
	ExpenseRatio         decimal.Decimal `json:"expense_ratio"`
}

// TotalIncome sums the monthly income of every user.
func TotalIncome(users []User) decimal.Decimal {
	total := decimal.Zero
	for _, u := range users {
		total = total.Add(u.MonthlyIncome)
	}
	return total
}

// TotalExpenses sums every EXPENSE transaction in the ledger.
func TotalExpenses(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		if t.Type == TransactionTypeExpense {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// TotalSavings sums the current amount of every goal.
func TotalSavings(goals []Goal) decimal.Decimal {
	total := decimal.Zero
	for _, g := range goals {
		total = total.Add(g.CurrentAmount)
	}
	return total
}

// Points converts savings into reward points: floor(savings * 0.1).
func Points(totalSavings decimal.Decimal) int64 {
	return totalSavings.Mul(pointsRatio).Floor().IntPart()
}

// ComputeTotals derives every dashboard aggregate.
func ComputeTotals(users []User, txs []Transaction, goals []Goal) Totals {
	income := TotalIncome(users)
	expenses := TotalExpenses(txs)
	savings := TotalSavings(goals)

	ratio := decimal.Zero
	if income.IsPositive() {
		ratio = decimal.Min(hundred, expenses.Div(income).Mul(hundred)).Round(2)
	}

	return Totals{
		TotalIncome:          income,
		CurrentMonthExpenses: expenses,
		Balance:              income.Sub(expenses),
		TotalSavings:         savings,
		Points:               Points(savings),
		ExpenseRatio:         ratio,
	}
}

// Progress returns min(100, round(current/target*100)). A non-positive target
// yields 0.
func (g Goal) Progress() int {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	pct := g.CurrentAmount.Div(g.TargetAmount).Mul(hundred).Round(0).IntPart()
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// Reached reports whether the goal hit its target.
func (g Goal) Reached() bool {
	return g.Progress() >= 100
}

// Progress returns how close points are to the reward cost, capped at 100.
func (r Reward) Progress(points int64) decimal.Decimal {
	if r.Cost <= 0 {
		return hundred
	}
	pct := decimal.NewFromInt(points).Div(decimal.NewFromInt(r.Cost)).Mul(hundred)
	return decimal.Min(hundred, pct).Round(2)
}

// CanUnlock reports whether points cover the cost of a reward not yet unlocked.
func (r Reward) CanUnlock(points int64) bool {
	return points >= r.Cost && !r.Unlocked
}
