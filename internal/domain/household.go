package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Savings rate bounds, in percent of monthly income.
const (
	MinSavingsRate = 0
	MaxSavingsRate = 30
)

// User is one partner in the couple.
type User struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name" yaml:"name"`
	Avatar        string          `json:"avatar" yaml:"avatar"`
	MonthlyIncome decimal.Decimal `json:"monthly_income" yaml:"monthly_income"`
	SavingsRate   int             `json:"savings_rate" yaml:"savings_rate"`
}

// ClampSavingsRate forces rate into [MinSavingsRate, MaxSavingsRate].
func ClampSavingsRate(rate int) int {
	if rate < MinSavingsRate {
		return MinSavingsRate
	}
	if rate > MaxSavingsRate {
		return MaxSavingsRate
	}
	return rate
}

// Goal is a shared savings target.
type Goal struct {
	ID            string          `json:"id" yaml:"id"`
	Title         string          `json:"title" yaml:"title"`
	TargetAmount  decimal.Decimal `json:"target_amount" yaml:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount" yaml:"current_amount"`
	Icon          string          `json:"icon" yaml:"icon"`
	Deadline      civil.Date      `json:"deadline" yaml:"deadline"`
}

// Task is an item on the shared to-do list. A nil AssignedToUserID means
// anyone can pick it up.
type Task struct {
	ID               string     `json:"id" yaml:"id"`
	Title            string     `json:"title" yaml:"title"`
	AssignedToUserID *string    `json:"assigned_to_user_id" yaml:"assigned_to_user_id"`
	Completed        bool       `json:"completed" yaml:"completed"`
	DueDate          civil.Date `json:"due_date" yaml:"due_date"`
}

// Reward is something the couple can unlock with points.
type Reward struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Cost     int64  `json:"cost" yaml:"cost"`
	Unlocked bool   `json:"unlocked" yaml:"unlocked"`
	Icon     string `json:"icon" yaml:"icon"`
}
