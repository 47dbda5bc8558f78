package domain

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType tells whether money came in or went out.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is one of the two known types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Category is a ledger category label. The set is closed: see Categories.
type Category string

const (
	CategoryHousing       Category = "Casa Nova"
	CategoryLeisure       Category = "Lazer"
	CategoryWedding       Category = "Casamento"
	CategoryTransport     Category = "Transporte"
	CategoryFood          Category = "Alimentação"
	CategoryBills         Category = "Contas Fixas"
	CategoryShopping      Category = "Compras"
	CategorySavings       Category = "Investimentos"
	CategoryUncategorized Category = "Outros"
)

// Categories lists the named categories a classifier may choose from.
// CategoryUncategorized is deliberately absent: it is only ever a fallback.
var Categories = []Category{
	CategoryHousing,
	CategoryLeisure,
	CategoryWedding,
	CategoryTransport,
	CategoryFood,
	CategoryBills,
	CategoryShopping,
	CategorySavings,
}

// ParseCategory maps a label onto the closed category set, ignoring case and
// surrounding whitespace. The second return value is false when the label is
// unknown, in which case CategoryUncategorized is returned.
func ParseCategory(label string) (Category, bool) {
	norm := normalizeLabel(label)
	if norm == "" {
		return CategoryUncategorized, false
	}
	for _, c := range Categories {
		if normalizeLabel(string(c)) == norm {
			return c, true
		}
	}
	if norm == normalizeLabel(string(CategoryUncategorized)) {
		return CategoryUncategorized, true
	}
	return CategoryUncategorized, false
}

func normalizeLabel(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

var categoryIcons = map[Category]string{
	CategoryTransport: "🚗",
	CategoryFood:      "🍔",
	CategoryWedding:   "💍",
	CategoryHousing:   "🏠",
	CategoryLeisure:   "🎉",
	CategoryBills:     "💡",
	CategoryShopping:  "🛍️",
}

// Icon returns the ledger icon for a category. Categories without their own
// icon fall back to one based on the transaction direction.
func (c Category) Icon(t TransactionType) string {
	if icon, ok := categoryIcons[c]; ok {
		return icon
	}
	if t == TransactionTypeIncome {
		return "💰"
	}
	return "💸"
}

// Institution is the bank (or manual entry) a transaction came from.
type Institution string

const (
	InstitutionNubank   Institution = "Nubank"
	InstitutionItau     Institution = "Itaú"
	InstitutionBradesco Institution = "Bradesco"
	InstitutionManual   Institution = "Manual"
)

// Transaction is one ledger line. Amount is always non-negative; Type carries
// the sign for aggregate totals.
type Transaction struct {
	ID          string          `json:"id" yaml:"id"`
	UserID      string          `json:"user_id" yaml:"user_id"`
	Description string          `json:"description" yaml:"description"`
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
	Date        civil.Date      `json:"date" yaml:"date"`
	Type        TransactionType `json:"type" yaml:"type"`
	Category    Category        `json:"category" yaml:"category"`
	Institution Institution     `json:"institution" yaml:"institution"`
}

// Icon is shorthand for t.Category.Icon(t.Type).
func (t Transaction) Icon() string {
	return t.Category.Icon(t.Type)
}

// BankRecord is a raw, not yet categorized line pulled from a bank feed.
type BankRecord struct {
	Description string          `json:"description" yaml:"description"`
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
	Institution Institution     `json:"institution" yaml:"institution"`
}
