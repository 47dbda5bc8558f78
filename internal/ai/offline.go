package ai

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/domain"
)

type keywordRule struct {
	keywords []string
	category domain.Category
}

// Rules are checked in order; the first hit wins.
var defaultKeywordRules = []keywordRule{
	{[]string{"aluguel", "condomínio", "condominio", "energia", "luz", "água", "agua", "internet", "telefone", "netflix", "spotify"}, domain.CategoryBills},
	{[]string{"buffet", "casamento", "vestido", "madrinha", "alianças", "aliancas", "fotógrafo", "fotografo", "dj"}, domain.CategoryWedding},
	{[]string{"leroy", "tintas", "tok&stok", "tok stok", "móveis", "moveis", "reforma", "camicado"}, domain.CategoryHousing},
	{[]string{"uber", "99", "posto", "ipiranga", "shell", "combustível", "combustivel", "estacionamento", "pedágio", "pedagio"}, domain.CategoryTransport},
	{[]string{"supermercado", "mercado", "ifood", "padaria", "restaurante", "outback", "jantar", "almoço", "almoco"}, domain.CategoryFood},
	{[]string{"cinema", "show", "bar", "viagem", "ingresso", "parque"}, domain.CategoryLeisure},
	{[]string{"tesouro", "cdb", "corretora", "investimento", "aporte"}, domain.CategorySavings},
	{[]string{"zara", "renner", "amazon", "magalu", "shopping", "loja"}, domain.CategoryShopping},
}

// KeywordCategorizer classifies by description keywords. It is used when no
// model is configured.
type KeywordCategorizer struct {
	rules []keywordRule
}

// NewKeywordCategorizer returns a categorizer with the built-in rules.
func NewKeywordCategorizer() *KeywordCategorizer {
	return &KeywordCategorizer{rules: defaultKeywordRules}
}

// Categorize implements Categorizer.
func (k *KeywordCategorizer) Categorize(_ context.Context, description string, _ decimal.Decimal) CategoryResult {
	words := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return r == ' ' || r == '-' || r == '/' || r == ',' || r == '.'
	})
	for _, rule := range k.rules {
		for _, kw := range rule.keywords {
			if matchKeyword(words, kw) {
				return CategoryResult{Category: rule.category}
			}
		}
	}
	return CategoryResult{Category: domain.CategoryUncategorized, Fallback: FallbackNoMatch}
}

// matchKeyword matches single-word keywords against whole words and
// multi-word keywords against the joined description.
func matchKeyword(words []string, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(strings.Join(words, " "), kw)
	}
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}

// TemplateAlertDrafter always returns the tight-budget template. It is used
// when no model is configured.
type TemplateAlertDrafter struct{}

// DraftAlert implements AlertDrafter.
func (TemplateAlertDrafter) DraftAlert(_ context.Context, req AlertRequest) AlertResult {
	return AlertResult{Message: TightBudgetMessage(req.Category), Fallback: FallbackDisabled}
}

var (
	_ Categorizer  = (*KeywordCategorizer)(nil)
	_ AlertDrafter = TemplateAlertDrafter{}
)
