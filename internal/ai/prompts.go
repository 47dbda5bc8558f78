package ai

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// buildCategorizePrompt lists the allowed labels and the transaction to classify.
func buildCategorizePrompt(description string, amount decimal.Decimal) string {
	labels := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		labels = append(labels, "'"+string(c)+"'")
	}

	var b strings.Builder
	b.WriteString("Classifique a seguinte transação bancária em uma destas categorias: ")
	b.WriteString(strings.Join(labels, ", "))
	b.WriteString(". Retorne apenas a string da categoria.\n\n")
	b.WriteString("Transação: \"")
	b.WriteString(description)
	b.WriteString("\" - R$ ")
	b.WriteString(amount.StringFixed(2))
	return b.String()
}

// spendPercent returns round(amount/limit*100). ok is false for a
// non-positive limit.
func spendPercent(amount, limit decimal.Decimal) (decimal.Decimal, bool) {
	if !limit.IsPositive() {
		return decimal.Zero, false
	}
	return amount.Div(limit).Mul(hundred).Round(0), true
}

// buildAlertPrompt asks for a short Harmony-mode message about one spend.
func buildAlertPrompt(req AlertRequest) string {
	var b strings.Builder
	b.WriteString("Crie uma mensagem curta, empática e não conflituosa (Modo Harmonia) para notificar o casal que ")
	b.WriteString(req.SpenderName)
	b.WriteString(" gastou R$")
	b.WriteString(req.Amount.StringFixed(2))
	b.WriteString(" na categoria ")
	b.WriteString(string(req.Category))
	if pct, ok := spendPercent(req.Amount, req.Limit); ok {
		b.WriteString(", o que representa quase ")
		b.WriteString(pct.String())
		b.WriteString("% do orçamento")
	}
	b.WriteString(". O tom deve ser colaborativo, focando no objetivo comum, não na culpa. Use no máximo 25 palavras.")
	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding chatter from a model
// answer, keeping the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
