// Package ai holds the generative collaborators used by the sync workflow:
// transaction categorization and Harmony alert drafting. Both degrade to a
// fixed fallback instead of returning errors; the result records why.
package ai

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/domain"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// FallbackReason tags a result that did not come from a usable model answer.
type FallbackReason string

const (
	// FallbackNone marks a genuine answer.
	FallbackNone FallbackReason = ""
	// FallbackServiceError means the call itself failed (network, quota, timeout).
	FallbackServiceError FallbackReason = "service_error"
	// FallbackEmptyResponse means the model answered with no usable text.
	FallbackEmptyResponse FallbackReason = "empty_response"
	// FallbackMalformedResponse means the answer was not the JSON we asked for.
	FallbackMalformedResponse FallbackReason = "malformed_response"
	// FallbackUnknownCategory means the model picked a label outside the closed set.
	FallbackUnknownCategory FallbackReason = "unknown_category"
	// FallbackNoMatch means the offline categorizer found no keyword.
	FallbackNoMatch FallbackReason = "no_match"
	// FallbackDisabled means no model is configured and a template was used.
	FallbackDisabled FallbackReason = "disabled"
)

// CategoryResult is the outcome of categorizing one transaction.
type CategoryResult struct {
	Category domain.Category
	Fallback FallbackReason
	// Err is the underlying cause when Fallback is FallbackServiceError or
	// FallbackMalformedResponse. It is informational only.
	Err error
}

// Defaulted reports whether Category is a fallback rather than a real answer.
func (r CategoryResult) Defaulted() bool { return r.Fallback != FallbackNone }

// Categorizer assigns a transaction to the closed category set. It never
// fails: on any problem it returns domain.CategoryUncategorized with a reason.
type Categorizer interface {
	Categorize(ctx context.Context, description string, amount decimal.Decimal) CategoryResult
}

// AlertRequest carries what the drafter needs to phrase a Harmony alert.
// Limit is the soft spending limit the amount is compared against.
type AlertRequest struct {
	SpenderName string
	Category    domain.Category
	Amount      decimal.Decimal
	Limit       decimal.Decimal
}

// AlertResult is the drafted alert text.
type AlertResult struct {
	Message  string
	Fallback FallbackReason
	Err      error
}

// Defaulted reports whether Message is a template rather than a model answer.
func (r AlertResult) Defaulted() bool { return r.Fallback != FallbackNone }

// AlertDrafter writes an empathetic, non-confrontational spending alert. It
// never fails: on any problem it returns a fixed message with a reason.
type AlertDrafter interface {
	DraftAlert(ctx context.Context, req AlertRequest) AlertResult
}

// TightBudgetMessage is used when the model answers with empty text.
func TightBudgetMessage(category domain.Category) string {
	return "Atenção carinhosa: O orçamento de " + string(category) + " está um pouco apertado este mês. Vamos revisar juntos?"
}

// SystemNoteMessage is used when the model call fails.
func SystemNoteMessage(category domain.Category) string {
	return "Nota do Sistema: Gastos elevados em " + string(category) + ". Vale a pena conferir."
}

// CategorizerFunc adapts a plain function to Categorizer.
type CategorizerFunc func(ctx context.Context, description string, amount decimal.Decimal) CategoryResult

// Categorize calls f.
func (f CategorizerFunc) Categorize(ctx context.Context, description string, amount decimal.Decimal) CategoryResult {
	return f(ctx, description, amount)
}

// AlertDrafterFunc adapts a plain function to AlertDrafter.
type AlertDrafterFunc func(ctx context.Context, req AlertRequest) AlertResult

// DraftAlert calls f.
func (f AlertDrafterFunc) DraftAlert(ctx context.Context, req AlertRequest) AlertResult {
	return f(ctx, req)
}
