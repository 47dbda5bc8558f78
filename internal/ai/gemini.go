package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/dvloznov/align/internal/domain"
)

// ContentGenerator is the slice of the genai client we use. *genai.Models
// satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiClient creates a genai client against the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}
	return client, nil
}

// GeminiOptions configures the Gemini collaborators.
type GeminiOptions struct {
	Model   string
	Timeout time.Duration
}

func (o GeminiOptions) model() string {
	if o.Model == "" {
		return DefaultModelName
	}
	return o.Model
}

func (o GeminiOptions) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// GeminiCategorizer classifies transactions with a structured-output call.
type GeminiCategorizer struct {
	gen  ContentGenerator
	opts GeminiOptions
	log  zerolog.Logger
}

// NewGeminiCategorizer creates a Categorizer backed by gen.
func NewGeminiCategorizer(gen ContentGenerator, opts GeminiOptions, log zerolog.Logger) *GeminiCategorizer {
	return &GeminiCategorizer{gen: gen, opts: opts, log: log}
}

func categorySchema() *genai.Schema {
	labels := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		labels = append(labels, string(c))
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"category": {Type: genai.TypeString, Enum: labels},
		},
		Required: []string{"category"},
	}
}

type categoryAnswer struct {
	Category string `json:"category"`
}

// Categorize implements Categorizer.
func (c *GeminiCategorizer) Categorize(ctx context.Context, description string, amount decimal.Decimal) CategoryResult {
	res := c.categorize(ctx, description, amount)
	if res.Defaulted() {
		c.log.Warn().
			Err(res.Err).
			Str("description", description).
			Str("reason", string(res.Fallback)).
			Msg("Categorization fell back to Outros")
	}
	return res
}

func (c *GeminiCategorizer) categorize(ctx context.Context, description string, amount decimal.Decimal) CategoryResult {
	ctx, cancel := c.opts.withTimeout(ctx)
	defer cancel()

	resp, err := c.gen.GenerateContent(ctx, c.opts.model(), genai.Text(buildCategorizePrompt(description, amount)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   categorySchema(),
	})
	if err != nil {
		return CategoryResult{
			Category: domain.CategoryUncategorized,
			Fallback: FallbackServiceError,
			Err:      fmt.Errorf("categorize: generate content: %w", err),
		}
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return CategoryResult{Category: domain.CategoryUncategorized, Fallback: FallbackEmptyResponse}
	}

	var answer categoryAnswer
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &answer); err != nil {
		return CategoryResult{
			Category: domain.CategoryUncategorized,
			Fallback: FallbackMalformedResponse,
			Err:      fmt.Errorf("categorize: unmarshal JSON: %w", err),
		}
	}
	if strings.TrimSpace(answer.Category) == "" {
		return CategoryResult{Category: domain.CategoryUncategorized, Fallback: FallbackEmptyResponse}
	}

	cat, ok := domain.ParseCategory(answer.Category)
	if !ok {
		return CategoryResult{
			Category: domain.CategoryUncategorized,
			Fallback: FallbackUnknownCategory,
			Err:      fmt.Errorf("categorize: label %q is not a known category", answer.Category),
		}
	}
	return CategoryResult{Category: cat}
}

// GeminiAlertDrafter drafts Harmony alerts with a free-text call. There is
// a single attempt per alert.
type GeminiAlertDrafter struct {
	gen  ContentGenerator
	opts GeminiOptions
	log  zerolog.Logger
}

// NewGeminiAlertDrafter creates an AlertDrafter backed by gen.
func NewGeminiAlertDrafter(gen ContentGenerator, opts GeminiOptions, log zerolog.Logger) *GeminiAlertDrafter {
	return &GeminiAlertDrafter{gen: gen, opts: opts, log: log}
}

// DraftAlert implements AlertDrafter.
func (d *GeminiAlertDrafter) DraftAlert(ctx context.Context, req AlertRequest) AlertResult {
	ctx, cancel := d.opts.withTimeout(ctx)
	defer cancel()

	resp, err := d.gen.GenerateContent(ctx, d.opts.model(), genai.Text(buildAlertPrompt(req)), nil)
	if err != nil {
		d.log.Warn().Err(err).Str("category", string(req.Category)).Msg("Alert drafting failed, using system note")
		return AlertResult{
			Message:  SystemNoteMessage(req.Category),
			Fallback: FallbackServiceError,
			Err:      fmt.Errorf("draft alert: generate content: %w", err),
		}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		d.log.Warn().Str("category", string(req.Category)).Msg("Alert drafting returned empty text")
		return AlertResult{Message: TightBudgetMessage(req.Category), Fallback: FallbackEmptyResponse}
	}
	return AlertResult{Message: text}
}

var (
	_ Categorizer  = (*GeminiCategorizer)(nil)
	_ AlertDrafter = (*GeminiAlertDrafter)(nil)
)
