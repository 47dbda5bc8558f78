package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/dvloznov/align/internal/domain"
)

// mockGenerator is a test double for ContentGenerator.
type mockGenerator struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

	calls      int
	lastModel  string
	lastPrompt string
	lastConfig *genai.GenerateContentConfig
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	m.lastModel = model
	m.lastConfig = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		m.lastPrompt = contents[0].Parts[0].Text
	}
	return m.GenerateContentFunc(ctx, model, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func respondWith(text string, err error) func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		if err != nil {
			return nil, err
		}
		return textResponse(text), nil
	}
}

func TestGeminiCategorizer_Categorize(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		err          error
		wantCategory domain.Category
		wantFallback FallbackReason
	}{
		{"valid label", `{"category": "Lazer"}`, nil, domain.CategoryLeisure, FallbackNone},
		{"fenced json", "```json\n{\"category\": \"Casa Nova\"}\n```", nil, domain.CategoryHousing, FallbackNone},
		{"case insensitive", `{"category": "alimentação"}`, nil, domain.CategoryFood, FallbackNone},
		{"service error", "", errors.New("quota exceeded"), domain.CategoryUncategorized, FallbackServiceError},
		{"empty text", "   ", nil, domain.CategoryUncategorized, FallbackEmptyResponse},
		{"empty object", `{}`, nil, domain.CategoryUncategorized, FallbackEmptyResponse},
		{"not json", "Lazer", nil, domain.CategoryUncategorized, FallbackMalformedResponse},
		{"unknown label", `{"category": "Viagem"}`, nil, domain.CategoryUncategorized, FallbackUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{GenerateContentFunc: respondWith(tt.text, tt.err)}
			c := NewGeminiCategorizer(gen, GeminiOptions{}, zerolog.Nop())

			got := c.Categorize(context.Background(), "Netflix Mensal", decimal.RequireFromString("55.90"))

			if got.Category != tt.wantCategory {
				t.Errorf("Category = %q, want %q", got.Category, tt.wantCategory)
			}
			if got.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %q, want %q", got.Fallback, tt.wantFallback)
			}
			if got.Defaulted() != (tt.wantFallback != FallbackNone) {
				t.Errorf("Defaulted() = %v", got.Defaulted())
			}
		})
	}
}

func TestGeminiCategorizer_RequestShape(t *testing.T) {
	gen := &mockGenerator{GenerateContentFunc: respondWith(`{"category":"Transporte"}`, nil)}
	c := NewGeminiCategorizer(gen, GeminiOptions{}, zerolog.Nop())

	c.Categorize(context.Background(), "Posto Ipiranga", decimal.NewFromInt(150))

	if gen.lastModel != DefaultModelName {
		t.Errorf("model = %q, want %q", gen.lastModel, DefaultModelName)
	}
	if gen.lastConfig == nil || gen.lastConfig.ResponseMIMEType != "application/json" {
		t.Fatalf("expected JSON response config, got %+v", gen.lastConfig)
	}
	enum := gen.lastConfig.ResponseSchema.Properties["category"].Enum
	if len(enum) != len(domain.Categories) {
		t.Errorf("schema enum has %d labels, want %d", len(enum), len(domain.Categories))
	}
	for _, want := range []string{"Posto Ipiranga", "R$ 150.00", "'Investimentos'"} {
		if !strings.Contains(gen.lastPrompt, want) {
			t.Errorf("prompt missing %q: %s", want, gen.lastPrompt)
		}
	}
}

func TestGeminiCategorizer_Timeout(t *testing.T) {
	gen := &mockGenerator{GenerateContentFunc: func(ctx context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := NewGeminiCategorizer(gen, GeminiOptions{Timeout: 10 * time.Millisecond}, zerolog.Nop())

	got := c.Categorize(context.Background(), "slow", decimal.NewFromInt(1))

	if got.Fallback != FallbackServiceError || !errors.Is(got.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline service error, got %+v", got)
	}
}

func TestGeminiAlertDrafter_DraftAlert(t *testing.T) {
	req := AlertRequest{
		SpenderName: "Ana",
		Category:    domain.CategoryHousing,
		Amount:      decimal.RequireFromString("450.50"),
		Limit:       decimal.NewFromInt(1170),
	}

	tests := []struct {
		name         string
		text         string
		err          error
		wantMessage  string
		wantFallback FallbackReason
	}{
		{
			name:        "model text",
			text:        "  Ana investiu na Casa Nova! Vamos acompanhar juntos?  ",
			wantMessage: "Ana investiu na Casa Nova! Vamos acompanhar juntos?",
		},
		{
			name:         "empty text",
			text:         "",
			wantMessage:  "Atenção carinhosa: O orçamento de Casa Nova está um pouco apertado este mês. Vamos revisar juntos?",
			wantFallback: FallbackEmptyResponse,
		},
		{
			name:         "service error",
			err:          errors.New("unavailable"),
			wantMessage:  "Nota do Sistema: Gastos elevados em Casa Nova. Vale a pena conferir.",
			wantFallback: FallbackServiceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{GenerateContentFunc: respondWith(tt.text, tt.err)}
			d := NewGeminiAlertDrafter(gen, GeminiOptions{Model: "custom-model"}, zerolog.Nop())

			got := d.DraftAlert(context.Background(), req)

			if got.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMessage)
			}
			if got.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %q, want %q", got.Fallback, tt.wantFallback)
			}
			if gen.calls != 1 {
				t.Errorf("expected a single attempt, got %d", gen.calls)
			}
			if gen.lastModel != "custom-model" {
				t.Errorf("model = %q", gen.lastModel)
			}
		})
	}
}

func TestBuildAlertPrompt(t *testing.T) {
	prompt := buildAlertPrompt(AlertRequest{
		SpenderName: "João",
		Category:    domain.CategoryFood,
		Amount:      decimal.RequireFromString("450.50"),
		Limit:       decimal.NewFromInt(1170),
	})

	for _, want := range []string{"João gastou R$450.50", "categoria Alimentação", "quase 39% do orçamento", "25 palavras"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q: %s", want, prompt)
		}
	}

	noLimit := buildAlertPrompt(AlertRequest{SpenderName: "Ana", Category: domain.CategoryLeisure, Amount: decimal.NewFromInt(300)})
	if strings.Contains(noLimit, "%") {
		t.Errorf("prompt without limit should omit percentage: %s", noLimit)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"category":"Lazer"}`, `{"category":"Lazer"}`},
		{"```json\n{\"category\":\"Lazer\"}\n```", `{"category":"Lazer"}`},
		{"Claro! {\"category\":\"Lazer\"} Espero ter ajudado.", `{"category":"Lazer"}`},
		{"```", "```"},
	}
	for _, tt := range tests {
		if got := cleanModelJSON(tt.in); got != tt.want {
			t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeywordCategorizer(t *testing.T) {
	tests := []struct {
		description  string
		wantCategory domain.Category
		wantFallback FallbackReason
	}{
		{"Netflix Mensal", domain.CategoryBills, FallbackNone},
		{"Outback Jantar", domain.CategoryFood, FallbackNone},
		{"Leroy Merlin - Tintas", domain.CategoryHousing, FallbackNone},
		{"Posto Ipiranga", domain.CategoryTransport, FallbackNone},
		{"Zara - Vestido Madrinha", domain.CategoryWedding, FallbackNone},
		{"Tesouro Direto", domain.CategorySavings, FallbackNone},
		{"Barbearia", domain.CategoryUncategorized, FallbackNoMatch},
	}

	c := NewKeywordCategorizer()
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got := c.Categorize(context.Background(), tt.description, decimal.Zero)
			if got.Category != tt.wantCategory || got.Fallback != tt.wantFallback {
				t.Errorf("Categorize(%q) = %+v, want %q/%q", tt.description, got, tt.wantCategory, tt.wantFallback)
			}
		})
	}
}

func TestTemplateAlertDrafter(t *testing.T) {
	got := TemplateAlertDrafter{}.DraftAlert(context.Background(), AlertRequest{Category: domain.CategoryLeisure})
	if got.Message != TightBudgetMessage(domain.CategoryLeisure) || got.Fallback != FallbackDisabled {
		t.Errorf("unexpected result: %+v", got)
	}
}
