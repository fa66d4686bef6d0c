// Package llm wraps the Gemini client used to draft reply suggestions and
// to describe incoming vehicle documents. The rest of the system treats it
// as best-effort: any failure here degrades to template replies, never to
// a dropped message.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/catalog"
	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

// Suggestion is what the model proposes for one customer message.
type Suggestion struct {
	Reply      string  `json:"resposta"`
	Confidence float64 `json:"confianca"`
}

// DocumentAnalysis is the structured description of an uploaded document.
type DocumentAnalysis struct {
	DocType   string `json:"tipo_documento"`
	Plate     string `json:"placa,omitempty"`
	OwnerName string `json:"proprietario,omitempty"`
	Summary   string `json:"resumo"`
	Legible   bool   `json:"legivel"`
}

// Client talks to the Gemini API.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cfg    config.LLMConfig
}

// NewClient creates a Gemini client from config. Returns nil without error
// when the feature is disabled or no API key is set; callers must handle a
// nil client as "LLM unavailable".
func NewClient(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	if !cfg.Enabled || cfg.APIKey == "" {
		logger.Log.Info("LLM suggestions disabled")
		return nil, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %w", apperrors.ErrUpstreamDegraded, err)
	}

	gm := client.GenerativeModel(cfg.Model)
	gm.SetTemperature(cfg.Temperature)
	gm.SetMaxOutputTokens(cfg.MaxTokens)

	logger.Log.Info("Gemini client initialized", zap.String("model", cfg.Model))
	return &Client{client: client, model: gm, cfg: cfg}, nil
}

// SuggestReply drafts a reply for one customer message, using recent
// operator-approved examples of the same category as few-shot material.
// The call is bounded by the configured timeout.
func (c *Client) SuggestReply(ctx context.Context, text, category string, examples []model.TrainingExample) (*Suggestion, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: llm client not configured", apperrors.ErrUpstreamDegraded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	prompt := c.buildSuggestionPrompt(text, category, examples)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini generate: %w", apperrors.ErrUpstreamDegraded, err)
	}

	raw := firstText(resp)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty gemini response", apperrors.ErrUpstreamDegraded)
	}

	jsonText, ok := utils.ExtractJSONObject(raw)
	if !ok {
		// Model answered in prose; take it as the reply with low confidence.
		logger.FromContext(ctx).Debug("LLM returned non-JSON suggestion, using raw text")
		return &Suggestion{Reply: strings.TrimSpace(raw), Confidence: 0.5}, nil
	}

	var suggestion Suggestion
	if err := utils.UnmarshalJSON([]byte(jsonText), &suggestion); err != nil {
		logger.FromContext(ctx).Warn("Failed to parse LLM suggestion JSON", zap.Error(err))
		return &Suggestion{Reply: strings.TrimSpace(raw), Confidence: 0.5}, nil
	}
	if suggestion.Reply == "" {
		return nil, fmt.Errorf("%w: gemini suggestion missing resposta field", apperrors.ErrUpstreamDegraded)
	}
	if suggestion.Confidence <= 0 || suggestion.Confidence > 1 {
		suggestion.Confidence = 0.5
	}

	return &suggestion, nil
}

// AnalyzeDocument asks the vision model to describe an uploaded document
// image or PDF. The raw bytes go inline; Gemini handles common mime types.
func (c *Client) AnalyzeDocument(ctx context.Context, mimeType string, data []byte) (*DocumentAnalysis, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: llm client not configured", apperrors.ErrUpstreamDegraded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	prompt := `Você é um despachante de veículos no Rio de Janeiro. Analise o documento anexado e responda SOMENTE com um JSON neste formato:
{
  "tipo_documento": "crlv" | "cnh" | "rg" | "cpf" | "comprovante_residencia" | "contrato" | "outro",
  "placa": "placa do veículo se visível",
  "proprietario": "nome do proprietário se visível",
  "resumo": "uma frase descrevendo o documento",
  "legivel": true | false
}`

	resp, err := c.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(prompt),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini vision: %w", apperrors.ErrUpstreamDegraded, err)
	}

	raw := firstText(resp)
	jsonText, ok := utils.ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("%w: gemini vision returned no JSON", apperrors.ErrUpstreamDegraded)
	}

	var analysis DocumentAnalysis
	if err := utils.UnmarshalJSON([]byte(jsonText), &analysis); err != nil {
		return nil, fmt.Errorf("%w: failed to parse vision analysis: %w", apperrors.ErrUpstreamDegraded, err)
	}

	return &analysis, nil
}

// Close releases the underlying client.
func (c *Client) Close() {
	if c != nil && c.client != nil {
		c.client.Close()
	}
}

func (c *Client) buildSuggestionPrompt(text, category string, examples []model.TrainingExample) string {
	var b strings.Builder

	b.WriteString(`Você é o atendente virtual do WDespachante, despachante de veículos no Rio de Janeiro.

PERSONALIDADE:
- Cordial, profissional e direto
- Responde em português do Brasil
- No máximo 4 linhas por resposta
- Sempre informa valores quando o serviço é conhecido

DADOS DO NEGÓCIO:
`)
	fmt.Fprintf(&b, "- Endereço: %s\n", catalog.BusinessAddress)
	fmt.Fprintf(&b, "- WhatsApp: %s\n", catalog.BusinessWhatsApp)
	fmt.Fprintf(&b, "- PIX (CNPJ): %s\n", catalog.PixKey)
	fmt.Fprintf(&b, "- Parcelamento: %s\n", catalog.InstallmentsURL)
	fmt.Fprintf(&b, "\nCATEGORIA DETECTADA: %s\n", category)

	if category != "" && category != model.CategoryOutros {
		pricing := catalog.Quote(category, "")
		fmt.Fprintf(&b, "HONORÁRIO: R$ %.2f | TAXA DETRAN: R$ %.2f | PRAZO: %s dias úteis\n",
			pricing.ServiceFee, pricing.GovernmentFee, pricing.TurnaroundDays)
	}

	if len(examples) > 0 {
		b.WriteString("\nEXEMPLOS DE ATENDIMENTOS APROVADOS:\n")
		limit := c.cfg.FewShotLimit
		if limit <= 0 || limit > len(examples) {
			limit = len(examples)
		}
		for _, ex := range examples[:limit] {
			fmt.Fprintf(&b, "Cliente: %s\nResposta: %s\n\n", ex.CustomerMessage, ex.FinalReply())
		}
	}

	fmt.Fprintf(&b, `
MENSAGEM DO CLIENTE: %s

Responda SOMENTE com um JSON neste formato:
{"resposta": "sua resposta ao cliente", "confianca": número entre 0 e 1}
`, text)

	return b.String()
}

// firstText extracts the first text part of a Gemini response.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}
	if text, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(text)
	}
	return fmt.Sprintf("%v", candidate.Content.Parts[0])
}
