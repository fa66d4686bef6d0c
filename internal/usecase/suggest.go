package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/catalog"
	"github.com/wdespachante/wa-service/internal/llm"
	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/internal/storage"
	"github.com/wdespachante/wa-service/pkg/logger"
)

// ReplyStrategy produces a reply suggestion for an inbound message.
// Strategies are ordered; a strategy that cannot serve returns an empty
// reply or an error and the chain moves on.
type ReplyStrategy interface {
	Name() string
	Suggest(ctx context.Context, msg *model.Message) (reply string, confidence float64, err error)
}

// Suggester walks an ordered strategy chain and returns the first
// non-empty suggestion. The chain degrades gracefully; the last strategy
// always answers.
type Suggester struct {
	strategies []ReplyStrategy
}

// NewSuggester builds the default chain: Gemini with few-shot examples,
// then per-category templates, then a generic greeting.
func NewSuggester(client *llm.Client, training storage.TrainingRepo, fewShotLimit int) *Suggester {
	return &Suggester{
		strategies: []ReplyStrategy{
			&llmStrategy{client: client, training: training, fewShotLimit: fewShotLimit},
			&templateStrategy{},
			&fallbackStrategy{},
		},
	}
}

// NewSuggesterWithStrategies is the injection point for tests.
func NewSuggesterWithStrategies(strategies ...ReplyStrategy) *Suggester {
	return &Suggester{strategies: strategies}
}

// Suggest returns the reply, the confidence and the name of the strategy
// that served it.
func (s *Suggester) Suggest(ctx context.Context, msg *model.Message) (string, float64, string) {
	log := logger.FromContext(ctx)
	for _, strategy := range s.strategies {
		reply, confidence, err := strategy.Suggest(ctx, msg)
		if err != nil {
			// A degraded upstream is the expected fallback trigger; anything
			// else deserves a louder log.
			if apperrors.IsUpstreamDegradedError(err) {
				log.Debug("Reply strategy degraded, trying next",
					zap.String("strategy", strategy.Name()),
					zap.Error(err))
			} else {
				log.Warn("Reply strategy failed, trying next",
					zap.String("strategy", strategy.Name()),
					zap.Error(err))
			}
			continue
		}
		if reply == "" {
			continue
		}
		observer.IncSuggestion(strategy.Name())
		return reply, confidence, strategy.Name()
	}
	return "", 0, ""
}

// llmStrategy asks Gemini for a reply, feeding it the most recent
// operator-approved examples for the message's category.
type llmStrategy struct {
	client       *llm.Client
	training     storage.TrainingRepo
	fewShotLimit int
}

func (s *llmStrategy) Name() string { return "gemini" }

func (s *llmStrategy) Suggest(ctx context.Context, msg *model.Message) (string, float64, error) {
	if s.client == nil {
		return "", 0, nil
	}
	var examples []model.TrainingExample
	if s.training != nil && msg.Category != "" {
		var err error
		examples, err = s.training.ListTrainingExamplesByCategory(ctx, msg.Category, s.fewShotLimit)
		if err != nil {
			// Few-shot context is best effort; the prompt works without it.
			logger.FromContext(ctx).Warn("Failed to load training examples for prompt", zap.Error(err))
		}
	}

	suggestion, err := s.client.SuggestReply(ctx, msg.Text, msg.Category, examples)
	if err != nil {
		return "", 0, err
	}
	return suggestion.Reply, suggestion.Confidence, nil
}

// templateStrategy serves a canned reply per service category. Replies ask
// for the documents the service actually needs and quote the catalog fee.
type templateStrategy struct{}

func (s *templateStrategy) Name() string { return "template" }

func (s *templateStrategy) Suggest(_ context.Context, msg *model.Message) (string, float64, error) {
	if reply, ok := categoryTemplates[msg.Category]; ok {
		return reply, 0.7, nil
	}
	return "", 0, nil
}

// fallbackStrategy always answers with the generic greeting.
type fallbackStrategy struct{}

func (s *fallbackStrategy) Name() string { return "fallback" }

func (s *fallbackStrategy) Suggest(_ context.Context, _ *model.Message) (string, float64, error) {
	return genericReply, 0.3, nil
}

const genericReply = "Olá! Recebemos sua mensagem. Um especialista entrará em contato em breve."

// TemplateReply returns the canned reply for a category, falling back to
// the generic greeting. Used by the classification test endpoint.
func TemplateReply(category string) string {
	if reply, ok := categoryTemplates[category]; ok {
		return reply
	}
	return genericReply
}

var categoryTemplates = map[string]string{
	model.CategoryCumprimento: "Olá! Tudo bem? Em que posso ajudar?",
	model.CategoryConfirmacao: "Obrigado pelo contato! Qualquer dúvida é só perguntar.",
	model.CategoryTransferencia: fmt.Sprintf(
		"Para calcular o valor da transferência, preciso dos seguintes documentos:\n1. CRLV do veículo\n2. Documentos do proprietário atual e novo\n3. Comprovante de endereço\n\nO honorário é %s + taxas do DETRAN. Pode me enviar?",
		FormatBRL(serviceFeeOrDefault(model.CategoryTransferencia))),
	model.CategoryIPVA: "Para regularizar o IPVA atrasado, preciso:\n1. CRLV do veículo\n2. Documento do proprietário\n3. Informações dos anos em atraso\n\nPode me enviar os documentos?",
	model.CategoryLicenciamento: fmt.Sprintf(
		"Para fazer o licenciamento, preciso:\n1. CRLV do veículo\n2. Documento do proprietário\n3. Comprovante de pagamento das multas (se houver)\n\nO licenciamento simples sai por %s. Tem esses documentos?",
		FormatBRL(serviceFeeOrDefault("licenciamento_simples"))),
	model.CategoryMultas:       "Para consultar multas, preciso:\n1. Placa do veículo\n2. Renavam\n3. CPF do proprietário\n\nPode me informar esses dados?",
	model.CategoryCRLV:         "Para emitir a segunda via do CRLV, preciso:\n1. Placa e Renavam do veículo\n2. Documento do proprietário\n\nPode me enviar?",
	model.CategoryGravame:      "Para baixa de gravame, preciso:\n1. CRLV do veículo\n2. Carta de quitação do banco\n\nPode me enviar os documentos?",
	model.CategoryVistoria:     "Para agendar a vistoria, preciso:\n1. Placa do veículo\n2. CRLV\n3. Sua disponibilidade de horário\n\nPode me informar?",
	model.CategoryDocumentacao: "Posso te ajudar com:\n• Transferência de veículo\n• IPVA atrasado\n• Licenciamento\n• Multas\n• CRLV/Documentação\n\nSobre qual serviço gostaria de saber mais?",
	model.CategoryConsulta:     "Posso te ajudar com:\n• Transferência de veículo\n• IPVA atrasado\n• Licenciamento\n• Multas\n• CRLV/Documentação\n\nSobre qual serviço gostaria de saber mais?",
}

func serviceFeeOrDefault(category string) float64 {
	if fee, ok := catalog.ServiceFees()[category]; ok {
		return fee
	}
	return catalog.DefaultServiceFee
}
