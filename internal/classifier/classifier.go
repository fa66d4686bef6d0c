// Package classifier assigns a service category to inbound message text.
//
// Matching is deliberately crude: case-insensitive substring tests over an
// ordered rule list, first match wins. "multa" matches inside longer words
// and a message mentioning two services gets whichever rule is checked
// first. The order below is fixed and documented; do not reorder without
// revisiting the stored categories.
package classifier

import (
	"strings"

	"github.com/wdespachante/wa-service/internal/model"
)

// Result is the outcome of classifying one message.
type Result struct {
	Category       string
	IsClient       bool
	IsAnnouncement bool
	Confidence     float64
	Priority       int
}

type rule struct {
	category string
	keywords []string
}

// Service rules, evaluated in order.
var serviceRules = []rule{
	{model.CategoryTransferencia, []string{"transferência", "transferencia", "transferir", "mudar dono", "alteração proprietário", "vendi", "compra do veículo", "comprei"}},
	{model.CategoryIPVA, []string{"ipva", "imposto atrasado", "débito do veículo", "divida do carro", "exercício anterior"}},
	{model.CategoryLicenciamento, []string{"licenciamento", "licença anual", "licenciar"}},
	{model.CategoryMultas, []string{"multa", "infração", "infracao", "ponto na carteira", "auto de infração", "penalidade"}},
	{model.CategoryCRLV, []string{"crlv", "crv", "segunda via", "2ª via", "2a via", "certificado de registro"}},
	{model.CategoryGravame, []string{"gravame", "financiamento quitado", "baixa do financiamento", "alienação"}},
	{model.CategoryVistoria, []string{"vistoria", "laudo"}},
	{model.CategoryDocumentacao, []string{"documentação", "documentacao", "documento do carro", "documento do veículo", "certidão", "certidao"}},
	{model.CategoryConsulta, []string{"quanto custa", "quanto fica", "valor", "preço", "preco", "orçamento", "orcamento", "custo"}},
}

// Advertisement keywords short-circuit before service matching.
var adKeywords = []string{"promoção", "promocao", "desconto", "oferta", "liquidação", "liquidacao", "clique aqui", "link na bio"}

// Short-message conversational rules: greetings and acknowledgements only
// count when the message is tiny, otherwise "oi" inside a real question
// would swallow it.
var greetingKeywords = []string{"olá", "ola", "oi", "bom dia", "boa tarde", "boa noite", "tudo bem"}
var ackKeywords = []string{"ok", "entendi", "certo", "beleza", "obrigado", "obrigada", "grato", "valeu", "👍", "✅"}

const shortMessageWords = 5

// Classify assigns a service category to free text. It is total: any
// input produces a result, and group/broadcast flags short-circuit before
// the text is inspected.
func Classify(text string, isGroup, isNewsletter bool) Result {
	if isGroup {
		return Result{Category: model.CategoryGrupo, IsClient: false}
	}
	if isNewsletter {
		return Result{Category: model.CategoryCanal, IsAnnouncement: true}
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Result{Category: model.CategoryOutros, Confidence: 0.3}
	}

	for _, kw := range adKeywords {
		if strings.Contains(lower, kw) {
			return Result{Category: model.CategoryAnuncio, IsAnnouncement: true}
		}
	}

	for _, r := range serviceRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return Result{Category: r.category, IsClient: true, Confidence: 0.8, Priority: 1}
			}
		}
	}

	if words := len(strings.Fields(lower)); words < shortMessageWords {
		for _, kw := range greetingKeywords {
			if strings.Contains(lower, kw) {
				return Result{Category: model.CategoryCumprimento, IsClient: true, Confidence: 0.9, Priority: 1}
			}
		}
		for _, kw := range ackKeywords {
			if strings.Contains(lower, kw) {
				return Result{Category: model.CategoryConfirmacao, IsClient: true, Confidence: 0.9}
			}
		}
	}

	return Result{Category: model.CategoryOutros, Confidence: 0.3}
}

// ClassifyTemplate flags gateway template blasts as announcements.
func ClassifyTemplate() Result {
	return Result{Category: model.CategoryAnuncio, IsAnnouncement: true}
}
