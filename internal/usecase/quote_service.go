package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/catalog"
	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/storage"
	"github.com/wdespachante/wa-service/internal/validator"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

// QuoteRequest is the input for quote generation.
type QuoteRequest struct {
	Phone              string `json:"telefone" validate:"required"`
	ClientName         string `json:"cliente" validate:"max=120"`
	VehicleDescription string `json:"veiculo" validate:"max=200"`
	Plate              string `json:"placa" validate:"max=10"`
	ServiceCategory    string `json:"servico" validate:"required"`
	DetranFeeCode      string `json:"taxa_detran"`
}

// QuoteService turns a service request into a stored quote and a
// WhatsApp-ready message.
type QuoteService struct {
	quotes storage.QuoteRepo
}

// NewQuoteService wires the service to its repository.
func NewQuoteService(quotes storage.QuoteRepo) *QuoteService {
	return &QuoteService{quotes: quotes}
}

// Generate prices the request from the catalog, stores the quote and
// renders the customer-facing template. Unknown services never fail; they
// price at the catalog defaults.
func (s *QuoteService) Generate(ctx context.Context, req QuoteRequest) (*model.Quote, string, error) {
	if err := validator.Validate(req); err != nil {
		return nil, "", fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, "", fmt.Errorf("%w: telefone is required", apperrors.ErrValidation)
	}
	if strings.TrimSpace(req.ServiceCategory) == "" {
		return nil, "", fmt.Errorf("%w: servico is required", apperrors.ErrValidation)
	}

	phone := utils.NormalizePhone(req.Phone)
	if err := validator.ValidateVar(phone, "required,numeric,min=12,max=13"); err != nil {
		return nil, "", fmt.Errorf("%w: telefone inválido", apperrors.ErrValidation)
	}

	pricing := catalog.Quote(req.ServiceCategory, req.DetranFeeCode)

	quote := &model.Quote{
		Phone:              phone,
		ClientName:         req.ClientName,
		VehicleDescription: req.VehicleDescription,
		Plate:              strings.ToUpper(strings.TrimSpace(req.Plate)),
		ServiceCategory:    req.ServiceCategory,
		ServiceFee:         pricing.ServiceFee,
		GovernmentFee:      pricing.GovernmentFee,
		Total:              pricing.ServiceFee + pricing.GovernmentFee,
		TurnaroundDays:     pricing.TurnaroundDays,
		Status:             model.QuoteStatusGenerated,
	}

	if err := s.quotes.SaveQuote(ctx, quote); err != nil {
		return nil, "", err
	}

	logger.FromContext(ctx).Info("Quote generated",
		zap.Int64("id", quote.ID),
		zap.String("phone", quote.Phone),
		zap.String("servico", quote.ServiceCategory),
		zap.Float64("total", quote.Total))

	return quote, RenderQuote(quote), nil
}

// List returns recent quotes.
func (s *QuoteService) List(ctx context.Context, limit int) ([]model.Quote, error) {
	return s.quotes.ListQuotes(ctx, limit)
}

// Count returns the total number of quotes ever generated.
func (s *QuoteService) Count(ctx context.Context) (int64, error) {
	return s.quotes.CountQuotes(ctx)
}

// Get returns one quote by id.
func (s *QuoteService) Get(ctx context.Context, id int64) (*model.Quote, error) {
	return s.quotes.FindQuoteByID(ctx, id)
}

// UpdateStatus advances a quote through the payment flow and returns the
// updated row.
func (s *QuoteService) UpdateStatus(ctx context.Context, id int64, status string) (*model.Quote, error) {
	if err := s.quotes.UpdateQuoteStatus(ctx, id, status); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Quote status updated",
		zap.Int64("id", id), zap.String("status", status))
	return s.quotes.FindQuoteByID(ctx, id)
}

// RenderQuote formats a quote as the WhatsApp message the business sends.
func RenderQuote(q *model.Quote) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🚗 *ORÇAMENTO - %s*\n\n", strings.ToUpper(catalog.BusinessName))
	if q.ClientName != "" {
		fmt.Fprintf(&b, "👤 Cliente: %s\n", q.ClientName)
	}
	if q.VehicleDescription != "" {
		fmt.Fprintf(&b, "🚘 Veículo: %s\n", q.VehicleDescription)
	}
	if q.Plate != "" {
		fmt.Fprintf(&b, "🔖 Placa: %s\n", q.Plate)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "📋 Serviço: %s\n", serviceLabel(q.ServiceCategory))
	fmt.Fprintf(&b, "💰 Honorário: %s\n", FormatBRL(q.ServiceFee))
	fmt.Fprintf(&b, "🏛️ Taxa DETRAN: %s\n", FormatBRL(q.GovernmentFee))
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "💵 *TOTAL: %s*\n\n", FormatBRL(q.Total))

	fmt.Fprintf(&b, "⏱️ Prazo: %s dias úteis\n\n", q.TurnaroundDays)
	fmt.Fprintf(&b, "💳 PIX (CNPJ): %s\n", catalog.PixKey)
	fmt.Fprintf(&b, "🔗 Parcele no cartão: %s\n\n", catalog.InstallmentsURL)
	fmt.Fprintf(&b, "📍 %s\n", catalog.BusinessAddress)
	fmt.Fprintf(&b, "📱 %s", catalog.BusinessWhatsApp)

	return b.String()
}

// FormatBRL renders a value as Brazilian currency with comma decimals.
func FormatBRL(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.ReplaceAll(s, ".", ",")
	// Thousands separator for values over 999.
	if comma := strings.Index(s, ","); comma > 3 {
		var out strings.Builder
		intPart := s[:comma]
		for i, r := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				out.WriteRune('.')
			}
			out.WriteRune(r)
		}
		s = out.String() + s[comma:]
	}
	return "R$ " + s
}

// serviceLabel turns a category key into display text.
func serviceLabel(category string) string {
	label := strings.ReplaceAll(category, "_", " ")
	if label == "" {
		return category
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
