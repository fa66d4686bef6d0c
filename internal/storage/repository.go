package storage

import (
	"context"
	"time"

	"github.com/wdespachante/wa-service/internal/model"
)

// MessageFilter narrows message listings. Zero values mean "no filter".
type MessageFilter struct {
	Phone       string
	Category    string
	OnlyPending bool
	Limit       int
	Offset      int
}

// TrainingStats is the aggregate view served by the statistics endpoint.
type TrainingStats struct {
	TotalMessages   int64   `json:"total_mensagens"`
	PendingMessages int64   `json:"mensagens_pendentes"`
	TrainedTotal    int64   `json:"total_treinadas"`
	ApprovedCount   int64   `json:"aprovadas"`
	CorrectedCount  int64   `json:"corrigidas"`
	TrainedToday    int64   `json:"treinadas_hoje"`
	ApprovalRate    float64 `json:"taxa_aprovacao"`

	ByCategory map[string]int64 `json:"por_categoria"`
}

// MessageRepo persists inbound messages and their review lifecycle.
type MessageRepo interface {
	SaveMessage(ctx context.Context, message *model.Message) error
	UpdateMessage(ctx context.Context, message *model.Message) error
	FindMessageByID(ctx context.Context, id int64) (*model.Message, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, error)
	MarkIgnored(ctx context.Context, id int64) error
	CountMessages(ctx context.Context, onlyPending bool) (int64, error)
	CountMessagesByCategory(ctx context.Context) (map[string]int64, error)
}

// TrainingRepo persists operator-reviewed training examples.
type TrainingRepo interface {
	SaveTrainingExample(ctx context.Context, example *model.TrainingExample) error
	ListTrainingExamples(ctx context.Context, limit int) ([]model.TrainingExample, error)
	ListTrainingExamplesByCategory(ctx context.Context, category string, limit int) ([]model.TrainingExample, error)
	CountTrainingExamples(ctx context.Context) (int64, error)
	CountTrainingExamplesByDecision(ctx context.Context, decision string) (int64, error)
	CountTrainingExamplesSince(ctx context.Context, since time.Time) (int64, error)
}

// QuoteRepo persists generated price quotes.
type QuoteRepo interface {
	SaveQuote(ctx context.Context, quote *model.Quote) error
	ListQuotes(ctx context.Context, limit int) ([]model.Quote, error)
	FindQuoteByID(ctx context.Context, id int64) (*model.Quote, error)
	UpdateQuoteStatus(ctx context.Context, id int64, status string) error
	CountQuotes(ctx context.Context) (int64, error)
}

// DocumentRepo persists ingested media documents.
type DocumentRepo interface {
	SaveDocument(ctx context.Context, doc *model.Document) error
	ListDocuments(ctx context.Context, phone string, limit int) ([]model.Document, error)
	CountDocuments(ctx context.Context) (int64, error)
}
