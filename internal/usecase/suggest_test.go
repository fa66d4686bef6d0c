package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wdespachante/wa-service/internal/model"
)

type stubStrategy struct {
	name       string
	reply      string
	confidence float64
	err        error
	calls      int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Suggest(_ context.Context, _ *model.Message) (string, float64, error) {
	s.calls++
	return s.reply, s.confidence, s.err
}

func TestSuggesterFirstNonEmptyWins(t *testing.T) {
	first := &stubStrategy{name: "first", reply: "primeira resposta", confidence: 0.9}
	second := &stubStrategy{name: "second", reply: "segunda resposta", confidence: 0.7}
	s := NewSuggesterWithStrategies(first, second)

	reply, confidence, strategy := s.Suggest(context.Background(), &model.Message{Text: "oi"})

	assert.Equal(t, "primeira resposta", reply)
	assert.Equal(t, 0.9, confidence)
	assert.Equal(t, "first", strategy)
	assert.Equal(t, 0, second.calls)
}

func TestSuggesterSkipsFailingAndEmptyStrategies(t *testing.T) {
	failing := &stubStrategy{name: "failing", err: errors.New("upstream down")}
	empty := &stubStrategy{name: "empty"}
	serving := &stubStrategy{name: "serving", reply: "resposta", confidence: 0.5}
	s := NewSuggesterWithStrategies(failing, empty, serving)

	reply, _, strategy := s.Suggest(context.Background(), &model.Message{Text: "oi"})

	assert.Equal(t, "resposta", reply)
	assert.Equal(t, "serving", strategy)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
}

func TestSuggesterExhaustedChain(t *testing.T) {
	s := NewSuggesterWithStrategies(&stubStrategy{name: "failing", err: errors.New("down")})

	reply, confidence, strategy := s.Suggest(context.Background(), &model.Message{Text: "oi"})

	assert.Empty(t, reply)
	assert.Zero(t, confidence)
	assert.Empty(t, strategy)
}

func TestTemplateStrategyCoversCoreCategories(t *testing.T) {
	s := &templateStrategy{}
	for _, category := range []string{
		model.CategoryCumprimento,
		model.CategoryTransferencia,
		model.CategoryIPVA,
		model.CategoryLicenciamento,
		model.CategoryMultas,
	} {
		reply, confidence, err := s.Suggest(context.Background(), &model.Message{Category: category})
		assert.NoError(t, err)
		assert.NotEmpty(t, reply, "category %s", category)
		assert.Equal(t, 0.7, confidence)
	}

	reply, _, err := s.Suggest(context.Background(), &model.Message{Category: model.CategoryOutros})
	assert.NoError(t, err)
	assert.Empty(t, reply)
}

func TestTemplateStrategyQuotesCatalogFee(t *testing.T) {
	s := &templateStrategy{}
	reply, _, err := s.Suggest(context.Background(), &model.Message{Category: model.CategoryTransferencia})
	assert.NoError(t, err)
	assert.Contains(t, reply, "R$ 450,00")
}

func TestFallbackStrategyAlwaysAnswers(t *testing.T) {
	s := &fallbackStrategy{}
	reply, confidence, err := s.Suggest(context.Background(), &model.Message{})
	assert.NoError(t, err)
	assert.NotEmpty(t, reply)
	assert.Equal(t, 0.3, confidence)
}
