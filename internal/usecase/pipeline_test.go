package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/internal/dispatcher"
	"github.com/wdespachante/wa-service/internal/model"
)

type stubSuggester struct {
	reply      string
	confidence float64
	strategy   string
	calls      int
}

func (s *stubSuggester) Suggest(_ context.Context, _ *model.Message) (string, float64, string) {
	s.calls++
	return s.reply, s.confidence, s.strategy
}

type stubDispatcher struct {
	mu     sync.Mutex
	sent   []string
	result dispatcher.SendResult
	err    error
}

func (s *stubDispatcher) Send(_ context.Context, phone, _ string) (dispatcher.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.sent = append(s.sent, phone)
	}
	return s.result, s.err
}

type stubIngestor struct {
	calls int
}

func (s *stubIngestor) Ingest(_ context.Context, _ *model.Envelope) (*model.Document, error) {
	s.calls++
	return &model.Document{}, nil
}

func poolConfig() config.PipelineWorkerPoolConfig {
	return config.PipelineWorkerPoolConfig{
		PoolSize:   2,
		QueueSize:  16,
		MaxBlock:   time.Second,
		ExpiryTime: time.Minute,
	}
}

func newTestPipeline(t *testing.T, messages *fakeMessageRepo, suggester replySuggester, ingest documentIngestor, dispatch replyDispatcher, responseEnabled bool) *Pipeline {
	t.Helper()
	p, err := NewPipeline(
		poolConfig(),
		config.GatewayConfig{ResponseEnabled: responseEnabled},
		0.5,
		NewMessageService(messages, &fakeTrainingRepo{}),
		suggester,
		ingest,
		dispatch,
		zaptest.NewLogger(t),
	)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func TestPipelineProcessesClientMessage(t *testing.T) {
	messages := newFakeMessageRepo()
	suggester := &stubSuggester{reply: "Olá!", confidence: 0.8, strategy: "template"}
	dispatch := &stubDispatcher{result: dispatcher.SendResult{Sent: true}}
	p := newTestPipeline(t, messages, suggester, nil, dispatch, true)

	p.processWebhookTask(WebhookTask{Body: []byte(`{"phone":"5521999998888","text":{"message":"quero transferir meu carro"},"messageId":"m-1"}`)})

	require.Len(t, messages.messages, 1)
	var stored *model.Message
	for _, m := range messages.messages {
		stored = m
	}
	assert.Equal(t, "5521999998888", stored.Phone)
	assert.Equal(t, model.CategoryTransferencia, stored.Category)
	assert.Equal(t, "Olá!", stored.SuggestedReply)
	assert.True(t, stored.Processed)
	assert.True(t, stored.ReplySent)
	assert.Equal(t, []string{"5521999998888"}, dispatch.sent)
}

func TestPipelineUnparsedPayloadStoresNothing(t *testing.T) {
	messages := newFakeMessageRepo()
	suggester := &stubSuggester{reply: "Olá!", confidence: 0.8, strategy: "template"}
	p := newTestPipeline(t, messages, suggester, nil, nil, false)

	p.processWebhookTask(WebhookTask{Body: []byte(`{"unrelated":"shape"}`)})
	p.processWebhookTask(WebhookTask{Body: []byte(`not even json`)})

	assert.Empty(t, messages.messages)
	assert.Zero(t, suggester.calls)
}

func TestPipelineSkipsSuggestionForGroups(t *testing.T) {
	messages := newFakeMessageRepo()
	suggester := &stubSuggester{reply: "Olá!", confidence: 0.9, strategy: "template"}
	dispatch := &stubDispatcher{result: dispatcher.SendResult{Sent: true}}
	p := newTestPipeline(t, messages, suggester, nil, dispatch, true)

	p.processWebhookTask(WebhookTask{Body: []byte(`{"phone":"5521999998888","text":{"message":"bom dia grupo"},"isGroup":true}`)})

	require.Len(t, messages.messages, 1)
	assert.Zero(t, suggester.calls)
	assert.Empty(t, dispatch.sent)
}

func TestPipelineConfidenceGateBlocksAutoReply(t *testing.T) {
	messages := newFakeMessageRepo()
	suggester := &stubSuggester{reply: "Talvez isso ajude", confidence: 0.4, strategy: "fallback"}
	dispatch := &stubDispatcher{result: dispatcher.SendResult{Sent: true}}
	p := newTestPipeline(t, messages, suggester, nil, dispatch, true)

	p.processWebhookTask(WebhookTask{Body: []byte(`{"phone":"5521999998888","text":{"message":"quero transferir meu carro"}}`)})

	require.Len(t, messages.messages, 1)
	for _, m := range messages.messages {
		// Suggestion is stored for operator review even when not auto-sent.
		assert.Equal(t, "Talvez isso ajude", m.SuggestedReply)
		assert.False(t, m.ReplySent)
	}
	assert.Empty(t, dispatch.sent)
}

func TestPipelineResponseDisabledNeverSends(t *testing.T) {
	messages := newFakeMessageRepo()
	suggester := &stubSuggester{reply: "Olá!", confidence: 0.9, strategy: "gemini"}
	dispatch := &stubDispatcher{result: dispatcher.SendResult{Sent: true}}
	p := newTestPipeline(t, messages, suggester, nil, dispatch, false)

	p.processWebhookTask(WebhookTask{Body: []byte(`{"phone":"5521999998888","text":{"message":"quero transferir meu carro"}}`)})

	assert.Empty(t, dispatch.sent)
	require.Len(t, messages.messages, 1)
	for _, m := range messages.messages {
		assert.True(t, m.Processed)
		assert.False(t, m.ReplySent)
	}
}

func TestPipelineIngestsMedia(t *testing.T) {
	messages := newFakeMessageRepo()
	ingest := &stubIngestor{}
	p := newTestPipeline(t, messages, &stubSuggester{}, ingest, nil, false)

	p.processWebhookTask(WebhookTask{Body: []byte(`{"phone":"5521999998888","document":{"mediaUrl":"https://example.com/crlv.pdf","fileName":"crlv.pdf","mimeType":"application/pdf"}}`)})

	assert.Equal(t, 1, ingest.calls)
	assert.Len(t, messages.messages, 1)
}

func TestPipelineSubmit(t *testing.T) {
	messages := newFakeMessageRepo()
	p := newTestPipeline(t, messages, &stubSuggester{}, nil, nil, false)

	err := p.Submit(WebhookTask{Ctx: context.Background(), Body: []byte(`{"phone":"5521999998888","text":{"message":"oi"}}`)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		messages.mu.Lock()
		defer messages.mu.Unlock()
		return len(messages.messages) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
