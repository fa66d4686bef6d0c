package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/internal/dispatcher"
	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/storage"
	"github.com/wdespachante/wa-service/internal/usecase"
)

// obj is shorthand for ad-hoc JSON request bodies.
type obj = map[string]any

type memMessageRepo struct {
	mu       sync.Mutex
	messages map[int64]*model.Message
	nextID   int64
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{messages: map[int64]*model.Message{}}
}

func (m *memMessageRepo) SaveMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	stored := *msg
	m.messages[msg.ID] = &stored
	return nil
}

func (m *memMessageRepo) UpdateMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *msg
	m.messages[msg.ID] = &stored
	return nil
}

func (m *memMessageRepo) FindMessageByID(_ context.Context, id int64) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := *msg
	return &out, nil
}

func (m *memMessageRepo) ListMessages(_ context.Context, filter storage.MessageFilter) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, msg := range m.messages {
		if msg.IsIgnored {
			continue
		}
		if filter.OnlyPending && msg.Reviewed {
			continue
		}
		if filter.Category != "" && msg.Category != filter.Category {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (m *memMessageRepo) MarkIgnored(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	msg.IsIgnored = true
	msg.Processed = true
	msg.Reviewed = true
	return nil
}

func (m *memMessageRepo) CountMessages(_ context.Context, onlyPending bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages {
		if msg.IsIgnored || (onlyPending && msg.Reviewed) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *memMessageRepo) CountMessagesByCategory(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int64)
	for _, msg := range m.messages {
		if msg.IsIgnored {
			continue
		}
		counts[msg.Category]++
	}
	return counts, nil
}

type memTrainingRepo struct {
	mu       sync.Mutex
	examples []model.TrainingExample
}

func (m *memTrainingRepo) SaveTrainingExample(_ context.Context, e *model.TrainingExample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.examples {
		if existing.MessageID == e.MessageID {
			return apperrors.ErrDuplicate
		}
	}
	e.ID = int64(len(m.examples) + 1)
	e.CreatedAt = time.Now()
	m.examples = append(m.examples, *e)
	return nil
}

func (m *memTrainingRepo) ListTrainingExamples(_ context.Context, limit int) ([]model.TrainingExample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TrainingExample(nil), m.examples...), nil
}

func (m *memTrainingRepo) ListTrainingExamplesByCategory(_ context.Context, category string, limit int) ([]model.TrainingExample, error) {
	return nil, nil
}

func (m *memTrainingRepo) CountTrainingExamples(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.examples)), nil
}

func (m *memTrainingRepo) CountTrainingExamplesByDecision(_ context.Context, decision string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.examples {
		if e.Decision == decision {
			n++
		}
	}
	return n, nil
}

func (m *memTrainingRepo) CountTrainingExamplesSince(_ context.Context, since time.Time) (int64, error) {
	return m.CountTrainingExamples(context.Background())
}

type memQuoteRepo struct {
	mu     sync.Mutex
	quotes []*model.Quote
}

func (m *memQuoteRepo) SaveQuote(_ context.Context, q *model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = int64(len(m.quotes) + 1)
	m.quotes = append(m.quotes, q)
	return nil
}

func (m *memQuoteRepo) ListQuotes(_ context.Context, limit int) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Quote, 0, len(m.quotes))
	for _, q := range m.quotes {
		out = append(out, *q)
	}
	return out, nil
}

func (m *memQuoteRepo) FindQuoteByID(_ context.Context, id int64) (*model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quotes {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memQuoteRepo) UpdateQuoteStatus(_ context.Context, id int64, status string) error {
	switch status {
	case model.QuoteStatusGenerated, model.QuoteStatusPendingPayment,
		model.QuoteStatusFiled, model.QuoteStatusCompleted:
	default:
		return apperrors.ErrValidation
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quotes {
		if q.ID == id {
			q.Status = status
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memQuoteRepo) CountQuotes(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.quotes)), nil
}

type memDocRepo struct{}

func (memDocRepo) SaveDocument(_ context.Context, _ *model.Document) error { return nil }
func (memDocRepo) ListDocuments(_ context.Context, _ string, _ int) ([]model.Document, error) {
	return nil, nil
}
func (memDocRepo) CountDocuments(_ context.Context) (int64, error) { return 0, nil }

type capturePipeline struct {
	mu    sync.Mutex
	tasks [][]byte
}

func (p *capturePipeline) Submit(task usecase.WebhookTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task.Body)
	return nil
}

type fakeSender struct {
	result dispatcher.SendResult
	err    error
	calls  int
}

func (f *fakeSender) Send(_ context.Context, _, _ string) (dispatcher.SendResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeStore struct {
	driver  string
	pingErr error
}

func (f *fakeStore) Driver() string               { return f.driver }
func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

type fakeProbe struct{ err error }

func (f *fakeProbe) Status(_ context.Context) error { return f.err }

type testEnv struct {
	server   *Server
	messages *memMessageRepo
	training *memTrainingRepo
	pipeline *capturePipeline
	sender   *fakeSender
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	messages := newMemMessageRepo()
	training := &memTrainingRepo{}
	pipeline := &capturePipeline{}
	sender := &fakeSender{result: dispatcher.SendResult{Sent: true}}

	cfg := &config.Config{}
	cfg.Gateway.ResponseEnabled = true

	srv := New(
		cfg,
		pipeline,
		usecase.NewMessageService(messages, training),
		usecase.NewQuoteService(&memQuoteRepo{}),
		memDocRepo{},
		sender,
		&fakeStore{driver: "sqlite"},
		&fakeProbe{},
		zaptest.NewLogger(t),
	)
	return &testEnv{server: srv, messages: messages, training: training, pipeline: pipeline, sender: sender}
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var parsed map[string]json.RawMessage
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	}
	return w, parsed
}

func seedSuggested(t *testing.T, env *testEnv) *model.Message {
	t.Helper()
	msg := &model.Message{
		MessageID:      "wamid-1",
		Phone:          "5521999998888",
		Text:           "quero transferir meu carro",
		Category:       model.CategoryTransferencia,
		IsClient:       true,
		SuggestedReply: "Para transferir preciso do CRLV.",
	}
	require.NoError(t, env.messages.SaveMessage(context.Background(), msg))
	return msg
}

func TestWebhookAlwaysAcks(t *testing.T) {
	env := newTestServer(t)

	w, body := doJSON(t, env.server, http.MethodPost, "/webhook", obj{"phone": "5521999998888", "text": obj{"message": "oi"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `true`, string(body["received"]))
	assert.Len(t, env.pipeline.tasks, 1)

	// Garbage body still gets a 200.
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("not json at all")))
	w2 := httptest.NewRecorder()
	env.server.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Len(t, env.pipeline.tasks, 2)
}

func TestSendTest(t *testing.T) {
	t.Run("MissingFields", func(t *testing.T) {
		env := newTestServer(t)
		w, _ := doJSON(t, env.server, http.MethodPost, "/send-test", obj{"phone": "5521999998888"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, env.sender.calls)
	})

	t.Run("Sent", func(t *testing.T) {
		env := newTestServer(t)
		w, body := doJSON(t, env.server, http.MethodPost, "/send-test", obj{"phone": "5521999998888", "message": "oi"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, string(body["result"]), `"sent":true`)
	})

	t.Run("GatewayFailureStaysInBody", func(t *testing.T) {
		env := newTestServer(t)
		env.sender.result = dispatcher.SendResult{GatewayError: "boom"}
		env.sender.err = apperrors.ErrGateway
		w, body := doJSON(t, env.server, http.MethodPost, "/send-test", obj{"phone": "5521999998888", "message": "oi"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, string(body["result"]), `"gateway_error":"boom"`)
	})
}

func TestAnalyze(t *testing.T) {
	env := newTestServer(t)

	w, body := doJSON(t, env.server, http.MethodPost, "/analyze", obj{"text": "quanto custa transferir meu carro?"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"transferencia"`, string(body["categoria"]))
	assert.NotEmpty(t, body["resposta_template"])

	w2, _ := doJSON(t, env.server, http.MethodPost, "/analyze", obj{})
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestQuoteEndpoint(t *testing.T) {
	env := newTestServer(t)

	w, body := doJSON(t, env.server, http.MethodPost, "/api/orcamento", obj{
		"telefone": "5521999998888",
		"cliente":  "João",
		"servico":  "transferencia",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var quote model.Quote
	require.NoError(t, json.Unmarshal(body["orcamento"], &quote))
	assert.Equal(t, 450.00, quote.ServiceFee)
	assert.Equal(t, quote.ServiceFee+quote.GovernmentFee, quote.Total)
	assert.Contains(t, string(body["mensagem"]), "ORÇAMENTO")

	w2, _ := doJSON(t, env.server, http.MethodPost, "/api/orcamento", obj{"telefone": "5521999998888"})
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestQuoteStatusEndpoint(t *testing.T) {
	env := newTestServer(t)

	w, _ := doJSON(t, env.server, http.MethodPost, "/api/orcamento", obj{
		"telefone": "5521999998888",
		"servico":  "transferencia",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w2, body := doJSON(t, env.server, http.MethodPut, "/api/orcamento/1/status", obj{"status": "protocolado"})
	require.Equal(t, http.StatusOK, w2.Code)
	var quote model.Quote
	require.NoError(t, json.Unmarshal(body["orcamento"], &quote))
	assert.Equal(t, model.QuoteStatusFiled, quote.Status)

	w3, _ := doJSON(t, env.server, http.MethodPut, "/api/orcamento/1/status", obj{"status": "inexistente"})
	assert.Equal(t, http.StatusBadRequest, w3.Code)

	w4, _ := doJSON(t, env.server, http.MethodPut, "/api/orcamento/99/status", obj{"status": "concluido"})
	assert.Equal(t, http.StatusNotFound, w4.Code)

	w5, _ := doJSON(t, env.server, http.MethodPut, "/api/orcamento/1/status", obj{})
	assert.Equal(t, http.StatusBadRequest, w5.Code)
}

func TestTrainingEndpoints(t *testing.T) {
	t.Run("ApproveThenDuplicate", func(t *testing.T) {
		env := newTestServer(t)
		msg := seedSuggested(t, env)

		w, _ := doJSON(t, env.server, http.MethodPost, "/api/aprovar/1", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w2, body := doJSON(t, env.server, http.MethodPost, "/api/aprovar/1", nil)
		assert.Equal(t, http.StatusBadRequest, w2.Code)
		assert.Contains(t, string(body["error"]), "treinada")

		stored, err := env.messages.FindMessageByID(context.Background(), msg.ID)
		require.NoError(t, err)
		assert.True(t, stored.Reviewed)
	})

	t.Run("ApproveUnknownID", func(t *testing.T) {
		env := newTestServer(t)
		w, _ := doJSON(t, env.server, http.MethodPost, "/api/aprovar/99", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ApproveBadID", func(t *testing.T) {
		env := newTestServer(t)
		w, _ := doJSON(t, env.server, http.MethodPost, "/api/aprovar/abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CorrectBlankIsValidation", func(t *testing.T) {
		env := newTestServer(t)
		seedSuggested(t, env)
		w, _ := doJSON(t, env.server, http.MethodPost, "/api/corrigir/1", obj{"correctedResponse": "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, env.training.examples)
	})

	t.Run("Correct", func(t *testing.T) {
		env := newTestServer(t)
		seedSuggested(t, env)
		w, body := doJSON(t, env.server, http.MethodPost, "/api/corrigir/1", obj{"correctedResponse": "Resposta melhor"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, string(body["treinada"]), "corrected")
	})

	t.Run("ProcessedStaysPendingUntilDecision", func(t *testing.T) {
		env := newTestServer(t)
		msg := seedSuggested(t, env)
		msg.Processed = true
		msg.ReplySent = true
		require.NoError(t, env.messages.UpdateMessage(context.Background(), msg))

		w, body := doJSON(t, env.server, http.MethodGet, "/api/mensagens-pendentes", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `1`, string(body["total"]))

		w2, _ := doJSON(t, env.server, http.MethodPost, "/api/aprovar/1", nil)
		assert.Equal(t, http.StatusOK, w2.Code)

		w3, body3 := doJSON(t, env.server, http.MethodGet, "/api/mensagens-pendentes", nil)
		assert.Equal(t, http.StatusOK, w3.Code)
		assert.JSONEq(t, `0`, string(body3["total"]))
	})

	t.Run("IgnoreRemovesFromPending", func(t *testing.T) {
		env := newTestServer(t)
		seedSuggested(t, env)
		w, _ := doJSON(t, env.server, http.MethodDelete, "/api/mensagem/1", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w2, body := doJSON(t, env.server, http.MethodGet, "/api/mensagens-pendentes", nil)
		assert.Equal(t, http.StatusOK, w2.Code)
		assert.JSONEq(t, `0`, string(body["total"]))
	})
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestServer(t)
	seedSuggested(t, env)
	_, _ = doJSON(t, env.server, http.MethodPost, "/api/aprovar/1", nil)

	w, body := doJSON(t, env.server, http.MethodGet, "/api/estatisticas", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `100`, string(body["taxa_aprovacao"]))
	assert.JSONEq(t, `1`, string(body["total_treinadas"]))
}

func TestPricesEndpoint(t *testing.T) {
	env := newTestServer(t)
	w, body := doJSON(t, env.server, http.MethodGet, "/api/precos", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(body["honorarios"]), "transferencia")
	assert.Contains(t, string(body["taxas"]), "014-0")
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestServer(t)

	w, body := doJSON(t, env.server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"sqlite"`, string(body["database"]))
	assert.JSONEq(t, `true`, string(body["response_enabled"]))

	w2, body2 := doJSON(t, env.server, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.JSONEq(t, `"connected"`, string(body2["gateway"]))
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestServer(t)
	w, _ := doJSON(t, env.server, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
