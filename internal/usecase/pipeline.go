package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/classifier"
	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/internal/dispatcher"
	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/pkg/logger"
)

// WebhookTask carries one raw webhook payload through the worker pool.
type WebhookTask struct {
	Ctx  context.Context // Context derived for the task, NOT the request context
	Body []byte
}

// replySuggester produces a reply suggestion for a stored message.
type replySuggester interface {
	Suggest(ctx context.Context, msg *model.Message) (reply string, confidence float64, strategy string)
}

// replyDispatcher sends the reply through the cooldown gate.
type replyDispatcher interface {
	Send(ctx context.Context, phone, message string) (dispatcher.SendResult, error)
}

// documentIngestor stores an inbound attachment.
type documentIngestor interface {
	Ingest(ctx context.Context, env *model.Envelope) (*model.Document, error)
}

// IPipeline defines the interface for the webhook processing pool.
type IPipeline interface {
	Submit(task WebhookTask) error
	Stop()
}

// Pipeline owns the worker pool that turns raw webhook payloads into
// stored, classified, optionally answered messages. The webhook handler
// does no work of its own; everything past the 200 response happens here.
type Pipeline struct {
	pool       *ants.PoolWithFunc
	messages   *MessageService
	suggester  replySuggester
	ingest     documentIngestor
	dispatch   replyDispatcher
	cfg        config.PipelineWorkerPoolConfig
	gateway    config.GatewayConfig
	minConf    float64
	baseLogger *zap.Logger
}

var _ IPipeline = (*Pipeline)(nil)

// NewPipeline creates and initializes the webhook worker pool. The
// suggester, ingestor and dispatcher may be nil; the corresponding steps
// are skipped.
func NewPipeline(
	cfg config.PipelineWorkerPoolConfig,
	gatewayCfg config.GatewayConfig,
	minConfidence float64,
	messages *MessageService,
	suggester replySuggester,
	ingest documentIngestor,
	dispatch replyDispatcher,
	baseLogger *zap.Logger,
) (*Pipeline, error) {
	p := &Pipeline{
		messages:   messages,
		suggester:  suggester,
		ingest:     ingest,
		dispatch:   dispatch,
		cfg:        cfg,
		gateway:    gatewayCfg,
		minConf:    minConfidence,
		baseLogger: baseLogger.Named("pipeline"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(WebhookTask)
		if !ok {
			p.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		p.processWebhookTask(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false), // Block when the queue is full, bounded by MaxBlock
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			p.baseLogger.Error("Panic recovered in pipeline worker", zap.Any("panic_error", err), zap.Stack("stack"))
			observer.IncMessageFailed()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline worker pool: %w", err)
	}
	p.pool = pool
	p.baseLogger.Info("Pipeline worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
		zap.Duration("max_block_time", cfg.MaxBlock),
	)
	return p, nil
}

// Submit queues a webhook payload for processing.
func (p *Pipeline) Submit(task WebhookTask) error {
	start := time.Now()
	observer.SetPipelineQueueLength(p.pool.Waiting())

	err := p.pool.Invoke(task)
	if err != nil {
		p.baseLogger.Warn("Failed to submit webhook task to pool",
			zap.Duration("submit_duration", time.Since(start)),
			zap.Error(err),
		)
		observer.IncMessageFailed()
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("pipeline pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke pipeline task: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the worker pool.
func (p *Pipeline) Stop() {
	p.baseLogger.Info("Stopping pipeline worker pool")
	p.pool.Release()
}

// processWebhookTask runs the full flow for one payload. Errors never
// propagate past this function; the webhook already answered 200.
func (p *Pipeline) processWebhookTask(task WebhookTask) {
	start := time.Now()
	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.FromContext(ctx)

	env := model.ParseEnvelope(task.Body)
	if !env.Parsed {
		observer.IncWebhookUnparsed()
		log.Warn("Webhook payload did not match any known shape",
			zap.Int("body_bytes", len(task.Body)))
		return
	}

	result := classifier.Classify(env.Text, env.IsGroup, env.IsNewsletter)

	msg, err := p.messages.RecordInbound(ctx, &env, result)
	if err != nil {
		observer.IncMessageFailed()
		log.Error("Failed to record inbound message",
			zap.String("message_id", env.MessageID),
			zap.String("phone", env.From),
			zap.Error(err))
		return
	}

	log = log.With(
		zap.Int64("id", msg.ID),
		zap.String("phone", msg.Phone),
		zap.String("category", msg.Category),
	)

	if env.HasMedia() && p.ingest != nil {
		if _, err := p.ingest.Ingest(ctx, &env); err != nil {
			// Ingestion writes its own status row; the message flow continues.
			log.Warn("Document ingestion failed", zap.Error(err))
		}
	}

	strategy := "none"
	replySent := false
	if p.shouldSuggest(&env, result) {
		var reply string
		var confidence float64
		reply, confidence, strategy = p.suggester.Suggest(ctx, msg)
		if reply != "" {
			if err := p.messages.AttachSuggestion(ctx, msg, reply, confidence); err != nil {
				log.Warn("Failed to attach suggestion", zap.Error(err))
			}
			replySent = p.autoReply(ctx, log, msg, reply, confidence)
		}
	}

	if err := p.messages.MarkProcessed(ctx, msg, replySent); err != nil {
		log.Warn("Failed to mark message processed", zap.Error(err))
	}

	observer.IncMessageProcessed(msg.Category, strategy)
	observer.ObservePipelineDuration(msg.Category, strategy, time.Since(start))
	log.Info("Webhook processed",
		zap.String("strategy", strategy),
		zap.Bool("reply_sent", replySent),
		zap.Duration("duration", time.Since(start)))
}

// shouldSuggest gates the suggestion chain: clients only, never groups or
// newsletters.
func (p *Pipeline) shouldSuggest(env *model.Envelope, result classifier.Result) bool {
	if p.suggester == nil {
		return false
	}
	if env.IsGroup || env.IsNewsletter || result.IsAnnouncement {
		return false
	}
	return result.IsClient
}

// autoReply sends the suggestion when replies are enabled and the
// confidence clears the gate. Returns whether a reply went out.
func (p *Pipeline) autoReply(ctx context.Context, log *zap.Logger, msg *model.Message, reply string, confidence float64) bool {
	if p.dispatch == nil || !p.gateway.ResponseEnabled {
		return false
	}
	if confidence <= p.minConf {
		log.Debug("Auto-reply suppressed by confidence gate",
			zap.Float64("confidence", confidence),
			zap.Float64("min_confidence", p.minConf))
		return false
	}

	result, err := p.dispatch.Send(ctx, msg.Phone, reply)
	if err != nil {
		log.Warn("Auto-reply not sent",
			zap.String("outcome", result.Outcome()),
			zap.Duration("cooldown_remaining", result.CooldownRemaining),
			zap.Error(err))
		return false
	}
	return result.Sent
}
