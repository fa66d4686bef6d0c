package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for webhook pipeline metrics
	webhookLabels  = []string{"category", "source"}
	replyLabels    = []string{"outcome"}
	suggestLabels  = []string{"strategy"}
	documentLabels = []string{"doc_type", "destination"}

	// Webhook pipeline counters
	WebhooksReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wa_service_webhooks_received_total",
			Help: "Total number of webhook callbacks received, including unparsed payloads.",
		},
	)
	WebhooksUnparsedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wa_service_webhooks_unparsed_total",
			Help: "Total number of webhook payloads that matched no known envelope shape.",
		},
	)
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_service_messages_processed_total",
			Help: "Total number of inbound messages fully processed, labeled by classified category.",
		},
		webhookLabels,
	)
	MessagesFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wa_service_messages_failed_total",
			Help: "Total number of inbound messages whose pipeline run failed.",
		},
	)

	// Reply dispatch counters
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_service_replies_total",
			Help: "Total number of reply dispatch attempts, labeled by outcome (sent, cooldown, gateway_error, disabled).",
		},
		replyLabels,
	)

	// Suggestion strategy counter
	SuggestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_service_suggestions_total",
			Help: "Total number of reply suggestions produced, labeled by the strategy that served them (llm, template, generic).",
		},
		suggestLabels,
	)

	// Document ingestion counter
	DocumentsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_service_documents_ingested_total",
			Help: "Total number of media documents ingested, labeled by detected type and storage destination.",
		},
		documentLabels,
	)

	// Pipeline processing duration
	PipelineDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_service_pipeline_duration_seconds",
			Help:    "Histogram of end-to-end message pipeline durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		webhookLabels,
	)

	// Worker pool gauge
	PipelineQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_service_pipeline_queue_length",
		Help: "Approximate number of tasks waiting in the pipeline worker pool.",
	})
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_service_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// InitMetrics toggles metric collection. Call during application startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncWebhookReceived increments the received-webhook counter.
func IncWebhookReceived() {
	if !metricsEnabled {
		return
	}
	WebhooksReceivedTotal.Inc()
}

// IncWebhookUnparsed increments the unparsed-payload counter.
func IncWebhookUnparsed() {
	if !metricsEnabled {
		return
	}
	WebhooksUnparsedTotal.Inc()
}

// IncMessageProcessed increments the processed-message counter.
func IncMessageProcessed(category, source string) {
	if !metricsEnabled {
		return
	}
	MessagesProcessedTotal.WithLabelValues(sanitizeLabel(category), sanitizeLabel(source)).Inc()
}

// IncMessageFailed increments the failed-pipeline counter.
func IncMessageFailed() {
	if !metricsEnabled {
		return
	}
	MessagesFailedTotal.Inc()
}

// IncReply increments the reply counter for a dispatch outcome.
func IncReply(outcome string) {
	if !metricsEnabled {
		return
	}
	RepliesTotal.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

// IncSuggestion increments the suggestion counter for a strategy.
func IncSuggestion(strategy string) {
	if !metricsEnabled {
		return
	}
	SuggestionsTotal.WithLabelValues(sanitizeLabel(strategy)).Inc()
}

// IncDocumentIngested increments the document ingestion counter.
func IncDocumentIngested(docType, destination string) {
	if !metricsEnabled {
		return
	}
	DocumentsIngestedTotal.WithLabelValues(sanitizeLabel(docType), sanitizeLabel(destination)).Inc()
}

// ObservePipelineDuration records the end-to-end pipeline time for a message.
func ObservePipelineDuration(category, source string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	PipelineDurationSeconds.WithLabelValues(sanitizeLabel(category), sanitizeLabel(source)).Observe(duration.Seconds())
}

// SetPipelineQueueLength sets the current worker pool queue length.
func SetPipelineQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	PipelineQueueLength.Set(float64(length))
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}

// sanitizeLabel keeps label cardinality bounded and never empty.
func sanitizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
