package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/catalog"
	"github.com/wdespachante/wa-service/internal/classifier"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/internal/storage"
	"github.com/wdespachante/wa-service/internal/usecase"
)

const defaultListLimit = 50

// handleWebhook acknowledges immediately and hands the raw body to the
// pipeline. Processing failures never surface here; a non-200 answer
// would make the gateway retry-storm or disable the endpoint.
func (s *Server) handleWebhook(c *gin.Context) {
	observer.IncWebhookReceived()

	body, err := c.GetRawData()
	if err != nil {
		s.log.Warn("Failed to read webhook body", zap.Error(err))
		body = nil
	}

	if len(body) > 0 && s.pipeline != nil {
		// The task outlives the request; detach cancellation but keep the
		// request id for log correlation.
		task := usecase.WebhookTask{Ctx: context.WithoutCancel(c.Request.Context()), Body: body}
		if err := s.pipeline.Submit(task); err != nil {
			s.log.Error("Failed to queue webhook for processing", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type sendRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// handleSend sends a message through the dispatcher. Gateway failures and
// cooldown blocks come back in the result body, not as HTTP errors.
func (s *Server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone and message are required"})
		return
	}
	if s.sender == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gateway not configured"})
		return
	}

	result, err := s.sender.Send(c.Request.Context(), req.Phone, req.Message)
	if err != nil {
		s.requestLogger(c).Warn("Manual send did not go through",
			zap.String("outcome", result.Outcome()),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{
		"result":            result,
		"cooldown_segundos": int(result.CooldownRemaining.Seconds()),
	})
}

type analyzeRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleAnalyze runs the classifier over arbitrary text.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	result := classifier.Classify(req.Text, false, false)
	c.JSON(http.StatusOK, gin.H{
		"categoria":         result.Category,
		"is_client":         result.IsClient,
		"confianca":         result.Confidence,
		"resposta_template": usecase.TemplateReply(result.Category),
	})
}

// handleQuote generates and stores a quote, returning the rendered
// WhatsApp message alongside the fee breakdown.
func (s *Server) handleQuote(c *gin.Context) {
	var req usecase.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "telefone and servico are required"})
		return
	}

	quote, message, err := s.quotes.Generate(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orcamento": quote,
		"mensagem":  message,
	})
}

// handleQuoteStatus advances a quote through the payment flow
// (gerado → aguardando_pagamento → protocolado → concluido).
func (s *Server) handleQuoteStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	quote, err := s.quotes.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orcamento": quote})
}

func (s *Server) handlePendingMessages(c *gin.Context) {
	filter := storage.MessageFilter{
		OnlyPending: true,
		Category:    c.Query("service"),
		Limit:       queryInt(c, "limit", defaultListLimit),
	}
	messages, err := s.messages.ListMessages(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensagens": messages, "total": len(messages)})
}

func (s *Server) handleTrainedMessages(c *gin.Context) {
	examples, err := s.messages.ListTrained(c.Request.Context(), queryInt(c, "limit", defaultListLimit))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treinadas": examples, "total": len(examples)})
}

func (s *Server) handleApprove(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	example, err := s.messages.Approve(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treinada": example})
}

type correctRequest struct {
	CorrectedResponse string `json:"correctedResponse"`
}

func (s *Server) handleCorrect(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req correctRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "correctedResponse is required"})
		return
	}
	example, err := s.messages.Correct(c.Request.Context(), id, req.CorrectedResponse)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treinada": example})
}

func (s *Server) handleIgnore(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.messages.Ignore(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ignorada": true})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.messages.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleListMessages(c *gin.Context) {
	filter := storage.MessageFilter{
		Phone:    c.Query("phone"),
		Category: c.Query("service"),
		Limit:    queryInt(c, "limit", defaultListLimit),
	}
	messages, err := s.messages.ListMessages(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensagens": messages, "total": len(messages)})
}

func (s *Server) handleListQuotes(c *gin.Context) {
	quotes, err := s.quotes.List(c.Request.Context(), queryInt(c, "limit", defaultListLimit))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orcamentos": quotes, "total": len(quotes)})
}

func (s *Server) handleListDocuments(c *gin.Context) {
	docs, err := s.docs.ListDocuments(c.Request.Context(), c.Query("phone"), queryInt(c, "limit", defaultListLimit))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documentos": docs, "total": len(docs)})
}

func (s *Server) handlePrices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"honorarios": catalog.ServiceFees(),
		"taxas":      catalog.DetranFees(),
		"prazos":     catalog.Turnarounds(),
		"pix":        catalog.PixKey,
		"parcelado":  catalog.InstallmentsURL,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"service":          catalog.BusinessName,
		"database":         s.store.Driver(),
		"response_enabled": s.cfg.Gateway.ResponseEnabled,
		"llm_enabled":      s.cfg.LLM.Enabled && s.cfg.LLM.APIKey != "",
		"drive_enabled":    s.cfg.Drive.Enabled(),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleStatus serves operational counters for humans. The numbers come
// straight from the store; nothing here is a programmatic contract.
func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.messages.Stats(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	quoteCount, err := s.quotes.Count(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	docCount, err := s.docs.CountDocuments(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	gatewayStatus := "not_configured"
	if s.gwProbe != nil {
		if err := s.gwProbe.Status(ctx); err != nil {
			gatewayStatus = "disconnected"
		} else {
			gatewayStatus = "connected"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime":              time.Since(s.startedAt).Round(time.Second).String(),
		"mensagens":           stats.TotalMessages,
		"pendentes":           stats.PendingMessages,
		"treinadas":           stats.TrainedTotal,
		"taxa_aprovacao":      stats.ApprovalRate,
		"orcamentos":          quoteCount,
		"documentos":          docCount,
		"servicos_catalogo":   catalog.ServiceCount(),
		"gateway":             gatewayStatus,
		"resposta_automatica": s.cfg.Gateway.ResponseEnabled,
	})
}

// writeError maps application errors to HTTP statuses. A duplicate
// training decision is a client mistake, not a conflict worth retrying.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidationError(err), apperrors.IsBadRequestError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsDuplicateError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "mensagem já treinada"})
	case apperrors.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.IsCooldownActiveError(err):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case apperrors.IsGatewayError(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case apperrors.IsTimeoutError(err):
		s.log.Warn("Request timed out", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "operação expirou"})
	case apperrors.IsDatabaseError(err):
		s.log.Error("Database failure", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		s.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
