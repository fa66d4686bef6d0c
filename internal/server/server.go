// Package server exposes the HTTP surface: the gateway webhook, the
// operator dashboard API and the operational endpoints. The webhook
// handler acknowledges before any processing happens; the upstream
// gateway disables endpoints that answer slowly or with errors.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/internal/dispatcher"
	"github.com/wdespachante/wa-service/internal/storage"
	"github.com/wdespachante/wa-service/internal/usecase"
	"github.com/wdespachante/wa-service/pkg/logger"
)

// Pipeline accepts raw webhook payloads for background processing.
type Pipeline interface {
	Submit(task usecase.WebhookTask) error
}

// ReplySender is the dispatcher surface the manual-send endpoint needs.
type ReplySender interface {
	Send(ctx context.Context, phone, message string) (dispatcher.SendResult, error)
}

// Store is the storage surface the health endpoints need.
type Store interface {
	Driver() string
	Ping(ctx context.Context) error
}

// GatewayProbe checks connectivity to the messaging gateway.
type GatewayProbe interface {
	Status(ctx context.Context) error
}

// Server wires the gin engine to the application services.
type Server struct {
	engine    *gin.Engine
	cfg       *config.Config
	pipeline  Pipeline
	messages  *usecase.MessageService
	quotes    *usecase.QuoteService
	docs      storage.DocumentRepo
	sender    ReplySender
	store     Store
	gwProbe   GatewayProbe
	log       *zap.Logger
	startedAt time.Time
}

// New builds the router. Optional collaborators (sender, gwProbe) may be
// nil; the corresponding endpoints report the feature as disabled.
func New(
	cfg *config.Config,
	pipeline Pipeline,
	messages *usecase.MessageService,
	quotes *usecase.QuoteService,
	docs storage.DocumentRepo,
	sender ReplySender,
	store Store,
	gwProbe GatewayProbe,
	log *zap.Logger,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:    gin.New(),
		cfg:       cfg,
		pipeline:  pipeline,
		messages:  messages,
		quotes:    quotes,
		docs:      docs,
		sender:    sender,
		store:     store,
		gwProbe:   gwProbe,
		log:       log.Named("server"),
		startedAt: time.Now(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestContext())
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.POST("/webhook", s.handleWebhook)
	s.engine.POST("/send-test", s.handleSend)
	s.engine.POST("/analyze", s.handleAnalyze)

	api := s.engine.Group("/api")
	{
		api.POST("/send", s.handleSend)
		api.POST("/orcamento", s.handleQuote)
		api.PUT("/orcamento/:id/status", s.handleQuoteStatus)

		api.GET("/mensagens-pendentes", s.handlePendingMessages)
		api.GET("/mensagens-treinadas", s.handleTrainedMessages)
		api.POST("/aprovar/:id", s.handleApprove)
		api.POST("/corrigir/:id", s.handleCorrect)
		api.DELETE("/mensagem/:id", s.handleIgnore)
		api.GET("/estatisticas", s.handleStats)

		api.GET("/mensagens", s.handleListMessages)
		api.GET("/orcamentos", s.handleListQuotes)
		api.GET("/documentos", s.handleListDocuments)
		api.GET("/precos", s.handlePrices)
	}

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/debug", s.handleStatus)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Run starts the HTTP listener and blocks until the context is cancelled
// or the listener fails.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestContext tags every request with an id that shows up on all
// scoped log lines and in the response headers.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", requestID)
		c.Next()
	}
}

// requestLogger returns the logger carried by the request context.
func (s *Server) requestLogger(c *gin.Context) *zap.Logger {
	return logger.FromContext(c.Request.Context())
}
