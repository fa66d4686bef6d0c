package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/internal/dispatcher"
	"github.com/wdespachante/wa-service/internal/drive"
	"github.com/wdespachante/wa-service/internal/gateway"
	"github.com/wdespachante/wa-service/internal/ingestor"
	"github.com/wdespachante/wa-service/internal/llm"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/internal/server"
	"github.com/wdespachante/wa-service/internal/storage"
	"github.com/wdespachante/wa-service/internal/usecase"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// A .env file is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting WDespachante WhatsApp service",
		zap.String("environment", cfg.Environment),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Bool("response_enabled", cfg.Gateway.ResponseEnabled),
	)

	repo, err := storage.NewRepo(cfg.Database)
	if err != nil {
		if apperrors.IsFatal(err) {
			logger.Log.Fatal("Database configuration is unusable, not retrying", zap.Error(err))
		}
		logger.Log.Fatal("Failed to initialize storage", zap.Error(err))
	}

	ctx := context.Background()

	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		// The service runs without suggestions; templates take over.
		logger.Log.Warn("LLM client unavailable, falling back to templates", zap.Error(err))
		llmClient = nil
	}

	driveSvc, err := drive.NewService(ctx, cfg.Drive)
	if err != nil {
		logger.Log.Warn("Drive uploader unavailable, documents stay local", zap.Error(err))
		driveSvc = nil
	}

	zapiClient := gateway.NewZAPIClient(cfg.Gateway)
	replyDispatcher := dispatcher.New(zapiClient, cfg.Gateway.Cooldown)

	var uploader drive.Uploader
	if driveSvc != nil {
		uploader = driveSvc
	}
	var vision *llm.Client
	if cfg.Ingest.VisionEnabled {
		vision = llmClient
	}
	docIngestor := ingestor.New(repo, uploader, vision, cfg.Ingest, cfg.Drive.UploadsDir)

	messageService := usecase.NewMessageService(repo, repo)
	quoteService := usecase.NewQuoteService(repo)
	suggester := usecase.NewSuggester(llmClient, repo, cfg.LLM.FewShotLimit)

	pipeline, err := usecase.NewPipeline(
		cfg.WorkerPools.Pipeline,
		cfg.Gateway,
		cfg.LLM.MinConfidence,
		messageService,
		suggester,
		docIngestor,
		replyDispatcher,
		logger.Log,
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize pipeline worker pool", zap.Error(err))
	}

	httpServer := server.New(
		cfg,
		pipeline,
		messageService,
		quoteService,
		repo,
		replyDispatcher,
		repo,
		zapiClient,
		logger.Log,
	)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	sigChan := make(chan os.Signal, 1)
	go func() {
		defer utils.RecoverWithLog(mainCtx, "http server")
		if err := httpServer.Run(mainCtx, cfg.Server.Port); err != nil {
			logger.Log.Error("HTTP server failed, initiating shutdown", zap.Error(err))
			mainCancel()
			select {
			case sigChan <- syscall.SIGTERM:
			default:
			}
		}
	}()

	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping pipeline worker pool")
		start := time.Now()
		pipeline.Stop()
		logger.Log.Info("[shutdown] Pipeline worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping pipeline",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing LLM client")
		if llmClient != nil {
			llmClient.Close()
		}
		logger.Log.Info("[shutdown] LLM client closed")
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing LLM client",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing database connection")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close database", zap.Error(err))
		}
		logger.Log.Info("[shutdown] Database connection closed")
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing database",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("Graceful shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Log.Warn("Graceful shutdown timed out, exiting anyway")
	}
}
