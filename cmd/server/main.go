package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"report-rag/internal/chunker"
	"report-rag/internal/config"
	"report-rag/internal/docstore"
	"report-rag/internal/embedding"
	"report-rag/internal/llmservice"
	"report-rag/internal/ocr"
	"report-rag/internal/parser"
	"report-rag/internal/rag"
	"report-rag/internal/server"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	store, err := docstore.New(cfg.Server.UploadDir, cfg.Server.MaxDocuments)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating document store")
	}
	defer store.Close()

	ocrRunner := ocr.NewRunner(cfg.Extract.OCRDPI, time.Duration(cfg.Extract.OCRTimeoutSecs)*time.Second)
	extractor := parser.NewExtractor(ocrRunner, !cfg.Extract.OCRDisabled)

	chunks, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, cfg.Chunker.Separator)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating chunker")
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	estimator := llmservice.NewEstimator(cfg.Tokens.Encoding, cfg.Tokens.PromptBudget)
	resolver := llmservice.NewResolver(cfg.LLMs, estimator)
	orchestrator := rag.NewOrchestrator(store, extractor, chunks, embedder, resolver, cfg.RAG.TopK)
	session := rag.NewSession()

	handler := server.NewHandler(store, session, orchestrator)
	srv := server.New(cfg.Addr(), handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down server")
		}
	}
}
