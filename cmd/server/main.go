package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/dgallion1/medrag/internal/api"
	"github.com/dgallion1/medrag/internal/chunker"
	"github.com/dgallion1/medrag/internal/config"
	"github.com/dgallion1/medrag/internal/embed"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/rag"
	"github.com/dgallion1/medrag/internal/session"
	"github.com/dgallion1/medrag/internal/store"
	"github.com/dgallion1/medrag/internal/watch"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var embedder embed.Embedder
	switch cfg.EmbedderType {
	case "ollama":
		embedder = embed.NewOllamaClient(cfg.OllamaURL, cfg.EmbeddingModel)
	default:
		embedder = embed.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	}

	var backend store.Backend
	if cfg.VectorBackend == "memory" {
		backend = store.NewMemoryBackend()
	} else {
		backend = store.NewQdrantBackend(cfg.QdrantURL, cfg.QdrantAPIKey)
	}

	idx := store.New(backend, embedder,
		store.WithCollections(cfg.CatalogCollection, cfg.ContentCollection),
		store.WithMaxResults(cfg.MaxResults),
	)

	sessions, err := session.Open(cfg.SessionDBPath, cfg.MaxHistory)
	if err != nil {
		log.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	claude := llm.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)

	system, err := rag.NewSystem(rag.Params{
		Store:         idx,
		Sessions:      sessions,
		Client:        claude,
		SearchLimit:   cfg.MaxResults,
		ChunkConfig:   chunker.Config{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap},
		MaxToolRounds: cfg.MaxToolRounds,
		TopicMapPath:  cfg.TopicMapPath,
		Logger:        log,
	})
	if err != nil {
		log.Error("failed to build system", "error", err)
		os.Exit(1)
	}

	// Index whatever is already in the corpus directory.
	if cfg.DocsPath != "" {
		if _, statErr := os.Stat(cfg.DocsPath); statErr == nil {
			docs, chunks, err := system.IngestDir(ctx, cfg.DocsPath)
			if err != nil {
				log.Error("startup ingestion failed", "error", err)
			} else {
				log.Info("startup ingestion complete", "documents", docs, "chunks", chunks)
			}
		} else {
			log.Warn("corpus directory missing, skipping startup ingestion", "dir", cfg.DocsPath)
		}
	}

	if cfg.WatchDocs && cfg.DocsPath != "" {
		watcher, err := watch.New(system, log)
		if err != nil {
			log.Error("failed to start corpus watcher", "error", err)
		} else {
			defer watcher.Close()
			go func() {
				if err := watcher.Run(ctx, cfg.DocsPath); err != nil && ctx.Err() == nil {
					log.Error("corpus watcher stopped", "error", err)
				}
			}()
		}
	}

	srv := api.NewServer(system, claude, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		claude.Close()
	}()

	log.Info("starting medrag", "port", cfg.Port, "backend", cfg.VectorBackend, "embedder", cfg.EmbedderType)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
