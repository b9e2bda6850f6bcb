package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/studysensei/exambot/internal/ai"
	"github.com/studysensei/exambot/internal/chat"
	"github.com/studysensei/exambot/internal/classify"
	"github.com/studysensei/exambot/internal/config"
	"github.com/studysensei/exambot/internal/db"
	"github.com/studysensei/exambot/internal/httpapi"
	"github.com/studysensei/exambot/internal/knowledge"
	"github.com/studysensei/exambot/internal/store/rabbitmq"
	"github.com/studysensei/exambot/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	gdb, err := db.Connect(cfg)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rds.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, rate limiting degraded", "error", err)
		}
		cancel()
	}

	store := knowledge.NewStore(logger)
	store.Load(cfg.KnowledgePath)

	registry := buildRegistry(cfg)

	var rabbit *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		rabbit, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Error("rabbitmq connect failed", "error", err)
			os.Exit(1)
		}
		defer rabbit.Close()
	} else {
		logger.Info("RABBIT_URL empty, async answering disabled")
	}

	svc := chat.NewService(chat.NewRepo(gdb), registry, classify.NewKeyword(), store, chat.Options{
		ProviderName:    cfg.AIProvider,
		ModelName:       modelFor(cfg),
		RetrievalTopK:   cfg.RetrievalTopK,
		DefaultLanguage: cfg.DefaultLanguage,
		ModelTimeout:    cfg.ModelTimeout,
	}, logger)

	r := httpapi.NewRouter(gdb, cfg, rds, svc, rabbit, logger)

	logger.Info("server starting",
		"port", cfg.Port,
		"provider", cfg.AIProvider,
		"knowledge_passages", store.Size(),
	)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func buildRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("gemini", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.GeminiModel
		}
		return ai.NewGeminiProvider(cfg.GeminiBaseURL, cfg.GoogleAPIKey, m), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	return reg
}

func modelFor(cfg config.Config) string {
	if strings.EqualFold(cfg.AIProvider, "ollama") {
		return cfg.OllamaModel
	}
	return cfg.GeminiModel
}
