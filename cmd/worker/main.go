package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/studysensei/exambot/internal/ai"
	"github.com/studysensei/exambot/internal/chat"
	"github.com/studysensei/exambot/internal/classify"
	"github.com/studysensei/exambot/internal/config"
	"github.com/studysensei/exambot/internal/db"
	"github.com/studysensei/exambot/internal/knowledge"
	"github.com/studysensei/exambot/internal/store/rabbitmq"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.RabbitURL == "" {
		logger.Error("RABBIT_URL is required for the worker")
		os.Exit(1)
	}

	gdb, err := db.Connect(cfg)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}

	store := knowledge.NewStore(logger)
	store.Load(cfg.KnowledgePath)

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

	model := cfg.GeminiModel
	if strings.EqualFold(cfg.AIProvider, "ollama") {
		model = cfg.OllamaModel
	}

	svc := chat.NewService(chat.NewRepo(gdb), reg, classify.NewKeyword(), store, chat.Options{
		ProviderName:    cfg.AIProvider,
		ModelName:       model,
		RetrievalTopK:   cfg.RetrievalTopK,
		DefaultLanguage: cfg.DefaultLanguage,
		ModelTimeout:    cfg.ModelTimeout,
	}, logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Error("rabbit dial failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("rabbit channel failed", "error", err)
		os.Exit(1)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		logger.Error("queue declare failed", "error", err)
		os.Exit(1)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Error("qos failed", "error", err)
		os.Exit(1)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Error("consume failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					logger.Warn("bad message", "worker", workerID, "error", err)
					// malformed payloads go straight to the DLQ
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := svc.ProcessJob(ctx, m.JobID); err != nil {
					logger.Warn("job failed",
						"worker", workerID, "job_id", m.JobID,
						"cost", time.Since(start), "error", err)
					_ = d.Nack(false, false)
					continue
				}

				logger.Info("job done",
					"worker", workerID, "job_id", m.JobID, "cost", time.Since(start))
				if err := d.Ack(false); err != nil {
					logger.Warn("ack failed", "worker", workerID, "job_id", m.JobID, "error", err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
