package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"threadline.app/agent/common/id"
	"threadline.app/agent/common/llm"
	"threadline.app/agent/common/logger"
	"threadline.app/agent/core/config"
	"threadline.app/agent/core/db"
	"threadline.app/agent/internal/action"
	"threadline.app/agent/internal/ingest"
	"threadline.app/agent/internal/queue"
	"threadline.app/agent/internal/store"
	"threadline.app/agent/internal/thread"
	"threadline.app/agent/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	slog.InfoContext(ctx, "threadline agent starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Different node ID than the server so both can mint ids
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisStream + ":dlq",
		BatchSize:    1, // Process one task at a time
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database.Pool())

	chatClient, err := llm.New(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.ChatModel,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}
	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.EmbeddingModel,
		Dim:     cfg.OpenAI.EmbeddingDim,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create embedder", "error", err)
		os.Exit(1)
	}

	matcher := thread.NewMatcher(cfg.Ingest, stores)
	summarizer := thread.NewLLMSummarizer(cfg.Ingest, chatClient, stores)
	engine := action.NewEngine(cfg.Ingest, stores, action.NewFactExtractor(chatClient))

	factory := ingest.GmailServiceFactory(cfg, stores, embedder, matcher, summarizer)
	sweeper := ingest.NewSweeper(stores, factory)

	w := worker.New(consumer, stores, factory, sweeper, engine, worker.Config{
		MaxAttempts: 3,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, nil)
	poller := newSweepPoller(producer, cfg.Ingest.PollInterval)

	errCh := make(chan error, 3)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()
	go func() {
		poller.run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "agent initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down agent...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	poller.stop()
	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	slog.InfoContext(ctx, "agent shutdown complete")
}

// sweepPoller periodically enqueues a full-mailbox sweep so users
// without push notifications still stay current.
type sweepPoller struct {
	producer queue.Producer
	interval time.Duration
	stopCh   chan struct{}
}

func newSweepPoller(producer queue.Producer, interval time.Duration) *sweepPoller {
	return &sweepPoller{
		producer: producer,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (p *sweepPoller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "sweep poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			task := queue.Task{Type: queue.TaskSweep, Trigger: queue.TriggerPoll}
			if err := p.producer.Enqueue(ctx, task); err != nil {
				slog.ErrorContext(ctx, "failed to enqueue sweep", "error", err)
			}
		}
	}
}

func (p *sweepPoller) stop() {
	close(p.stopCh)
}

const banner = `
████████╗██╗     █████╗  ██████╗ ███████╗███╗   ██╗████████╗
╚══██╔══╝██║    ██╔══██╗██╔════╝ ██╔════╝████╗  ██║╚══██╔══╝
   ██║   ██║    ███████║██║  ███╗█████╗  ██╔██╗ ██║   ██║
   ██║   ██║    ██╔══██║██║   ██║██╔══╝  ██║╚██╗██║   ██║
   ██║   ███████╗██║  ██║╚██████╔╝███████╗██║ ╚████║   ██║
   ╚═╝   ╚══════╝╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝  ╚═══╝   ╚═╝
`
