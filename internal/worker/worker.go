package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"threadline.app/agent/common/logger"
	"threadline.app/agent/internal/action"
	"threadline.app/agent/internal/ingest"
	"threadline.app/agent/internal/queue"
	"threadline.app/agent/internal/store"
)

type Config struct {
	MaxAttempts int
}

// Worker consumes pipeline tasks from the stream and dispatches them
// to the ingestion and action services.
type Worker struct {
	consumer *queue.RedisConsumer
	stores   store.Provider
	factory  ingest.ServiceFactory
	sweeper  *ingest.Sweeper
	engine   *action.Engine
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(
	consumer *queue.RedisConsumer,
	stores store.Provider,
	factory ingest.ServiceFactory,
	sweeper *ingest.Sweeper,
	engine *action.Engine,
	cfg Config,
) *Worker {
	return &Worker{
		consumer:  consumer,
		stores:    stores,
		factory:   factory,
		sweeper:   sweeper,
		engine:    engine,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "task processing failed",
				"error", err,
				"message_id", msg.ID,
				"task_type", msg.Task.Type)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in task processing",
				"panic", r,
				"message_id", msg.ID,
				"task_type", msg.Task.Type)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// Exported so it can be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    msg.Task.UserID,
		ThreadID:  msg.Task.ThreadID,
		Component: "agent.worker",
	})

	slog.InfoContext(ctx, "processing task",
		"message_id", msg.ID,
		"task_type", msg.Task.Type,
		"trigger", msg.Task.Trigger,
		"attempt", msg.Task.Attempt)

	var err error
	switch msg.Task.Type {
	case queue.TaskIngestRun:
		err = w.runIngestion(ctx, *msg.Task.UserID)
	case queue.TaskProposeActions:
		_, err = w.engine.Propose(ctx, *msg.Task.ThreadID)
	case queue.TaskSweep:
		err = w.sweeper.SweepAll(ctx)
	default:
		// Parse already rejects unknown types; ack defensively.
		slog.WarnContext(ctx, "unknown task type acked", "task_type", msg.Task.Type)
	}
	if err != nil {
		return err
	}

	if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
		// The task already ran; a reclaimed redelivery is safe because
		// every step is idempotent.
		slog.WarnContext(ctx, "failed to ACK task",
			"error", ackErr,
			"message_id", msg.ID)
	}
	return nil
}

func (w *Worker) runIngestion(ctx context.Context, userID int64) error {
	user, err := w.stores.Users().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.AgentPaused {
		slog.InfoContext(ctx, "user paused, skipping ingestion")
		return nil
	}

	svc, err := w.factory(ctx, user)
	if err != nil {
		return fmt.Errorf("build ingestion service: %w", err)
	}

	result, err := svc.Run(ctx, user)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "ingestion run finished",
		"processed", result.Processed,
		"errors", len(result.Errors))
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Task.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"task_type", msg.Task.Type,
			"attempts", msg.Task.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed task",
		"message_id", msg.ID,
		"task_type", msg.Task.Type,
		"attempt", msg.Task.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue task", "error", requeueErr)
	}
}
