package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

const (
	workerTimeout = 5 * time.Second
	lockTTL       = 30 * time.Second
	lockBackoff   = 100 * time.Millisecond
	retryBackoff  = time.Second
	maxAttempts   = 20
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// FailureNotifier tells the sender of a request that it was dropped.
type FailureNotifier interface {
	PublishRequestFailed(ctx context.Context, chatID, requestID, errorMsg string) error
}

// Worker drains the inbound queue, one request at a time, holding a
// per-user Redis lock so turns of one user never run on two workers at once.
// Requests that cannot run yet go back to the head of the queue, which keeps
// each user's messages in arrival order.
type Worker struct {
	id          string
	queue       *queue.InboundQueue
	handler     quest.Handler
	notifier    FailureNotifier
	redisClient *redis.Client
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance. notifier may be nil.
func New(q *queue.InboundQueue, handler quest.Handler, notifier FailureNotifier, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       q,
		handler:     handler,
		notifier:    notifier,
		redisClient: redisClient,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing requests from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeue(w.ctx, workerTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		return nil
	}
	return w.process(req)
}

func (w *Worker) process(req *queuePkg.Request) error {
	userID := req.Message.UserID
	log := logger.WithUser(w.log, userID).With("worker_id", w.id, "request_id", req.RequestID)
	log.Debug("Received request from queue", "attempts", req.Attempts)

	// A turn that has begun runs to completion even when Stop is called.
	ctx := context.WithoutCancel(w.ctx)

	locked, err := w.acquireUserLock(ctx, userID)
	if err != nil {
		if rerr := w.queue.RequeueRequest(ctx, req); rerr != nil {
			return fmt.Errorf("failed to acquire user lock: %w", errors.Join(err, rerr))
		}
		return fmt.Errorf("failed to acquire user lock: %w", err)
	}
	if !locked {
		// Another worker holds this user. Back to the head so later
		// messages of the same user cannot overtake it.
		log.Debug("User already locked, re-queueing request at head")
		if err := w.queue.RequeueRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		w.pause(lockBackoff)
		return nil
	}
	defer w.releaseUserLock(ctx, userID)

	start := time.Now()
	err = w.handler.Handle(ctx, req.Message)

	var perr *quest.PersistenceError
	switch {
	case err == nil:
		log.Info("Request processed", "duration_ms", time.Since(start).Milliseconds())
		return nil
	case errors.As(err, &perr):
		logger.WithError(log, err).Warn("Turn aborted, re-queueing request")
		if err := w.retry(ctx, req, err.Error()); err != nil {
			return err
		}
		w.pause(retryBackoff)
		return nil
	default:
		logger.WithError(log, err).Error("Request failed")
		w.notifyFailure(ctx, req, err.Error())
		return nil
	}
}

// retry puts an aborted request back at the head until it has used up its attempts.
func (w *Worker) retry(ctx context.Context, req *queuePkg.Request, reason string) error {
	req.Attempts++
	if req.Attempts > maxAttempts {
		w.log.Error("Dropping request after too many attempts",
			"request_id", req.RequestID,
			"user_id", req.Message.UserID,
			"reason", reason)
		w.notifyFailure(ctx, req, reason)
		return nil
	}
	if err := w.queue.RequeueRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to re-queue request: %w", err)
	}
	return nil
}

// pause sleeps for d unless the worker is stopping.
func (w *Worker) pause(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}

func (w *Worker) notifyFailure(ctx context.Context, req *queuePkg.Request, reason string) {
	if w.notifier == nil || req.Message.Channel != quest.ChannelWeb {
		return
	}
	if err := w.notifier.PublishRequestFailed(ctx, req.Message.ChatID, req.RequestID, reason); err != nil {
		w.log.Error("Failed to publish failure event", "error", err)
	}
}

func lockKey(userID string) string {
	return "user-lock:" + userID
}

// acquireUserLock makes a single SETNX attempt. Contention is handled by
// re-queueing at the head, never by waiting while holding the request.
func (w *Worker) acquireUserLock(ctx context.Context, userID string) (bool, error) {
	return w.redisClient.SetNX(ctx, lockKey(userID), w.id, lockTTL).Result()
}

// releaseUserLock deletes the lock only if this worker still owns it.
func (w *Worker) releaseUserLock(ctx context.Context, userID string) {
	if err := releaseScript.Run(ctx, w.redisClient, []string{lockKey(userID)}, w.id).Err(); err != nil {
		w.log.Error("Failed to release user lock", "error", err, "user_id", userID)
	}
}
