package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// RequestsKey is the Redis list holding inbound requests.
const RequestsKey = "requests"

// InboundQueue is a FIFO of inbound chat messages shared by API and workers.
type InboundQueue struct {
	client *Client
}

func NewInboundQueue(client *Client) *InboundQueue {
	return &InboundQueue{client: client}
}

// Enqueue wraps msg in a new request and appends it to the queue.
func (q *InboundQueue) Enqueue(ctx context.Context, msg quest.Inbound) (*queue.Request, error) {
	req := &queue.Request{
		RequestID:  ulid.Make().String(),
		Message:    msg,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.EnqueueRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// EnqueueRequest appends an existing request, used when re-queueing.
func (q *InboundQueue) EnqueueRequest(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, RequestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	return nil
}

// RequeueRequest puts a request back at the head so it runs before any
// later message of the same user.
func (q *InboundQueue) RequeueRequest(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := q.client.rdb.LPush(ctx, RequestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to requeue request: %w", err)
	}
	return nil
}

// BlockingDequeue waits up to timeout for the next request. It returns
// nil, nil when the timeout passes with an empty queue.
func (q *InboundQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, RequestsKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// Depth returns the number of queued requests.
func (q *InboundQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, RequestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	return int(count), nil
}
