package quest

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg Inbound) error
}

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher fans inbound messages out to a fixed set of goroutines. All
// messages of one user land on the same shard, so they are handled in
// arrival order while different users proceed in parallel.
type Dispatcher struct {
	handler Handler
	logger  *slog.Logger
	shards  []chan Inbound

	retries    int
	retryDelay time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with n shards, each buffering up to buffer messages.
func NewDispatcher(h Handler, n, buffer int, logger *slog.Logger) *Dispatcher {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		handler:    h,
		logger:     logger,
		shards:     make([]chan Inbound, n),
		retries:    3,
		retryDelay: 500 * time.Millisecond,
	}
	for i := range d.shards {
		d.shards[i] = make(chan Inbound, buffer)
	}
	return d
}

// WithRetry sets how many times a turn aborted by a *PersistenceError is
// handled again, and the delay between attempts. Call it before Start.
func (d *Dispatcher) WithRetry(retries int, delay time.Duration) *Dispatcher {
	d.retries = max(retries, 0)
	d.retryDelay = delay
	return d
}

// Start launches the shard goroutines. They run until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.shards {
		d.wg.Add(1)
		go d.run(ctx, i, ch)
	}
}

func (d *Dispatcher) run(ctx context.Context, shard int, ch <-chan Inbound) {
	defer d.wg.Done()
	for msg := range ch {
		if err := d.handle(ctx, msg); err != nil {
			d.logger.Error("Failed to handle message",
				"shard", shard,
				"user_id", msg.UserID,
				"message_id", msg.MessageID,
				"error", err)
		}
	}
}

// handle runs one turn. Transports feeding the dispatcher cannot redeliver,
// so aborted turns are retried here.
func (d *Dispatcher) handle(ctx context.Context, msg Inbound) error {
	var perr *PersistenceError
	for attempt := 0; ; attempt++ {
		err := d.handler.Handle(ctx, msg)
		if err == nil || !errors.As(err, &perr) || attempt >= d.retries {
			return err
		}
		d.logger.Warn("Turn aborted, retrying",
			"user_id", msg.UserID,
			"attempt", attempt+1,
			"error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(d.retryDelay):
		}
	}
}

// Dispatch queues msg on its user's shard, blocking while the shard is full.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Inbound) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.shards[d.shardFor(msg.UserID)] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) shardFor(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Close stops accepting messages and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
