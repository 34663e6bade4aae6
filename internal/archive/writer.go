package archive

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Writer persists archive records on a background goroutine so a slow or
// failing store never delays a conversation turn. It implements quest.ArchiveSink.
type Writer struct {
	store   Store
	logger  *slog.Logger
	queue   chan quest.ArchiveRecord
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written atomic.Int64
	skipped atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

var _ quest.ArchiveSink = (*Writer)(nil)

// NewWriter starts the background writer with a queue of size records.
func NewWriter(store Store, size int, logger *slog.Logger) *Writer {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		store:   store,
		logger:  logger,
		queue:   make(chan quest.ArchiveRecord, size),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues rec without blocking. When the queue is full the record is
// dropped and logged.
func (w *Writer) Submit(rec quest.ArchiveRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		w.logger.Warn("Archive writer closed, dropping record", "key", rec.Key)
		return
	}
	select {
	case w.queue <- rec:
	default:
		w.dropped.Add(1)
		w.logger.Warn("Archive queue full, dropping record", "key", rec.Key, "queue_len", len(w.queue))
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for rec := range w.queue {
		w.write(rec)
	}
}

func (w *Writer) write(rec quest.ArchiveRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	start := time.Now()
	if rec.Overwrite {
		if err := w.store.Put(ctx, rec.Key, rec.Payload); err != nil {
			w.failed.Add(1)
			w.logger.Error("Failed to write archive record", "key", rec.Key, "error", err)
			return
		}
		w.written.Add(1)
	} else {
		created, err := w.store.PutIfAbsent(ctx, rec.Key, rec.Payload)
		if err != nil {
			w.failed.Add(1)
			w.logger.Error("Failed to write archive record", "key", rec.Key, "error", err)
			return
		}
		if !created {
			w.skipped.Add(1)
			w.logger.Debug("Archive record already exists", "key", rec.Key)
			return
		}
		w.written.Add(1)
	}

	if d := time.Since(start); d > time.Second {
		w.logger.Warn("Slow archive write", "key", rec.Key, "duration_ms", d.Milliseconds())
	}
}

// Close stops accepting records and waits until queued ones are written or ctx ends.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("Archive writer shutdown timeout", "queue_remaining", len(w.queue))
		return ctx.Err()
	}
}

// WriterStats counts records by outcome.
type WriterStats struct {
	Written, Skipped, Dropped, Failed int64
}

func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Skipped: w.skipped.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
	}
}
