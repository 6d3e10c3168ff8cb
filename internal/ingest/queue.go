// Package ingest feeds inbound messages to the processor through a bounded
// worker pool.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/andrewgari/starbunk-js-sub002/dispatch"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

var (
	ErrQueueFull   = errors.New("ingest queue is full")
	ErrQueueClosed = errors.New("ingest queue is closed")
)

type Processor interface {
	Process(ctx context.Context, msg replybot.Message) dispatch.Summary
}

type QueueOptions struct {
	Size        int
	Concurrency int
	Logger      *slog.Logger
}

type Queue struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan replybot.Message
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewQueue(ctx context.Context, proc Processor, opts QueueOptions) *Queue {
	size := opts.Size
	if size <= 0 {
		size = 100
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	qctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		ctx:    qctx,
		cancel: cancel,
		jobs:   make(chan replybot.Message, size),
		logger: logger,
	}
	sem := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		startWorker(workerOptions[replybot.Message]{
			Ctx:  qctx,
			WG:   &q.wg,
			Sem:  sem,
			Jobs: q.jobs,
			Handle: func(ctx context.Context, msg replybot.Message) {
				sum := proc.Process(ctx, msg)
				logger.Debug("ingest_message_processed", "message_id", msg.ID, "correlation_id", sum.CorrelationID)
			},
		})
	}
	return q
}

// TryEnqueue queues msg without blocking.
func (q *Queue) TryEnqueue(msg replybot.Message) error {
	if q.ctx.Err() != nil {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- msg:
		return nil
	default:
		q.logger.Warn("ingest_queue_full", "message_id", msg.ID)
		return ErrQueueFull
	}
}

// Enqueue blocks until msg is queued, ctx is done or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, msg replybot.Message) error {
	err := enqueue(ctx, q.ctx, q.jobs, msg)
	if err != nil && q.ctx.Err() != nil {
		return ErrQueueClosed
	}
	return err
}

// Close stops the workers and waits for in-flight messages. Queued messages
// that were not started are dropped.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}
