package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/dispatch"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingProcessor struct {
	mu    sync.Mutex
	ids   []string
	block chan struct{}
}

func (p *recordingProcessor) Process(_ context.Context, msg replybot.Message) dispatch.Summary {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, msg.ID)
	return dispatch.Summary{CorrelationID: "c-" + msg.ID}
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueProcessesMessages(t *testing.T) {
	proc := &recordingProcessor{}
	q := NewQueue(context.Background(), proc, QueueOptions{Size: 8, Concurrency: 2, Logger: quietLogger()})
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(context.Background(), replybot.Message{ID: id}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for proc.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("processed = %d, want 3", proc.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	q.Close()
	if err := q.TryEnqueue(replybot.Message{ID: "late"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("TryEnqueue() after close error = %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	proc := &recordingProcessor{block: make(chan struct{})}
	q := NewQueue(context.Background(), proc, QueueOptions{Size: 1, Concurrency: 1, Logger: quietLogger()})
	defer q.Close()
	defer close(proc.block)

	var full error
	for i := 0; i < 5 && full == nil; i++ {
		full = q.TryEnqueue(replybot.Message{ID: "m"})
	}
	if !errors.Is(full, ErrQueueFull) {
		t.Fatalf("TryEnqueue() error = %v, want ErrQueueFull", full)
	}
}
