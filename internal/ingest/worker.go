package ingest

import (
	"context"
	"sync"
)

type workerOptions[J any] struct {
	Ctx    context.Context
	WG     *sync.WaitGroup
	Sem    chan struct{}
	Jobs   <-chan J
	Handle func(context.Context, J)
}

func startWorker[J any](opts workerOptions[J]) {
	opts.WG.Add(1)
	go func() {
		defer opts.WG.Done()
		for {
			select {
			case <-opts.Ctx.Done():
				return
			case job, ok := <-opts.Jobs:
				if !ok {
					return
				}
				select {
				case opts.Sem <- struct{}{}:
				case <-opts.Ctx.Done():
					return
				}
				func() {
					defer func() { <-opts.Sem }()
					opts.Handle(opts.Ctx, job)
				}()
			}
		}
	}()
}

func enqueue[J any](ctx, workersCtx context.Context, jobs chan<- J, job J) error {
	if ctx == nil {
		ctx = workersCtx
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-workersCtx.Done():
		return workersCtx.Err()
	case jobs <- job:
		return nil
	}
}
