// Package pipeline runs a bounded multi-producer queue drained by a fixed
// worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

// Overflow selects what Publish does when the queue is full.
type Overflow string

const (
	// OverflowBlock makes the producer wait for capacity or its context.
	OverflowBlock Overflow = "block"
	// OverflowReject fails the publish with schema.ErrPipelineFull.
	OverflowReject Overflow = "reject"
)

const defaultCapacity = 1024

// ParseOverflow validates a configured overflow policy. Empty means block.
func ParseOverflow(value string) (Overflow, error) {
	switch Overflow(strings.ToLower(strings.TrimSpace(value))) {
	case "", OverflowBlock:
		return OverflowBlock, nil
	case OverflowReject:
		return OverflowReject, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", value)
	}
}

// Config sizes the pipeline.
type Config struct {
	Capacity int
	Workers  int
	Overflow Overflow
	Logger   pslog.Logger
}

// Handler consumes one item. It runs on a worker goroutine.
type Handler[T any] func(ctx context.Context, item T)

// Stats is a point-in-time view of pipeline counters.
type Stats struct {
	Queued    int
	Published uint64
	Handled   uint64
	Rejected  uint64
	Panics    uint64
}

// Pipeline is a bounded queue with a fixed worker pool.
type Pipeline[T any] struct {
	cfg     Config
	handler Handler[T]
	log     pslog.Logger
	queue   chan T

	mu       sync.RWMutex
	started  bool
	closed   bool
	stopping chan struct{}
	stopOnce sync.Once
	group    *errgroup.Group

	published atomic.Uint64
	handled   atomic.Uint64
	rejected  atomic.Uint64
	panics    atomic.Uint64
}

// New builds a pipeline. Zero sizes fall back to a capacity of 1024 and one
// worker per CPU.
func New[T any](cfg Config, handler Handler[T]) (*Pipeline[T], error) {
	if handler == nil {
		return nil, errors.New("pipeline handler is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	overflow, err := ParseOverflow(string(cfg.Overflow))
	if err != nil {
		return nil, err
	}
	cfg.Overflow = overflow
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Pipeline[T]{
		cfg:      cfg,
		handler:  handler,
		log:      logger.With("component", "pipeline"),
		queue:    make(chan T, cfg.Capacity),
		stopping: make(chan struct{}),
	}, nil
}

// Start launches the workers. Handlers receive a context that keeps ctx's
// values but is never canceled, so in-flight items finish during Stop.
func (p *Pipeline[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return schema.ErrPipelineClosed
	}
	if p.started {
		return nil
	}
	p.started = true
	workerCtx := context.WithoutCancel(ctx)
	p.group = &errgroup.Group{}
	for i := range p.cfg.Workers {
		p.group.Go(func() error {
			p.work(workerCtx, i)
			return nil
		})
	}
	p.log.Info("pipeline started", "workers", p.cfg.Workers, "capacity", p.cfg.Capacity, "overflow", string(p.cfg.Overflow))
	return nil
}

// Publish enqueues one item. With the block policy it waits until capacity
// frees, ctx ends or the pipeline stops.
func (p *Pipeline[T]) Publish(ctx context.Context, item T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return schema.ErrPipelineClosed
	}
	select {
	case p.queue <- item:
		p.published.Add(1)
		return nil
	default:
	}
	if p.cfg.Overflow == OverflowReject {
		p.rejected.Add(1)
		p.log.Warn("pipeline full", "capacity", p.cfg.Capacity)
		return schema.ErrPipelineFull
	}
	select {
	case p.queue <- item:
		p.published.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopping:
		return schema.ErrPipelineClosed
	}
}

// Stop refuses new items, drains what is queued and waits for the workers or
// ctx, whichever comes first.
func (p *Pipeline[T]) Stop(ctx context.Context) error {
	first := false
	p.stopOnce.Do(func() {
		first = true
		close(p.stopping)
	})
	if !first {
		return nil
	}

	p.mu.Lock()
	p.closed = true
	close(p.queue)
	group := p.group
	p.mu.Unlock()

	if group == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info("pipeline stopped", "handled", p.handled.Load())
		return nil
	case <-ctx.Done():
		p.log.Warn("pipeline stop timed out", "queued", len(p.queue))
		return ctx.Err()
	}
}

// Stats returns the pipeline counters.
func (p *Pipeline[T]) Stats() Stats {
	return Stats{
		Queued:    len(p.queue),
		Published: p.published.Load(),
		Handled:   p.handled.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}

func (p *Pipeline[T]) work(ctx context.Context, worker int) {
	for item := range p.queue {
		p.handle(ctx, worker, item)
	}
}

func (p *Pipeline[T]) handle(ctx context.Context, worker int, item T) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.log.Error("pipeline handler panic", "worker", worker, "panic", fmt.Sprint(r))
		}
		p.handled.Add(1)
	}()
	p.handler(ctx, item)
}
