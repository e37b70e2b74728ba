package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/easelx/schema"
)

func TestParseOverflow(t *testing.T) {
	cases := map[string]Overflow{
		"":        OverflowBlock,
		"block":   OverflowBlock,
		" Reject": OverflowReject,
	}
	for input, want := range cases {
		got, err := ParseOverflow(input)
		if err != nil {
			t.Fatalf("ParseOverflow(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseOverflow(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := ParseOverflow("drop"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestNewRequiresHandler(t *testing.T) {
	if _, err := New[int](Config{}, nil); err == nil {
		t.Fatalf("expected error without handler")
	}
}

func TestPublishDeliversEveryItemOnce(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]int)
	p, err := New(Config{Capacity: 16, Workers: 4}, func(_ context.Context, item int) {
		mu.Lock()
		seen[item]++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	const producers = 8
	const perProducer = 200
	var wg sync.WaitGroup
	for i := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range perProducer {
				if err := p.Publish(context.Background(), i*perProducer+j); err != nil {
					t.Errorf("Publish: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d distinct items, got %d", producers*perProducer, len(seen))
	}
	for item, count := range seen {
		if count != 1 {
			t.Fatalf("item %d handled %d times", item, count)
		}
	}
	stats := p.Stats()
	if stats.Published != producers*perProducer || stats.Handled != producers*perProducer {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRejectPolicyReturnsFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p, err := New(Config{Capacity: 1, Workers: 1, Overflow: OverflowReject}, func(context.Context, int) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx := context.Background()
	if err := p.Publish(ctx, 1); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	<-started
	if err := p.Publish(ctx, 2); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}
	if err := p.Publish(ctx, 3); !errors.Is(err, schema.ErrPipelineFull) {
		t.Fatalf("expected ErrPipelineFull, got %v", err)
	}
	if p.Stats().Rejected != 1 {
		t.Fatalf("expected one rejection, got %d", p.Stats().Rejected)
	}
	close(release)
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestBlockPolicyWaitsForContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p, err := New(Config{Capacity: 1, Workers: 1}, func(context.Context, int) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = p.Publish(context.Background(), 1)
	<-started
	_ = p.Publish(context.Background(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Publish(ctx, 3); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopUnblocksWaitingPublisher(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p, err := New(Config{Capacity: 1, Workers: 1}, func(context.Context, int) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = p.Publish(context.Background(), 1)
	<-started
	_ = p.Publish(context.Background(), 2)

	result := make(chan error, 1)
	go func() {
		result <- p.Publish(context.Background(), 3)
	}()
	time.Sleep(20 * time.Millisecond)

	stopDone := make(chan error, 1)
	go func() {
		stopDone <- p.Stop(context.Background())
	}()
	select {
	case err := <-result:
		if !errors.Is(err, schema.ErrPipelineClosed) {
			t.Fatalf("expected ErrPipelineClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("blocked publisher was not released by Stop")
	}
	close(release)
	if err := <-stopDone; err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestPublishAfterStop(t *testing.T) {
	p, err := New(Config{}, func(context.Context, int) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := p.Publish(context.Background(), 1); !errors.Is(err, schema.ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, schema.ErrPipelineClosed) {
		t.Fatalf("expected Start after Stop to fail, got %v", err)
	}
}

func TestHandlerPanicDoesNotKillWorker(t *testing.T) {
	var handled atomic.Int64
	p, err := New(Config{Capacity: 8, Workers: 1}, func(_ context.Context, item int) {
		if item == 1 {
			panic("boom")
		}
		handled.Add(1)
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, item := range []int{1, 2, 3} {
		if err := p.Publish(context.Background(), item); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if handled.Load() != 2 {
		t.Fatalf("expected 2 handled items after panic, got %d", handled.Load())
	}
	if p.Stats().Panics != 1 {
		t.Fatalf("expected one recorded panic, got %d", p.Stats().Panics)
	}
}

func TestHandlerContextSurvivesStartCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	p, err := New(Config{Capacity: 1, Workers: 1}, func(hctx context.Context, _ int) {
		errs <- hctx.Err()
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	if err := p.Publish(context.Background(), 1); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("expected live handler context, got %v", err)
	}
	_ = p.Stop(context.Background())
}
