package easelx

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pkt.systems/easelx/core"
	"pkt.systems/easelx/httpapi"
	"pkt.systems/easelx/internal/catalog"
	"pkt.systems/easelx/internal/pipeline"
	"pkt.systems/easelx/schema"
)

type trackingCatalog struct {
	catalog.Store
	closed int
}

func (t *trackingCatalog) Close() error {
	t.closed++
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []schema.PresenceEvent
}

func (r *recordingSink) OnPresence(event schema.PresenceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestServerStopDrainsPipelineAndClosesCatalog(t *testing.T) {
	events, err := pipeline.New[core.Event](pipeline.Config{Capacity: 4, Workers: 1}, func(context.Context, core.Event) {})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	store := &trackingCatalog{}
	ctx, cancel := context.WithCancel(context.Background())
	if err := events.Start(ctx); err != nil {
		t.Fatalf("pipeline start: %v", err)
	}
	server := &compositeServer{
		events:      events,
		catalog:     store,
		ownsCatalog: true,
		ctx:         ctx,
		cancel:      cancel,
		started:     true,
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if store.closed != 1 {
		t.Fatalf("expected catalog Close to be called once, got %d", store.closed)
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected server context to be canceled")
	}
	if err := events.Publish(context.Background(), core.Event{}); err == nil {
		t.Fatalf("expected publish after stop to fail")
	}
	if err := server.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if store.closed != 1 {
		t.Fatalf("expected Stop to be idempotent, catalog closed %d times", store.closed)
	}
}

func TestServerKeepsInjectedCatalogOpen(t *testing.T) {
	dir := t.TempDir()
	file, err := catalog.NewFileStore(filepath.Join(dir, "catalog.yaml"), nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := &trackingCatalog{Store: file}
	srv, err := New(context.Background(), ServerConfig{
		HTTP: httpapi.Config{Addr: "127.0.0.1:0"},
		Auth: AuthConfig{UserFile: filepath.Join(dir, "users.json")},
	}, ServerDeps{Catalog: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Fatalf("expected second Start to fail")
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if store.closed != 0 {
		t.Fatalf("expected injected catalog to stay open, closed %d times", store.closed)
	}
}

func TestPresenceFanoutSkipsNilSinks(t *testing.T) {
	if newPresenceSink(nil, nil) != nil {
		t.Fatalf("expected nil sink when nothing is wired")
	}
	first := &recordingSink{}
	if got := newPresenceSink(nil, first); got != first {
		t.Fatalf("expected single sink to be returned as is")
	}
	second := &recordingSink{}
	sink := newPresenceSink(first, nil, second)
	sink.OnPresence(schema.PresenceEvent{Type: schema.PresenceJoin, PictureID: 1})
	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("unexpected fan-out counts: first=%d second=%d", first.count(), second.count())
	}
}
