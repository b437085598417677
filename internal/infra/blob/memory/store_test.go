package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"dietinsights/internal/blob/core"
)

func TestStore_MissingHeadGet(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false")
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	store := New()
	ctx := context.Background()
	first, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), core.PutOptions{Metadata: map[string]string{"a": "1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	second, err := store.Put(ctx, "k", bytes.NewReader([]byte("v2")), core.PutOptions{})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if first.ETag == second.ETag {
		t.Fatalf("expected etag to change on overwrite")
	}
	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "v2" {
		t.Fatalf("expected v2, got %q", b)
	}
	h, _ := store.Head(ctx, "k")
	if h.Metadata != nil {
		t.Fatalf("expected metadata replaced, got %v", h.Metadata)
	}
}

func TestStore_ListPrefixAndIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()
	meta := map[string]string{"a": "1"}
	for _, k := range []string{"datasets/b", "datasets/a", "other/c"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{Metadata: meta}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	meta["a"] = "mutated"
	list, err := store.List(ctx, "datasets/")
	if err != nil || len(list) != 2 {
		t.Fatalf("list prefix: %v %d", err, len(list))
	}
	if list[0].Key != "datasets/a" || list[1].Key != "datasets/b" {
		t.Fatalf("expected sorted keys, got %+v", list)
	}
	list[0].Metadata["a"] = "changed"
	h, _ := store.Head(ctx, "datasets/a")
	if h.Metadata["a"] != "1" {
		t.Fatalf("metadata leaked across calls: %v", h.Metadata)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 blobs, got %d", len(all))
	}
}

func TestStore_ConcurrentOverwrite(t *testing.T) {
	store := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Put(ctx, "shared", bytes.NewReader([]byte(fmt.Sprintf("payload-%02d", i))), core.PutOptions{})
		}(i)
	}
	wg.Wait()
	_, rc, err := store.Get(ctx, "shared")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if len(b) != len("payload-00") {
		t.Fatalf("expected one complete payload, got %q", b)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStore_PutReadErrorAndDriver(t *testing.T) {
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := store.Head(context.Background(), "bad"); err == nil {
		t.Fatalf("failed put must not leave a blob")
	}
}
