package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/cache"
)

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// RunComplianceTests runs the standard compliance test suite against any Cache implementation.
func RunComplianceTests(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "compliance-key", []byte("compliance-val"), time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, "compliance-key")
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "compliance-val" {
			t.Fatalf("expected compliance-val, got %q (found=%v)", val, found)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "nonexistent-key")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for nonexistent key")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		if err := c.Delete(ctx, "never-existed"); err != nil {
			t.Fatal("Delete of nonexistent key should not error")
		}
	})
}

func TestMemCacheCompliance(t *testing.T) {
	RunComplianceTests(t, newMemCache())
}

func TestRecordsOnlyCachesTerminal(t *testing.T) {
	ctx := context.Background()
	r := cache.NewRecords(newMemCache(), time.Minute)

	running := &task.Record{ID: "task_run", Status: task.StatusRunning}
	stored, err := r.Put(ctx, running)
	if err != nil {
		t.Fatal(err)
	}
	if stored {
		t.Fatal("running record must not be cached")
	}

	done := &task.Record{ID: "task_done", Status: task.StatusCompleted, Request: task.Request{Description: "d"}}
	if stored, err = r.Put(ctx, done); err != nil || !stored {
		t.Fatalf("Put terminal = %v, %v", stored, err)
	}

	got, ok, err := r.Get(ctx, "task_done")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Request.Description != "d" || got.Status != task.StatusCompleted {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestRecordsCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mc := newMemCache()
	mc.data[cache.RecordKey("task_bad")] = []byte("{not json")
	r := cache.NewRecords(mc, time.Minute)

	_, ok, err := r.Get(ctx, "task_bad")
	if err != nil || ok {
		t.Fatalf("expected silent miss, got ok=%v err=%v", ok, err)
	}
	if _, present := mc.data[cache.RecordKey("task_bad")]; present {
		t.Fatal("corrupt entry should be dropped")
	}
}
