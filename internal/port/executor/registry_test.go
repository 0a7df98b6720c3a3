package executor_test

import (
	"context"
	"slices"
	"testing"

	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/executor"
)

type testExecutor struct {
	name string
}

func (e *testExecutor) Name() string              { return e.name }
func (e *testExecutor) Capabilities() []task.Type { return []task.Type{task.TypeGeneral} }
func (e *testExecutor) Execute(_ context.Context, _ task.Record) (*task.Result, error) {
	return nil, nil
}

func TestRegisterAndNew(t *testing.T) {
	executor.Register("test-agent", func(cfg map[string]string) (executor.Executor, error) {
		return &testExecutor{name: cfg["name"]}, nil
	})

	e, err := executor.New("test-agent", map[string]string{"name": "renamed"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Name() != "renamed" {
		t.Fatalf("expected renamed, got %s", e.Name())
	}
	if !slices.Contains(executor.Available(), "test-agent") {
		t.Fatal("expected test-agent in available executors")
	}
}

func TestNewUnknownExecutor(t *testing.T) {
	if _, err := executor.New("nonexistent", nil); err == nil {
		t.Fatal("expected error for unknown executor")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	executor.Register("dup-agent", func(map[string]string) (executor.Executor, error) {
		return &testExecutor{}, nil
	})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	executor.Register("dup-agent", func(map[string]string) (executor.Executor, error) {
		return &testExecutor{}, nil
	})
}
