package coordinator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/executor"
)

func TestGeneralTaskCompletes(t *testing.T) {
	e := New("")
	long := strings.Repeat("é", 150)
	res, err := e.Execute(context.Background(), task.Record{
		ID:      "task_1",
		Request: task.Request{Type: task.TypeGeneral, Description: long},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != task.StatusCompleted || res.Summary != "hex processed coordination request." {
		t.Fatalf("result = %+v", res)
	}
	var payload coordination
	if err := json.Unmarshal(res.Result, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Message != "hex coordination task completed" {
		t.Errorf("message = %q", payload.Message)
	}
	if n := len([]rune(payload.Description)); n != 100 {
		t.Errorf("description preview has %d runes, want 100", n)
	}
}

func TestOtherTypesAskForDelegation(t *testing.T) {
	for _, typ := range []task.Type{task.TypeCode, task.TypeResearch, task.TypeAnalysis} {
		res, err := New("hex").Execute(context.Background(), task.Record{
			ID:      "task_2",
			Request: task.Request{Type: typ, Description: "d"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != task.StatusFailed || !strings.Contains(res.Error, "does not execute "+string(typ)) {
			t.Errorf("%s: result = %+v", typ, res)
		}
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New("").Execute(ctx, task.Record{Request: task.Request{Type: task.TypeGeneral}}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestRegistered(t *testing.T) {
	e, err := executor.New(DefaultName, map[string]string{"name": "overseer"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Name() != "overseer" {
		t.Fatalf("name = %q", e.Name())
	}
}
