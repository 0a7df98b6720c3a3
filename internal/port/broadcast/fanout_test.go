package broadcast_test

import (
	"context"
	"testing"

	"github.com/hexswarm/hexswarm/internal/port/broadcast"
)

type counter struct{ n int }

func (c *counter) BroadcastEvent(context.Context, string, any) { c.n++ }

func TestFanout(t *testing.T) {
	a, b := &counter{}, &counter{}
	broadcast.Fanout{a, b}.BroadcastEvent(context.Background(), broadcast.EventTaskStatus, broadcast.TaskStatusEvent{})
	if a.n != 1 || b.n != 1 {
		t.Fatalf("counts = %d, %d", a.n, b.n)
	}
}
