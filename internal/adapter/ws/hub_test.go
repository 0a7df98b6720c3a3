package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hexswarm/hexswarm/internal/port/broadcast"
)

func TestNewHub(t *testing.T) {
	hub := NewHub("")
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub("")

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub("")

	// A channel cannot be marshaled to JSON; should log, not panic.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub("")

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel})
}

func TestHubDeliversTaskStatus(t *testing.T) {
	hub := NewHub("*")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close(websocket.StatusNormalClosure, "") }()

	for hub.ConnectionCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("connection never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	hub.BroadcastEvent(ctx, broadcast.EventTaskStatus, broadcast.TaskStatusEvent{
		TaskID: "task_1",
		Agent:  "codex",
		Status: "completed",
	})

	_, data, err := client.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != broadcast.EventTaskStatus {
		t.Fatalf("type = %q", msg.Type)
	}
	var ev broadcast.TaskStatusEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.TaskID != "task_1" || ev.Status != "completed" {
		t.Fatalf("event = %+v", ev)
	}

	hub.Close()
	if hub.ConnectionCount() != 0 {
		t.Fatal("Close should drop all connections")
	}
}
