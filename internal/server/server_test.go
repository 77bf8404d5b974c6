package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quorum/internal/config"
	"quorum/internal/dispatch"
	"quorum/internal/evaluator"
	"quorum/internal/notes"
	"quorum/internal/orchestrator"
	"quorum/internal/planner"
	"quorum/internal/worker"
)

// fixedLLM always returns the same decision.
type fixedLLM struct {
	response string
}

func (f *fixedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, nil
}

func (f *fixedLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return f.response, nil
}

// wireEvent is the envelope as seen by a client.
type wireEvent struct {
	Type        string          `json:"type"`
	EID         uint64          `json:"eid"`
	Payload     json.RawMessage `json:"payload"`
	RequiresAck bool            `json:"requires_ack"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.Protocol.AckTimeout = time.Second

	ctrl := orchestrator.New(
		planner.New(),
		worker.NewRegistry(worker.Deps{}),
		dispatch.New(time.Second),
		evaluator.New(&fixedLLM{response: `{"decision": "finalize", "final_answer": "The square root of 144 is 12", "reasoning": "agents agree"}`}),
		notes.NopSink{},
		orchestrator.Options{},
	)

	srv := New(cfg, ctrl, nil)
	ts := httptest.NewServer(http.HandlerFunc(srv.handleSession))
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat/" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSessionQueryStreamsEventsToFinal(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "test-session")

	if err := conn.WriteJSON(map[string]string{"content": "What is the square root of 144?"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	var events []wireEvent
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read failed after %d events: %v", len(events), err)
		}
		events = append(events, ev)
		if ev.Type == "final" || ev.Type == "error" {
			break
		}
	}

	last := events[len(events)-1]
	if last.Type != "final" {
		t.Fatalf("expected final, got %s", last.Type)
	}
	if !strings.Contains(string(last.Payload), "12") {
		t.Errorf("final payload missing answer: %s", last.Payload)
	}
	if !last.RequiresAck {
		t.Error("final event should require an ack")
	}

	// Eids are monotonic in wire order, starting at 1.
	for i, ev := range events {
		if ev.EID != uint64(i+1) {
			t.Fatalf("event %d has eid %d", i, ev.EID)
		}
	}

	// Ack the final event; the session keeps working for the next query.
	if err := conn.WriteJSON(map[string]uint64{"eid": last.EID}); err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"content": "What is the square root of 81?"}); err != nil {
		t.Fatalf("second query failed: %v", err)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read failed on second run: %v", err)
		}
		if ev.Type == "final" {
			break
		}
		if ev.Type == "error" {
			t.Fatalf("second run failed: %s", ev.Payload)
		}
	}
}

func TestMalformedClientMessageIsIgnored(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "s2")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// The session is still alive and processes a real query.
	if err := conn.WriteJSON(map[string]string{"content": "What is the square root of 144?"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if ev.Type == "final" {
			return
		}
		if ev.Type == "error" {
			t.Fatalf("unexpected error event: %s", ev.Payload)
		}
	}
}
