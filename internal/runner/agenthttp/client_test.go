package agenthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/runner"
)

func collectNotices(t *testing.T, ch <-chan runner.Notice, n int) []runner.Notice {
	t.Helper()
	var out []runner.Notice
	for len(out) < n {
		select {
		case notice := <-ch:
			out = append(out, notice)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d notices: %+v", len(out), out)
		}
	}
	return out
}

func TestStartTranslatesStream(t *testing.T) {
	var gotSpec runner.StartSpec
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/scans" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotSpec); err != nil {
			t.Errorf("failed to decode spec: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: started\ndata: {\"root_agent_id\":\"agent-1\"}\n\n")
		fmt.Fprint(w, "event: tool_call\ndata: {\"tool\":\"nmap\"}\n\n")
		fmt.Fprint(w, "event: pause\ndata: {}\n\n")
		fmt.Fprint(w, "event: finding\ndata: {\"title\":\"XSS\",\"severity\":\"high\"}\n\n")
		fmt.Fprint(w, "event: completed\ndata: {\"report\":\"# Report\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, time.Second)
	notices := make(chan runner.Notice, 16)
	h, err := client.Start(context.Background(), runner.StartSpec{
		ScanID: "scan_1",
		Target: "https://media.io",
	}, func(scanID string, n runner.Notice) {
		if scanID != "scan_1" {
			t.Errorf("unexpected scan id: %s", scanID)
		}
		notices <- n
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := collectNotices(t, notices, 5)
	if gotSpec.ScanID != "scan_1" || gotSpec.Target != "https://media.io" {
		t.Fatalf("unexpected spec: %+v", gotSpec)
	}
	if got[0].Kind != runner.NoticeStarted || got[0].AgentID != "agent-1" {
		t.Fatalf("unexpected first notice: %+v", got[0])
	}
	if got[1].Kind != runner.NoticeEvent || got[1].EventKind != domain.EventKindToolCall {
		t.Fatalf("unexpected second notice: %+v", got[1])
	}
	if got[2].Kind != runner.NoticePaused {
		t.Fatalf("unexpected third notice: %+v", got[2])
	}
	if got[3].Kind != runner.NoticeFinding || got[3].Finding == nil || got[3].Finding.Title != "XSS" {
		t.Fatalf("unexpected fourth notice: %+v", got[3])
	}
	if got[4].Kind != runner.NoticeCompleted || got[4].Report != "# Report" {
		t.Fatalf("unexpected fifth notice: %+v", got[4])
	}

	if client.Status(h) != runner.HandleFinished {
		t.Fatal("expected finished handle after terminal frame")
	}
}

func TestStartLaunchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "docker unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, time.Second)
	_, err := client.Start(context.Background(), runner.StartSpec{ScanID: "scan_1"}, func(string, runner.Notice) {})
	if err == nil {
		t.Fatal("expected synchronous launch error")
	}
}

func TestStreamDisconnectReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: started\ndata: {\"root_agent_id\":\"agent-1\"}\n\n")
		// Stream ends without a terminal frame.
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, time.Second)
	notices := make(chan runner.Notice, 16)
	h, err := client.Start(context.Background(), runner.StartSpec{ScanID: "scan_1"},
		func(_ string, n runner.Notice) { notices <- n })
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := collectNotices(t, notices, 2)
	if got[1].Kind != runner.NoticeFailed || got[1].Report == "" {
		t.Fatalf("expected failure notice, got %+v", got[1])
	}
	if client.Status(h) != runner.HandleFinished {
		t.Fatal("expected finished handle after disconnect")
	}
}

func TestPushMessageStatusMapping(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/scans" {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: started\ndata: {}\n\n")
			w.(http.Flusher).Flush()
			// Keep the stream open while messages are pushed.
			<-r.Context().Done()
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, time.Second)
	h, err := client.Start(context.Background(), runner.StartSpec{ScanID: "scan_1"}, func(string, runner.Notice) {})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status = http.StatusOK
	if err := client.PushMessage(context.Background(), h, "hello"); err != nil {
		t.Fatalf("PushMessage failed: %v", err)
	}

	status = http.StatusConflict
	if err := client.PushMessage(context.Background(), h, "hello"); !errors.Is(err, runner.ErrNotWaiting) {
		t.Fatalf("expected ErrNotWaiting, got %v", err)
	}

	status = http.StatusNotFound
	if err := client.PushMessage(context.Background(), h, "hello"); !errors.Is(err, runner.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestPushMessageFinishedHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: completed\ndata: {\"report\":\"done\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, time.Second)
	done := make(chan struct{})
	h, err := client.Start(context.Background(), runner.StartSpec{ScanID: "scan_1"},
		func(_ string, n runner.Notice) {
			if n.Kind == runner.NoticeCompleted {
				close(done)
			}
		})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-done

	if err := client.PushMessage(context.Background(), h, "hello"); !errors.Is(err, runner.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestPreflight(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, time.Second)
	if err := client.Preflight(context.Background()); err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}

	healthy = false
	if err := client.Preflight(context.Background()); err == nil {
		t.Fatal("expected preflight error")
	}
}

func TestParseSSEMultilineData(t *testing.T) {
	input := "event: chat\n" +
		"data: first line\n" +
		"data: second line\n\n"

	var events []SSEEvent
	if err := parseSSE(strings.NewReader(input), func(event SSEEvent) error {
		events = append(events, event)
		return nil
	}); err != nil {
		t.Fatalf("parseSSE failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Data != "first line\nsecond line" {
		t.Fatalf("unexpected data: %q", events[0].Data)
	}
}

func TestTranslateUnknownEvent(t *testing.T) {
	if _, ok := translate(SSEEvent{Event: "telemetry", Data: "{}"}); ok {
		t.Fatal("unknown events must be dropped")
	}
}
