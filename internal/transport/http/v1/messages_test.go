package v1

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/runner"
)

func TestPostScanMessageWhileWaiting(t *testing.T) {
	h, fake := newTestHandler(t)
	snap := createScan(t, h, "https://media.io")
	fake.Emit(snap.ID, runner.Notice{Kind: runner.NoticeStarted, AgentID: "agent-1"})
	fake.Emit(snap.ID, runner.Notice{Kind: runner.NoticePaused})

	rec := postJSON(t, h.PostScanMessage, "/v1/scans/"+snap.ID+"/messages",
		`{"text":"continue with subdomain X"}`, "scan_id", snap.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got domain.RunSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != domain.StatusRunning || got.WaitingForInput || got.WaitingSince != nil {
		t.Fatalf("unexpected snapshot after message: %+v", got)
	}
	if pushed := fake.Pushed(); len(pushed) != 1 || pushed[0] != "continue with subdomain X" {
		t.Fatalf("unexpected pushed messages: %v", pushed)
	}
}

func TestPostScanMessageNotWaiting(t *testing.T) {
	h, fake := newTestHandler(t)
	snap := createScan(t, h, "https://media.io")
	fake.Emit(snap.ID, runner.Notice{Kind: runner.NoticeStarted})

	rec := postJSON(t, h.PostScanMessage, "/v1/scans/"+snap.ID+"/messages",
		`{"text":"hello"}`, "scan_id", snap.ID)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["kind"] != string(domain.ErrInvalidState) {
		t.Fatalf("unexpected error kind: %q", resp["kind"])
	}
}

func TestPostScanMessageNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := postJSON(t, h.PostScanMessage, "/v1/scans/scan_missing/messages",
		`{"text":"hello"}`, "scan_id", "scan_missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPostScanMessageEmptyText(t *testing.T) {
	h, fake := newTestHandler(t)
	snap := createScan(t, h, "https://media.io")
	fake.Emit(snap.ID, runner.Notice{Kind: runner.NoticeStarted})
	fake.Emit(snap.ID, runner.Notice{Kind: runner.NoticePaused})

	rec := postJSON(t, h.PostScanMessage, "/v1/scans/"+snap.ID+"/messages",
		`{"text":"   "}`, "scan_id", snap.ID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(fake.Pushed()) != 0 {
		t.Fatal("empty message must not reach the agent")
	}
}
