// Package agenthttp implements the runner boundary over HTTP with SSE
// streaming from the agent host.
package agenthttp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/runner"
)

// SSEEvent represents a parsed SSE event.
type SSEEvent struct {
	Event string
	Data  string
}

// Client talks to the agent host's scan API.
type Client struct {
	baseURL      string
	streamClient *http.Client
	pushClient   *http.Client
}

// NewClient creates a client for the agent host at baseURL. streamTimeout
// bounds the whole scan stream; pushTimeout bounds a single message delivery.
func NewClient(baseURL string, streamTimeout, pushTimeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		streamClient: &http.Client{Timeout: streamTimeout},
		pushClient:   &http.Client{Timeout: pushTimeout},
	}
}

type handle struct {
	scanID   string
	finished atomic.Bool
}

func (h *handle) ScanID() string { return h.scanID }

// Preflight checks the agent host's health endpoint.
func (c *Client) Preflight(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.pushClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent host unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent host unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Start launches a scan on the agent host and consumes its SSE stream in the
// background, translating frames into runner notices.
func (c *Client) Start(ctx context.Context, spec runner.StartSpec, cb runner.Callback) (runner.Handle, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal spec: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scans", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Scan-ID", spec.ScanID)

	// The launch request context only covers connection setup; the stream
	// outlives the create call.
	resp, err := c.streamClient.Do(req.WithContext(context.WithoutCancel(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to launch agent: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(respBody))
	}

	h := &handle{scanID: spec.ScanID}
	go c.consume(h, resp.Body, cb)
	return h, nil
}

// PushMessage delivers operator text to the running agent.
func (c *Client) PushMessage(ctx context.Context, rh runner.Handle, text string) error {
	h, ok := rh.(*handle)
	if !ok {
		return fmt.Errorf("foreign handle type %T", rh)
	}
	if h.finished.Load() {
		return runner.ErrNotRunning
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/v1/scans/%s/messages", c.baseURL, h.scanID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.pushClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return runner.ErrNotWaiting
	case http.StatusNotFound, http.StatusGone:
		return runner.ErrNotRunning
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(respBody))
	}
}

// Status reports whether the agent stream is still open.
func (c *Client) Status(rh runner.Handle) runner.HandleStatus {
	if h, ok := rh.(*handle); ok && !h.finished.Load() {
		return runner.HandleActive
	}
	return runner.HandleFinished
}

// consume reads the SSE stream until a terminal frame or disconnect. A
// disconnect without a terminal frame is reported as a failure.
func (c *Client) consume(h *handle, body io.ReadCloser, cb runner.Callback) {
	defer body.Close()

	terminal := false
	err := parseSSE(body, func(event SSEEvent) error {
		n, ok := translate(event)
		if !ok {
			log.Printf("WARN: ignoring unknown agent event %q for scan %s", event.Event, h.scanID)
			return nil
		}
		if n.Kind == runner.NoticeCompleted || n.Kind == runner.NoticeFailed {
			terminal = true
			h.finished.Store(true)
		}
		cb(h.scanID, n)
		return nil
	})

	if !terminal {
		h.finished.Store(true)
		reason := "agent stream ended without a result"
		if err != nil {
			reason = fmt.Sprintf("%s: %v", reason, err)
		}
		cb(h.scanID, runner.Notice{Kind: runner.NoticeFailed, Report: reason})
	} else if err != nil {
		log.Printf("WARN: agent stream for scan %s errored after terminal frame: %v", h.scanID, err)
	}
}

// translate maps one SSE frame onto a runner notice.
func translate(event SSEEvent) (runner.Notice, bool) {
	switch event.Event {
	case "started":
		var data struct {
			RootAgentID string `json:"root_agent_id"`
		}
		if err := json.Unmarshal([]byte(event.Data), &data); err != nil {
			log.Printf("WARN: failed to parse started event: %v", err)
			return runner.Notice{}, false
		}
		return runner.Notice{Kind: runner.NoticeStarted, AgentID: data.RootAgentID}, true

	case "pause":
		return runner.Notice{Kind: runner.NoticePaused}, true

	case "chat", "tool_call", "tool_result", "error":
		return runner.Notice{
			Kind:      runner.NoticeEvent,
			EventKind: domain.EventKind(event.Event),
			Payload:   json.RawMessage(event.Data),
		}, true

	case "finding":
		var v domain.Vulnerability
		if err := json.Unmarshal([]byte(event.Data), &v); err != nil {
			log.Printf("WARN: failed to parse finding event: %v", err)
			return runner.Notice{}, false
		}
		return runner.Notice{Kind: runner.NoticeFinding, Finding: &v}, true

	case "completed":
		var data struct {
			Report string `json:"report"`
		}
		if err := json.Unmarshal([]byte(event.Data), &data); err != nil {
			log.Printf("WARN: failed to parse completed event: %v", err)
			return runner.Notice{}, false
		}
		return runner.Notice{Kind: runner.NoticeCompleted, Report: data.Report}, true

	case "failed":
		var data struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(event.Data), &data); err != nil {
			log.Printf("WARN: failed to parse failed event: %v", err)
			return runner.Notice{}, false
		}
		report := data.Message
		if data.Code != "" {
			report = fmt.Sprintf("%s: %s", data.Code, data.Message)
		}
		return runner.Notice{Kind: runner.NoticeFailed, Report: report}, true
	}
	return runner.Notice{}, false
}

// parseSSE parses an SSE stream and calls the handler for each event.
func parseSSE(reader io.Reader, handler func(SSEEvent) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var event SSEEvent

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if event.Event != "" || event.Data != "" {
				if err := handler(event); err != nil {
					return err
				}
				event = SSEEvent{}
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		}
		// Ignore comments (lines starting with :) and other fields
	}

	if event.Event != "" || event.Data != "" {
		if err := handler(event); err != nil {
			return err
		}
	}

	return scanner.Err()
}
