package eventlog

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/wardenhq/warden/internal/domain"
)

func TestAppendAssignsGaplessSeq(t *testing.T) {
	l := New()
	l.Register("s1")

	for i := 1; i <= 5; i++ {
		seq, err := l.Append("s1", domain.EventKindToolCall, map[string]string{"tool": "nmap"})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if seq != int64(i) {
			t.Fatalf("expected seq %d, got %d", i, seq)
		}
	}

	events, err := l.ReadFrom("s1", 0)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i)+1 {
			t.Fatalf("expected seq %d at index %d, got %d", i+1, i, ev.Seq)
		}
		if ev.ScanID != "s1" {
			t.Fatalf("unexpected scan id: %q", ev.ScanID)
		}
	}
}

func TestReadFromPartial(t *testing.T) {
	l := New()
	l.Register("s1")
	for i := 0; i < 4; i++ {
		if _, err := l.Append("s1", domain.EventKindChat, domain.ChatPayload{Role: "user", Text: "hi"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	events, err := l.ReadFrom("s1", 2)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 3 || events[1].Seq != 4 {
		t.Fatalf("unexpected tail: %+v", events)
	}

	events, err = l.ReadFrom("s1", 99)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty tail, got %d events", len(events))
	}
}

func TestReadFromUnknownRun(t *testing.T) {
	l := New()
	if _, err := l.ReadFrom("missing", 0); domain.KindOf(err) != domain.ErrNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := l.Append("missing", domain.EventKindChat, nil); domain.KindOf(err) != domain.ErrNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestRepeatedReadsAreIdentical(t *testing.T) {
	l := New()
	l.Register("s1")
	if _, err := l.Append("s1", domain.EventKindFinding, json.RawMessage(`{"title":"XSS"}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	first, err := l.ReadFrom("s1", 0)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	second, err := l.ReadFrom("s1", 0)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(first) != len(second) || first[0].Seq != second[0].Seq || string(first[0].Payload) != string(second[0].Payload) {
		t.Fatalf("reads differ: %+v vs %+v", first, second)
	}
}

func TestConcurrentAppendAndRead(t *testing.T) {
	l := New()
	l.Register("s1")

	const total = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			if _, err := l.Append("s1", domain.EventKindToolResult, map[string]int{"i": i}); err != nil {
				t.Errorf("Append failed: %v", err)
				return
			}
		}
	}()

	// Readers poll while the writer appends; every snapshot must be ordered
	// and gapless.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int64
			for last < total {
				events, err := l.ReadFrom("s1", last)
				if err != nil {
					t.Errorf("ReadFrom failed: %v", err)
					return
				}
				for _, ev := range events {
					if ev.Seq != last+1 {
						t.Errorf("gap after seq %d: got %d", last, ev.Seq)
						return
					}
					last = ev.Seq
				}
			}
		}()
	}

	wg.Wait()
}
