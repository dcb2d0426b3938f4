package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestStep(t *testing.T) {
	cases := map[int64]int64{0: 1, 1: 1, 99: 1, 199: 1, 200: 2, 1000: 10, 12345: 123}
	for total, want := range cases {
		if got := Step(total); got != want {
			t.Fatalf("Step(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestTracker_EmitsFirstStepAndFinal(t *testing.T) {
	var events []Event
	tr := NewTracker("shop.orders", UnitDocuments, 1000, func(e Event) { events = append(events, e) })
	for i := 0; i < 1000; i++ {
		tr.Add(1)
	}
	tr.Finish()
	// first document, then every 10th up to 1000; the last one is complete
	if len(events) != 101 {
		t.Fatalf("got %d events, want 101", len(events))
	}
	if events[0].Done != 1 || events[1].Done != 10 || events[100].Done != 1000 {
		t.Fatalf("unexpected event sequence: %+v ... %+v", events[:2], events[100])
	}
	if !events[100].Complete() {
		t.Fatalf("last event not complete: %+v", events[100])
	}
}

func TestTracker_EmptyStillFinishes(t *testing.T) {
	var events []Event
	tr := NewTracker("empty", UnitDocuments, 0, func(e Event) { events = append(events, e) })
	tr.Finish()
	if len(events) != 1 || !events[0].Final || events[0].Done != 0 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestTracker_NilFunc(t *testing.T) {
	tr := NewTracker("x", UnitDocuments, 3, nil)
	tr.Add(3)
	tr.Finish()
	if tr.Done() != 3 {
		t.Fatalf("Done = %d", tr.Done())
	}
}

func TestReader_ReportsBytes(t *testing.T) {
	var last Event
	r := NewReader(strings.NewReader(strings.Repeat("x", 5000)), 5000, "file", func(e Event) { last = e })
	if _, err := io.Copy(io.Discard, r); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if last.Done != 5000 || last.Unit != UnitBytes || !last.Complete() {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestRenderer_NonTerminalWritesCompletionLine(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	r.Render(Event{Label: "shop.orders", Unit: UnitDocuments, Done: 2, Total: 2000})
	r.Render(Event{Label: "shop.orders", Unit: UnitDocuments, Done: 20, Total: 2000})
	r.Render(Event{Label: "shop.orders", Unit: UnitDocuments, Done: 2000, Total: 2000})
	got := out.String()
	if !strings.Contains(got, "[shop.orders] 0.1% (2/2,000 documents)\n") {
		t.Fatalf("first update missing: %q", got)
	}
	if strings.Contains(got, "(20/") {
		t.Fatalf("throttled update was drawn: %q", got)
	}
	if !strings.HasSuffix(got, "[shop.orders] 100.0% (2,000/2,000 documents)\n") {
		t.Fatalf("completion line missing: %q", got)
	}
	if strings.Contains(got, "\r") {
		t.Fatalf("carriage return written to non-terminal: %q", got)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(Event{Unit: UnitBytes, Done: 1500, Total: 3000}); got != "50.0% (1.5 kB/3.0 kB)" {
		t.Fatalf("Format bytes = %q", got)
	}
	if got := Format(Event{Unit: UnitDocuments, Done: 1234}); got != "1,234 documents" {
		t.Fatalf("Format unknown total = %q", got)
	}
}
