package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// Units reported in an Event.
const (
	UnitDocuments = "documents"
	UnitBytes     = "bytes"
)

// Event is a progress notification. Total is 0 when unknown.
type Event struct {
	Label string
	Unit  string
	Done  int64
	Total int64
	Final bool // set on the event emitted by Tracker.Finish
}

// Complete reports whether the event marks the end of the operation.
func (e Event) Complete() bool {
	return e.Final || (e.Total > 0 && e.Done >= e.Total)
}

// Func receives progress events. A nil Func discards them.
type Func func(Event)

// Step is the document interval between events: one percent of total, at
// least one.
func Step(total int64) int64 {
	if s := total / 100; s > 1 {
		return s
	}
	return 1
}

// Tracker counts items and forwards an event after the first item, at every
// Step boundary and once more on Finish.
type Tracker struct {
	fn      Func
	label   string
	unit    string
	total   int64
	step    int64
	done    int64
	emitted int64
}

func NewTracker(label, unit string, total int64, fn Func) *Tracker {
	return &Tracker{fn: fn, label: label, unit: unit, total: total, step: Step(total), emitted: -1}
}

// Add records n more items.
func (t *Tracker) Add(n int64) {
	if n <= 0 {
		return
	}
	prev := t.done
	t.done += n
	if prev == 0 || t.done/t.step > prev/t.step {
		t.emit(false)
	}
}

// Done returns the number of items recorded so far.
func (t *Tracker) Done() int64 { return t.done }

// Finish emits the final count unless it was just emitted as complete.
func (t *Tracker) Finish() {
	if t.emitted == t.done && t.total > 0 && t.done >= t.total {
		return
	}
	t.emit(true)
}

func (t *Tracker) emit(final bool) {
	t.emitted = t.done
	if t.fn != nil {
		t.fn(Event{Label: t.label, Unit: t.unit, Done: t.done, Total: t.total, Final: final})
	}
}

// Reader wraps an io.Reader and reports the bytes read through fn.
type Reader struct {
	r  io.Reader
	tr *Tracker
}

// NewReader creates a new progress Reader. If total is 0, percentage is omitted.
func NewReader(r io.Reader, total int64, label string, fn Func) *Reader {
	return &Reader{r: r, tr: NewTracker(label, UnitBytes, total, fn)}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.tr.Add(int64(n))
	if err == io.EOF {
		p.tr.Finish()
	}
	return n, err
}

// Renderer draws events as a single self-overwriting console line. Updates
// are throttled to one per interval; completion lines are always drawn.
type Renderer struct {
	out       io.Writer
	tty       bool
	mu        sync.Mutex
	sometimes *rate.Sometimes
	open      bool
}

// NewRenderer renders to out. On a terminal the line is redrawn in place;
// otherwise only throttled updates are written, one per line.
func NewRenderer(out io.Writer) *Renderer {
	r := &Renderer{out: out, sometimes: &rate.Sometimes{Interval: 200 * time.Millisecond}}
	if f, ok := out.(*os.File); ok {
		r.tty = term.IsTerminal(int(f.Fd()))
	}
	return r
}

// Func returns the Func that feeds this renderer.
func (r *Renderer) Func() Func {
	return r.Render
}

// Render draws one event.
func (r *Renderer) Render(e Event) {
	if r == nil || r.out == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Complete() {
		r.print(e)
		fmt.Fprint(r.out, "\n")
		r.open = false
		return
	}
	r.sometimes.Do(func() { r.print(e) })
}

// Flush ends a line left open by an incomplete operation.
func (r *Renderer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		fmt.Fprint(r.out, "\n")
		r.open = false
	}
}

func (r *Renderer) print(e Event) {
	prefix, suffix := "\r", ""
	if !r.tty {
		prefix = ""
		if !e.Complete() {
			suffix = "\n"
		}
	}
	fmt.Fprintf(r.out, "%s[%s] %s%s", prefix, e.Label, Format(e), suffix)
	r.open = r.tty
}

// Format renders the counters of e, e.g. "45.0% (450/1,000 documents)".
func Format(e Event) string {
	done, total := count(e.Unit, e.Done), count(e.Unit, e.Total)
	unit := " " + e.Unit
	if e.Unit == UnitBytes || e.Unit == "" {
		unit = ""
	}
	if e.Total > 0 {
		pct := float64(e.Done) / float64(e.Total) * 100
		return fmt.Sprintf("%.1f%% (%s/%s%s)", pct, done, total, unit)
	}
	return done + unit
}

func count(unit string, n int64) string {
	if unit == UnitBytes {
		return humanize.Bytes(uint64(n))
	}
	return humanize.Comma(n)
}
