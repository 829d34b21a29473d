package trace

import (
	"fmt"
	"io"
	"sync"
)

// StreamTracer writes events immediately to an io.Writer, one line each.
type StreamTracer struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

// NewStreamTracer creates a new StreamTracer.
func NewStreamTracer(w io.Writer, level Level) *StreamTracer {
	return &StreamTracer{w: w, level: level}
}

// Emit writes an event to the output.
func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev) {
		return
	}

	ev.Seq = NextSeq()
	line := FormatEvent(ev)

	t.mu.Lock()
	defer t.mu.Unlock()
	// Best-effort write: a broken trace sink must not take the kernel down.
	_, _ = io.WriteString(t.w, line)
}

// FormatEvent renders one event as a text line.
func FormatEvent(ev *Event) string {
	s := fmt.Sprintf("%s #%d tick=%d [%s] %s %s",
		ev.Time.Format("15:04:05.000000"), ev.Seq, ev.Tick, ev.Scope, ev.Kind, ev.Name)
	if ev.TaskID != 0 {
		s += fmt.Sprintf(" task=%d", ev.TaskID)
	}
	if ev.Detail != "" {
		s += " " + ev.Detail
	}
	return s + "\n"
}

// Flush ensures all buffered data is written.
// For StreamTracer this is a no-op since we write immediately.
func (t *StreamTracer) Flush() error {
	if flusher, ok := t.w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close flushes and closes the writer if it implements io.Closer.
func (t *StreamTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if closer, ok := t.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Level returns the current tracing level.
func (t *StreamTracer) Level() Level {
	return t.level
}

// Enabled returns true if tracing is active.
func (t *StreamTracer) Enabled() bool {
	return t.level > LevelOff
}
