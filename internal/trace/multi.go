package trace

// MultiTracer fans one event out to several sinks. The run command uses it
// for the "both" storage mode: a stream sink for live output plus a ring
// sink kept for post-mortem dumps.
type MultiTracer struct {
	sinks []Tracer
	level Level
}

// NewMultiTracer wraps the given sinks. The level gates emission for the
// whole fan-out; the sinks' own levels are ignored.
func NewMultiTracer(level Level, sinks ...Tracer) *MultiTracer {
	return &MultiTracer{sinks: sinks, level: level}
}

func (t *MultiTracer) Emit(ev *Event) {
	for _, s := range t.sinks {
		s.Emit(ev)
	}
}

// Flush flushes every sink and reports the first error.
func (t *MultiTracer) Flush() error {
	var firstErr error
	for _, s := range t.sinks {
		if err := s.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink and reports the first error.
func (t *MultiTracer) Close() error {
	var firstErr error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *MultiTracer) Level() Level { return t.level }

func (t *MultiTracer) Enabled() bool { return t.level > LevelOff }
