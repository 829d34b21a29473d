package trace

import "fmt"

// Level controls tracing verbosity.
type Level uint8

const (
	// LevelOff disables tracing.
	LevelOff Level = iota
	// LevelTick emits tick boundaries and task lifecycle only.
	LevelTick
	// LevelDetail adds per-operation events.
	LevelDetail
	// LevelDebug emits everything including waiter park/wake noise.
	LevelDebug
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelTick:
		return "tick"
	case LevelDetail:
		return "detail"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "off", "OFF":
		return LevelOff, nil
	case "tick", "TICK":
		return LevelTick, nil
	case "detail", "DETAIL":
		return LevelDetail, nil
	case "debug", "DEBUG":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|tick|detail|debug)", s)
	}
}

// minLevel maps an event kind to the lowest level that emits it. Tick
// boundaries are the coarsest signal; points default to detail.
func minLevel(ev *Event) Level {
	switch ev.Kind {
	case KindTickBegin, KindTickEnd:
		return LevelTick
	case KindWake:
		return LevelDebug
	default:
		return LevelDetail
	}
}

// ShouldEmit reports whether an event passes this level's filter.
func (l Level) ShouldEmit(ev *Event) bool {
	if l == LevelOff {
		return false
	}
	return minLevel(ev) <= l
}
