// Package config loads the simulator's melpo.toml.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the root of melpo.toml.
type Config struct {
	Kernel   KernelConfig   `toml:"kernel"`
	Trace    TraceConfig    `toml:"trace"`
	Services ServicesConfig `toml:"services"`
}

// KernelConfig sizes the kernel's fixed resources.
type KernelConfig struct {
	// HeapSize is the allocator arena in bytes.
	HeapSize int `toml:"heap_size"`
	// ChanCapacity is the default service channel capacity.
	ChanCapacity int `toml:"chan_capacity"`
	// WireCapacity sizes the wire inbox and outbox.
	WireCapacity int `toml:"wire_capacity"`
}

// TraceConfig selects the tracer.
type TraceConfig struct {
	// Level is off|tick|detail|debug.
	Level string `toml:"level"`
	// Mode is stream|ring|both.
	Mode string `toml:"mode"`
	// Output is a file path for stream output ("-" for stderr).
	Output string `toml:"output"`
	// RingSize is the ring tracer capacity in events.
	RingSize int `toml:"ring_size"`
}

// ServicesConfig picks which built-in drivers the simulator spawns.
type ServicesConfig struct {
	Echo   bool `toml:"echo"`
	Uptime bool `toml:"uptime"`
}

// Default returns the configuration used when no melpo.toml is given.
func Default() Config {
	return Config{
		Kernel: KernelConfig{
			HeapSize:     64 * 1024,
			ChanCapacity: 16,
			WireCapacity: 32,
		},
		Trace: TraceConfig{
			Level:    "off",
			Mode:     "ring",
			Output:   "-",
			RingSize: 1024,
		},
		Services: ServicesConfig{
			Echo:   true,
			Uptime: true,
		},
	}
}

// Load reads path and overlays it on the defaults, so a partial file only
// has to name what it changes.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Kernel.HeapSize <= 0 {
		return fmt.Errorf("kernel.heap_size must be positive, got %d", c.Kernel.HeapSize)
	}
	if c.Kernel.ChanCapacity < 1 {
		return fmt.Errorf("kernel.chan_capacity must be at least 1, got %d", c.Kernel.ChanCapacity)
	}
	if c.Kernel.WireCapacity < 1 {
		return fmt.Errorf("kernel.wire_capacity must be at least 1, got %d", c.Kernel.WireCapacity)
	}
	if c.Trace.RingSize < 0 {
		return fmt.Errorf("trace.ring_size must not be negative, got %d", c.Trace.RingSize)
	}
	return nil
}
