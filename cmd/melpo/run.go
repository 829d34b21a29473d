package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"fortio.org/safecast"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"mnemos/internal/comms"
	"mnemos/internal/config"
	"mnemos/internal/kernel"
	"mnemos/internal/registry"
	"mnemos/internal/services"
	"mnemos/internal/trace"
	"mnemos/internal/version"
)

var (
	runConfigPath string
	runPings      int
	runPayload    string
	runTimeout    time.Duration
	runTraceLevel string
)

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to melpo.toml (defaults built in)")
	runCmd.Flags().IntVar(&runPings, "pings", 8, "wire echo requests to send")
	runCmd.Flags().StringVar(&runPayload, "payload", "ping", "echo request payload")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Second, "give up if the run takes longer than this")
	runCmd.Flags().StringVar(&runTraceLevel, "trace-level", "", "override trace level (off|tick|detail|debug)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot a kernel and drive it with wire traffic",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig()
		if err != nil {
			return err
		}

		tracer, err := buildTracer(cfg.Trace)
		if err != nil {
			return err
		}
		defer tracer.Close()

		k := kernel.New(kernel.Settings{
			HeapSize:            cfg.Kernel.HeapSize,
			DefaultChanCapacity: cfg.Kernel.ChanCapacity,
			WireCapacity:        cfg.Kernel.WireCapacity,
			Tracer:              tracer,
		})
		if err := spawnServices(k, cfg.Services); err != nil {
			return err
		}

		printBanner(cmd, cfg, k)

		start := time.Now()
		replies, err := driveKernel(cmd.Context(), k, cfg)
		if err != nil {
			return err
		}

		printStats(cmd, k, replies, time.Since(start))
		return nil
	},
}

func loadRunConfig() (config.Config, error) {
	if runConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(runConfigPath)
}

func buildTracer(tc config.TraceConfig) (trace.Tracer, error) {
	level := tc.Level
	if runTraceLevel != "" {
		level = runTraceLevel
	}
	lv, err := trace.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if lv == trace.LevelOff {
		return trace.Nop, nil
	}
	mode, err := trace.ParseMode(tc.Mode)
	if err != nil {
		return nil, err
	}
	return trace.New(trace.Config{
		Level:      lv,
		Mode:       mode,
		OutputPath: tc.Output,
		RingSize:   tc.RingSize,
	})
}

func spawnServices(k *kernel.Kernel, sc config.ServicesConfig) error {
	if sc.Echo {
		if _, err := services.SpawnEcho(k); err != nil {
			return fmt.Errorf("spawning echo service: %w", err)
		}
	}
	if sc.Uptime {
		if _, err := services.SpawnUptime(k); err != nil {
			return fmt.Errorf("spawning uptime service: %w", err)
		}
	}
	return nil
}

// driveKernel runs the kernel loop alongside a feeder pushing echo request
// frames into the wire inbox and a collector reading response frames back
// out. It returns once every ping is answered or the timeout hits.
func driveKernel(parent context.Context, k *kernel.Kernel, cfg config.Config) (int, error) {
	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := k.Run(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		for i := 0; i < runPings; i++ {
			nonce, err := safecast.Conv[uint32](i)
			if err != nil {
				return err
			}
			frame, err := encodePing(nonce)
			if err != nil {
				return err
			}
			for {
				err := k.WireInbox().TrySend(frame)
				if err == nil {
					break
				}
				if err != comms.ErrFull {
					return fmt.Errorf("feeding wire inbox: %w", err)
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(time.Millisecond):
				}
			}
		}
		return nil
	})

	replies := 0
	g.Go(func() error {
		defer cancel()
		for replies < runPings {
			frame, err := k.WireOutbox().TryRecv()
			if err != nil {
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(time.Millisecond):
				}
				continue
			}
			if err := checkPong(frame); err != nil {
				return err
			}
			replies++
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return replies, err
	}
	if replies < runPings {
		return replies, fmt.Errorf("timed out with %d of %d replies", replies, runPings)
	}
	return replies, nil
}

func encodePing(nonce uint32) ([]byte, error) {
	body, err := msgpack.Marshal(services.EchoRequest{Payload: runPayload})
	if err != nil {
		return nil, fmt.Errorf("encoding echo request: %w", err)
	}
	frame, err := msgpack.Marshal(registry.WireRequest{
		Uuid:  registry.EchoService.String(),
		Nonce: nonce,
		Body:  body,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding wire envelope: %w", err)
	}
	return frame, nil
}

func checkPong(frame []byte) error {
	var wrsp registry.WireResponse
	if err := msgpack.Unmarshal(frame, &wrsp); err != nil {
		return fmt.Errorf("decoding wire response: %w", err)
	}
	if wrsp.Error != "" {
		return fmt.Errorf("echo service failed: %s", wrsp.Error)
	}
	var rsp services.EchoResponse
	if err := msgpack.Unmarshal(wrsp.Body, &rsp); err != nil {
		return fmt.Errorf("decoding echo response: %w", err)
	}
	if rsp.Payload != runPayload {
		return fmt.Errorf("echo mismatch: sent %q, got back %q", runPayload, rsp.Payload)
	}
	return nil
}

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

func printBanner(cmd *cobra.Command, cfg config.Config, k *kernel.Kernel) {
	out := cmd.OutOrStdout()
	pretty := isTerminal(os.Stdout)

	title := fmt.Sprintf("melpo %s", version.Version)
	if pretty {
		title = bannerStyle.Render(title)
	}
	fmt.Fprintln(out, title)
	fmt.Fprintf(out, "heap %d B, %d services registered\n",
		cfg.Kernel.HeapSize, k.Registry().Len())
}

func printStats(cmd *cobra.Command, k *kernel.Kernel, replies int, elapsed time.Duration) {
	out := cmd.OutOrStdout()
	pretty := isTerminal(os.Stdout)
	s := k.Heap().Stats()

	rows := []struct {
		label string
		value string
	}{
		{"replies", fmt.Sprintf("%d", replies)},
		{"ticks", fmt.Sprintf("%d", k.TickCount())},
		{"elapsed", elapsed.Round(time.Microsecond).String()},
		{"heap high water", fmt.Sprintf("%d B", s.HighWaterBytes)},
		{"allocations", fmt.Sprintf("%d (%d oom, %d deferred frees)", s.AllocCount, s.OOMCount, s.DeferredFreeCount)},
		{"heap in use", fmt.Sprintf("%d of %d B", s.AllocatedBytes, s.TotalBytes)},
	}
	for _, row := range rows {
		label, value := row.label, row.value
		if pretty {
			label = labelStyle.Render(label)
			value = valueStyle.Render(value)
		}
		fmt.Fprintf(out, "%s: %s\n", label, value)
	}
}
