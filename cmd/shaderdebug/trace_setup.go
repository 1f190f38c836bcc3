package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shaderdebug/internal/config"
	"shaderdebug/internal/trace"
)

// setupTracing builds the tracer from the trace flags, falling back to the
// [trace] section of cfg for flags left unset. It returns the tracer and a
// cleanup function that flushes it.
func setupTracing(cmd *cobra.Command, cfg config.TraceConfig) (trace.Tracer, func(), error) {
	flags := cmd.Root().PersistentFlags()
	pick := func(name, fallback string) string {
		if v, _ := flags.GetString(name); v != "" {
			return v
		}
		return fallback
	}

	output := pick("trace", cfg.Output)
	level, err := trace.ParseLevel(pick("trace-level", cfg.Level))
	if err != nil {
		return nil, nil, err
	}
	// An output without a level means the user wants a trace.
	if level == trace.LevelOff && output != "" {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		return trace.Nop, func() {}, nil
	}
	mode, err := trace.ParseMode(pick("trace-mode", cfg.Mode))
	if err != nil {
		return nil, nil, err
	}
	format, err := trace.ParseFormat(pick("trace-format", cfg.Format))
	if err != nil {
		return nil, nil, err
	}
	ringSize := cfg.RingSize
	if n, _ := flags.GetInt("trace-ring-size"); n > 0 {
		ringSize = n
	}
	heartbeat := cfg.Heartbeat.Duration
	if d, _ := flags.GetDuration("trace-heartbeat"); d > 0 {
		heartbeat = d
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: output,
		RingSize:   ringSize,
		Heartbeat:  heartbeat,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	hb := trace.StartHeartbeat(tracer, heartbeat)

	cleanup := func() {
		hb.Stop()
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return tracer, cleanup, nil
}

// dumpRing writes the ring tracer's events to stderr after a failure.
func dumpRing(cmd *cobra.Command, tracer trace.Tracer) {
	var ring *trace.RingTracer
	switch t := tracer.(type) {
	case *trace.RingTracer:
		ring = t
	case *trace.MultiTracer:
		ring = t.Ring()
	}
	if ring == nil {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "last trace events:")
	if err := ring.Dump(cmd.ErrOrStderr(), trace.FormatText); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: dump error: %v\n", err)
	}
}
