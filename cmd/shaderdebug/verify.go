package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shaderdebug/internal/debugger"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [program.sdp]",
	Short: "Check that a session is deterministic",
	Long: `Runs the same session several times concurrently and compares the
recorded states byte for byte. With --replay the run is checked against an
earlier recording instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	addSessionFlags(verifyCmd)
	verifyCmd.Flags().Int("runs", 2, "number of concurrent runs to compare")
	verifyCmd.Flags().String("replay", "", "recording to check the run against")
}

func runVerify(cmd *cobra.Command, args []string) error {
	runs, _ := cmd.Flags().GetInt("runs")
	replayPath, _ := cmd.Flags().GetString("replay")
	if runs < 1 {
		return fmt.Errorf("--runs must be at least 1, got %d", runs)
	}

	setup, cleanup, err := prepare(cmd, args)
	if err != nil {
		return err
	}
	defer cleanup()
	// Writable resources are copied per session, so runs share the fixture.
	out := cmd.OutOrStdout()

	if replayPath != "" {
		if err := replay(cmd.Context(), setup, replayPath); err != nil {
			dumpRing(cmd, setup.tracer)
			return err
		}
		fmt.Fprintf(out, "run matches %s\n", replayPath)
		return nil
	}

	recordings := make([][]byte, runs)
	g, ctx := errgroup.WithContext(cmd.Context())
	for i := range recordings {
		g.Go(func() error {
			buf, err := recordRun(ctx, setup)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			recordings[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		dumpRing(cmd, setup.tracer)
		return err
	}
	for i := 1; i < len(recordings); i++ {
		if !bytes.Equal(recordings[0], recordings[i]) {
			return fmt.Errorf("%w: run %d differs from run 0", debugger.ErrReplayMismatch, i)
		}
	}
	log.Debug().Int("runs", runs).Int("bytes", len(recordings[0])).Msg("recordings compared")
	fmt.Fprintf(out, "%d runs produced identical recordings (%d bytes)\n", runs, len(recordings[0]))
	return nil
}

// recordRun runs one fresh session and returns its recording.
func recordRun(ctx context.Context, setup *sessionSetup) ([]byte, error) {
	s, initial, err := setup.begin()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	rec := debugger.NewRecorder(&buf, s)
	rec.Record(initial)
	err = drive(ctx, s, setup.acc, func(states []debugger.ShaderDebugState) error {
		rec.Record(states...)
		return rec.Err()
	})
	if cerr := rec.Close(); err == nil {
		err = cerr
	}
	return buf.Bytes(), err
}

func replay(ctx context.Context, setup *sessionSetup, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	s, initial, err := setup.begin()
	if err != nil {
		return err
	}
	rp := debugger.NewReplayer(f)
	if err := rp.Validate(s); err != nil {
		return err
	}
	if err := rp.Check(initial); err != nil {
		return err
	}
	if err := drive(ctx, s, setup.acc, func(states []debugger.ShaderDebugState) error {
		return rp.Check(states...)
	}); err != nil {
		return err
	}
	return rp.Finish()
}
