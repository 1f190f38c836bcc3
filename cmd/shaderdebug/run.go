package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"shaderdebug/internal/debugger"
	"shaderdebug/internal/interp"
)

var runCmd = &cobra.Command{
	Use:   "run [program.sdp]",
	Short: "Debug one lane of a workgroup and print every step",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExecution,
}

func init() {
	addSessionFlags(runCmd)
	runCmd.Flags().String("record", "", "write the states to a recording file")
	runCmd.Flags().Bool("vars", false, "print source variables after every step")
	runCmd.Flags().BoolP("quiet", "q", false, "print only the summary")
	runCmd.Flags().String("progress", "auto", "progress view (auto|on|off)")
}

func runExecution(cmd *cobra.Command, args []string) error {
	recordPath, _ := cmd.Flags().GetString("record")
	showVars, _ := cmd.Flags().GetBool("vars")
	quiet, _ := cmd.Flags().GetBool("quiet")
	progressValue, _ := cmd.Flags().GetString("progress")
	showTimings, _ := cmd.Root().PersistentFlags().GetBool("timings")

	mode, err := readUIMode(progressValue)
	if err != nil {
		return err
	}
	useTUI := shouldUseTUI(mode, quiet)
	if useTUI {
		quiet = true
	}

	setup, cleanup, err := prepare(cmd, args)
	if err != nil {
		return err
	}
	defer cleanup()
	if showVars && !quiet {
		// Source variables are read from the live session, so every state
		// must be printed before the next step runs.
		setup.opts.BatchSize = 1
	}

	var session *debugger.Session
	var initial debugger.ShaderDebugState
	err = setup.timer.Measure("setup", func() error {
		session, initial, err = setup.begin()
		return err
	})
	if err != nil {
		dumpRing(cmd, setup.tracer)
		return err
	}

	out := cmd.OutOrStdout()
	var recorder *debugger.Recorder
	if recordPath != "" {
		f, err := os.Create(recordPath)
		if err != nil {
			return fmt.Errorf("failed to create recording: %w", err)
		}
		defer f.Close()
		recorder = debugger.NewRecorder(f, session)
	}

	emit := func(states []debugger.ShaderDebugState) error {
		recorder.Record(states...)
		if quiet {
			return nil
		}
		for i := range states {
			formatState(out, states[i])
			if showVars {
				formatVariables(out, session.SourceVariables())
			}
		}
		return nil
	}
	if err := emit([]debugger.ShaderDebugState{initial}); err != nil {
		return err
	}

	ctx := cmd.Context()
	err = setup.timer.Measure("run", func() error {
		if useTUI {
			title := filepath.Base(setup.prog.Name)
			return driveWithUI(ctx, title, session, setup.acc, emit)
		}
		return drive(ctx, session, setup.acc, emit)
	})
	if cerr := recorder.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write recording: %w", cerr)
	}
	if err != nil {
		reportRunError(cmd.ErrOrStderr(), err)
		dumpRing(cmd, setup.tracer)
		return err
	}

	fmt.Fprintf(out, "lane %d finished after %d steps (%d global, %d/%d lanes done)\n",
		setup.lane, session.Steps(), session.GlobalSteps(), session.FinishedLanes(), session.LaneCount())
	if quiet && showVars {
		formatVariables(out, session.SourceVariables())
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), setup.timer.Summary())
	}
	return nil
}

// reportRunError prints interpreter errors with their callstack.
func reportRunError(w io.Writer, err error) {
	var ie *interp.Error
	if errors.As(err, &ie) {
		fmt.Fprint(w, ie.Format())
		return
	}
	log.Error().Err(err).Msg("session failed")
}
