package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"shaderdebug/internal/debugger"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/ui"
)

// drive continues s until it is exhausted, handing every batch to onBatch.
func drive(ctx context.Context, s *debugger.Session, acc resource.Accessor, onBatch func([]debugger.ShaderDebugState) error) error {
	for {
		states, err := s.Continue(ctx, acc)
		if len(states) > 0 && onBatch != nil {
			if berr := onBatch(states); berr != nil {
				return berr
			}
		}
		if err != nil {
			return err
		}
		if states == nil {
			return nil
		}
	}
}

// driveWithUI runs drive in the background while a progress view renders
// on stdout.
func driveWithUI(ctx context.Context, title string, s *debugger.Session, acc resource.Accessor, onBatch func([]debugger.ShaderDebugState) error) error {
	events := make(chan ui.Event, 64)
	outcome := make(chan error, 1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		err := drive(ctx, s, acc, func(states []debugger.ShaderDebugState) error {
			events <- progressEvent(s, nil)
			return onBatch(states)
		})
		if err != nil {
			events <- progressEvent(s, err)
		}
		outcome <- err
		close(events)
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, s.LaneCount(), events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// A quit from the keyboard stops stepping too.
	cancel()
	for range events {
	}
	err := <-outcome
	if uiErr != nil {
		return uiErr
	}
	return err
}

func progressEvent(s *debugger.Session, err error) ui.Event {
	return ui.Event{
		Steps:       s.Steps(),
		GlobalSteps: s.GlobalSteps(),
		Finished:    s.FinishedLanes(),
		Lanes:       s.LaneCount(),
		Err:         err,
	}
}
