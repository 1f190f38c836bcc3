// Package debugger drives a whole workgroup through a shader program and
// records what one observed lane does at every step.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"shaderdebug/internal/cfg"
	"shaderdebug/internal/debuginfo"
	"shaderdebug/internal/interp"
	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/tangle"
	"shaderdebug/internal/trace"
	"shaderdebug/internal/value"
)

// DefaultBatchSize is the number of observed states Continue returns when
// Options.BatchSize is not set.
const DefaultBatchSize = 256

// ErrScheduler reports that the tangle scheduler could not make progress
// for the observed lane.
var ErrScheduler = errors.New("scheduler invariant violated")

// Options configure a session.
type Options struct {
	GroupID [3]uint32
	// WaveSize is the number of lanes per wave; 0 puts every lane in one
	// wave.
	WaveSize int
	// CacheSize bounds the read-only resource cache.
	CacheSize int
	// BatchSize is the number of observed states per Continue.
	BatchSize int
	Tracer    trace.Tracer
}

// Reflection is what the capture knows about the lanes before they run.
type Reflection struct {
	// Inputs holds the input signature values of each lane, by lane. A
	// zero Value leaves its element zero-initialised.
	Inputs [][]value.Value
	// Helpers lists the helper lanes of a pixel shader.
	Helpers []int
}

// ShaderDebugState is one recorded step of the observed lane.
type ShaderDebugState struct {
	// Step is 0 for the initial state and counts observed steps after that.
	Step int `msgpack:"step"`
	// NextInstruction is the program-wide index of the instruction the
	// lane runs next, or -1 once it has finished.
	NextInstruction int               `msgpack:"next"`
	Changes         []interp.Change   `msgpack:"changes,omitempty"`
	Flags           interp.EventFlags `msgpack:"flags,omitempty"`
	Callstack       []string          `msgpack:"callstack,omitempty"`
	// Resources lists every binding the step accessed, once each.
	Resources []resource.ReferenceInfo `msgpack:"resources,omitempty"`
}

// scheduler is the part of tangle.Group a session drives.
type scheduler interface {
	Done() bool
	Active() []*tangle.Tangle
	Update() error
}

// Variable is a source-level variable and its current value.
type Variable struct {
	Name  string
	Value value.Value
}

// Session is one debugging run. It is not safe for concurrent use.
type Session struct {
	prog     *ir.Program
	global   *interp.Global
	fi       *cfg.FunctionInfo
	info     *debuginfo.Info
	lanes    []*interp.ThreadState
	group    scheduler
	observed int
	opts     Options
	tracer   trace.Tracer
	span     *trace.Span

	step        int
	globalSteps uint64
	done        bool
	err         error
}

// BeginSession validates and analyses prog, creates laneCount lanes and
// returns the observed lane's initial state: every global and input value
// as a change.
func BeginSession(prog *ir.Program, refl Reflection, observed, laneCount int, opts Options) (*Session, ShaderDebugState, error) {
	if laneCount <= 0 {
		return nil, ShaderDebugState{}, fmt.Errorf("lane count must be positive, got %d", laneCount)
	}
	if observed < 0 || observed >= laneCount {
		return nil, ShaderDebugState{}, fmt.Errorf("observed lane %d outside [0, %d)", observed, laneCount)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}

	s := &Session{prog: prog, observed: observed, opts: opts, tracer: tracer}
	s.span = trace.Begin(tracer, trace.ScopeSession, "session", 0)
	s.span.WithExtra("program", prog.Name).WithExtra("lanes", strconv.Itoa(laneCount))

	if err := s.setup(refl, laneCount); err != nil {
		s.span.End("setup failed")
		return nil, ShaderDebugState{}, err
	}

	lane := s.lanes[observed]
	return s, ShaderDebugState{
		NextInstruction: lane.GlobalInstruction(),
		Changes:         lane.InitialChanges(),
		Callstack:       lane.Callstack(),
	}, nil
}

func (s *Session) setup(refl Reflection, laneCount int) error {
	pass := trace.Begin(s.tracer, trace.ScopePass, "validate", s.span.ID())
	err := ir.Validate(s.prog)
	pass.End("")
	if err != nil {
		return fmt.Errorf("invalid program: %w", err)
	}

	pass = trace.Begin(s.tracer, trace.ScopePass, "analyze", s.span.ID())
	s.global, err = interp.NewGlobal(s.prog, interp.GlobalOptions{
		GroupID:   s.opts.GroupID,
		WaveSize:  s.opts.WaveSize,
		CacheSize: s.opts.CacheSize,
	})
	if err != nil {
		pass.End("failed")
		return fmt.Errorf("prepare globals: %w", err)
	}
	for _, fi := range s.global.Functions {
		trace.Point(s.tracer, trace.ScopeFunction, fi.Function.Name,
			fmt.Sprintf("%d blocks, %d loops", fi.Flow.BlockCount(), len(fi.Flow.LoopBlocks())), pass.ID())
	}
	pass.End("")
	s.fi = s.global.Functions[s.prog.EntryPoint]

	// Debug info extends liveness, so it runs before any lane exists.
	pass = trace.Begin(s.tracer, trace.ScopePass, "debuginfo", s.span.ID())
	s.info, err = debuginfo.Build(s.prog, s.fi)
	if err != nil {
		pass.End("failed")
		return fmt.Errorf("debug info: %w", err)
	}
	pass.WithExtra("scopes", strconv.Itoa(len(s.info.Scopes))).End("")

	s.lanes = make([]*interp.ThreadState, laneCount)
	indices := make([]int, laneCount)
	for i := range s.lanes {
		lane := interp.NewThread(s.global, i)
		if i < len(refl.Inputs) {
			for j, v := range refl.Inputs[i] {
				if v.Type == value.Unknown && len(v.Members) == 0 {
					continue
				}
				lane.SetInput(j, v)
			}
		}
		s.lanes[i] = lane
		indices[i] = i
	}
	for _, h := range refl.Helpers {
		if h >= 0 && h < laneCount {
			s.lanes[h].Helper = true
		}
	}
	s.group = tangle.NewGroup(indices, s.lanes[0].NextInstruction())
	return nil
}

// Continue runs global steps until BatchSize observed states are recorded
// or the observed lane finishes. It returns nil, nil once the session is
// exhausted. On a fatal error the states recorded before it are returned
// with the error and every later call returns the same error.
func (s *Session) Continue(ctx context.Context, acc resource.Accessor) ([]ShaderDebugState, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, nil
	}
	span := trace.Begin(s.tracer, trace.ScopeStep, "continue", s.span.ID())

	var states []ShaderDebugState
	for len(states) < s.opts.BatchSize && !s.done {
		if err := ctx.Err(); err != nil {
			span.End("cancelled")
			return states, err
		}
		st, err := s.globalStep(acc)
		if err != nil {
			s.err = err
			s.done = true
			span.End("error")
			s.span.End(err.Error())
			return states, err
		}
		if st != nil {
			states = append(states, *st)
		}
	}
	span.WithExtra("states", strconv.Itoa(len(states))).End("")
	if s.done {
		s.span.WithExtra("steps", strconv.Itoa(s.step)).End("finished")
	}
	return states, nil
}

// globalStep steps every active tangle once and returns the observed
// lane's state when it ran.
func (s *Session) globalStep(acc resource.Accessor) (*ShaderDebugState, error) {
	if s.group.Done() {
		s.done = true
		return nil, nil
	}
	s.globalSteps++
	var observed *ShaderDebugState
	mask := make([]bool, len(s.lanes))
	for _, t := range s.group.Active() {
		clear(mask)
		lanes := t.Lanes()
		for _, l := range lanes {
			mask[l] = true
		}

		branched, block := false, -1
		for _, l := range lanes {
			lane := s.lanes[l]
			res, err := lane.Step(acc, s.lanes, mask)
			if err != nil {
				return nil, err
			}
			if l == s.observed {
				s.step++
				observed = &ShaderDebugState{
					Step:            s.step,
					NextInstruction: lane.GlobalInstruction(),
					Changes:         res.Changes,
					Flags:           res.Events,
					Callstack:       lane.Callstack(),
					Resources:       res.Resources,
				}
			}
			if res.Branched {
				branched, block = true, res.Block
			}
			if lane.Finished() {
				t.SetLaneDead(l)
			} else {
				t.SetLanePoint(l, lane.NextInstruction())
			}
		}
		if branched {
			s.branch(t, block)
		}
	}

	if err := s.group.Update(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScheduler, err)
	}

	obs := s.lanes[s.observed]
	if obs.Finished() {
		s.done = true
		return observed, nil
	}
	if len(s.group.Active()) == 0 {
		obs.End()
		return observed, fmt.Errorf("%w: no active lanes while lane %d is at instruction %d",
			ErrScheduler, s.observed, obs.GlobalInstruction())
	}
	return observed, nil
}

// branch records that t executed a branch in block. When its lanes now
// disagree the convergent block of the branch becomes the tangle's merge
// point.
func (s *Session) branch(t *tangle.Tangle, block int) {
	first := -1
	split := false
	for _, l := range t.Lanes() {
		p := s.lanes[l].NextInstruction()
		if first < 0 {
			first = p
		} else if p != first {
			split = true
		}
	}
	if split {
		if cb, ok := s.fi.Flow.ConvergentBlock(block); ok {
			t.AddMergePoint(s.fi.BlockEntry(cb))
		} else {
			log.Debug().Int("block", block).Msg("branch without convergent block")
		}
	}
	t.SetBranched()
}

// Done reports whether the session is exhausted.
func (s *Session) Done() bool { return s.done }

// Steps returns the number of observed steps taken so far.
func (s *Session) Steps() int { return s.step }

// GlobalSteps returns the number of global steps taken so far.
func (s *Session) GlobalSteps() uint64 { return s.globalSteps }

// LaneCount returns the number of lanes in the workgroup.
func (s *Session) LaneCount() int { return len(s.lanes) }

// FinishedLanes returns the number of lanes that will not run again.
func (s *Session) FinishedLanes() int {
	n := 0
	for _, l := range s.lanes {
		if l.Finished() {
			n++
		}
	}
	return n
}

// Lane returns lane l, or nil when there is none.
func (s *Session) Lane(l int) *interp.ThreadState {
	if l < 0 || l >= len(s.lanes) {
		return nil
	}
	return s.lanes[l]
}

// Program returns the debugged program.
func (s *Session) Program() *ir.Program { return s.prog }

// SourceVariables returns the source variables in scope at the observed
// lane's next instruction that can be built from live values.
func (s *Session) SourceVariables() []Variable {
	lane := s.lanes[s.observed]
	next := lane.NextInstruction()
	if next < 0 {
		return nil
	}
	var out []Variable
	for _, sv := range s.info.VariablesAt(next) {
		v, ok := sv.Resolve(lane.Value)
		if !ok {
			continue
		}
		out = append(out, Variable{Name: sv.Name, Value: v})
	}
	return out
}

// LaneVariable returns the live value of id in lane.
func (s *Session) LaneVariable(lane int, id ir.Id) (value.Value, bool) {
	l := s.Lane(lane)
	if l == nil {
		return value.Value{}, false
	}
	return l.Value(id)
}
