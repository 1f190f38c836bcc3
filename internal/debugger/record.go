package debugger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

const recordVersion = 1

// recordHeader opens every recording.
type recordHeader struct {
	Kind    string `msgpack:"kind"`
	V       int    `msgpack:"v"`
	Program string `msgpack:"program"`
	Lane    int    `msgpack:"lane"`
	Lanes   int    `msgpack:"lanes"`
}

// Recorder writes a msgpack stream of debug states: one header followed by
// every state in order. Two runs of the same session produce identical
// bytes.
type Recorder struct {
	mu   sync.Mutex
	enc  *msgpack.Encoder
	err  error
	done bool
}

// NewRecorder writes the header for s to w.
func NewRecorder(w io.Writer, s *Session) *Recorder {
	r := &Recorder{enc: msgpack.NewEncoder(w)}
	r.enc.UseCompactInts(true)
	r.record(recordHeader{
		Kind:    "header",
		V:       recordVersion,
		Program: s.prog.Name,
		Lane:    s.observed,
		Lanes:   len(s.lanes),
	})
	return r
}

func (r *Recorder) Err() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) Done() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Record appends states.
func (r *Recorder) Record(states ...ShaderDebugState) {
	if r == nil {
		return
	}
	for i := range states {
		r.record(&states[i])
	}
}

// Close marks the recording complete; later states are ignored.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	return r.err
}

func (r *Recorder) record(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || r.err != nil {
		return
	}
	if err := r.enc.Encode(v); err != nil {
		r.err = err
	}
}

// ErrReplayMismatch is returned when a run departs from its recording.
var ErrReplayMismatch = errors.New("replay mismatch")

// Replayer checks a new run against a recording.
type Replayer struct {
	header   recordHeader
	states   [][]byte
	next     int
	parseErr error
}

// NewReplayer reads a whole recording from rd.
func NewReplayer(rd io.Reader) *Replayer {
	r := &Replayer{}
	dec := msgpack.NewDecoder(rd)
	if err := dec.Decode(&r.header); err != nil {
		r.parseErr = fmt.Errorf("read header: %w", err)
		return r
	}
	for {
		raw, err := dec.DecodeRaw()
		if errors.Is(err, io.EOF) {
			return r
		}
		if err != nil {
			r.parseErr = fmt.Errorf("read state %d: %w", len(r.states), err)
			return r
		}
		r.states = append(r.states, raw)
	}
}

// Validate reports whether the recording is usable for s.
func (r *Replayer) Validate(s *Session) error {
	if r == nil {
		return fmt.Errorf("nil replayer")
	}
	if r.parseErr != nil {
		return r.parseErr
	}
	if r.header.Kind != "header" {
		return fmt.Errorf("missing header")
	}
	if r.header.V != recordVersion {
		return fmt.Errorf("unsupported recording version %d", r.header.V)
	}
	if s == nil {
		return nil
	}
	if r.header.Program != s.prog.Name || r.header.Lane != s.observed || r.header.Lanes != len(s.lanes) {
		return fmt.Errorf("%w: recording of %s lane %d/%d, session is %s lane %d/%d", ErrReplayMismatch,
			r.header.Program, r.header.Lane, r.header.Lanes, s.prog.Name, s.observed, len(s.lanes))
	}
	return nil
}

// Remaining returns the number of recorded states not yet checked.
func (r *Replayer) Remaining() int {
	if r == nil || r.next >= len(r.states) {
		return 0
	}
	return len(r.states) - r.next
}

// Check compares states with the next recorded ones.
func (r *Replayer) Check(states ...ShaderDebugState) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	for i := range states {
		if r.next >= len(r.states) {
			return fmt.Errorf("%w: step %d is past the end of the recording", ErrReplayMismatch, states[i].Step)
		}
		buf.Reset()
		if err := enc.Encode(&states[i]); err != nil {
			return err
		}
		if !bytes.Equal(buf.Bytes(), r.states[r.next]) {
			return fmt.Errorf("%w: step %d differs", ErrReplayMismatch, states[i].Step)
		}
		r.next++
	}
	return nil
}

// Finish reports an error when recorded states were left unchecked.
func (r *Replayer) Finish() error {
	if n := r.Remaining(); n > 0 {
		return fmt.Errorf("%w: %d recorded states left after the run ended", ErrReplayMismatch, n)
	}
	return nil
}
