// Package tangle schedules groups of lanes that execute in lockstep.
//
// A Tangle is a set of lanes at the same execution point. When a branch
// sends its lanes to different points the tangle splits, one tangle per
// point, and every part keeps the merge-point stack of the original. A
// tangle whose lanes all reach the top of its merge stack waits there until
// no other live tangle can still arrive at that point; waiting tangles with
// equal stacks are merged back into one before it resumes.
package tangle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
)

// ErrUnstructured is returned when the lanes of a tangle reach different
// points without executing a branch.
var ErrUnstructured = errors.New("lanes separated without a branch")

// State is the scheduling state of a tangle.
type State uint8

const (
	// Active tangles execute on the next global step.
	Active State = iota
	// Diverged tangles executed a branch that split their lanes; they are
	// replaced by one tangle per target within the same update.
	Diverged
	// Waiting tangles sit at their top merge point.
	Waiting
	// Dead tangles have no live lanes left.
	Dead
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Diverged:
		return "diverged"
	case Waiting:
		return "waiting"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

type laneRef struct {
	index int
	point int
	alive bool
}

// Tangle is a set of lanes believed to execute in lockstep.
type Tangle struct {
	id          int
	lanes       []laneRef
	mergePoints []int
	state       State
	branched    bool
}

func (t *Tangle) ID() int { return t.id }

func (t *Tangle) State() State { return t.state }

// IsActive reports whether the tangle's lanes run on the next step.
func (t *Tangle) IsActive() bool { return t.state == Active }

// Lanes returns the indices of the live lanes, ascending.
func (t *Tangle) Lanes() []int {
	out := make([]int, 0, len(t.lanes))
	for _, l := range t.lanes {
		if l.alive {
			out = append(out, l.index)
		}
	}
	slices.Sort(out)
	return out
}

// Contains reports whether lane is a live member.
func (t *Tangle) Contains(lane int) bool {
	for _, l := range t.lanes {
		if l.index == lane && l.alive {
			return true
		}
	}
	return false
}

// Point returns the execution point of the tangle's live lanes, or -1 when
// none is left.
func (t *Tangle) Point() int {
	for _, l := range t.lanes {
		if l.alive {
			return l.point
		}
	}
	return -1
}

// MergePoints returns a copy of the merge stack, bottom first.
func (t *Tangle) MergePoints() []int { return slices.Clone(t.mergePoints) }

// MergePoint returns the top of the merge stack.
func (t *Tangle) MergePoint() (int, bool) {
	if len(t.mergePoints) == 0 {
		return 0, false
	}
	return t.mergePoints[len(t.mergePoints)-1], true
}

// AddMergePoint pushes p unless it is already on top.
func (t *Tangle) AddMergePoint(p int) {
	if top, ok := t.MergePoint(); ok && top == p {
		return
	}
	t.mergePoints = append(t.mergePoints, p)
}

// SetBranched marks that the tangle's lanes executed a branch this step and
// may now be at different points.
func (t *Tangle) SetBranched() { t.branched = true }

// SetLanePoint records the next execution point of lane.
func (t *Tangle) SetLanePoint(lane, point int) {
	for i := range t.lanes {
		if t.lanes[i].index == lane {
			t.lanes[i].point = point
			return
		}
	}
}

// SetLaneDead removes lane from scheduling.
func (t *Tangle) SetLaneDead(lane int) {
	for i := range t.lanes {
		if t.lanes[i].index == lane {
			t.lanes[i].alive = false
			return
		}
	}
}

func (t *Tangle) liveCount() int {
	n := 0
	for _, l := range t.lanes {
		if l.alive {
			n++
		}
	}
	return n
}

// atMergePoint reports whether every live lane sits on the top merge point.
func (t *Tangle) atMergePoint() bool {
	top, ok := t.MergePoint()
	if !ok || t.liveCount() == 0 {
		return false
	}
	for _, l := range t.lanes {
		if l.alive && l.point != top {
			return false
		}
	}
	return true
}

// entangled reports whether t's merge stack is a prefix of other's, so
// other may still reach t's merge point.
func (t *Tangle) entangled(other *Tangle) bool {
	if len(other.mergePoints) < len(t.mergePoints) {
		return false
	}
	return slices.Equal(t.mergePoints, other.mergePoints[:len(t.mergePoints)])
}

func (t *Tangle) String() string {
	return fmt.Sprintf("tangle %d (%s) lanes=%v point=%d merge=%v", t.id, t.state, t.Lanes(), t.Point(), t.mergePoints)
}

// Group owns every tangle of one workgroup.
type Group struct {
	tangles []*Tangle
	nextID  int
}

// NewGroup creates one active tangle holding all lanes at point start.
func NewGroup(lanes []int, start int) *Group {
	g := &Group{}
	root := g.newTangle(nil)
	for _, idx := range lanes {
		root.lanes = append(root.lanes, laneRef{index: idx, point: start, alive: true})
	}
	g.tangles = []*Tangle{root}
	return g
}

func (g *Group) newTangle(mergePoints []int) *Tangle {
	t := &Tangle{id: g.nextID, mergePoints: slices.Clone(mergePoints), state: Active}
	g.nextID++
	return t
}

// Tangles returns the live tangles in creation order.
func (g *Group) Tangles() []*Tangle { return slices.Clone(g.tangles) }

// Active returns the tangles that run on the next step.
func (g *Group) Active() []*Tangle {
	var out []*Tangle
	for _, t := range g.tangles {
		if t.state == Active {
			out = append(out, t)
		}
	}
	return out
}

// TangleOf returns the live tangle holding lane.
func (g *Group) TangleOf(lane int) *Tangle {
	for _, t := range g.tangles {
		if t.Contains(lane) {
			return t
		}
	}
	return nil
}

// Done reports whether no live tangle is left.
func (g *Group) Done() bool { return len(g.tangles) == 0 }

// Update folds the lane points and deaths recorded since the last update
// into the group: dead tangles are dropped, branched tangles split, tangles
// at their merge point wait, waiting tangles with equal stacks merge, and
// waiting tangles nothing else can reach resume.
func (g *Group) Update() error {
	g.markDead()
	if err := g.split(); err != nil {
		return err
	}
	g.converge()
	g.merge()
	g.activate()
	g.prune()
	return nil
}

func (g *Group) markDead() {
	for _, t := range g.tangles {
		if t.state != Dead && t.liveCount() == 0 {
			t.state = Dead
			log.Trace().Int("tangle", t.id).Msg("tangle finished")
		}
	}
}

func (g *Group) split() error {
	var out []*Tangle
	for _, t := range g.tangles {
		branched := t.branched
		t.branched = false
		if t.state != Active {
			out = append(out, t)
			continue
		}
		if !t.samePoint() {
			if !branched {
				return fmt.Errorf("%w: %s", ErrUnstructured, t)
			}
			t.state = Diverged
			parts := g.splitByPoint(t)
			log.Trace().Int("tangle", t.id).Int("parts", len(parts)).Msg("tangle diverged")
			out = append(out, parts...)
			continue
		}
		out = append(out, t)
	}
	g.tangles = out
	return nil
}

func (t *Tangle) samePoint() bool {
	p := t.Point()
	for _, l := range t.lanes {
		if l.alive && l.point != p {
			return false
		}
	}
	return true
}

// splitByPoint replaces t by one active tangle per distinct point of its
// live lanes, in order of first appearance.
func (g *Group) splitByPoint(t *Tangle) []*Tangle {
	var parts []*Tangle
	byPoint := make(map[int]*Tangle)
	for _, l := range t.lanes {
		if !l.alive {
			continue
		}
		part, ok := byPoint[l.point]
		if !ok {
			part = g.newTangle(t.mergePoints)
			byPoint[l.point] = part
			parts = append(parts, part)
		}
		part.lanes = append(part.lanes, l)
	}
	t.lanes = nil
	t.state = Dead
	return parts
}

func (g *Group) converge() {
	for _, t := range g.tangles {
		if t.state == Active && t.atMergePoint() {
			t.state = Waiting
		}
	}
}

func (g *Group) merge() {
	for i, t := range g.tangles {
		if t.state != Waiting {
			continue
		}
		for _, other := range g.tangles[i+1:] {
			if other.state != Waiting || !slices.Equal(t.mergePoints, other.mergePoints) {
				continue
			}
			log.Trace().Int("tangle", t.id).Int("from", other.id).Msg("tangles merged")
			t.lanes = append(t.lanes, other.lanes...)
			other.lanes = nil
			other.mergePoints = nil
			other.state = Dead
		}
	}
}

func (g *Group) activate() {
	for _, t := range g.tangles {
		if t.state != Waiting {
			continue
		}
		blocked := false
		for _, other := range g.tangles {
			if other == t || other.state == Dead {
				continue
			}
			if t.entangled(other) {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		t.mergePoints = t.mergePoints[:len(t.mergePoints)-1]
		t.state = Active
		log.Trace().Int("tangle", t.id).Int("point", t.Point()).Msg("tangle resumed")
	}
}

func (g *Group) prune() {
	g.tangles = slices.DeleteFunc(g.tangles, func(t *Tangle) bool { return t.state == Dead })
}
