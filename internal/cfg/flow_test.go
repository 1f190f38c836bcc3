package cfg_test

import (
	"slices"
	"testing"

	"shaderdebug/internal/cfg"
)

func links(pairs ...int) []cfg.Link {
	out := make([]cfg.Link, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, cfg.Link{From: pairs[i], To: pairs[i+1]})
	}
	return out
}

func blockCount(ls []cfg.Link) int {
	n := 0
	for _, l := range ls {
		n = max(n, l.From+1, l.To+1)
	}
	return n
}

func TestUniformAndLoopBlocks(t *testing.T) {
	tests := []struct {
		name    string
		links   []cfg.Link
		uniform []int
		loops   []int
	}{
		{
			name:    "straight_line",
			links:   links(0, 1, 1, 2, 2, 3),
			uniform: []int{0, 1, 2, 3},
		},
		{
			name:    "simple_branch",
			links:   links(0, 1, 0, 2, 1, 2, 2, 3, 2, 4, 3, 4),
			uniform: []int{0, 2, 4},
		},
		{
			name:    "loop_behind_branch",
			links:   links(0, 1, 0, 2, 1, 6, 2, 3, 3, 4, 4, 5, 5, 3, 5, 6),
			uniform: []int{0, 6},
			loops:   []int{3, 4, 5},
		},
		{
			name:    "loop_after_uniform",
			links:   links(0, 1, 1, 2, 0, 2, 2, 3, 3, 4, 4, 5, 5, 3, 5, 6),
			uniform: []int{0, 2, 6},
			loops:   []int{3, 4, 5},
		},
		{
			name:    "infinite_loop",
			links:   links(0, 1, 1, 3, 0, 2, 2, 3, 3, 4, 4, 3, 1, 6, 2, 6),
			uniform: []int{0, 6},
			loops:   []int{3, 4},
		},
		{
			name:    "single_loop",
			links:   links(0, 1, 1, 3, 3, 1, 1, 2, 2, 3, 3, 4),
			uniform: []int{0, 4},
			loops:   []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cfg.New(blockCount(tt.links), tt.links)
			if got := f.UniformBlocks(); !slices.Equal(got, tt.uniform) {
				t.Errorf("uniform = %v, want %v", got, tt.uniform)
			}
			if got := f.LoopBlocks(); !slices.Equal(got, tt.loops) {
				t.Errorf("loops = %v, want %v", got, tt.loops)
			}
		})
	}
}

func TestConvergentBlocks(t *testing.T) {
	tests := []struct {
		name  string
		links []cfg.Link
		want  []cfg.Convergence
	}{
		{
			name:  "single_branch",
			links: links(0, 1, 0, 2, 1, 3, 2, 3),
			want:  []cfg.Convergence{{Divergent: 0, Convergent: 3}},
		},
		{
			name:  "double_branch",
			links: links(0, 1, 0, 2, 1, 2, 2, 3, 2, 4, 3, 4),
			want:  []cfg.Convergence{{Divergent: 0, Convergent: 2}, {Divergent: 2, Convergent: 4}},
		},
		{
			name: "nested",
			links: links(0, 1, 0, 2, 1, 9, 2, 3, 3, 4, 3, 5,
				4, 6, 5, 7, 6, 8, 7, 8, 8, 9),
			want: []cfg.Convergence{{Divergent: 0, Convergent: 9}, {Divergent: 3, Convergent: 8}},
		},
		{
			name: "nested_linked",
			links: links(0, 1, 0, 2, 1, 3, 2, 4, 3, 5, 3, 6, 4, 6, 4, 7,
				5, 8, 6, 9, 7, 10, 8, 11, 9, 11, 11, 12, 12, 13, 10, 13),
			want: []cfg.Convergence{
				{Divergent: 0, Convergent: 13},
				{Divergent: 3, Convergent: 11},
				{Divergent: 4, Convergent: 13},
			},
		},
		{
			name:  "simple_loop",
			links: links(0, 1, 1, 2, 2, 1, 2, 3),
			want:  []cfg.Convergence{{Divergent: 2, Convergent: 3}},
		},
		{
			name:  "loop_with_two_exits",
			links: links(0, 1, 1, 2, 2, 3, 2, 4, 3, 1, 3, 6, 4, 5, 5, 6, 6, 7),
			want:  []cfg.Convergence{{Divergent: 2, Convergent: 6}, {Divergent: 3, Convergent: 6}},
		},
		{
			name: "two_loops_with_exits",
			links: links(0, 1, 1, 2, 2, 3, 2, 4, 3, 1, 3, 6, 4, 5, 5, 6,
				5, 7, 7, 2, 6, 8),
			want: []cfg.Convergence{
				{Divergent: 2, Convergent: 6},
				{Divergent: 3, Convergent: 6},
				{Divergent: 5, Convergent: 6},
			},
		},
		{
			name:  "branch_inside_loop",
			links: links(0, 1, 1, 2, 2, 3, 2, 4, 3, 5, 4, 5, 5, 6, 6, 1, 6, 7),
			want:  []cfg.Convergence{{Divergent: 2, Convergent: 5}, {Divergent: 6, Convergent: 7}},
		},
		{
			name:  "infinite_loop",
			links: links(0, 1, 1, 3, 0, 2, 2, 3, 3, 4, 4, 3, 1, 6, 2, 6),
			want: []cfg.Convergence{
				{Divergent: 0, Convergent: 6},
				{Divergent: 1, Convergent: 6},
				{Divergent: 2, Convergent: 6},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cfg.New(blockCount(tt.links), tt.links)
			if got := f.ConvergentBlocks(); !slices.Equal(got, tt.want) {
				t.Fatalf("convergent = %v, want %v", got, tt.want)
			}
		})
	}
}

// Two loops behind branches, each exiting into a uniform join.
func TestComplexTwoLoops(t *testing.T) {
	ls := links(
		0, 1, 0, 2, 2, 3, 1, 3, 3, 4, 4, 5, 3, 5, 5, 6, 9, 7, 6, 7,
		7, 8, 7, 9, 9, 10, 10, 11, 8, 11, 5, 11, 11, 12, 15, 13, 12, 13,
		13, 14, 13, 15, 15, 16, 16, 17, 14, 17, 11, 17, 17, 18, 18, 19,
		17, 19, 19, 20, 20, 21, 19, 21, 21, 22, 22, 23, 22, 24, 24, 25,
		25, 26, 24, 26, 23, 26, 21, 26,
	)
	f := cfg.New(27, ls)

	wantUniform := []int{0, 3, 5, 11, 17, 19, 21, 26}
	if got := f.UniformBlocks(); !slices.Equal(got, wantUniform) {
		t.Errorf("uniform = %v, want %v", got, wantUniform)
	}
	wantLoops := []int{7, 9, 13, 15}
	if got := f.LoopBlocks(); !slices.Equal(got, wantLoops) {
		t.Errorf("loops = %v, want %v", got, wantLoops)
	}

	want := []cfg.Convergence{
		{0, 3}, {3, 5}, {5, 11}, {7, 11}, {9, 10}, {11, 17}, {13, 17},
		{15, 16}, {17, 19}, {19, 21}, {21, 26}, {22, 26}, {24, 26},
	}
	if got := f.ConvergentBlocks(); !slices.Equal(got, want) {
		t.Fatalf("convergent = %v, want %v", got, want)
	}
}

func TestNextUniformBlock(t *testing.T) {
	f := cfg.New(7, links(0, 1, 0, 2, 1, 6, 2, 3, 3, 4, 4, 5, 5, 3, 5, 6))
	tests := []struct{ from, want int }{
		{0, 6},
		{3, 6},
		{5, 6},
		{6, 6},
	}
	for _, tt := range tests {
		if got := f.NextUniformBlock(tt.from); got != tt.want {
			t.Errorf("NextUniformBlock(%d) = %d, want %d", tt.from, got, tt.want)
		}
	}
}

func TestIsForwardConnection(t *testing.T) {
	f := cfg.New(5, links(0, 1, 1, 2, 2, 1, 2, 3, 0, 4))
	tests := []struct {
		from, to int
		want     bool
	}{
		{0, 3, true},
		{1, 1, true},
		{2, 1, true},
		{3, 1, false},
		{4, 3, false},
		{0, 0, false},
		{1, 4, false},
	}
	for _, tt := range tests {
		if got := f.IsForwardConnection(tt.from, tt.to); got != tt.want {
			t.Errorf("IsForwardConnection(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
