package resource

// Standard multisample patterns in 1/16th pixel units, indexed by sample.
var (
	pattern2 = [][2]int8{{4, 4}, {-4, -4}}
	pattern4 = [][2]int8{{-2, -6}, {6, -2}, {-6, 2}, {2, 6}}
	pattern8 = [][2]int8{
		{1, -3}, {-1, 3}, {5, 1}, {-3, -5}, {-5, 5}, {-7, -1}, {3, 7}, {7, -7},
	}
	pattern16 = [][2]int8{
		{1, 1}, {-1, -3}, {-3, 2}, {4, -1}, {-5, -2}, {2, 5}, {5, 3}, {3, -5},
		{-2, 6}, {0, -7}, {-4, -6}, {-6, 4}, {-8, 0}, {7, -4}, {6, 7}, {-7, -8},
	}
)

// StandardSamplePosition returns the offset from the pixel centre of sample
// index for a surface with count samples. Unsupported counts and indices
// out of range give the centre.
func StandardSamplePosition(count, index uint32) (x, y float32) {
	var pattern [][2]int8
	switch count {
	case 2:
		pattern = pattern2
	case 4:
		pattern = pattern4
	case 8:
		pattern = pattern8
	case 16:
		pattern = pattern16
	}
	if int(index) >= len(pattern) {
		return 0, 0
	}
	p := pattern[index]
	return float32(p[0]) / 16, float32(p[1]) / 16
}
