package mathx

// QuasiRandom returns a deterministic, reproducible point in (0, 1) using a
// radical-inverse base-2 (van der Corput) sequence. index is 0-based; the
// generator adds 1 internally so index 0 never maps to the degenerate
// result 0.
func QuasiRandom(index int) float64 {
	var result, f float64 = 0, 0.5
	i := index + 1
	for i > 0 {
		result += f * float64(i%2)
		i /= 2
		f *= 0.5
	}
	if result < 1e-10 {
		result = 1e-10
	}
	if result > 1-1e-10 {
		result = 1 - 1e-10
	}
	return result
}
