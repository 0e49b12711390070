package anchor

// Normalize orders a and b and clamps both to [0, maxLen].
// The result always satisfies 0 <= from <= to <= maxLen.
func Normalize(a, b, maxLen int) (from, to int) {
	if maxLen < 0 {
		maxLen = 0
	}
	from, to = a, b
	if from > to {
		from, to = to, from
	}
	return clamp(from, maxLen), clamp(to, maxLen)
}

func clamp(v, maxLen int) int {
	if v < 0 {
		return 0
	}
	if v > maxLen {
		return maxLen
	}
	return v
}
