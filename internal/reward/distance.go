package reward

// EditRatio returns the Levenshtein distance between a and b normalized by the
// longer of the two, measured in runes. Two empty strings have ratio 0.
func EditRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(ra, rb)) / float64(longest)
}

// Distance returns the Levenshtein distance between a and b in runes.
func Distance(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// keep the row as short as possible
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(b); j++ {
		curr[0] = j
		for i := 1; i <= len(a); i++ {
			if a[i-1] == b[j-1] {
				curr[i] = prev[i-1]
				continue
			}
			curr[i] = 1 + min(prev[i], curr[i-1], prev[i-1])
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}
