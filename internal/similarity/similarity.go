// Package similarity scores how alike two short strings are using edit distance.
package similarity

// Score returns the normalized Levenshtein similarity of a and b in [0,1]:
// (len(longer) - distance) / len(longer). Two empty strings score 1.
// Lengths are counted in runes.
func Score(a, b string) float64 {
	longer, shorter := []rune(a), []rune(b)
	if len(longer) < len(shorter) {
		longer, shorter = shorter, longer
	}
	if len(longer) == 0 {
		return 1.0
	}
	d := distance(longer, shorter)
	return float64(len(longer)-d) / float64(len(longer))
}

// Distance returns the Levenshtein edit distance between a and b, where insertion,
// deletion and substitution each cost 1.
func Distance(a, b string) int {
	return distance([]rune(a), []rune(b))
}

func distance(a, b []rune) int {
	// costs[j] holds the distance between the current prefix of a and b[:j].
	costs := make([]int, len(b)+1)
	for j := range costs {
		costs[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := costs[0] // distance(a[:i-1], b[:j-1])
		costs[0] = i
		for j := 1; j <= len(b); j++ {
			cur := costs[j]
			sub := prev
			if a[i-1] != b[j-1] {
				sub++
			}
			costs[j] = min(costs[j]+1, costs[j-1]+1, sub)
			prev = cur
		}
	}
	return costs[len(b)]
}
