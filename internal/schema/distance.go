package schema

import "strings"

// computeDistance computes the Levenshtein distance between two strings.
// It is case-insensitive.
func computeDistance(s1, s2 string) int {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)

	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}

	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			min := matrix[i-1][j] + 1 // deletion
			if ins := matrix[i][j-1] + 1; ins < min { // insertion
				min = ins
			}
			if sub := matrix[i-1][j-1] + cost; sub < min { // substitution
				min = sub
			}
			matrix[i][j] = min
		}
	}

	return matrix[len(s1)][len(s2)]
}

// ClosestMatch returns the candidate nearest to input within maxDistance,
// or "" when nothing is close enough. Used for "did you mean" suggestions
// on enum and unknown-field diagnostics.
func ClosestMatch(input string, candidates []string, maxDistance int) string {
	best := ""
	bestDist := maxDistance + 1
	for _, c := range candidates {
		if c == input {
			continue
		}
		if d := computeDistance(input, c); d < bestDist {
			best = c
			bestDist = d
		}
	}
	if bestDist > maxDistance {
		return ""
	}
	return best
}
