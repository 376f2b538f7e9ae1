package catalog

import "strings"

// Normalize lowercases, trims, and collapses internal whitespace. Normalized
// names are the identity used for catalog dedupe, synonym lookup, and rule
// subjects.
func Normalize(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

// Similarity returns a symmetric string similarity in [0,1] between the
// normalized forms of a and b. 1.0 means equal after normalization. The
// measure is the normalized indel distance, so insertions and deletions are
// penalized relative to the combined length.
func Similarity(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}

	ra := []rune(na)
	rb := []rune(nb)
	total := len(ra) + len(rb)
	return 1.0 - float64(indelDistance(ra, rb))/float64(total)
}

// indelDistance is the edit distance allowing only insertions and deletions
// (a substitution costs 2). Equivalent to len(a)+len(b)-2*LCS(a,b).
func indelDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
			} else {
				del := prev[j] + 1
				ins := curr[j-1] + 1
				if del < ins {
					curr[j] = del
				} else {
					curr[j] = ins
				}
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
