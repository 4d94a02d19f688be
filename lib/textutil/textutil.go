package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// ClosestMatch returns the candidate most similar to `name` and its
// Jaro-Winkler similarity, or "" if there are no candidates.
func ClosestMatch(name string, candidates []string) (string, float64) {
	name = NormalizeName(name)
	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		score := matchr.JaroWinkler(name, NormalizeName(c), false)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best, bestScore
}
