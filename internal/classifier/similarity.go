package classifier

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Ratio returns the 0-100 similarity of a and b based on edit distance.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(longest))))
}

// PartialRatio slides the shorter string over the longer one and returns the best
// Ratio of any equally sized window. Either string being empty scores 0.
func PartialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	short, long := ra, rb
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == len(long) {
		return Ratio(a, b)
	}
	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		r := Ratio(s, string(long[i:i+len(short)]))
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// termSimilarity scores a configured term against a whole message.
// The term is only slid across the message when it fits inside it, so a one
// letter reply never scores as a perfect partial match of a longer term.
func termSimilarity(message, term string) int {
	message, term = strings.ToLower(message), strings.ToLower(term)
	if len([]rune(term)) <= len([]rune(message)) {
		return PartialRatio(message, term)
	}
	return Ratio(message, term)
}
