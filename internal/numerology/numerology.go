// Package numerology implements the Pythagorean digit-reduction arithmetic the
// oracle readings are built on. Everything here is pure and deterministic.
package numerology

import (
	"strings"

	"github.com/mapadna/oracle-funnel-go/internal/domain"
)

// pythagoreanTable maps uppercase Latin letters to their digit values.
var pythagoreanTable = map[rune]int{
	'A': 1, 'J': 1, 'S': 1,
	'B': 2, 'K': 2, 'T': 2,
	'C': 3, 'L': 3, 'U': 3,
	'D': 4, 'M': 4, 'V': 4,
	'E': 5, 'N': 5, 'W': 5,
	'F': 6, 'O': 6, 'X': 6,
	'G': 7, 'P': 7, 'Y': 7,
	'H': 8, 'Q': 8, 'Z': 8,
	'I': 9, 'R': 9,
}

func isVowel(r rune) bool {
	switch r {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// Compute derives the full numerology reading for a name and birth date.
// It is total over any input: letters outside A-Z and non-digit date
// characters are ignored, and an empty name yields zero sums.
//
// The expression number is defined as Reduce(rawVowelSum + rawConsonantSum),
// reducing after the raw sums are added.
func Compute(fullName, birthDate string) domain.NumerologyResult {
	normalized := strings.ToUpper(strings.Join(strings.Fields(fullName), ""))

	vowelSum := 0
	consonantSum := 0
	for _, r := range normalized {
		value, ok := pythagoreanTable[r]
		if !ok {
			continue
		}
		if isVowel(r) {
			vowelSum += value
		} else {
			consonantSum += value
		}
	}

	birthSum := 0
	for _, r := range birthDate {
		if r >= '0' && r <= '9' {
			birthSum += int(r - '0')
		}
	}

	expression := Reduce(vowelSum + consonantSum)
	birth := Reduce(birthSum)

	return domain.NumerologyResult{
		SoulEssence: Reduce(vowelSum),
		Dreams:      Reduce(consonantSum),
		Expression:  expression,
		Birth:       birth,
		Final:       Reduce(expression + birth),
	}
}

// Reduce collapses n to a single digit by repeatedly summing its decimal
// digits. The master numbers 11, 22 and 33 are preserved only when n itself
// is one of them; a value that merely passes through 11/22/33 during the
// loop keeps reducing.
func Reduce(n int) int {
	if n == 11 || n == 22 || n == 33 {
		return n
	}
	for n > 9 {
		sum := 0
		for n > 0 {
			sum += n % 10
			n /= 10
		}
		n = sum
	}
	return n
}

// IsMaster reports whether n is one of the preserved master numbers.
func IsMaster(n int) bool {
	return n == 11 || n == 22 || n == 33
}
