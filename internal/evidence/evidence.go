// Package evidence holds the minimum-evidence formula behind the
// matcher's gate (spec step 5) as a standalone pure function; the
// adaptive scorer does not call it.
package evidence

import "math"

// floorChars is the absolute minimum matched characters required
// regardless of document size.
const floorChars = 1600

// fraction is the share of the smaller document's characters that must
// be matched, when that is larger than the absolute floor.
const fraction = 0.05

// MinimumRequired returns the character-evidence floor for a pair of
// documents: max(1600, ceil(5% of the smaller document's characters)).
func MinimumRequired(totalCharsA, totalCharsB int) int {
	smaller := totalCharsA
	if totalCharsB < smaller {
		smaller = totalCharsB
	}

	pct := int(math.Ceil(fraction * float64(smaller)))
	if pct > floorChars {
		return pct
	}
	return floorChars
}
