package geohash

import (
	"fmt"
	"sort"
)

// Range is the half-open interval [Start, End) of geohash strings.
//
// Range is comparable; two coverings that share a prefix produce equal values.
type Range struct {
	Start string
	End   string
}

// Contains reports whether hash is in the range.
func (r Range) Contains(hash string) bool {
	return r.Start <= hash && hash < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}

// rangeForHash truncates hash to the given number of bits and returns the range
// of every geohash sharing those bits. End is "<base>~" when the last character
// would overflow the alphabet.
func rangeForHash(hash string, bits int) Range {
	precision := (bits-1)/BitsPerChar + 1
	if len(hash) < precision {
		return Range{Start: hash, End: hash + "~"}
	}

	hash = hash[:precision]
	base := hash[:len(hash)-1]
	lastValue := base32Value(hash[len(hash)-1])
	significantBits := bits - len(base)*BitsPerChar
	unusedBits := BitsPerChar - significantBits

	startValue := (lastValue >> unusedBits) << unusedBits
	endValue := startValue + (1 << unusedBits)

	start := base + string(base32[startValue])
	if endValue > len(base32)-1 {
		return Range{Start: start, End: base + "~"}
	}
	return Range{Start: start, End: base + string(base32[endValue])}
}

func (r Range) isPrefixTo(other Range) bool {
	return r.End >= other.Start && r.Start < other.Start && r.End < other.End
}

func (r Range) isSuperRangeOf(other Range) bool {
	return r.Start <= other.Start && r.End >= other.End
}

func (r Range) joinWith(other Range) (Range, bool) {
	switch {
	case r.isPrefixTo(other):
		return Range{Start: r.Start, End: other.End}, true
	case other.isPrefixTo(r):
		return Range{Start: other.Start, End: r.End}, true
	case r.isSuperRangeOf(other):
		return r, true
	case other.isSuperRangeOf(r):
		return other, true
	}
	return Range{}, false
}

// join merges overlapping and adjacent ranges until no pair can be joined and
// returns the result sorted by Start.
func join(ranges []Range) []Range {
	out := make([]Range, 0, len(ranges))
	out = append(out, ranges...)

	for joined := true; joined; {
		joined = false
	search:
		for i := 0; i < len(out); i++ {
			for j := i + 1; j < len(out); j++ {
				if r, ok := out[i].joinWith(out[j]); ok {
					out[i] = r
					out = append(out[:j], out[j+1:]...)
					joined = true
					break search
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// AnyContains reports whether hash falls in at least one of ranges.
func AnyContains(ranges []Range, hash string) bool {
	for _, r := range ranges {
		if r.Contains(hash) {
			return true
		}
	}
	return false
}
