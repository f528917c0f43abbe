// Package geohash encodes coordinates as geohash strings and computes the set of
// lexicographic geohash ranges that cover a circle or a rectangle.
//
// A record indexed by its geohash is inside a region only if its geohash falls
// in one of the region's ranges, so each range can be served by a single
// ordered range query ("g" >= Start AND "g" < End) against a store.
package geohash

import (
	"errors"
	"fmt"

	mmgeohash "github.com/mmcloughlin/geohash"
	"github.com/surrealdb/surrealgeo/pkg/geo"
)

const (
	// BitsPerChar is the number of bits encoded by one base32 character.
	BitsPerChar = 5
	// DefaultPrecision is the number of characters stored in the "g" field.
	DefaultPrecision = 10
	// MaxPrecision is the longest geohash the encoder produces.
	MaxPrecision = 12

	maxBits = MaxPrecision * BitsPerChar
	base32  = "0123456789bcdefghjkmnpqrstuvwxyz"
)

var ErrInvalidPrecision = errors.New("precision must be greater than 0 and less than 13")

// Encode returns the geohash of p with the given number of characters.
func Encode(p geo.Point, precision int) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if err := ValidatePrecision(precision); err != nil {
		return "", err
	}
	return mmgeohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision)), nil
}

func ValidatePrecision(precision int) error {
	if precision <= 0 || precision > MaxPrecision {
		return fmt.Errorf("%w: got %d", ErrInvalidPrecision, precision)
	}
	return nil
}

// Center decodes hash to the center of its cell.
func Center(hash string) geo.Point {
	lat, lon := mmgeohash.DecodeCenter(hash)
	return geo.NewPoint(lat, lon)
}

func base32Value(c byte) int {
	for i := 0; i < len(base32); i++ {
		if base32[i] == c {
			return i
		}
	}
	return -1
}
