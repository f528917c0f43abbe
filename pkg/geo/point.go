// Package geo holds the coordinate and region types shared by the geohash covering,
// the store adapters and the query engine.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

var (
	ErrInvalidLatitude  = errors.New("latitude must be within the range [-90, 90]")
	ErrInvalidLongitude = errors.New("longitude must be within the range [-180, 180]")
	ErrInvalidRadius    = errors.New("radius must be greater than or equal to 0")
	ErrInvalidRegion    = errors.New("invalid region")
)

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64
	Longitude float64
}

func NewPoint(latitude, longitude float64) Point {
	return Point{Latitude: latitude, Longitude: longitude}
}

// Validate reports whether the coordinate is on the globe.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: got %v", ErrInvalidLatitude, p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: got %v", ErrInvalidLongitude, p.Longitude)
	}
	return nil
}

// Coordinates returns the point in the [lat, lon] order used by the "l" field.
func (p Point) Coordinates() [2]float64 {
	return [2]float64{p.Latitude, p.Longitude}
}

func (p Point) String() string {
	return fmt.Sprintf("(%v, %v)", p.Latitude, p.Longitude)
}

func (p Point) orb() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	return orbgeo.DistanceHaversine(a.orb(), b.orb())
}

// PointFromCoordinates decodes an "l" field value. It returns false when the
// value does not hold exactly two numbers.
func PointFromCoordinates(l []float64) (Point, bool) {
	if len(l) != 2 {
		return Point{}, false
	}
	p := NewPoint(l[0], l[1])
	if p.Validate() != nil {
		return Point{}, false
	}
	return p, true
}
