package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Region is the closed set of query shapes: Circle and Rectangle.
type Region interface {
	// Contains reports whether p is inside the region.
	Contains(p Point) bool
	Validate() error

	region()
}

// Circle is a center plus a radius in meters.
type Circle struct {
	Center Point
	Radius float64
}

func NewCircle(center Point, radiusMeters float64) Circle {
	return Circle{Center: center, Radius: radiusMeters}
}

func (c Circle) Validate() error {
	if err := c.Center.Validate(); err != nil {
		return err
	}
	if math.IsNaN(c.Radius) || math.IsInf(c.Radius, 0) || c.Radius < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidRadius, c.Radius)
	}
	return nil
}

// Contains uses the haversine distance; points exactly on the circle are inside.
func (c Circle) Contains(p Point) bool {
	return Distance(c.Center, p) <= c.Radius
}

func (Circle) region() {}

// Rectangle is a latitude/longitude aligned bounding box. Edges are inclusive.
type Rectangle struct {
	South float64
	West  float64
	North float64
	East  float64
}

func NewRectangle(south, west, north, east float64) Rectangle {
	return Rectangle{South: south, West: west, North: north, East: east}
}

// RectangleFromSpan builds the box centered on center that spans latitudeDelta
// degrees north to south and longitudeDelta degrees west to east.
func RectangleFromSpan(center Point, latitudeDelta, longitudeDelta float64) Rectangle {
	return Rectangle{
		South: center.Latitude - latitudeDelta/2,
		West:  center.Longitude - longitudeDelta/2,
		North: center.Latitude + latitudeDelta/2,
		East:  center.Longitude + longitudeDelta/2,
	}
}

func (r Rectangle) Validate() error {
	if err := NewPoint(r.South, r.West).Validate(); err != nil {
		return err
	}
	if err := NewPoint(r.North, r.East).Validate(); err != nil {
		return err
	}
	if r.South > r.North {
		return fmt.Errorf("%w: south %v is above north %v", ErrInvalidRegion, r.South, r.North)
	}
	if r.West > r.East {
		return fmt.Errorf("%w: west %v is east of %v", ErrInvalidRegion, r.West, r.East)
	}
	return nil
}

func (r Rectangle) Contains(p Point) bool {
	return r.bound().Contains(p.orb())
}

// Center returns the midpoint of the box.
func (r Rectangle) Center() Point {
	return NewPoint((r.South+r.North)/2, (r.West+r.East)/2)
}

// Span returns the latitude and longitude extent in degrees.
func (r Rectangle) Span() (latitudeDelta, longitudeDelta float64) {
	return r.North - r.South, r.East - r.West
}

func (r Rectangle) bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.West, r.South},
		Max: orb.Point{r.East, r.North},
	}
}

func (Rectangle) region() {}
