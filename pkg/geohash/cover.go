package geohash

import (
	"math"

	"github.com/surrealdb/surrealgeo/pkg/geo"
)

const (
	metersPerDegreeLatitude      = 110574.0
	earthMeridionalCircumference = 40007860.0
	earthEquatorialRadius        = 6378137.0
	earthE2                      = 0.00669447819799
	epsilon                      = 1e-12
)

// Cover returns the ranges covering r for geohashes stored with DefaultPrecision.
func Cover(r geo.Region) []Range {
	return CoverPrecision(r, DefaultPrecision)
}

// CoverPrecision returns the ranges covering r for geohashes stored with the
// given number of characters. Ranges never get narrower than a stored geohash.
func CoverPrecision(r geo.Region, precision int) []Range {
	if err := ValidatePrecision(precision); err != nil {
		panic("BUG: " + err.Error())
	}
	limit := float64(precision * BitsPerChar)
	switch v := r.(type) {
	case geo.Circle:
		return circleRanges(v.Center, v.Radius, limit)
	case *geo.Circle:
		return circleRanges(v.Center, v.Radius, limit)
	case geo.Rectangle:
		return rectangleRanges(v, limit)
	case *geo.Rectangle:
		return rectangleRanges(*v, limit)
	default:
		panic("BUG: unsupported region type")
	}
}

// CircleRanges returns the ranges covering every point within radius meters of center.
func CircleRanges(center geo.Point, radius float64) []Range {
	return circleRanges(center, radius, DefaultPrecision*BitsPerChar)
}

// RectangleRanges returns the ranges covering every point inside r, edges included.
func RectangleRanges(r geo.Rectangle) []Range {
	return rectangleRanges(r, DefaultPrecision*BitsPerChar)
}

func circleRanges(center geo.Point, radius, limit float64) []Range {
	bits := circleBits(center, radius, limit)
	latDelta := radius / metersPerDegreeLatitude
	north := math.Min(90, center.Latitude+latDelta)
	south := math.Max(-90, center.Latitude-latDelta)
	lonDeltaNorth := metersToLongitudeDegrees(radius, north)
	lonDeltaSouth := metersToLongitudeDegrees(radius, south)
	lonDelta := math.Max(lonDeltaNorth, lonDeltaSouth)

	lats := []float64{center.Latitude, north, south}
	// A circle touching a pole or wider than a hemisphere spans every
	// longitude, so it is covered by both longitude halves.
	if north >= 90 || south <= -90 || lonDelta >= 180 {
		return rangesForSamples(lats, []float64{-180, 0, 180}, 1)
	}
	lons := []float64{center.Longitude, wrapLongitude(center.Longitude - lonDelta), wrapLongitude(center.Longitude + lonDelta)}
	return rangesForSamples(lats, lons, bits)
}

func rectangleRanges(r geo.Rectangle, limit float64) []Range {
	latSpan, lonSpan := r.Span()
	bitsLat := math.Max(0, math.Floor(math.Log2(180/(latSpan/2)))) * 2
	bitsLon := math.Max(1, math.Floor(math.Log2(360/(lonSpan/2))))*2 - 1
	bits := clampBits(math.Min(bitsLat, bitsLon), limit)

	c := r.Center()
	lats := []float64{c.Latitude, r.North, r.South}
	lons := []float64{c.Longitude, wrapLongitude(r.West), wrapLongitude(r.East)}
	return rangesForSamples(lats, lons, bits)
}

// rangesForSamples encodes every combination of the sample latitudes and
// longitudes, truncates each to bits and joins the resulting ranges.
func rangesForSamples(lats, lons []float64, bits int) []Range {
	precision := int(math.Ceil(float64(bits) / BitsPerChar))

	ranges := make([]Range, 0, len(lats)*len(lons))
	for _, lat := range lats {
		for _, lon := range lons {
			hash := encode(lat, lon, precision)
			ranges = append(ranges, rangeForHash(hash, bits))
		}
	}
	return join(ranges)
}

func encode(lat, lon float64, precision int) string {
	p := geo.NewPoint(math.Max(-90, math.Min(90, lat)), math.Max(-180, math.Min(180, lon)))
	hash, err := Encode(p, precision)
	if err != nil {
		panic("BUG: sample point out of range: " + err.Error())
	}
	return hash
}

func circleBits(center geo.Point, radius, limit float64) int {
	latDelta := radius / metersPerDegreeLatitude
	north := math.Min(90, center.Latitude+latDelta)
	south := math.Max(-90, center.Latitude-latDelta)

	bitsLat := math.Floor(latitudeBitsForResolution(radius)) * 2
	bitsLonNorth := math.Floor(longitudeBitsForResolution(radius, north))*2 - 1
	bitsLonSouth := math.Floor(longitudeBitsForResolution(radius, south))*2 - 1

	return clampBits(math.Min(bitsLat, math.Min(bitsLonNorth, bitsLonSouth)), limit)
}

func clampBits(bits, limit float64) int {
	if math.IsNaN(bits) {
		return 1
	}
	return int(math.Max(1, math.Min(bits, limit)))
}

func latitudeBitsForResolution(resolution float64) float64 {
	if resolution <= 0 {
		return maxBits
	}
	return math.Min(math.Log2(earthMeridionalCircumference/2/resolution), maxBits)
}

func longitudeBitsForResolution(resolution, latitude float64) float64 {
	if resolution <= 0 {
		return maxBits
	}
	degrees := metersToLongitudeDegrees(resolution, latitude)
	if math.Abs(degrees) > 0.000001 {
		return math.Max(1, math.Log2(360/degrees))
	}
	return 1
}

// metersToLongitudeDegrees converts a distance along a parallel at latitude to degrees.
func metersToLongitudeDegrees(distance, latitude float64) float64 {
	radians := latitude * math.Pi / 180
	num := math.Cos(radians) * earthEquatorialRadius * math.Pi / 180
	denom := 1 / math.Sqrt(1-earthE2*math.Sin(radians)*math.Sin(radians))
	deltaDegrees := num * denom
	if deltaDegrees < epsilon {
		if distance > 0 {
			return 360
		}
		return 0
	}
	return math.Min(360, distance/deltaDegrees)
}

func wrapLongitude(longitude float64) float64 {
	if longitude >= -180 && longitude <= 180 {
		return longitude
	}
	adjusted := longitude + 180
	if adjusted > 0 {
		return math.Mod(adjusted, 360) - 180
	}
	return 180 - math.Mod(-adjusted, 360)
}
