package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

const earthRadiusM = 6371000.0

// DistanceMeters returns the great-circle distance in meters between
// two decimal-degree coordinates.
func DistanceMeters(aLat, aLng, bLat, bLng float64) float64 {
	a := s2.LatLngFromDegrees(aLat, aLng)
	b := s2.LatLngFromDegrees(bLat, bLng)
	return a.Distance(b).Radians() * earthRadiusM
}

// ProjectPoint returns the coordinate reached by travelling distanceM
// meters from the origin along headingDeg on a spherical earth.
// Headings that are NaN or outside [0,360] are treated as due north;
// device heading is frequently unavailable indoors or when stationary.
func ProjectPoint(lat, lng, headingDeg, distanceM float64) (float64, float64) {
	if math.IsNaN(headingDeg) || headingDeg < 0 || headingDeg > 360 {
		headingDeg = 0
	}

	angular := distanceM / earthRadiusM
	bearing := headingDeg * math.Pi / 180
	lat1 := lat * math.Pi / 180
	lng1 := lng * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lng2 := lng1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2),
	)

	// Wrap longitude into [-180, 180).
	outLng := math.Mod(lng2*180/math.Pi+540, 360) - 180
	return lat2 * 180 / math.Pi, outLng
}
