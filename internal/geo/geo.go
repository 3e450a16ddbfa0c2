// Package geo holds the little geodesy the service needs: bounding boxes
// around a position on a spherical earth and the Web Mercator projection
// used by catalog layers that filter in EPSG:3857.
package geo

import (
	"math"

	"github.com/inlandnav/euris-resources/internal/domain"
)

const (
	EarthRadiusMeters = 6371000.0

	// WGS84 ellipsoid
	SemiMajorAxis = 6378137.0
	SemiMinorAxis = 6356752.3142

	MaxProjectedLatitude = 89.5
)

var eccentricity = math.Sqrt(1 - (SemiMinorAxis*SemiMinorAxis)/(SemiMajorAxis*SemiMajorAxis))

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func toDegrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Destination returns the point reached by travelling distanceMeters along a
// great circle from start with the given initial bearing.
func Destination(start domain.Point, bearingDegrees float64, distanceMeters float64) domain.Point {
	lat := toRadians(start.Lat)
	lon := toRadians(start.Lon)
	bearing := toRadians(bearingDegrees)
	angular := distanceMeters / EarthRadiusMeters

	newLat := math.Asin(math.Sin(lat)*math.Cos(angular) + math.Cos(lat)*math.Sin(angular)*math.Cos(bearing))
	newLon := lon + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(lat),
		math.Cos(angular)-math.Sin(lat)*math.Sin(newLat),
	)

	return domain.Point{Lon: toDegrees(newLon), Lat: toDegrees(newLat)}
}

// BBoxFromCenter spans the box between the points at bearing -45 (NW) and 135
// (SE) from center. This is not the minimal box enclosing the circle, the
// corners lie on it.
func BBoxFromCenter(center domain.Point, radiusMeters float64) domain.BBox {
	nw := Destination(center, -45, radiusMeters)
	se := Destination(center, 135, radiusMeters)

	return domain.BBox{
		MinLon: math.Min(nw.Lon, se.Lon),
		MinLat: math.Min(nw.Lat, se.Lat),
		MaxLon: math.Max(nw.Lon, se.Lon),
		MaxLat: math.Max(nw.Lat, se.Lat),
	}
}

// ToProjected is the forward ellipsoidal Web Mercator projection. Latitude is
// clamped to +-MaxProjectedLatitude.
func ToProjected(lon, lat float64) (float64, float64) {
	lat = math.Max(-MaxProjectedLatitude, math.Min(MaxProjectedLatitude, lat))

	phi := toRadians(lat)
	con := eccentricity * math.Sin(phi)
	con = math.Pow((1-con)/(1+con), eccentricity/2)
	ts := math.Tan(math.Pi/4+phi/2) * con

	x := SemiMajorAxis * toRadians(lon)
	y := SemiMajorAxis * math.Log(ts)
	return x, y
}

func ProjectBBox(bbox domain.BBox) domain.BBox {
	minX, minY := ToProjected(bbox.MinLon, bbox.MinLat)
	maxX, maxY := ToProjected(bbox.MaxLon, bbox.MaxLat)
	return domain.BBox{MinLon: minX, MinLat: minY, MaxLon: maxX, MaxLat: maxY}
}
