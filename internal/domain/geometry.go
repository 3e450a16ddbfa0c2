package domain

import "fmt"

type Point struct {
	Lon float64
	Lat float64
}

func (p Point) String() string {
	return fmt.Sprintf("(%f, %f)", p.Lon, p.Lat)
}

// BBox is a (minLon, minLat, maxLon, maxLat) rectangle in degrees, or in
// projected metres once passed through geo.ProjectBBox.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

func (b BBox) String() string {
	return fmt.Sprintf("(%f, %f, %f, %f)", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}
