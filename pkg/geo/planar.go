// Package geo holds the planar geometry the route planner works in.
//
// Graph coordinates are Web Mercator meters (projected from WGS84 during
// ingestion) so that Euclidean distance is a usable edge cost and an
// admissible heuristic.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// Point is an {x, y} pair in graph coordinates.
type Point = orb.Point

// Dist returns the Euclidean distance between a and b.
func Dist(a, b Point) float64 {
	return planar.Distance(a, b)
}

// DistXY is Dist for unpacked coordinates.
func DistXY(x1, y1, x2, y2 float64) float64 {
	return planar.Distance(orb.Point{x1, y1}, orb.Point{x2, y2})
}

// Project converts a WGS84 lat/lon into Web Mercator meters.
func Project(lat, lon float64) Point {
	return project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
}

// Unproject converts Web Mercator meters back into WGS84 lat/lon.
func Unproject(p Point) (lat, lon float64) {
	ll := project.Point(p, project.Mercator.ToWGS84)
	return ll.Lat(), ll.Lon()
}

// BoundOf returns the bounding box of a flat [x0, y0, x1, y1, ...] array.
// An empty array yields the zero Bound.
func BoundOf(flat []float64) orb.Bound {
	if len(flat) < 2 {
		return orb.Bound{}
	}
	b := orb.Point{flat[0], flat[1]}.Bound()
	for i := 2; i+1 < len(flat); i += 2 {
		b = b.Extend(orb.Point{flat[i], flat[i+1]})
	}
	return b
}
