package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/combatsim/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Kilometres per degree used by the equirectangular approximation. These
// constants are part of the simulation's numeric contract and must not be
// replaced by a geodesic calculation.
const (
	KmPerDegreeLon = 111.32
	KmPerDegreeLat = 110.54
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// DistanceKm returns the planar distance between two positions in km.
func DistanceKm(a, b core.Position) float64 {
	dx := (b.Lon - a.Lon) * KmPerDegreeLon
	dy := (b.Lat - a.Lat) * KmPerDegreeLat
	return math.Sqrt(dx*dx + dy*dy)
}

// Advance moves from toward to by speed degrees along the straight line in
// degree space. It returns the new position and the bearing of the
// movement vector in degrees (atan2 convention, east = 0). moved is false
// when the two positions coincide.
func Advance(from, to core.Position, speed float64) (next core.Position, heading float64, moved bool) {
	dx := to.Lon - from.Lon
	dy := to.Lat - from.Lat
	d := math.Sqrt(dx*dx + dy*dy)
	if d == 0 {
		return from, 0, false
	}
	next = core.Position{
		Lon: from.Lon + dx/d*speed,
		Lat: from.Lat + dy/d*speed,
	}
	return next, math.Atan2(dy, dx) * 180 / math.Pi, true
}

// Validate checks that a position lies within the WGS84 lon/lat domain.
func Validate(p core.Position) error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) ||
		p.Lon < -180 || p.Lon > 180 || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: lon=%v lat=%v", ErrInvalidCoordinates, p.Lon, p.Lat)
	}
	return nil
}

// Point converts a position into an EPSG:4326 point.
func Point(p core.Position) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.Lon, Y: p.Lat},
			Type: geom.DimXY,
		},
	)
}

// Coords3857From4326 creates a web mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	point = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
	return point, nil
}
