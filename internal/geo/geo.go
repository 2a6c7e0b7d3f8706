package geo

import (
	"fmt"
	"math"

	"plan-simulator/internal/plan"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

const earthRadius = 6371000.0

// Point is a projected Web Mercator (EPSG:3857) coordinate in metres.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

var toMercator = wgs84.EPSG().Transform(4326, 3857)

// Project converts a lon/lat pair to Web Mercator.
func Project(ll plan.LonLat) Point {
	x, y, _ := toMercator(ll.Lon, ll.Lat, 0)
	return Point{X: x, Y: y}
}

// Lerp interpolates linearly between a and b; f is not clamped.
func Lerp(a, b plan.LonLat, f float64) plan.LonLat {
	return plan.LonLat{
		Lon: a.Lon + (b.Lon-a.Lon)*f,
		Lat: a.Lat + (b.Lat-a.Lat)*f,
	}
}

// PlanarHeading is atan2(dLat, dLon) from a to b, normalised to [0, 2π).
func PlanarHeading(a, b plan.LonLat) float64 {
	h := math.Atan2(b.Lat-a.Lat, b.Lon-a.Lon)
	if h < 0 {
		h += 2 * math.Pi
	}
	if h >= 2*math.Pi {
		h -= 2 * math.Pi
	}
	return h
}

// Haversine distance in meters
func Haversine(a, b plan.LonLat) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadius * c
}

// Route builds the station-to-station polyline of a plan in lon/lat.
// Plans with fewer than two located stations yield an empty line string;
// stations that all share one location are rejected by the geometry library.
func Route(p *plan.Plan) (geom.LineString, error) {
	var coords []float64
	for _, ll := range locatedStations(p) {
		coords = append(coords, ll.Lon, ll.Lat)
	}
	if len(coords) < 4 {
		return geom.LineString{}, nil
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("route of plan %s: %w", p.ID, err)
	}
	return ls, nil
}

// RouteLength sums the great-circle distance between consecutive stations.
func RouteLength(p *plan.Plan) float64 {
	pts := locatedStations(p)
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += Haversine(pts[i-1], pts[i])
	}
	return total
}

func locatedStations(p *plan.Plan) []plan.LonLat {
	var out []plan.LonLat
	for _, st := range p.Stations() {
		if st.Coordinates != nil {
			out = append(out, *st.Coordinates)
		}
	}
	return out
}
