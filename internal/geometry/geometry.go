// Package geometry implements the planar computations used by the spatial
// join: bounding envelopes and boundary-inclusive point-in-polygon tests.
//
// Coordinates are treated as planar. Districts span well under a degree, so
// the distortion of treating longitude and latitude as x and y is negligible
// for containment.
package geometry

import (
	"math"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// collinearEpsilon bounds the cross product below which a point is treated as
// lying on a segment.
const collinearEpsilon = 1e-12

// EnvelopeOf returns the smallest envelope containing every point of every
// ring. It returns domain.ErrEmptyGeometry when there are no points.
func EnvelopeOf(rings []domain.Ring) (domain.Envelope, error) {
	var env domain.Envelope
	seen := false
	for _, ring := range rings {
		for _, p := range ring {
			if !seen {
				env = domain.Envelope{XMin: p.X, YMin: p.Y, XMax: p.X, YMax: p.Y}
				seen = true
				continue
			}
			env.XMin = math.Min(env.XMin, p.X)
			env.YMin = math.Min(env.YMin, p.Y)
			env.XMax = math.Max(env.XMax, p.X)
			env.YMax = math.Max(env.YMax, p.Y)
		}
	}
	if !seen {
		return domain.Envelope{}, domain.ErrEmptyGeometry
	}
	return env, nil
}

// Contains reports whether p lies inside env or on its border.
func Contains(env domain.Envelope, p domain.Point) bool {
	return p.X >= env.XMin && p.X <= env.XMax && p.Y >= env.YMin && p.Y <= env.YMax
}

// PointInPolygon reports whether p lies inside the polygon bounded by the
// first ring. Points on an edge or vertex count as inside. Holes and further
// rings are ignored. A ring with fewer than three points contains nothing.
func PointInPolygon(p domain.Point, rings []domain.Ring) bool {
	if len(rings) == 0 {
		return false
	}
	ring := rings[0]
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[j], ring[i]
		if onSegment(p, a, b) {
			return true
		}
		// Half-open rule: an edge counts when exactly one endpoint is above p.
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(p, a, b domain.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > collinearEpsilon {
		return false
	}
	return p.X >= math.Min(a.X, b.X) && p.X <= math.Max(a.X, b.X) &&
		p.Y >= math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y)
}
