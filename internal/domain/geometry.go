package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Point is a WGS84 coordinate pair. X is longitude, Y is latitude.
type Point struct {
	X float64
	Y float64
}

// UnmarshalJSON decodes an ArcGIS position array. Positions may carry a third
// (z) or fourth (m) ordinate which are ignored.
func (p *Point) UnmarshalJSON(b []byte) error {
	var coords []float64
	if err := json.Unmarshal(b, &coords); err != nil {
		return fmt.Errorf("decode position: %w", err)
	}
	if len(coords) < 2 {
		return fmt.Errorf("decode position: need 2 ordinates, got %d", len(coords))
	}
	p.X, p.Y = coords[0], coords[1]
	return nil
}

// MarshalJSON encodes the point as an [x, y] position.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// Ring is a closed or open sequence of positions. Only the first ring of a
// polygon is treated as its boundary.
type Ring []Point

// Geometry is a polygon in ArcGIS ring form.
type Geometry struct {
	Rings []Ring `json:"rings"`
}

// Empty reports whether the geometry has no positions at all.
func (g Geometry) Empty() bool {
	for _, r := range g.Rings {
		if len(r) > 0 {
			return false
		}
	}
	return true
}

// Envelope is an axis-aligned bounding box with XMin <= XMax and YMin <= YMax.
type Envelope struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// String renders the persisted text form "{xmin, ymin, xmax, ymax}".
func (e Envelope) String() string {
	return "{" + formatFloat(e.XMin) + ", " + formatFloat(e.YMin) + ", " +
		formatFloat(e.XMax) + ", " + formatFloat(e.YMax) + "}"
}

// ArcGIS renders the envelope as a FeatureServer geometry parameter.
func (e Envelope) ArcGIS() string {
	return formatFloat(e.XMin) + "," + formatFloat(e.YMin) + "," +
		formatFloat(e.XMax) + "," + formatFloat(e.YMax)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
