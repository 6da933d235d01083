// Package geojson turns persisted district rows into a GeoJSON
// FeatureCollection and derives the ratio and opacity channels used by map
// clients.
package geojson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/store"
)

// Property names written into feature properties.
const (
	PropEwz        = "ewz"
	PropStations   = domain.ColStations
	PropEwzSta     = "ewz_sta"
	PropOpacSta    = "opac_sta"
	PropOpacEwzSta = "opac_ewz_sta"

	typeFeatureCollection = "FeatureCollection"
	typeFeature           = "Feature"
	typePolygon           = "Polygon"
)

// Properties lists the region columns copied into feature properties.
var Properties = []string{domain.ColKreisID, "ags", "gen", "bez", PropEwz, "nuts", PropStations}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON Feature with a Polygon geometry.
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry"`
}

// Geometry is a GeoJSON geometry object.
type Geometry struct {
	Type        string        `json:"type"`
	Coordinates []domain.Ring `json:"coordinates"`
}

// KreisID returns the feature's KREISID property.
func (f Feature) KreisID() (int64, bool) {
	v, ok := number(f.Properties[domain.ColKreisID])
	if !ok {
		return 0, false
	}
	return int64(v), true
}

// NewCollection wraps features into a FeatureCollection.
func NewCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: typeFeatureCollection, Features: features}
}

// Assemble joins region rows with geometry rows on KREISID and emits one
// feature per region that has a geometry, in region order. Geometry blobs
// that cannot be decoded are skipped and reported in the returned error; the
// collection is valid either way.
func Assemble(regions, geometries []store.Record) (FeatureCollection, error) {
	byID := make(map[int64][]byte, len(geometries))
	for _, g := range geometries {
		id, ok := number(g[domain.ColKreisID])
		if !ok {
			continue
		}
		if blob := blobOf(g[domain.ColGeoData]); blob != nil {
			byID[int64(id)] = blob
		}
	}

	var errs []error
	features := make([]Feature, 0, len(regions))
	for _, r := range regions {
		id, ok := number(r[domain.ColKreisID])
		if !ok {
			continue
		}
		blob, ok := byID[int64(id)]
		if !ok {
			continue
		}
		var g domain.Geometry
		if err := json.Unmarshal(blob, &g); err != nil {
			errs = append(errs, fmt.Errorf("decode geometry of %d: %w", int64(id), err))
			continue
		}
		props := make(map[string]any, len(Properties))
		for _, key := range Properties {
			if v, ok := r[key]; ok {
				props[key] = v
			}
		}
		features = append(features, Feature{
			Type:       typeFeature,
			Properties: props,
			Geometry:   &Geometry{Type: typePolygon, Coordinates: g.Rings},
		})
	}
	return NewCollection(features), errors.Join(errs...)
}

func blobOf(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return nil
	}
}

// Import decodes a FeatureCollection or a bare array of features.
func Import(data []byte) (FeatureCollection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return FeatureCollection{}, errors.New("import geojson: empty document")
	}
	dec := func(v any) error {
		d := json.NewDecoder(bytes.NewReader(data))
		d.UseNumber()
		return d.Decode(v)
	}
	if data[0] == '[' {
		var features []Feature
		if err := dec(&features); err != nil {
			return FeatureCollection{}, fmt.Errorf("import geojson: %w", err)
		}
		return NewCollection(features), nil
	}
	var fc FeatureCollection
	if err := dec(&fc); err != nil {
		return FeatureCollection{}, fmt.Errorf("import geojson: %w", err)
	}
	if fc.Type != typeFeatureCollection {
		return FeatureCollection{}, fmt.Errorf("import geojson: unexpected type %q", fc.Type)
	}
	return NewCollection(fc.Features), nil
}

// Export writes fc as JSON.
func Export(w io.Writer, fc FeatureCollection) error {
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return fmt.Errorf("export geojson: %w", err)
	}
	return nil
}
