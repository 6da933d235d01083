package arcgis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// RegionFields is the attribute whitelist requested from the district layer.
var RegionFields = []string{
	"OBJECTID", "ags", "gen", "bez", "ibz", "bem", "sn_l", "sn_r", "sn_k", "sn_v1", "sn_v2",
	"sn_g", "fk_s3", "nuts", "wsk", "ewz", "kfl", "Shape__Area", "Shape__Length",
}

// RegionClient reads districts with their polygon geometry.
type RegionClient struct {
	q Querier
}

// NewRegionClient creates a district reader over q.
func NewRegionClient(q Querier) *RegionClient {
	return &RegionClient{q: q}
}

// RegionIDs lists the object ids of the districts matching where.
func (c *RegionClient) RegionIDs(ctx context.Context, where string) ([]int64, error) {
	ids, err := c.q.ObjectIDs(ctx, Query{Where: where})
	if err != nil {
		return nil, fmt.Errorf("list region ids: %w", err)
	}
	return ids, nil
}

// Region fetches one district with attributes and geometry.
func (c *RegionClient) Region(ctx context.Context, objectID int64) (domain.Region, error) {
	features, err := c.q.Query(ctx, Query{
		ObjectIDs:      []int64{objectID},
		OutFields:      RegionFields,
		ReturnGeometry: true,
	})
	if err != nil {
		return domain.Region{}, fmt.Errorf("fetch region %d: %w", objectID, err)
	}
	if len(features) == 0 {
		return domain.Region{}, fmt.Errorf("region %d: %w", objectID, domain.ErrNotFound)
	}
	return decodeRegion(features[0])
}

func decodeRegion(f Feature) (domain.Region, error) {
	var r domain.Region
	if err := json.Unmarshal(f.Attributes, &r); err != nil {
		return domain.Region{}, fmt.Errorf("decode region attributes: %w", err)
	}
	if r.ObjectID == 0 {
		return domain.Region{}, fmt.Errorf("decode region attributes: missing OBJECTID")
	}
	if hasGeometry(f.Geometry) {
		var g domain.Geometry
		if err := json.Unmarshal(f.Geometry, &g); err != nil {
			return domain.Region{}, fmt.Errorf("decode region %d geometry: %w", r.ObjectID, err)
		}
		r.Geometry = &g
	}
	return r, nil
}

func hasGeometry(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
