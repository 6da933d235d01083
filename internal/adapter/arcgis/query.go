package arcgis

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// Query holds the FeatureServer query parameters used by this service.
type Query struct {
	Where          string
	ObjectIDs      []int64
	OutFields      []string
	Envelope       *domain.Envelope
	ReturnGeometry bool
	IDsOnly        bool
	Offset         int
}

// Values encodes the query. Every request asks for WGS84 in and out.
func (q Query) Values() url.Values {
	where := q.Where
	if where == "" {
		where = "1=1"
	}
	outFields := "*"
	if len(q.OutFields) > 0 {
		outFields = strings.Join(q.OutFields, ",")
	}

	v := url.Values{
		"where":          {where},
		"outFields":      {outFields},
		"returnGeometry": {strconv.FormatBool(q.ReturnGeometry)},
		"inSR":           {"4326"},
		"outSR":          {"4326"},
		"f":              {"json"},
	}
	if len(q.ObjectIDs) > 0 {
		ids := make([]string, len(q.ObjectIDs))
		for i, id := range q.ObjectIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		v.Set("objectIds", strings.Join(ids, ","))
	}
	if q.Envelope != nil {
		v.Set("geometry", q.Envelope.ArcGIS())
		v.Set("geometryType", "esriGeometryEnvelope")
		v.Set("spatialRel", "esriSpatialRelIntersects")
	}
	if q.IDsOnly {
		v.Set("returnIdsOnly", "true")
	}
	if q.Offset > 0 {
		v.Set("resultOffset", strconv.Itoa(q.Offset))
	}
	return v
}

// Feature is one result row. Attributes and geometry stay raw until a typed
// client decodes them.
type Feature struct {
	Attributes json.RawMessage `json:"attributes"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

// FeatureServer response types.

type queryResponse struct {
	Features              []Feature `json:"features"`
	ObjectIDs             []int64   `json:"objectIds"`
	ExceededTransferLimit bool      `json:"exceededTransferLimit"`
	Error                 *apiError `json:"error"`
}

type apiError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}
