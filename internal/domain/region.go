package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Column names shared by the persisted tables.
const (
	ColKreisID  = "KREISID"
	ColObjectID = "OBJECTID"
	ColEnvelope = "envelope"
	ColStations = "stations"
	ColGeoData  = "GeoData"
)

// Region is one Kreis as delivered by the district layer. ObjectID is the
// upstream identifier; KreisID is the canonical key assigned from it.
type Region struct {
	ObjectID    int64     `json:"OBJECTID"`
	KreisID     int64     `json:"-"`
	AGS         *string   `json:"ags"`
	GEN         *string   `json:"gen"`
	BEZ         *string   `json:"bez"`
	IBZ         *int64    `json:"ibz"`
	BEM         *string   `json:"bem"`
	SNL         *string   `json:"sn_l"`
	SNR         *string   `json:"sn_r"`
	SNK         *string   `json:"sn_k"`
	SNV1        *string   `json:"sn_v1"`
	SNV2        *string   `json:"sn_v2"`
	SNG         *string   `json:"sn_g"`
	FKS3        *string   `json:"fk_s3"`
	NUTS        *string   `json:"nuts"`
	WSK         *string   `json:"wsk"`
	EWZ         *int64    `json:"ewz"`
	KFL         *float64  `json:"kfl"`
	ShapeArea   *float64  `json:"Shape__Area"`
	ShapeLength *float64  `json:"Shape__Length"`
	Geometry    *Geometry `json:"-"`
}

// Name returns the district name or an empty string.
func (r Region) Name() string {
	if r.GEN == nil {
		return ""
	}
	return *r.GEN
}

// Record flattens the region into a column map. Nil attributes are omitted.
func (r Region) Record() map[string]any {
	rec := map[string]any{ColKreisID: r.KreisID}
	putString(rec, "ags", r.AGS)
	putString(rec, "gen", r.GEN)
	putString(rec, "bez", r.BEZ)
	putInt(rec, "ibz", r.IBZ)
	putString(rec, "bem", r.BEM)
	putString(rec, "sn_l", r.SNL)
	putString(rec, "sn_r", r.SNR)
	putString(rec, "sn_k", r.SNK)
	putString(rec, "sn_v1", r.SNV1)
	putString(rec, "sn_v2", r.SNV2)
	putString(rec, "sn_g", r.SNG)
	putString(rec, "fk_s3", r.FKS3)
	putString(rec, "nuts", r.NUTS)
	putString(rec, "wsk", r.WSK)
	putInt(rec, "ewz", r.EWZ)
	putFloat(rec, "kfl", r.KFL)
	putFloat(rec, "Shape__Area", r.ShapeArea)
	putFloat(rec, "Shape__Length", r.ShapeLength)
	return rec
}

func putString(rec map[string]any, col string, v *string) {
	if v != nil {
		rec[col] = *v
	}
}

func putInt(rec map[string]any, col string, v *int64) {
	if v != nil {
		rec[col] = *v
	}
}

func putFloat(rec map[string]any, col string, v *float64) {
	if v != nil {
		rec[col] = *v
	}
}

func putText(rec map[string]any, col string, v *FlexText) {
	if v != nil {
		rec[col] = string(*v)
	}
}

// ParseKreisIDs parses a comma-separated KREISID list such as "1,2,17".
// An empty string yields nil.
func ParseKreisIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid KREISID %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
