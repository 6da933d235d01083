package geojson

import (
	"encoding/json"
	"math"
)

// OpacityOptions selects the inversion of each opacity channel.
type OpacityOptions struct {
	ReverseStations bool
	ReverseEwzSta   bool
}

// DefaultOpacity darkens districts with many stations and few residents per station.
var DefaultOpacity = OpacityOptions{ReverseStations: false, ReverseEwzSta: true}

// FilterAndScore keeps the features with a non-zero station count and
// population and sets ewz_sta to residents per station.
func FilterAndScore(fc FeatureCollection) FeatureCollection {
	kept := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		stations, ok := number(f.Properties[PropStations])
		if !ok || stations == 0 {
			continue
		}
		ewz, ok := number(f.Properties[PropEwz])
		if !ok || ewz == 0 {
			continue
		}
		f.Properties = clone(f.Properties)
		f.Properties[PropEwzSta] = optional(Ratio(ewz, stations))
		kept = append(kept, f)
	}
	return NewCollection(kept)
}

// NormalizeOpacity rescales stations and ewz_sta into [0,1] over the features
// of fc and stores them as opac_sta and opac_ewz_sta.
func NormalizeOpacity(fc FeatureCollection, opts OpacityOptions) FeatureCollection {
	staMin, staMax, staOK := bounds(fc.Features, PropStations)
	ewzMin, ewzMax, ewzOK := bounds(fc.Features, PropEwzSta)

	out := make([]Feature, len(fc.Features))
	for i, f := range fc.Features {
		f.Properties = clone(f.Properties)
		f.Properties[PropOpacSta] = channel(f.Properties[PropStations], staMin, staMax, staOK, opts.ReverseStations)
		f.Properties[PropOpacEwzSta] = channel(f.Properties[PropEwzSta], ewzMin, ewzMax, ewzOK, opts.ReverseEwzSta)
		out[i] = f
	}
	return NewCollection(out)
}

func channel(raw any, lo, hi float64, haveBounds, reverse bool) any {
	v, ok := number(raw)
	if !haveBounds && ok {
		return nil
	}
	var val *float64
	if ok {
		val = &v
	}
	return optional(Lerp(lo, hi, val, reverse))
}

// Lerp maps v from [lo,hi] onto [0,1], inverted when reverse is set. A nil
// value maps to 0, or 1 when reversed. An empty range or a value outside it
// has no opacity.
func Lerp(lo, hi float64, v *float64, reverse bool) (float64, bool) {
	if v == nil {
		if reverse {
			return 1, true
		}
		return 0, true
	}
	if hi == lo || *v < lo || *v > hi {
		return 0, false
	}
	rel := (*v - lo) / (hi - lo)
	if reverse {
		rel = 1 - rel
	}
	return rel, true
}

// Ratio returns x/y, or false when y is zero.
func Ratio(x, y float64) (float64, bool) {
	if y == 0 {
		return 0, false
	}
	return x / y, true
}

func bounds(features []Feature, key string) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, f := range features {
		v, isNum := number(f.Properties[key])
		if !isNum {
			continue
		}
		ok = true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, ok
}

func optional(v float64, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// number reads a numeric property as stored (integer or float) or decoded (json.Number).
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
