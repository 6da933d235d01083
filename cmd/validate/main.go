// Command validate checks an exported district GeoJSON file for structural
// and derived-value integrity.
//
// Usage:
//
//	go run ./cmd/validate -in kreise.geojson
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/geojson"
)

const ratioTolerance = 1e-9

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	in := flag.String("in", "", "path to the exported GeoJSON file")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", *in, err)
		os.Exit(1)
	}
	os.Exit(run(data, os.Stdout))
}

func run(data []byte, out io.Writer) int {
	fmt.Fprintln(out, "=== District GeoJSON Validation ===")
	fmt.Fprintln(out)

	fc, err := geojson.Import(data)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateStructure(fc),
		validateKeys(fc),
		validateRings(fc),
		validateRatios(fc),
		validateOpacity(fc),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Features: %d\n", len(fc.Features))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func label(i int, f geojson.Feature) string {
	if id, ok := f.KreisID(); ok {
		return fmt.Sprintf("feature %d (KREISID %d)", i, id)
	}
	return fmt.Sprintf("feature %d", i)
}

func validateStructure(fc geojson.FeatureCollection) *phase {
	p := &phase{name: "Phase 1: FeatureCollection structure"}
	for i, f := range fc.Features {
		if f.Type != "Feature" {
			p.errorf("%s: type %q, want Feature", label(i, f), f.Type)
		}
		if f.Properties == nil {
			p.errorf("%s: missing properties", label(i, f))
		}
		if f.Geometry == nil {
			p.errorf("%s: missing geometry", label(i, f))
		} else if f.Geometry.Type != "Polygon" {
			p.errorf("%s: geometry type %q, want Polygon", label(i, f), f.Geometry.Type)
		}
	}
	return p
}

func validateKeys(fc geojson.FeatureCollection) *phase {
	p := &phase{name: "Phase 2: Unique KREISID"}
	seen := make(map[int64]int)
	for i, f := range fc.Features {
		id, ok := f.KreisID()
		if !ok {
			p.errorf("feature %d: missing %s", i, domain.ColKreisID)
			continue
		}
		if first, dup := seen[id]; dup {
			p.errorf("KREISID %d: appears in features %d and %d", id, first, i)
			continue
		}
		seen[id] = i
	}
	return p
}

func validateRings(fc geojson.FeatureCollection) *phase {
	p := &phase{name: "Phase 3: Polygon rings"}
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if len(f.Geometry.Coordinates) == 0 {
			p.errorf("%s: polygon has no rings", label(i, f))
		}
		for r, ring := range f.Geometry.Coordinates {
			if len(ring) < 4 {
				p.errorf("%s ring %d: %d positions, want at least 4", label(i, f), r, len(ring))
				continue
			}
			if ring[0] != ring[len(ring)-1] {
				p.errorf("%s ring %d: not closed", label(i, f), r)
			}
		}
	}
	return p
}

func validateRatios(fc geojson.FeatureCollection) *phase {
	p := &phase{name: "Phase 4: Residents per station"}
	for i, f := range fc.Features {
		raw, ok := f.Properties[geojson.PropEwzSta]
		if !ok || raw == nil {
			continue
		}
		got, ok := numeric(raw)
		if !ok {
			p.errorf("%s: %s is not a number", label(i, f), geojson.PropEwzSta)
			continue
		}
		ewz, okE := numeric(f.Properties[geojson.PropEwz])
		stations, okS := numeric(f.Properties[geojson.PropStations])
		if !okE || !okS {
			p.errorf("%s: %s present without ewz and stations", label(i, f), geojson.PropEwzSta)
			continue
		}
		want, ok := geojson.Ratio(ewz, stations)
		if !ok {
			p.errorf("%s: %s set although stations is 0", label(i, f), geojson.PropEwzSta)
			continue
		}
		if math.Abs(got-want) > ratioTolerance*math.Max(1, math.Abs(want)) {
			p.errorf("%s: %s=%g, want %g", label(i, f), geojson.PropEwzSta, got, want)
		}
	}
	return p
}

func validateOpacity(fc geojson.FeatureCollection) *phase {
	p := &phase{name: "Phase 5: Opacity channels"}
	for i, f := range fc.Features {
		for _, key := range []string{geojson.PropOpacSta, geojson.PropOpacEwzSta} {
			raw, ok := f.Properties[key]
			if !ok || raw == nil {
				continue
			}
			v, ok := numeric(raw)
			if !ok {
				p.errorf("%s: %s is not a number", label(i, f), key)
				continue
			}
			if v < 0 || v > 1 {
				p.errorf("%s: %s=%g outside [0,1]", label(i, f), key, v)
			}
		}
	}
	return p
}

func numeric(v any) (float64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	return f, err == nil
}
