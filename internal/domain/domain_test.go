package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeText(t *testing.T) {
	env := Envelope{XMin: 6.5, YMin: 50.25, XMax: 7, YMax: 51.125}

	assert.Equal(t, "{6.5, 50.25, 7, 51.125}", env.String())
	assert.Equal(t, "6.5,50.25,7,51.125", env.ArcGIS())
}

func TestGeometryDecode(t *testing.T) {
	t.Run("rings with z values", func(t *testing.T) {
		var g Geometry
		err := json.Unmarshal([]byte(`{"rings":[[[6.1,50.2,0],[6.3,50.2,0],[6.3,50.4,0],[6.1,50.2,0]]]}`), &g)

		require.NoError(t, err)
		require.Len(t, g.Rings, 1)
		assert.Equal(t, Point{X: 6.1, Y: 50.2}, g.Rings[0][0])
		assert.False(t, g.Empty())
	})

	t.Run("short position", func(t *testing.T) {
		var g Geometry
		err := json.Unmarshal([]byte(`{"rings":[[[6.1]]]}`), &g)
		assert.Error(t, err)
	})

	t.Run("empty rings", func(t *testing.T) {
		var g Geometry
		require.NoError(t, json.Unmarshal([]byte(`{"rings":[[]]}`), &g))
		assert.True(t, g.Empty())
	})

	t.Run("round trip", func(t *testing.T) {
		g := Geometry{Rings: []Ring{{{X: 1, Y: 2}, {X: 3, Y: 4}}}}
		data, err := json.Marshal(g)
		require.NoError(t, err)
		assert.JSONEq(t, `{"rings":[[[1,2],[3,4]]]}`, string(data))
	})
}

func TestFlexText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string", `"01067"`, "01067"},
		{"integer", `10115`, "10115"},
		{"integral float", `12.0`, "12"},
		{"fraction", `12.5`, "12.5"},
		{"epoch millis", `1609459200000`, "1609459200000"},
		{"bool", `true`, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v FlexText
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.want, string(v))
		})
	}

	t.Run("null pointer", func(t *testing.T) {
		var s struct {
			V *FlexText `json:"v"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"v":null}`), &s))
		assert.Nil(t, s.V)
		assert.Nil(t, s.V.Value())
	})
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"number", `52.52`, 52.52},
		{"string", `"13.405"`, 13.405},
		{"decimal comma", `"52,52"`, 52.52},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v FlexFloat
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.InDelta(t, tt.want, float64(v), 1e-12)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		var v FlexFloat
		assert.Error(t, json.Unmarshal([]byte(`"north"`), &v))
	})
}

func TestRegionRecord(t *testing.T) {
	var r Region
	err := json.Unmarshal([]byte(`{"OBJECTID":7,"ags":"09162","gen":"München","ewz":1488202,"kfl":310.7,"bem":null}`), &r)
	require.NoError(t, err)
	r.KreisID = r.ObjectID

	rec := r.Record()

	assert.Equal(t, map[string]any{
		"KREISID": int64(7),
		"ags":     "09162",
		"gen":     "München",
		"ewz":     int64(1488202),
		"kfl":     310.7,
	}, rec)
	assert.Equal(t, "München", r.Name())
}

func TestStationRecord(t *testing.T) {
	var s Station
	err := json.Unmarshal([]byte(`{
		"OBJECTID": 42,
		"Betreiber": "Stadtwerke",
		"Straße": "Hauptstraße",
		"Hausnummer": 5,
		"Postleitzahl": "01067",
		"Breitengrad": "51,05",
		"Längengrad": 13.73,
		"Anzahl_Ladepunkte": 2,
		"P1__kW_": 22
	}`), &s)
	require.NoError(t, err)

	t.Run("unassigned omits KREISID", func(t *testing.T) {
		rec := s.Record()
		assert.NotContains(t, rec, ColKreisID)
		assert.Equal(t, int64(42), rec[ColObjectID])
		assert.Equal(t, "Hauptstraße", rec["Straße"])
		assert.Equal(t, "5", rec["Hausnummer"])
		assert.Equal(t, "01067", rec["Postleitzahl"])
		assert.InDelta(t, 51.05, rec["Breitengrad"], 1e-12)
		assert.Equal(t, 22.0, rec["P1__kW_"])
		assert.NotContains(t, rec, "Ort")
	})

	t.Run("assigned carries KREISID", func(t *testing.T) {
		s.KreisID = 9
		assert.Equal(t, int64(9), s.Record()[ColKreisID])
	})

	t.Run("coordinates from attributes", func(t *testing.T) {
		p, ok := s.Coordinates()
		require.True(t, ok)
		assert.InDelta(t, 13.73, p.X, 1e-12)
		assert.InDelta(t, 51.05, p.Y, 1e-12)
	})
}

func TestStationCoordinatesFallback(t *testing.T) {
	s := Station{ObjectID: 1, Location: &Point{X: 8, Y: 49}}
	p, ok := s.Coordinates()
	require.True(t, ok)
	assert.Equal(t, Point{X: 8, Y: 49}, p)

	_, ok = Station{ObjectID: 2}.Coordinates()
	assert.False(t, ok)
}

func TestStationFromRecord(t *testing.T) {
	rec := map[string]any{
		"OBJECTID":          int64(3),
		"KREISID":           int64(11),
		"Betreiber":         "EnBW",
		"Postleitzahl":      "70173",
		"Breitengrad":       48.77,
		"Längengrad":        9.18,
		"Anzahl_Ladepunkte": int64(4),
		"Ort":               nil,
	}

	s, err := StationFromRecord(rec)

	require.NoError(t, err)
	assert.Equal(t, int64(3), s.ObjectID)
	assert.Equal(t, int64(11), s.KreisID)
	require.NotNil(t, s.Betreiber)
	assert.Equal(t, "EnBW", *s.Betreiber)
	assert.Nil(t, s.Ort)
	require.NotNil(t, s.AnzahlLadepunkte)
	assert.Equal(t, int64(4), *s.AnzahlLadepunkte)

	_, err = StationFromRecord(map[string]any{"Betreiber": "x"})
	assert.Error(t, err)
}

func TestRegionLoadedSerialize(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	ev := RegionLoaded{RunID: "run-1", KreisID: 5, Name: "Kiel", Kept: 3, LoadedAt: Now()}
	out, err := ev.Serialize()

	require.NoError(t, err)
	assert.Equal(t, []byte("5"), out.Key)
	assert.Equal(t, EventTypeRegionLoaded, out.Headers["event_type"])
	assert.Equal(t, "2024-03-01T12:00:00Z", out.Headers["loaded_at"])

	var decoded RegionLoaded
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	assert.Equal(t, ev, decoded)
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("fetch error unwraps", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := fmt.Errorf("load: %w", &FetchError{Source: "regions", URL: "http://x", Err: cause})

		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.ErrorIs(t, err, cause)
		assert.True(t, fe.Temporary())
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		fe := &FetchError{Source: "stations", StatusCode: 400, Err: errors.New("bad query")}
		assert.False(t, fe.Temporary())
		assert.Contains(t, fe.Error(), "status 400")
	})

	t.Run("payload errors are permanent", func(t *testing.T) {
		assert.False(t, (&FetchError{Source: "regions", StatusCode: 500, Payload: true}).Temporary())
		assert.False(t, (&FetchError{Source: "regions", Payload: true}).Temporary())
	})

	t.Run("unrecognized columns", func(t *testing.T) {
		err := fmt.Errorf("upsert: %w", &UnrecognizedColumnError{Table: "stations", Columns: []string{"foo", "bar"}})
		assert.ErrorIs(t, err, ErrUnrecognizedColumn)
		assert.Contains(t, err.Error(), "foo, bar")
	})
}

func TestParseKreisIDs(t *testing.T) {
	ids, err := ParseKreisIDs(" 1, 2,,17 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 17}, ids)

	ids, err = ParseKreisIDs("")
	require.NoError(t, err)
	assert.Nil(t, ids)

	for _, bad := range []string{"1,x", "0", "-3"} {
		_, err := ParseKreisIDs(bad)
		assert.Error(t, err, bad)
	}
}
