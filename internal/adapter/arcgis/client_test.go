package arcgis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string, metrics *observability.Metrics) *Client {
	return NewClient("regions", baseURL, Options{
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	}, discardLogger(), metrics)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set(headerContentType, contentTypeJSON)
	_, _ = io.WriteString(w, body)
}

const regionResponse = `{
	"features": [{
		"attributes": {"OBJECTID": 12, "ags": "01002", "gen": "Kiel", "bez": "Kreisfreie Stadt", "ewz": 246601, "kfl": 118.65},
		"geometry": {"rings": [[[10.0, 54.2], [10.2, 54.2], [10.2, 54.4], [10.0, 54.2]]]}
	}]
}`

func TestQueryValues(t *testing.T) {
	env := domain.Envelope{XMin: 6, YMin: 50, XMax: 7.5, YMax: 51}
	v := Query{
		ObjectIDs:      []int64{3, 4},
		OutFields:      []string{"OBJECTID", "gen"},
		Envelope:       &env,
		ReturnGeometry: true,
		Offset:         2000,
	}.Values()

	assert.Equal(t, "1=1", v.Get("where"))
	assert.Equal(t, "3,4", v.Get("objectIds"))
	assert.Equal(t, "OBJECTID,gen", v.Get("outFields"))
	assert.Equal(t, "true", v.Get("returnGeometry"))
	assert.Equal(t, "6,50,7.5,51", v.Get("geometry"))
	assert.Equal(t, "esriGeometryEnvelope", v.Get("geometryType"))
	assert.Equal(t, "esriSpatialRelIntersects", v.Get("spatialRel"))
	assert.Equal(t, "4326", v.Get("inSR"))
	assert.Equal(t, "4326", v.Get("outSR"))
	assert.Equal(t, "json", v.Get("f"))
	assert.Equal(t, "2000", v.Get("resultOffset"))
	assert.Empty(t, v.Get("returnIdsOnly"))

	plain := Query{}.Values()
	assert.Equal(t, "*", plain.Get("outFields"))
	assert.Equal(t, "false", plain.Get("returnGeometry"))
	assert.Empty(t, plain.Get("geometry"))
}

func TestRegionClient_Region(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12", r.URL.Query().Get("objectIds"))
		assert.Equal(t, "true", r.URL.Query().Get("returnGeometry"))
		assert.Contains(t, r.URL.Query().Get("outFields"), "Shape__Area")
		writeJSON(w, regionResponse)
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	rc := NewRegionClient(testClient(srv.URL, metrics))

	region, err := rc.Region(context.Background(), 12)

	require.NoError(t, err)
	assert.Equal(t, int64(12), region.ObjectID)
	assert.Equal(t, "Kiel", region.Name())
	require.NotNil(t, region.EWZ)
	assert.Equal(t, int64(246601), *region.EWZ)
	require.NotNil(t, region.Geometry)
	require.Len(t, region.Geometry.Rings, 1)
	assert.Equal(t, domain.Point{X: 10.2, Y: 54.4}, region.Geometry.Rings[0][2])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.APIRequests.WithLabelValues("regions", "success")))
}

func TestRegionClient_RegionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"features": []}`)
	}))
	defer srv.Close()

	rc := NewRegionClient(testClient(srv.URL, observability.NewMetricsForTesting()))
	_, err := rc.Region(context.Background(), 999)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegionClient_RegionIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("returnIdsOnly"))
		assert.Equal(t, "sn_l='01'", r.URL.Query().Get("where"))
		writeJSON(w, `{"objectIdFieldName": "OBJECTID", "objectIds": [3, 1, 2]}`)
	}))
	defer srv.Close()

	rc := NewRegionClient(testClient(srv.URL, observability.NewMetricsForTesting()))
	ids, err := rc.RegionIDs(context.Background(), "sn_l='01'")

	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, ids)
}

func TestStationClient_NormalizesAttributeNames(t *testing.T) {
	// "Längengrad" arrives decomposed: "a" followed by a combining diaeresis.
	body := "{\"features\": [" +
		"{\"attributes\": {\"OBJECTID\": 5, \"La\u0308ngengrad\": 10.1, \"Breitengrad\": 54.3, \"Straße\": \"Holstenstraße\", \"Postleitzahl\": 24103}, \"geometry\": {\"x\": 10.1, \"y\": 54.3}}," +
		"{\"attributes\": {\"Betreiber\": \"no id\"}}," +
		"{\"attributes\": {\"OBJECTID\": 6}, \"geometry\": {\"x\": 10.15, \"y\": 54.31}}" +
		"]}"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10,54.2,10.2,54.4", r.URL.Query().Get("geometry"))
		writeJSON(w, body)
	}))
	defer srv.Close()

	sc := NewStationClient(testClient(srv.URL, observability.NewMetricsForTesting()), discardLogger())
	stations, err := sc.StationsInEnvelope(context.Background(), domain.Envelope{XMin: 10, YMin: 54.2, XMax: 10.2, YMax: 54.4})

	require.NoError(t, err)
	require.Len(t, stations, 2)

	first := stations[0]
	require.NotNil(t, first.Laengengrad)
	assert.InDelta(t, 10.1, float64(*first.Laengengrad), 1e-12)
	require.NotNil(t, first.Strasse)
	assert.Equal(t, "Holstenstraße", *first.Strasse)
	require.NotNil(t, first.Postleitzahl)
	assert.Equal(t, "24103", string(*first.Postleitzahl))
	require.NotNil(t, first.Location)

	second := stations[1]
	p, ok := second.Coordinates()
	require.True(t, ok)
	assert.Equal(t, domain.Point{X: 10.15, Y: 54.31}, p)
}

func TestClient_ErrorPayloadIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, `{"error": {"code": 400, "message": "Invalid query parameters", "details": ["'where' parameter is invalid"]}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, observability.NewMetricsForTesting()).Query(context.Background(), Query{Where: "bogus"})

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 400, fe.StatusCode)
	assert.Equal(t, "regions", fe.Source)
	assert.Contains(t, fe.Error(), "'where' parameter is invalid")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ErrorPayloadWithoutOrServerCodeIsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"no code", `{"error": {"message": "Unable to complete operation."}}`, 0},
		{"server code", `{"error": {"code": 500, "message": "Unable to complete operation."}}`, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				writeJSON(w, tt.body)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL, observability.NewMetricsForTesting()).Query(context.Background(), Query{})

			var fe *domain.FetchError
			require.ErrorAs(t, err, &fe)
			assert.True(t, fe.Payload)
			assert.False(t, fe.Temporary())
			assert.Equal(t, tt.code, fe.StatusCode)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, regionResponse)
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	features, err := testClient(srv.URL, metrics).Query(context.Background(), Query{})

	require.NoError(t, err)
	assert.Len(t, features, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.APIRequests.WithLabelValues("regions", "error")))
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, observability.NewMetricsForTesting()).Query(context.Background(), Query{})

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"features": [`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, observability.NewMetricsForTesting()).Query(context.Background(), Query{})

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testClient(url, observability.NewMetricsForTesting()).Query(context.Background(), Query{})

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
}

func TestClient_FollowsTransferLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("resultOffset")
		mu.Lock()
		offsets = append(offsets, offset)
		mu.Unlock()
		if offset == "" {
			writeJSON(w, `{"exceededTransferLimit": true, "features": [{"attributes": {"OBJECTID": 1}}, {"attributes": {"OBJECTID": 2}}]}`)
			return
		}
		writeJSON(w, `{"features": [{"attributes": {"OBJECTID": 3}}]}`)
	}))
	defer srv.Close()

	features, err := testClient(srv.URL, observability.NewMetricsForTesting()).Query(context.Background(), Query{})

	require.NoError(t, err)
	assert.Len(t, features, 3)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "2"}, offsets)
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL, observability.NewMetricsForTesting()).Query(ctx, Query{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), fmt.Sprintf("unexpected error: %v", err))
}
