package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/knifflig/ChargeApp/internal/adapter/http"
	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/geojson"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockBuilder struct {
	fc    geojson.FeatureCollection
	err   error
	calls [][]int64
}

func (m *mockBuilder) Build(_ context.Context, ids []int64) (geojson.FeatureCollection, error) {
	m.calls = append(m.calls, ids)
	return m.fc, m.err
}

func newTestServer(readyErr error, builder *mockBuilder) *httpadapter.Server {
	if builder == nil {
		builder = &mockBuilder{}
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, builder, httpadapter.Options{}, slog.Default())
}

func get(srv http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(newTestServer(fmt.Errorf("database unreachable"), nil), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "database unreachable", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("default registry", func(t *testing.T) {
		rec := get(newTestServer(nil, nil), "/metrics")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})

	t.Run("custom gatherer", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: "chargeapp_test_total", Help: "test"})
		reg.MustRegister(c)
		c.Inc()
		srv := httpadapter.NewServer(":0", &mockReadiness{}, &mockBuilder{}, httpadapter.Options{Gatherer: reg}, slog.Default())

		rec := get(srv, "/metrics")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "chargeapp_test_total 1")
		assert.NotContains(t, rec.Body.String(), "go_goroutines")
	})
}

func TestCollectionEndpoint(t *testing.T) {
	fc := geojson.NewCollection([]geojson.Feature{{
		Type:       "Feature",
		Properties: map[string]any{"KREISID": 1, "gen": "Flensburg"},
		Geometry: &geojson.Geometry{Type: "Polygon", Coordinates: []domain.Ring{
			{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}},
		}},
	}})

	t.Run("all districts", func(t *testing.T) {
		b := &mockBuilder{fc: fc}
		rec := get(newTestServer(nil, b), "/kreise.geojson")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
		require.Len(t, b.calls, 1)
		assert.Nil(t, b.calls[0])

		back, err := geojson.Import(rec.Body.Bytes())
		require.NoError(t, err)
		require.Len(t, back.Features, 1)
		assert.Equal(t, "Flensburg", back.Features[0].Properties["gen"])
	})

	t.Run("selected districts", func(t *testing.T) {
		b := &mockBuilder{fc: fc}
		rec := get(newTestServer(nil, b), "/kreise.geojson?kreis=3,5")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, [][]int64{{3, 5}}, b.calls)
	})

	t.Run("bad selection", func(t *testing.T) {
		b := &mockBuilder{fc: fc}
		rec := get(newTestServer(nil, b), "/kreise.geojson?kreis=abc")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, b.calls)
	})

	t.Run("builder failure", func(t *testing.T) {
		rec := get(newTestServer(nil, &mockBuilder{err: errors.New("connection reset")}), "/kreise.geojson")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})

	t.Run("cors preflight", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/kreise.geojson", nil)
		req.Header.Set("Origin", "https://map.example.org")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)

		newTestServer(nil, &mockBuilder{fc: fc}).ServeHTTP(rec, req)

		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)
	})
}
