package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// StationQuery selects stations by object id, envelope or where clause.
type StationQuery struct {
	ObjectIDs []int64
	Envelope  *domain.Envelope
	Where     string
}

// StationClient reads charging stations.
type StationClient struct {
	q      Querier
	logger *slog.Logger
}

// NewStationClient creates a station reader over q.
func NewStationClient(q Querier, logger *slog.Logger) *StationClient {
	return &StationClient{q: q, logger: logger}
}

// Stations returns the stations matching sq. Features that fail to decode are
// logged and skipped.
func (c *StationClient) Stations(ctx context.Context, sq StationQuery) ([]domain.Station, error) {
	features, err := c.q.Query(ctx, Query{
		Where:          sq.Where,
		ObjectIDs:      sq.ObjectIDs,
		Envelope:       sq.Envelope,
		ReturnGeometry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch stations: %w", err)
	}

	stations := make([]domain.Station, 0, len(features))
	for _, f := range features {
		s, err := decodeStation(f)
		if err != nil {
			c.logger.Warn("skipping undecodable station", "error", err)
			continue
		}
		stations = append(stations, s)
	}
	return stations, nil
}

// StationsInEnvelope returns the stations the server places inside env.
func (c *StationClient) StationsInEnvelope(ctx context.Context, env domain.Envelope) ([]domain.Station, error) {
	return c.Stations(ctx, StationQuery{Envelope: &env})
}

type pointGeometry struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func decodeStation(f Feature) (domain.Station, error) {
	var s domain.Station
	if err := json.Unmarshal(f.Attributes, &s); err != nil {
		return domain.Station{}, fmt.Errorf("decode station attributes: %w", err)
	}
	if s.ObjectID == 0 {
		return domain.Station{}, fmt.Errorf("decode station attributes: missing OBJECTID")
	}
	if hasGeometry(f.Geometry) {
		var g pointGeometry
		if err := json.Unmarshal(f.Geometry, &g); err != nil {
			return domain.Station{}, fmt.Errorf("decode station %d geometry: %w", s.ObjectID, err)
		}
		if g.X != nil && g.Y != nil {
			s.Location = &domain.Point{X: *g.X, Y: *g.Y}
		}
	}
	return s, nil
}
