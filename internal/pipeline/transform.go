package pipeline

import (
	"log/slog"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/geometry"
)

// JoinResult is the outcome of assigning candidate stations to one region.
type JoinResult struct {
	Kept []domain.Station
	// Outside counts candidates rejected by the exact polygon test.
	Outside int
	// NoCoordinates counts candidates without a usable position.
	NoCoordinates int
	// Claimed counts candidates already assigned to an earlier region.
	Claimed int
}

// SpatialJoiner assigns stations to the region whose polygon contains them.
// A station is assigned to the first region that claims it during a run.
type SpatialJoiner struct {
	assigned map[int64]int64 // station OBJECTID -> KREISID
	logger   *slog.Logger
}

// NewSpatialJoiner creates a joiner with an empty assignment set.
func NewSpatialJoiner(logger *slog.Logger) *SpatialJoiner {
	return &SpatialJoiner{
		assigned: make(map[int64]int64),
		logger:   logger,
	}
}

// Join keeps the candidates inside the first ring of region's geometry and
// tags them with its KREISID. env must be the envelope of that geometry.
func (j *SpatialJoiner) Join(region domain.Region, env domain.Envelope, candidates []domain.Station) JoinResult {
	var res JoinResult
	if region.Geometry == nil {
		return res
	}
	seen := make(map[int64]bool, len(candidates))
	for _, s := range candidates {
		if seen[s.ObjectID] {
			continue
		}
		seen[s.ObjectID] = true

		p, ok := s.Coordinates()
		if !ok {
			res.NoCoordinates++
			continue
		}
		if !geometry.Contains(env, p) || !geometry.PointInPolygon(p, region.Geometry.Rings) {
			res.Outside++
			continue
		}
		if owner, ok := j.assigned[s.ObjectID]; ok && owner != region.KreisID {
			j.logger.Debug("station already assigned",
				"object_id", s.ObjectID, "kreis_id", region.KreisID, "assigned_to", owner)
			res.Claimed++
			continue
		}
		j.assigned[s.ObjectID] = region.KreisID
		s.KreisID = region.KreisID
		res.Kept = append(res.Kept, s)
	}
	return res
}
