// Package pipeline runs the district/station spatial join: fetch each
// district, query stations inside its envelope, keep those inside its
// polygon and persist everything through a Sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/geometry"
	"github.com/knifflig/ChargeApp/internal/observability"
)

// RegionSource lists and fetches districts.
type RegionSource interface {
	RegionIDs(ctx context.Context, where string) ([]int64, error)
	Region(ctx context.Context, objectID int64) (domain.Region, error)
}

// StationSource returns the stations inside an envelope.
type StationSource interface {
	StationsInEnvelope(ctx context.Context, env domain.Envelope) ([]domain.Station, error)
}

// Batch is everything persisted for one region.
type Batch struct {
	Region   domain.Region
	Envelope *domain.Envelope
	Stations []domain.Station
}

// LoadResult reports what a Sink persisted for one batch.
type LoadResult struct {
	StationsPersisted int
	// StationCount is the number of stored stations for the region after the load.
	StationCount int64
	// Errors holds failures that did not prevent the region row from being written.
	Errors []error
}

// Sink persists batches.
type Sink interface {
	Prepare(ctx context.Context) error
	Load(ctx context.Context, b Batch) (LoadResult, error)
}

// Publisher announces processed regions.
type Publisher interface {
	Publish(ctx context.Context, ev domain.RegionLoaded) error
}

// Selection chooses the regions of a run. Explicit ids take precedence over Where.
type Selection struct {
	Where    string
	KreisIDs []int64
}

// RegionFailure records why one region could not be loaded.
type RegionFailure struct {
	KreisID int64
	Err     error
}

// Report summarises a run.
type Report struct {
	RunID             string
	Started           time.Time
	Finished          time.Time
	Regions           int
	Failed            int
	StationsFetched   int
	StationsKept      int
	StationsPersisted int
	StationsClaimed   int
	RecordErrors      int
	Failures          []RegionFailure
}

// Partial reports whether any region or record failed.
func (r Report) Partial() bool {
	return r.Failed > 0 || r.RecordErrors > 0
}

// Pipeline orchestrates the fetch-join-load loop.
type Pipeline struct {
	regions   RegionSource
	stations  StationSource
	sink      Sink
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(regions RegionSource, stations StationSource, sink Sink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		regions:  regions,
		stations: stations,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
	}
}

// WithPublisher sets the publisher that receives one event per loaded region.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// Prepare provisions the sink.
func (p *Pipeline) Prepare(ctx context.Context) error {
	if err := p.sink.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare sink: %w", err)
	}
	return nil
}

// Run processes the selected regions sequentially. A failing region is
// logged and recorded in the report; only a failed region listing or a
// cancelled context end the run early with an error.
func (p *Pipeline) Run(ctx context.Context, sel Selection) (report Report, err error) {
	report = Report{RunID: uuid.NewString(), Started: domain.Now()}
	logger := p.logger.With("run_id", report.RunID)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer func() {
		report.Finished = domain.Now()
		p.metrics.RunDuration.Observe(report.Finished.Sub(report.Started).Seconds())
	}()

	ids := sel.KreisIDs
	if len(ids) == 0 {
		ids, err = p.regions.RegionIDs(ctx, sel.Where)
		if err != nil {
			return report, fmt.Errorf("list regions: %w", err)
		}
	}
	logger.Info("run started", "regions", len(ids))

	joiner := NewSpatialJoiner(logger)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			logger.Info("run stopping", "reason", err)
			return report, err
		}
		if err := p.processRegion(ctx, logger, joiner, id, &report); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Warn("region failed, continuing", "kreis_id", id, "error", err)
			report.Failed++
			report.Failures = append(report.Failures, RegionFailure{KreisID: id, Err: err})
			p.metrics.RegionsFailed.Inc()
			continue
		}
		report.Regions++
		p.metrics.RegionsProcessed.Inc()
	}

	logger.Info("run finished",
		"regions", report.Regions,
		"failed", report.Failed,
		"stations_kept", report.StationsKept,
		"stations_persisted", report.StationsPersisted,
		"record_errors", report.RecordErrors,
	)
	return report, nil
}

func (p *Pipeline) processRegion(ctx context.Context, logger *slog.Logger, joiner *SpatialJoiner, objectID int64, report *Report) error {
	region, err := p.regions.Region(ctx, objectID)
	if err != nil {
		return err
	}
	region.KreisID = region.ObjectID
	logger = logger.With("kreis_id", region.KreisID, "name", region.Name())

	batch := Batch{Region: region}
	var fetched int

	var rings []domain.Ring
	if region.Geometry != nil {
		rings = region.Geometry.Rings
	}
	env, err := geometry.EnvelopeOf(rings)
	switch {
	case errors.Is(err, domain.ErrEmptyGeometry):
		logger.Warn("region has no geometry, skipping station assignment")
	case err != nil:
		return err
	default:
		batch.Envelope = &env
		candidates, err := p.stations.StationsInEnvelope(ctx, env)
		if err != nil {
			return fmt.Errorf("stations in envelope %s: %w", env, err)
		}
		fetched = len(candidates)
		joined := joiner.Join(region, env, candidates)
		batch.Stations = joined.Kept

		p.metrics.StationsFetched.Add(float64(fetched))
		p.metrics.StationsKept.Add(float64(len(joined.Kept)))
		p.metrics.StationsSkipped.Add(float64(joined.Claimed))
		report.StationsFetched += fetched
		report.StationsKept += len(joined.Kept)
		report.StationsClaimed += joined.Claimed
		logger.Debug("stations joined",
			"candidates", fetched, "kept", len(joined.Kept),
			"outside", joined.Outside, "no_coordinates", joined.NoCoordinates, "claimed", joined.Claimed)
	}

	res, err := p.sink.Load(ctx, batch)
	if err != nil {
		return err
	}
	report.StationsPersisted += res.StationsPersisted
	report.RecordErrors += len(res.Errors)
	for _, e := range res.Errors {
		logger.Warn("record not persisted", "error", e)
	}
	logger.Info("region loaded", "stations", res.StationCount, "persisted", res.StationsPersisted)

	p.publish(ctx, logger, domain.RegionLoaded{
		RunID:     report.RunID,
		KreisID:   region.KreisID,
		Name:      region.Name(),
		Envelope:  batch.Envelope,
		Fetched:   fetched,
		Kept:      len(batch.Stations),
		Persisted: res.StationsPersisted,
		Stations:  res.StationCount,
		LoadedAt:  domain.Now(),
	})
	return nil
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, ev domain.RegionLoaded) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("publish region event failed", "error", err)
		return
	}
	p.metrics.EventsPublished.Inc()
}
