package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/store"
)

// StoreLoader is the Sink that writes batches to the relational store.
type StoreLoader struct {
	store  *store.Store
	logger *slog.Logger
}

// NewStoreLoader creates a loader over st.
func NewStoreLoader(st *store.Store, logger *slog.Logger) *StoreLoader {
	return &StoreLoader{store: st, logger: logger}
}

// Prepare provisions the tables and derived columns.
func (l *StoreLoader) Prepare(ctx context.Context) error {
	return l.store.Provision(ctx)
}

// Load writes the region row, its geometry and envelope, the kept stations and
// finally the recounted station total. Only a failure to write the region row
// is returned as an error; later failures are collected in the result.
func (l *StoreLoader) Load(ctx context.Context, b Batch) (LoadResult, error) {
	schema := l.store.Schema()
	regions, geometries, stations := schema.Regions, schema.Geometry, schema.Stations
	kreisID := b.Region.KreisID
	var res LoadResult

	if _, err := l.store.UpsertOne(ctx, regions.Name, regions.Key, b.Region.Record(),
		store.UpsertOptions{Strict: true}); err != nil {
		return res, fmt.Errorf("upsert region %d: %w", kreisID, err)
	}

	if b.Region.Geometry != nil {
		blob, err := json.Marshal(b.Region.Geometry)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("encode geometry of %d: %w", kreisID, err))
		} else if _, err := l.store.UpsertOne(ctx, geometries.Name, geometries.Key,
			store.Record{domain.ColGeoData: blob},
			store.UpsertOptions{KeyValue: kreisID, Reference: geometries.Reference}); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("upsert geometry of %d: %w", kreisID, err))
		}
	}

	if b.Envelope != nil {
		if _, err := l.store.UpsertOne(ctx, regions.Name, regions.Key,
			store.Record{domain.ColEnvelope: b.Envelope.String()},
			store.UpsertOptions{KeyValue: kreisID}); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("store envelope of %d: %w", kreisID, err))
		}
	}

	if len(b.Stations) > 0 {
		records := make([]store.Record, len(b.Stations))
		for i, s := range b.Stations {
			records[i] = s.Record()
		}
		up := l.store.Upsert(ctx, stations.Name, stations.Key,
			store.UpsertOptions{Reference: stations.Reference}, records...)
		res.StationsPersisted = up.Written()
		for _, e := range up.Errors {
			res.Errors = append(res.Errors, e)
		}
	}

	n, err := l.store.Count(ctx, stations.Name, domain.ColKreisID, kreisID)
	if err != nil {
		res.Errors = append(res.Errors, err)
		return res, nil
	}
	res.StationCount = n
	if _, err := l.store.UpsertOne(ctx, regions.Name, regions.Key,
		store.Record{domain.ColStations: n},
		store.UpsertOptions{KeyValue: kreisID}); err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("store station count of %d: %w", kreisID, err))
	}
	l.logger.Debug("batch stored", "kreis_id", kreisID, "stations", n, "record_errors", len(res.Errors))
	return res, nil
}
