package geojson

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knifflig/ChargeApp/internal/store"
)

// RecordReader reads the persisted district and geometry rows.
type RecordReader interface {
	FetchRegions(ctx context.Context, kreisIDs []int64, where ...store.Condition) ([]store.Record, error)
	FetchGeometries(ctx context.Context, kreisIDs []int64) ([]store.Record, error)
}

// Builder produces the scored district collection from the store.
type Builder struct {
	reader RecordReader
	opts   OpacityOptions
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(reader RecordReader, opts OpacityOptions, logger *slog.Logger) *Builder {
	return &Builder{reader: reader, opts: opts, logger: logger}
}

// Build reads the given districts (all when kreisIDs is nil), assembles them
// and applies FilterAndScore and NormalizeOpacity.
func (b *Builder) Build(ctx context.Context, kreisIDs []int64) (FeatureCollection, error) {
	regions, err := b.reader.FetchRegions(ctx, kreisIDs)
	if err != nil {
		return FeatureCollection{}, fmt.Errorf("read regions: %w", err)
	}
	geometries, err := b.reader.FetchGeometries(ctx, kreisIDs)
	if err != nil {
		return FeatureCollection{}, fmt.Errorf("read geometries: %w", err)
	}

	fc, err := Assemble(regions, geometries)
	if err != nil {
		b.logger.Warn("skipped undecodable geometries", "error", err)
	}
	scored := FilterAndScore(fc)
	b.logger.Debug("collection assembled",
		"regions", len(regions), "features", len(fc.Features), "scored", len(scored.Features))
	return NormalizeOpacity(scored, b.opts), nil
}
