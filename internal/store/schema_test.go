package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knifflig/ChargeApp/internal/domain"
)

func TestDefaultSchemaValid(t *testing.T) {
	s := DefaultSchema()
	require.NoError(t, s.Validate())

	assert.Equal(t, []string{"kreis_table", "geometry", "stations"},
		[]string{s.Tables()[0].Name, s.Tables()[1].Name, s.Tables()[2].Name})
	assert.True(t, s.Regions.HasColumn(domain.ColEnvelope))
	assert.True(t, s.Stations.HasColumn("Längengrad"))

	tbl, ok := s.Table("stations")
	require.True(t, ok)
	assert.Equal(t, domain.ColObjectID, tbl.Key)
	_, ok = s.Table("nope")
	assert.False(t, ok)
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Schema)
	}{
		{"bad table name", func(s *Schema) { s.Stations.Name = "stations; DROP" }},
		{"bad column type", func(s *Schema) { s.Regions.Columns[1].Type = "TEXT; --" }},
		{"key not a column", func(s *Schema) { s.Stations.Key = "id" }},
		{"duplicate column", func(s *Schema) { s.Geometry.Columns = append(s.Geometry.Columns, Column{Name: "GeoData", Type: "BYTEA"}) }},
		{"unknown parent", func(s *Schema) { s.Geometry.Reference = &Reference{Column: "KREISID", Table: "x", ReferenceColumn: "KREISID"} }},
		{"duplicate table", func(s *Schema) { s.Stations.Name = "geometry" }},
		{"no columns", func(s *Schema) { s.Geometry.Columns = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSchema()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), domain.ErrSchema)
		})
	}
}

func TestLoadSchemaFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "schema.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
regions:
  name: kreise
  key: KREISID
  columns:
    - {name: KREISID, type: BIGINT NOT NULL}
    - {name: gen, type: TEXT}
    - {name: ewz, type: BIGINT}
  derived:
    - {name: envelope, type: TEXT}
    - {name: stations, type: BIGINT}
geometry:
  name: kreis_geometry
  key: KREISID
  columns:
    - {name: KREISID, type: BIGINT NOT NULL}
    - {name: GeoData, type: BYTEA}
  reference: {column: KREISID, table: kreise, reference_column: KREISID}
stations:
  name: ladesaeulen
  key: OBJECTID
  columns:
    - {name: OBJECTID, type: BIGINT NOT NULL}
    - {name: KREISID, type: BIGINT}
    - {name: Straße, type: TEXT}
  reference: {column: KREISID, table: kreise, reference_column: KREISID}
`), 0o600))

		s, err := LoadSchemaFile(path)
		require.NoError(t, err)
		assert.Equal(t, "kreise", s.Regions.Name)
		assert.Len(t, s.Regions.Derived, 2)
		require.NotNil(t, s.Stations.Reference)
		assert.Equal(t, "kreise", s.Stations.Reference.Table)
		assert.True(t, s.Stations.HasColumn("Straße"))
	})

	t.Run("invalid reference", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
regions: {name: a, key: K, columns: [{name: K, type: BIGINT}]}
geometry: {name: b, key: K, columns: [{name: K, type: BIGINT}], reference: {column: K, table: zzz, reference_column: K}}
stations: {name: c, key: K, columns: [{name: K, type: BIGINT}]}
`), 0o600))
		_, err := LoadSchemaFile(path)
		assert.ErrorIs(t, err, domain.ErrSchema)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSchemaFile(filepath.Join(dir, "none.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("regions: [unclosed"), 0o600))
		_, err := LoadSchemaFile(path)
		assert.ErrorIs(t, err, domain.ErrSchema)
	})
}
