package store

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// Column describes one table column. Type is a SQL type expression.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Reference declares that Column of a table refers to ReferenceColumn of Table.
type Reference struct {
	Column          string `yaml:"column"`
	Table           string `yaml:"table"`
	ReferenceColumn string `yaml:"reference_column"`
}

// Table describes one relation. Derived columns are added after creation by
// AddColumnIfAbsent and hold values computed by the pipeline.
type Table struct {
	Name      string     `yaml:"name"`
	Key       string     `yaml:"key"`
	Columns   []Column   `yaml:"columns"`
	Derived   []Column   `yaml:"derived,omitempty"`
	Reference *Reference `yaml:"reference,omitempty"`
}

// Schema is the descriptor of the three persisted tables.
type Schema struct {
	Regions  Table `yaml:"regions"`
	Geometry Table `yaml:"geometry"`
	Stations Table `yaml:"stations"`
}

var (
	identifierPattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)
	typePattern       = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 (),]*$`)
)

// Tables returns the tables in creation order: parents before children.
func (s Schema) Tables() []Table {
	return []Table{s.Regions, s.Geometry, s.Stations}
}

// Table looks up a table descriptor by name.
func (s Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Validate checks names, types, keys and references.
func (s Schema) Validate() error {
	names := make(map[string]bool)
	for _, t := range s.Tables() {
		if err := t.validate(); err != nil {
			return err
		}
		if names[t.Name] {
			return fmt.Errorf("%w: duplicate table %q", domain.ErrSchema, t.Name)
		}
		names[t.Name] = true
	}
	for _, t := range s.Tables() {
		if t.Reference == nil {
			continue
		}
		parent, ok := s.Table(t.Reference.Table)
		if !ok {
			return fmt.Errorf("%w: table %q references unknown table %q", domain.ErrSchema, t.Name, t.Reference.Table)
		}
		if !parent.HasColumn(t.Reference.ReferenceColumn) {
			return fmt.Errorf("%w: table %q references unknown column %s.%s",
				domain.ErrSchema, t.Name, parent.Name, t.Reference.ReferenceColumn)
		}
	}
	return nil
}

func (t Table) validate() error {
	if !identifierPattern.MatchString(t.Name) {
		return fmt.Errorf("%w: invalid table name %q", domain.ErrSchema, t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: table %q has no columns", domain.ErrSchema, t.Name)
	}
	seen := make(map[string]bool)
	for _, c := range append(append([]Column{}, t.Columns...), t.Derived...) {
		if !identifierPattern.MatchString(c.Name) {
			return fmt.Errorf("%w: invalid column name %q in %q", domain.ErrSchema, c.Name, t.Name)
		}
		if !typePattern.MatchString(c.Type) {
			return fmt.Errorf("%w: invalid type %q for %s.%s", domain.ErrSchema, c.Type, t.Name, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %s.%s", domain.ErrSchema, t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	if !seen[t.Key] {
		return fmt.Errorf("%w: key %q is not a column of %q", domain.ErrSchema, t.Key, t.Name)
	}
	if t.Reference != nil && !seen[t.Reference.Column] {
		return fmt.Errorf("%w: reference column %q is not a column of %q", domain.ErrSchema, t.Reference.Column, t.Name)
	}
	return nil
}

// HasColumn reports whether name is a base or derived column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	for _, c := range t.Derived {
		if c.Name == name {
			return true
		}
	}
	return false
}

// DefaultSchema returns the built-in district, geometry and station tables.
func DefaultSchema() Schema {
	return Schema{
		Regions: Table{
			Name: "kreis_table",
			Key:  domain.ColKreisID,
			Columns: []Column{
				{domain.ColKreisID, "BIGINT NOT NULL"},
				{"ags", "TEXT"},
				{"gen", "TEXT"},
				{"bez", "TEXT"},
				{"ibz", "BIGINT"},
				{"bem", "TEXT"},
				{"sn_l", "TEXT"},
				{"sn_r", "TEXT"},
				{"sn_k", "TEXT"},
				{"sn_v1", "TEXT"},
				{"sn_v2", "TEXT"},
				{"sn_g", "TEXT"},
				{"fk_s3", "TEXT"},
				{"nuts", "TEXT"},
				{"wsk", "TEXT"},
				{"ewz", "BIGINT"},
				{"kfl", "DOUBLE PRECISION"},
				{"Shape__Area", "DOUBLE PRECISION"},
				{"Shape__Length", "DOUBLE PRECISION"},
			},
			Derived: []Column{
				{domain.ColEnvelope, "TEXT"},
				{domain.ColStations, "BIGINT"},
			},
		},
		Geometry: Table{
			Name: "geometry",
			Key:  domain.ColKreisID,
			Columns: []Column{
				{domain.ColKreisID, "BIGINT NOT NULL"},
				{domain.ColGeoData, "BYTEA"},
			},
			Reference: &Reference{Column: domain.ColKreisID, Table: "kreis_table", ReferenceColumn: domain.ColKreisID},
		},
		Stations: Table{
			Name: "stations",
			Key:  domain.ColObjectID,
			Columns: []Column{
				{domain.ColObjectID, "BIGINT NOT NULL"},
				{domain.ColKreisID, "BIGINT"},
				{"Betreiber", "TEXT"},
				{"Straße", "TEXT"},
				{"Hausnummer", "TEXT"},
				{"Adresszusatz", "TEXT"},
				{"Postleitzahl", "TEXT"},
				{"Ort", "TEXT"},
				{"Bundesland", "TEXT"},
				{"Kreis_kreisfreie_Stadt", "TEXT"},
				{"Breitengrad", "DOUBLE PRECISION"},
				{"Längengrad", "DOUBLE PRECISION"},
				{"Inbetriebnahmedatum", "TEXT"},
				{"Anschlussleistung", "DOUBLE PRECISION"},
				{"Art_der_Ladeeinrichung", "TEXT"},
				{"Anzahl_Ladepunkte", "BIGINT"},
				{"Steckertypen1", "TEXT"},
				{"P1__kW_", "DOUBLE PRECISION"},
				{"Public_Key1", "TEXT"},
				{"Steckertypen2", "TEXT"},
				{"P2__kW_", "DOUBLE PRECISION"},
				{"Public_Key2", "TEXT"},
				{"Steckertypen3", "TEXT"},
				{"P3__kW_", "DOUBLE PRECISION"},
				{"Public_Key3", "TEXT"},
				{"Steckertypen4", "TEXT"},
				{"P4__kW_", "DOUBLE PRECISION"},
				{"Public_Key4", "TEXT"},
			},
			Reference: &Reference{Column: domain.ColKreisID, Table: "kreis_table", ReferenceColumn: domain.ColKreisID},
		},
	}
}

// LoadSchemaFile reads a YAML schema descriptor and validates it.
func LoadSchemaFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("%w: parse %s: %v", domain.ErrSchema, path, err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}
