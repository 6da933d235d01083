// Package parquet exports persisted charging stations to Parquet files for
// analysis tools.
package parquet

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// stationRow is the on-disk layout of one station.
type stationRow struct {
	ObjectID     int64    `parquet:"name=object_id, type=INT64"`
	KreisID      int64    `parquet:"name=kreis_id, type=INT64"`
	Betreiber    *string  `parquet:"name=betreiber, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Strasse      *string  `parquet:"name=strasse, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Hausnummer   *string  `parquet:"name=hausnummer, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Postleitzahl *string  `parquet:"name=postleitzahl, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Ort          *string  `parquet:"name=ort, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL"`
	Bundesland   *string  `parquet:"name=bundesland, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL"`
	Breitengrad  *float64 `parquet:"name=breitengrad, type=DOUBLE, repetitiontype=OPTIONAL"`
	Laengengrad  *float64 `parquet:"name=laengengrad, type=DOUBLE, repetitiontype=OPTIONAL"`
	Inbetrieb    *string  `parquet:"name=inbetriebnahmedatum, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Leistung     *float64 `parquet:"name=anschlussleistung, type=DOUBLE, repetitiontype=OPTIONAL"`
	Art          *string  `parquet:"name=art_der_ladeeinrichtung, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL"`
	Ladepunkte   *int64   `parquet:"name=anzahl_ladepunkte, type=INT64, repetitiontype=OPTIONAL"`
}

func toRow(s domain.Station) stationRow {
	return stationRow{
		ObjectID:     s.ObjectID,
		KreisID:      s.KreisID,
		Betreiber:    s.Betreiber,
		Strasse:      s.Strasse,
		Hausnummer:   text(s.Hausnummer),
		Postleitzahl: text(s.Postleitzahl),
		Ort:          s.Ort,
		Bundesland:   s.Bundesland,
		Breitengrad:  float(s.Breitengrad),
		Laengengrad:  float(s.Laengengrad),
		Inbetrieb:    text(s.Inbetriebnahmedatum),
		Leistung:     float(s.Anschlussleistung),
		Art:          s.ArtDerLadeeinrichtung,
		Ladepunkte:   s.AnzahlLadepunkte,
	}
}

func text(v *domain.FlexText) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func float(v *domain.FlexFloat) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

// WriteStations writes stations to a Snappy-compressed Parquet file at path,
// replacing any existing file.
func WriteStations(path string, stations []domain.Station) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := fw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, new(stationRow), 1)
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, s := range stations {
		if err := pw.Write(toRow(s)); err != nil {
			return fmt.Errorf("write station %d: %w", s.ObjectID, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish %s: %w", path, err)
	}
	return nil
}
