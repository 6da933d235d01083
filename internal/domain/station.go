package domain

import (
	"fmt"
	"strconv"
)

// Station is one charging station from the station layer. KreisID is zero
// until the station has been assigned to a region.
type Station struct {
	ObjectID              int64      `json:"OBJECTID"`
	KreisID               int64      `json:"-"`
	Betreiber             *string    `json:"Betreiber"`
	Strasse               *string    `json:"Straße"`
	Hausnummer            *FlexText  `json:"Hausnummer"`
	Adresszusatz          *FlexText  `json:"Adresszusatz"`
	Postleitzahl          *FlexText  `json:"Postleitzahl"`
	Ort                   *string    `json:"Ort"`
	Bundesland            *string    `json:"Bundesland"`
	Kreis                 *string    `json:"Kreis_kreisfreie_Stadt"`
	Breitengrad           *FlexFloat `json:"Breitengrad"`
	Laengengrad           *FlexFloat `json:"Längengrad"`
	Inbetriebnahmedatum   *FlexText  `json:"Inbetriebnahmedatum"`
	Anschlussleistung     *FlexFloat `json:"Anschlussleistung"`
	ArtDerLadeeinrichtung *string    `json:"Art_der_Ladeeinrichung"`
	AnzahlLadepunkte      *int64     `json:"Anzahl_Ladepunkte"`
	Steckertypen1         *string    `json:"Steckertypen1"`
	P1KW                  *FlexFloat `json:"P1__kW_"`
	PublicKey1            *FlexText  `json:"Public_Key1"`
	Steckertypen2         *string    `json:"Steckertypen2"`
	P2KW                  *FlexFloat `json:"P2__kW_"`
	PublicKey2            *FlexText  `json:"Public_Key2"`
	Steckertypen3         *string    `json:"Steckertypen3"`
	P3KW                  *FlexFloat `json:"P3__kW_"`
	PublicKey3            *FlexText  `json:"Public_Key3"`
	Steckertypen4         *string    `json:"Steckertypen4"`
	P4KW                  *FlexFloat `json:"P4__kW_"`
	PublicKey4            *FlexText  `json:"Public_Key4"`

	// Location is the feature geometry, kept aside from the attributes.
	Location *Point `json:"-"`
}

// Coordinates returns the station position. The latitude and longitude
// attributes take precedence over the feature geometry.
func (s Station) Coordinates() (Point, bool) {
	if s.Laengengrad != nil && s.Breitengrad != nil {
		return Point{X: float64(*s.Laengengrad), Y: float64(*s.Breitengrad)}, true
	}
	if s.Location != nil {
		return *s.Location, true
	}
	return Point{}, false
}

// Record flattens the station into a column map. Nil attributes are omitted;
// KREISID is included once the station has been assigned.
func (s Station) Record() map[string]any {
	rec := map[string]any{ColObjectID: s.ObjectID}
	if s.KreisID != 0 {
		rec[ColKreisID] = s.KreisID
	}
	putString(rec, "Betreiber", s.Betreiber)
	putString(rec, "Straße", s.Strasse)
	putText(rec, "Hausnummer", s.Hausnummer)
	putText(rec, "Adresszusatz", s.Adresszusatz)
	putText(rec, "Postleitzahl", s.Postleitzahl)
	putString(rec, "Ort", s.Ort)
	putString(rec, "Bundesland", s.Bundesland)
	putString(rec, "Kreis_kreisfreie_Stadt", s.Kreis)
	putFlexFloat(rec, "Breitengrad", s.Breitengrad)
	putFlexFloat(rec, "Längengrad", s.Laengengrad)
	putText(rec, "Inbetriebnahmedatum", s.Inbetriebnahmedatum)
	putFlexFloat(rec, "Anschlussleistung", s.Anschlussleistung)
	putString(rec, "Art_der_Ladeeinrichung", s.ArtDerLadeeinrichtung)
	putInt(rec, "Anzahl_Ladepunkte", s.AnzahlLadepunkte)
	putString(rec, "Steckertypen1", s.Steckertypen1)
	putFlexFloat(rec, "P1__kW_", s.P1KW)
	putText(rec, "Public_Key1", s.PublicKey1)
	putString(rec, "Steckertypen2", s.Steckertypen2)
	putFlexFloat(rec, "P2__kW_", s.P2KW)
	putText(rec, "Public_Key2", s.PublicKey2)
	putString(rec, "Steckertypen3", s.Steckertypen3)
	putFlexFloat(rec, "P3__kW_", s.P3KW)
	putText(rec, "Public_Key3", s.PublicKey3)
	putString(rec, "Steckertypen4", s.Steckertypen4)
	putFlexFloat(rec, "P4__kW_", s.P4KW)
	putText(rec, "Public_Key4", s.PublicKey4)
	return rec
}

func putFlexFloat(rec map[string]any, col string, v *FlexFloat) {
	if v != nil {
		rec[col] = float64(*v)
	}
}

// StationFromRecord rebuilds a station from a persisted column map. Only the
// columns used by exports are restored.
func StationFromRecord(rec map[string]any) (Station, error) {
	id, ok := asInt64(rec[ColObjectID])
	if !ok {
		return Station{}, fmt.Errorf("station record: missing %s", ColObjectID)
	}
	s := Station{ObjectID: id}
	if k, ok := asInt64(rec[ColKreisID]); ok {
		s.KreisID = k
	}
	s.Betreiber = stringField(rec["Betreiber"])
	s.Strasse = stringField(rec["Straße"])
	s.Hausnummer = textField(rec["Hausnummer"])
	s.Postleitzahl = textField(rec["Postleitzahl"])
	s.Ort = stringField(rec["Ort"])
	s.Bundesland = stringField(rec["Bundesland"])
	s.Kreis = stringField(rec["Kreis_kreisfreie_Stadt"])
	s.Breitengrad = floatField(rec["Breitengrad"])
	s.Laengengrad = floatField(rec["Längengrad"])
	s.Inbetriebnahmedatum = textField(rec["Inbetriebnahmedatum"])
	s.Anschlussleistung = floatField(rec["Anschlussleistung"])
	s.ArtDerLadeeinrichtung = stringField(rec["Art_der_Ladeeinrichung"])
	if n, ok := asInt64(rec["Anzahl_Ladepunkte"]); ok {
		s.AnzahlLadepunkte = &n
	}
	return s, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func stringField(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func textField(v any) *FlexText {
	switch t := v.(type) {
	case string:
		f := FlexText(t)
		return &f
	case int64:
		f := FlexText(strconv.FormatInt(t, 10))
		return &f
	default:
		return nil
	}
}

func floatField(v any) *FlexFloat {
	switch n := v.(type) {
	case float64:
		f := FlexFloat(n)
		return &f
	case float32:
		f := FlexFloat(n)
		return &f
	case int64:
		f := FlexFloat(n)
		return &f
	default:
		return nil
	}
}
