// Package domain models German administrative districts (Kreise) and the
// public EV charging stations located inside them.
//
// # Data Sources
//
// Both datasets come from ArcGIS FeatureServer layers published by the
// Bundesamt für Kartographie und Geodäsie and the Bundesnetzagentur:
//
//	KRS_ew_20                     district polygons with population figures
//	Ladesaeulen_in_Deutschland    charging stations with operator and connector data
//
// Each feature arrives as {"attributes": {...}, "geometry": {...}}. District
// geometry is a polygon in ArcGIS ring form ({"rings": [[[x, y], ...]]}),
// station geometry is a point ({"x": lon, "y": lat}). Coordinates are WGS84
// (EPSG:4326) with x = longitude and y = latitude.
//
// # Identity
//
// The district layer keys features by OBJECTID. The pipeline rewrites that
// value into KREISID, which is the primary key of the district table and the
// foreign key carried by geometry and station rows. Stations keep their
// upstream OBJECTID as primary key.
//
// # Attribute Conventions
//
// Upstream attribute names are German and may contain umlauts and ß
// ("Straße", "Längengrad"). They are NFC-normalised before decoding so that
// composed and decomposed spellings map to the same field.
//
// Several station attributes drift between string and number types across
// layer revisions (postcodes, commissioning dates, public keys). These are
// decoded as [FlexText] and persisted as text.
//
// All attributes are optional. A missing attribute is a nil pointer and is
// omitted from the persisted record, so it never overwrites a stored value.
//
// # Envelope Text Form
//
// The derived envelope column is persisted as "{xmin, ymin, xmax, ymax}",
// see [Envelope.String]. The FeatureServer geometry parameter uses the bare
// "xmin,ymin,xmax,ymax" form, see [Envelope.ArcGIS].
package domain
