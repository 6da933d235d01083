package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventTypeRegionLoaded identifies RegionLoaded messages on the event topic.
const EventTypeRegionLoaded = "kreis_loaded"

// RegionLoaded summarises one processed region.
type RegionLoaded struct {
	RunID     string    `json:"run_id"`
	KreisID   int64     `json:"kreis_id"`
	Name      string    `json:"name,omitempty"`
	Envelope  *Envelope `json:"envelope,omitempty"`
	Fetched   int       `json:"stations_fetched"`
	Kept      int       `json:"stations_kept"`
	Persisted int       `json:"stations_persisted"`
	Stations  int64     `json:"stations"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// OutputEvent is the serialized form destined for the event topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Serialize encodes the event keyed by KREISID.
func (e RegionLoaded) Serialize() (OutputEvent, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("marshal region event: %w", err)
	}
	return OutputEvent{
		Key:   []byte(strconv.FormatInt(e.KreisID, 10)),
		Value: value,
		Headers: map[string]string{
			"event_type": EventTypeRegionLoaded,
			"loaded_at":  e.LoadedAt.Format(time.RFC3339),
		},
	}, nil
}
