package models

import (
	"time"
)

// RawMessage represents a raw payload received from the aisstream websocket.
// It is transient and discarded once decoded.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// StreamEnvelope is the typed shape of an aisstream.io message.
type StreamEnvelope struct {
	MessageType string        `json:"MessageType"`
	MetaData    StreamMeta    `json:"MetaData"`
	Message     StreamPayload `json:"Message"`
}

// StreamMeta carries vessel metadata attached to every feed message.
type StreamMeta struct {
	MMSI     int64   `json:"MMSI"`
	ShipType *int64  `json:"ShipType"`
	TimeUTC  *string `json:"time_utc"`
}

// StreamPayload wraps the per-type message body.
type StreamPayload struct {
	PositionReport *PositionReport `json:"PositionReport"`
}

// PositionReport is the navigational part of a position report message.
// Latitude and Longitude are pointers so that absent coordinates can be
// distinguished from 0.0.
type PositionReport struct {
	Latitude  *float64 `json:"Latitude"`
	Longitude *float64 `json:"Longitude"`
	Cog       *float64 `json:"Cog"`
	Sog       *float64 `json:"Sog"`
}

// VesselPosition is a validated vessel position record keyed by MMSI.
// Course and Speed are nil when the source value was absent or out of
// range. ObservedAt is the source observation time, falling back to the
// ingestion wall clock when the feed timestamp is missing or unparsable.
type VesselPosition struct {
	MMSI       int64     `json:"mmsi"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Course     *float64  `json:"course"`
	Speed      *float64  `json:"speed"`
	ShipType   *int64    `json:"ship_type"`
	Geohash    string    `json:"geohash"`
	Geohash5   string    `json:"geohash_5"`
	ObservedAt time.Time `json:"observed_at"`
}

// VesselBatch is a deduplicated set of vessel positions flushed together
// in one upsert transaction. Records hold at most one entry per MMSI.
type VesselBatch struct {
	BatchID     string           `json:"batch_id"`
	Records     []VesselPosition `json:"records"`
	RecordCount int              `json:"record_count"`
	FlushedAt   time.Time        `json:"flushed_at"`
	Reason      string           `json:"reason"`
}
