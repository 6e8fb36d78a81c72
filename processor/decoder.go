package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lordmallam/orca/geo"
	"github.com/lordmallam/orca/models"
)

// Rejection reasons returned by DecodePositionReport. Callers compare with
// errors.Is to decide which counter to bump; rejected messages are dropped,
// never retried.
var (
	ErrNotPositionReport   = errors.New("message is not a position report")
	ErrMissingPosition     = errors.New("position report payload missing")
	ErrInvalidMMSI         = errors.New("missing or non-positive mmsi")
	ErrLatitudeOutOfRange  = errors.New("latitude outside [-90, 90]")
	ErrLongitudeOutOfRange = errors.New("longitude outside [-180, 180]")
)

// metaTimeLayout matches the aisstream time_utc format, e.g.
// "2024-07-21 12:34:56.789012345 +0000 UTC".
const metaTimeLayout = "2006-01-02 15:04:05.999999999 -0700 MST"

// DecodePositionReport turns a raw feed payload into a validated vessel
// position. It is a pure transform: now is injected so the fallback
// observation time is deterministic under test. Out-of-range course and
// speed values are nulled rather than rejected; mandatory field
// violations reject the whole message.
func DecodePositionReport(data []byte, now time.Time) (models.VesselPosition, error) {
	var env models.StreamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.VesselPosition{}, fmt.Errorf("unmarshal feed message: %w", err)
	}

	if env.MessageType != "PositionReport" {
		return models.VesselPosition{}, ErrNotPositionReport
	}

	report := env.Message.PositionReport
	if report == nil {
		return models.VesselPosition{}, ErrMissingPosition
	}

	if env.MetaData.MMSI <= 0 {
		return models.VesselPosition{}, ErrInvalidMMSI
	}
	if report.Latitude == nil || *report.Latitude < -90 || *report.Latitude > 90 {
		return models.VesselPosition{}, ErrLatitudeOutOfRange
	}
	if report.Longitude == nil || *report.Longitude < -180 || *report.Longitude > 180 {
		return models.VesselPosition{}, ErrLongitudeOutOfRange
	}

	course := report.Cog
	if course != nil && (*course < 0 || *course >= 360) {
		course = nil
	}
	speed := report.Sog
	if speed != nil && *speed < 0 {
		speed = nil
	}

	gh, gh5 := geo.SpatialKey(*report.Latitude, *report.Longitude)

	return models.VesselPosition{
		MMSI:       env.MetaData.MMSI,
		Latitude:   *report.Latitude,
		Longitude:  *report.Longitude,
		Course:     course,
		Speed:      speed,
		ShipType:   env.MetaData.ShipType,
		Geohash:    gh,
		Geohash5:   gh5,
		ObservedAt: parseObservedAt(env.MetaData.TimeUTC, now),
	}, nil
}

// parseObservedAt parses the feed timestamp, falling back to the ingestion
// wall clock when the value is missing or unparsable.
func parseObservedAt(raw *string, now time.Time) time.Time {
	if raw == nil || *raw == "" {
		return now
	}
	if ts, err := time.Parse(metaTimeLayout, *raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, *raw); err == nil {
		return ts
	}
	return now
}
