package processor

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

func positionReportJSON(mmsi int64, lat, lon, cog, sog float64, timeUTC string) []byte {
	return []byte(fmt.Sprintf(`{
		"MessageType": "PositionReport",
		"MetaData": {"MMSI": %d, "ShipType": 70, "time_utc": %q},
		"Message": {"PositionReport": {"Latitude": %v, "Longitude": %v, "Cog": %v, "Sog": %v}}
	}`, mmsi, timeUTC, lat, lon, cog, sog))
}

func TestDecodePositionReport(t *testing.T) {
	data := positionReportJSON(244660920, 52.37, 4.89, 215.3, 12.5, "2026-08-30 09:59:58.123456789 +0000 UTC")

	record, err := DecodePositionReport(data, testNow)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if record.MMSI != 244660920 {
		t.Errorf("mmsi = %d, want 244660920", record.MMSI)
	}
	if record.Latitude != 52.37 || record.Longitude != 4.89 {
		t.Errorf("position = (%v, %v), want (52.37, 4.89)", record.Latitude, record.Longitude)
	}
	if record.Course == nil || *record.Course != 215.3 {
		t.Errorf("course = %v, want 215.3", record.Course)
	}
	if record.Speed == nil || *record.Speed != 12.5 {
		t.Errorf("speed = %v, want 12.5", record.Speed)
	}
	if record.ShipType == nil || *record.ShipType != 70 {
		t.Errorf("ship type = %v, want 70", record.ShipType)
	}
	if len(record.Geohash) != 7 {
		t.Errorf("geohash = %q, want 7 characters", record.Geohash)
	}
	if record.Geohash5 != record.Geohash[:5] {
		t.Errorf("geohash_5 = %q, want prefix of %q", record.Geohash5, record.Geohash)
	}
	want := time.Date(2026, 8, 30, 9, 59, 58, 123456789, time.UTC)
	if !record.ObservedAt.Equal(want) {
		t.Errorf("observed at = %v, want %v", record.ObservedAt, want)
	}
}

func TestDecodeRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{
			name:    "not a position report",
			payload: []byte(`{"MessageType": "ShipStaticData", "MetaData": {"MMSI": 1}, "Message": {}}`),
			wantErr: ErrNotPositionReport,
		},
		{
			name:    "missing payload",
			payload: []byte(`{"MessageType": "PositionReport", "MetaData": {"MMSI": 1}, "Message": {}}`),
			wantErr: ErrMissingPosition,
		},
		{
			name:    "zero mmsi",
			payload: positionReportJSON(0, 52.0, 4.0, 10, 5, ""),
			wantErr: ErrInvalidMMSI,
		},
		{
			name:    "negative mmsi",
			payload: positionReportJSON(-7, 52.0, 4.0, 10, 5, ""),
			wantErr: ErrInvalidMMSI,
		},
		{
			name:    "latitude too high",
			payload: positionReportJSON(1, 90.5, 4.0, 10, 5, ""),
			wantErr: ErrLatitudeOutOfRange,
		},
		{
			name:    "latitude too low",
			payload: positionReportJSON(1, -91, 4.0, 10, 5, ""),
			wantErr: ErrLatitudeOutOfRange,
		},
		{
			name:    "longitude too high",
			payload: positionReportJSON(1, 52.0, 180.5, 10, 5, ""),
			wantErr: ErrLongitudeOutOfRange,
		},
		{
			name:    "longitude too low",
			payload: positionReportJSON(1, 52.0, -181, 10, 5, ""),
			wantErr: ErrLongitudeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePositionReport(tt.payload, testNow)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := DecodePositionReport([]byte(`{not json`), testNow)
	if err == nil {
		t.Error("malformed payload should be rejected")
	}
}

func TestDecodeSanitizesCourseAndSpeed(t *testing.T) {
	tests := []struct {
		name       string
		cog        float64
		sog        float64
		wantCourse bool
		wantSpeed  bool
	}{
		{name: "course 360 nulled", cog: 360, sog: 5, wantCourse: false, wantSpeed: true},
		{name: "negative course nulled", cog: -1, sog: 5, wantCourse: false, wantSpeed: true},
		{name: "negative speed nulled", cog: 90, sog: -0.5, wantCourse: true, wantSpeed: false},
		{name: "zero values kept", cog: 0, sog: 0, wantCourse: true, wantSpeed: true},
		{name: "boundary course kept", cog: 359.9, sog: 1, wantCourse: true, wantSpeed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := positionReportJSON(1, 52.0, 4.0, tt.cog, tt.sog, "")
			record, err := DecodePositionReport(data, testNow)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if (record.Course != nil) != tt.wantCourse {
				t.Errorf("course = %v, want present=%v", record.Course, tt.wantCourse)
			}
			if (record.Speed != nil) != tt.wantSpeed {
				t.Errorf("speed = %v, want present=%v", record.Speed, tt.wantSpeed)
			}
		})
	}
}

func TestParseObservedAt(t *testing.T) {
	feedFormat := "2026-08-30 09:00:00.5 +0000 UTC"
	rfc := "2026-08-30T09:00:00.5Z"
	garbage := "yesterday-ish"
	empty := ""

	tests := []struct {
		name string
		raw  *string
		want time.Time
	}{
		{name: "feed format", raw: &feedFormat, want: time.Date(2026, 8, 30, 9, 0, 0, 500000000, time.UTC)},
		{name: "rfc3339 fallback", raw: &rfc, want: time.Date(2026, 8, 30, 9, 0, 0, 500000000, time.UTC)},
		{name: "garbage falls back to now", raw: &garbage, want: testNow},
		{name: "empty falls back to now", raw: &empty, want: testNow},
		{name: "nil falls back to now", raw: nil, want: testNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseObservedAt(tt.raw, testNow)
			if !got.Equal(tt.want) {
				t.Errorf("observed at = %v, want %v", got, tt.want)
			}
		})
	}
}
