package geo

import (
	"github.com/mmcloughlin/geohash"
)

const (
	// Precision is the geohash length used for the fine spatial key.
	Precision = 7
	// CoarsePrecision is the prefix length used for coarse bucketing.
	CoarsePrecision = 5
)

// SpatialKey derives the fine and coarse geohash keys for a coordinate
// pair. The coarse key is always a prefix of the fine key, so the same
// function serves both the ingest path and query-side bucketing.
func SpatialKey(lat, lon float64) (string, string) {
	gh := geohash.EncodeWithPrecision(lat, lon, Precision)
	return gh, gh[:CoarsePrecision]
}
