package geo

import (
	"strings"
	"testing"
)

func TestSpatialKeyKnownValue(t *testing.T) {
	// Reference point from the canonical geohash example set.
	gh, gh5 := SpatialKey(57.64911, 10.40744)
	if gh != "u4pruyd" {
		t.Errorf("unexpected geohash: %s", gh)
	}
	if gh5 != "u4pru" {
		t.Errorf("unexpected coarse geohash: %s", gh5)
	}
}

func TestSpatialKeyDeterministic(t *testing.T) {
	coords := [][2]float64{
		{0, 0},
		{52.37, 4.89},
		{-33.8688, 151.2093},
		{89.9999, -179.9999},
		{-90, -180},
	}
	for _, c := range coords {
		first, firstCoarse := SpatialKey(c[0], c[1])
		second, secondCoarse := SpatialKey(c[0], c[1])
		if first != second || firstCoarse != secondCoarse {
			t.Errorf("SpatialKey(%v, %v) not deterministic: %s/%s vs %s/%s",
				c[0], c[1], first, firstCoarse, second, secondCoarse)
		}
		if len(first) != Precision {
			t.Errorf("geohash %q has length %d, want %d", first, len(first), Precision)
		}
		if len(firstCoarse) != CoarsePrecision {
			t.Errorf("coarse geohash %q has length %d, want %d", firstCoarse, len(firstCoarse), CoarsePrecision)
		}
		if !strings.HasPrefix(first, firstCoarse) {
			t.Errorf("coarse key %q is not a prefix of %q", firstCoarse, first)
		}
	}
}
