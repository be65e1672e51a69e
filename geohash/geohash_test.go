package geohash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     string
	}{
		{"jutland", 57.64911, 10.40744, "u4pruyd"},
		{"just north east of origin", 0.0001, 0.0001, "s000000"},
		{"south west corner", -90, -180, "0000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.lat, tt.lon))
		})
	}
}

func TestEncode_FixedLengthAndDeterministic(t *testing.T) {
	points := [][2]float64{{40.7128, -74.0060}, {-33.8688, 151.2093}, {89.9, 179.9}, {-89.9, -179.9}}
	for _, p := range points {
		first := Encode(p[0], p[1])
		assert.Len(t, first, Precision)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Encode(p[0], p[1]))
		}
	}
}

func TestDecode_LiesInsideEncodedCell(t *testing.T) {
	points := [][2]float64{{40.7128, -74.0060}, {51.5074, -0.1278}, {-22.9068, -43.1729}, {35.6762, 139.6503}, {0.0001, -0.0001}}
	for _, p := range points {
		h := Encode(p[0], p[1])
		box, ok := DecodeBounds(h)
		require.True(t, ok)
		assert.True(t, box.Contains(p[0], p[1]), "input %v outside cell %s", p, h)

		lat, lon := Decode(h)
		assert.True(t, box.Contains(lat, lon))
		assert.Equal(t, h, Encode(lat, lon))
	}
}

func TestDecodeBounds_InvalidCharacter(t *testing.T) {
	_, ok := DecodeBounds("u4pa")
	assert.False(t, ok)
	assert.False(t, Valid("U4PRUYD"))
	assert.True(t, Valid("u4pruyd"))
}

func TestDecodeBounds_KnownCell(t *testing.T) {
	box, ok := DecodeBounds("u4pruyd")
	require.True(t, ok)
	assert.Less(t, box.MaxLat-box.MinLat, 0.0014)
	assert.Less(t, box.MaxLon-box.MinLon, 0.0014)
	assert.True(t, box.Contains(57.64911, 10.40744))
}

func TestNeighbors_ContainsCenterAndDeduplicates(t *testing.T) {
	lat, lon := 40.7128, -74.0060
	cells := Neighbors(lat, lon, 1)

	assert.Contains(t, cells, Encode(lat, lon))
	assert.LessOrEqual(t, len(cells), 9)
	assert.Len(t, cells, 9)

	seen := map[string]bool{}
	for _, c := range cells {
		assert.False(t, seen[c], "duplicate cell %s", c)
		seen[c] = true
	}
}

func TestNeighbors_IgnoresRadius(t *testing.T) {
	assert.Equal(t, Neighbors(12.5, 45.1, 1), Neighbors(12.5, 45.1, 250))
}

func TestNeighbors_CollapsesAtPole(t *testing.T) {
	cells := Neighbors(90, 0, 1)
	assert.Contains(t, cells, Encode(90, 0))
	assert.Less(t, len(cells), 9)
}

func TestPrefixAndRangeEnd(t *testing.T) {
	p := Prefix(57.64911, 10.40744)
	assert.Equal(t, "u4pru", p)
	end := RangeEnd(p)
	assert.True(t, Encode(57.64911, 10.40744) >= p)
	assert.True(t, Encode(57.64911, 10.40744) < end)
}
