// Package geohash encodes coordinates into fixed-length base-32 cell keys and
// enumerates the candidate cells around a point for proximity queries.
package geohash

import (
	"strings"

	gh "github.com/TomiHiltunen/geohash-golang"
)

// Precision is the number of characters in a stored geohash (~150 m cells).
const Precision = 7

// PrefixLength is the prefix used by range listeners.
const PrefixLength = 5

// NeighborOffset is the fixed angular delta, in degrees, used to sample the
// cells surrounding a point. It is not corrected for latitude.
const NeighborOffset = 0.1

// RangeSentinel is appended to a prefix to build the exclusive upper bound of
// a lexicographic range query.
const RangeSentinel = "\uf8ff"

const alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// Box is the cell rectangle a hash decodes to.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether the point lies inside the box, edges included.
func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Encode returns the Precision-character hash for a point.
func Encode(lat, lon float64) string {
	return EncodeWithPrecision(lat, lon, Precision)
}

// EncodeWithPrecision returns a hash of the given length.
func EncodeWithPrecision(lat, lon float64, precision int) string {
	if precision <= 0 {
		return ""
	}
	return gh.EncodeWithPrecision(lat, lon, precision)
}

// Valid reports whether every character of hash is in the geohash alphabet.
func Valid(hash string) bool {
	for i := 0; i < len(hash); i++ {
		if strings.IndexByte(alphabet, hash[i]) < 0 {
			return false
		}
	}
	return true
}

// DecodeBounds returns the cell rectangle for hash. ok is false when hash
// holds a character outside the alphabet.
func DecodeBounds(hash string) (Box, bool) {
	if !Valid(hash) {
		return Box{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}, false
	}
	bb := gh.Decode(hash)
	sw, ne := bb.SouthWest(), bb.NorthEast()
	return Box{MinLat: sw.Lat(), MaxLat: ne.Lat(), MinLon: sw.Lng(), MaxLon: ne.Lng()}, true
}

// Decode returns the center of the cell. Invalid hashes decode to the center
// of the whole world box.
func Decode(hash string) (float64, float64) {
	box, _ := DecodeBounds(hash)
	return box.Center()
}

// Neighbors returns the center cell plus the cells of the eight points offset
// by NeighborOffset degrees in each compass direction, deduplicated. radiusKm
// is accepted for call-site symmetry and does not change the offsets.
func Neighbors(lat, lon float64, radiusKm int) []string {
	d := NeighborOffset
	points := [9][2]float64{
		{lat, lon},
		{lat + d, lon},
		{lat - d, lon},
		{lat, lon + d},
		{lat, lon - d},
		{lat + d, lon + d},
		{lat + d, lon - d},
		{lat - d, lon + d},
		{lat - d, lon - d},
	}
	seen := make(map[string]struct{}, len(points))
	out := make([]string, 0, len(points))
	for _, p := range points {
		h := Encode(p[0], p[1])
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// Prefix returns the range-listener prefix for a point.
func Prefix(lat, lon float64) string {
	return EncodeWithPrecision(lat, lon, PrefixLength)
}

// RangeEnd returns the exclusive upper bound for a prefix range query.
func RangeEnd(prefix string) string {
	return prefix + RangeSentinel
}
