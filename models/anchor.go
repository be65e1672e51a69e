package models

import (
	"math"
	"strings"
)

// Status is the lifecycle state authorities move a report through.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusRejected   Status = "REJECTED"
)

// NormalizeStatus uppercases s and maps empty or unknown values to PENDING.
func NormalizeStatus(s string) Status {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return st
	default:
		return StatusPending
	}
}

// ParseStatus is NormalizeStatus without the default: ok is false for empty
// or unknown values.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return st, true
	default:
		return "", false
	}
}

// Severity is the reporter's urgency estimate.
type Severity string

const (
	SeverityUrgent Severity = "URGENT"
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// NormalizeSeverity uppercases s and maps empty or unknown values to MEDIUM.
func NormalizeSeverity(s string) Severity {
	switch sv := Severity(strings.ToUpper(strings.TrimSpace(s))); sv {
	case SeverityUrgent, SeverityHigh, SeverityMedium, SeverityLow:
		return sv
	default:
		return SeverityMedium
	}
}

// AnchorRecord is a short message attached to a geographic location. The
// same shape is stored in the issues collection and in the local cache.
type AnchorRecord struct {
	ID            string   `bson:"_id" json:"id"`
	Latitude      float64  `bson:"latitude" json:"latitude"`
	Longitude     float64  `bson:"longitude" json:"longitude"`
	Geohash       string   `bson:"geohash" json:"geohash"`
	MessageText   string   `bson:"messageText" json:"messageText"`
	Category      string   `bson:"category" json:"category"`
	UseCase       string   `bson:"useCase" json:"useCase"`
	Status        Status   `bson:"status" json:"status"`
	Severity      Severity `bson:"severity" json:"severity"`
	LocationName  string   `bson:"locationName,omitempty" json:"locationName,omitempty"`
	Upvotes       int      `bson:"upvotes" json:"upvotes"`
	Timestamp     int64    `bson:"timestamp" json:"timestamp"`
	WallAnchorID  string   `bson:"wallAnchorId,omitempty" json:"wallAnchorId,omitempty"`
	CloudAnchorID string   `bson:"cloudAnchorId,omitempty" json:"cloudAnchorId,omitempty"`
}

// ValidCoordinates reports whether lat/lon are finite and within WGS84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Normalize trims free text and applies the documented defaults for status,
// severity and upvotes. It does not touch the geohash.
func (r AnchorRecord) Normalize() AnchorRecord {
	r.ID = strings.TrimSpace(r.ID)
	r.MessageText = strings.TrimSpace(r.MessageText)
	r.Category = strings.TrimSpace(r.Category)
	r.UseCase = strings.ToUpper(strings.TrimSpace(r.UseCase))
	r.LocationName = strings.TrimSpace(r.LocationName)
	r.Status = NormalizeStatus(string(r.Status))
	r.Severity = NormalizeSeverity(string(r.Severity))
	if r.Upvotes < 0 {
		r.Upvotes = 0
	}
	return r
}
