package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrMalformedRecord marks a single document that cannot be turned into a
// record. Batch readers skip it and keep the rest of the batch.
var ErrMalformedRecord = errors.New("malformed record")

// AnchorFromDocument parses an issues document. Missing or wrong-typed
// optional fields take their defaults; a missing id or unusable coordinates
// yield ErrMalformedRecord.
func AnchorFromDocument(doc bson.M) (AnchorRecord, error) {
	id := docID(doc)
	if id == "" {
		return AnchorRecord{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	lat, latOK := docFloat(doc, "latitude")
	lon, lonOK := docFloat(doc, "longitude")
	if !latOK || !lonOK || !ValidCoordinates(lat, lon) {
		return AnchorRecord{}, fmt.Errorf("%w: %s has no usable coordinates", ErrMalformedRecord, id)
	}
	upvotes, _ := docInt64(doc, "upvotes")
	ts, _ := docInt64(doc, "timestamp")
	rec := AnchorRecord{
		ID:            id,
		Latitude:      lat,
		Longitude:     lon,
		Geohash:       docString(doc, "geohash"),
		MessageText:   docString(doc, "messageText"),
		Category:      docString(doc, "category"),
		UseCase:       docString(doc, "useCase"),
		Status:        Status(docString(doc, "status")),
		Severity:      Severity(docString(doc, "severity")),
		LocationName:  docString(doc, "locationName"),
		Upvotes:       int(upvotes),
		Timestamp:     ts,
		WallAnchorID:  docString(doc, "wallAnchorId"),
		CloudAnchorID: docString(doc, "cloudAnchorId"),
	}
	return rec.Normalize(), nil
}

// SurfaceAnchorFromDocument parses a surface_anchors document.
func SurfaceAnchorFromDocument(doc bson.M) (SurfaceAnchor, error) {
	id := docID(doc)
	if id == "" {
		return SurfaceAnchor{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	lat, latOK := docFloat(doc, "latitude")
	lon, lonOK := docFloat(doc, "longitude")
	if !latOK || !lonOK || !ValidCoordinates(lat, lon) {
		return SurfaceAnchor{}, fmt.Errorf("%w: %s has no usable coordinates", ErrMalformedRecord, id)
	}
	ts, _ := docInt64(doc, "timestamp")
	s := SurfaceAnchor{
		ID:          id,
		MessageText: docString(doc, "messageText"),
		Category:    docString(doc, "category"),
		Latitude:    lat,
		Longitude:   lon,
		Geohash:     docString(doc, "geohash"),
		PlaneType:   docString(doc, "planeType"),
		Timestamp:   ts,
		UserID:      docString(doc, "userId"),
		ImageURL:    docString(doc, "imageUrl"),
	}
	s.RelativeOffsetX, _ = docFloat(doc, "relativeOffsetX")
	s.RelativeOffsetY, _ = docFloat(doc, "relativeOffsetY")
	s.RelativeOffsetZ, _ = docFloat(doc, "relativeOffsetZ")
	s.SurfaceNormalX, _ = docFloat(doc, "surfaceNormalX")
	s.SurfaceNormalY, _ = docFloat(doc, "surfaceNormalY")
	s.SurfaceNormalZ, _ = docFloat(doc, "surfaceNormalZ")
	return s, nil
}

// ActionFromDocument parses an authority_actions document.
func ActionFromDocument(doc bson.M) (AuthorityAction, error) {
	id := docID(doc)
	if id == "" {
		return AuthorityAction{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	ts, _ := docInt64(doc, "timestamp")
	return AuthorityAction{
		ID:         id,
		IssueID:    docString(doc, "issueId"),
		ActionType: docString(doc, "actionType"),
		AdminEmail: docString(doc, "adminEmail"),
		AdminUID:   docString(doc, "adminUid"),
		Notes:      docString(doc, "notes"),
		Timestamp:  ts,
	}, nil
}

func docID(doc bson.M) string {
	for _, key := range []string{"_id", "id"} {
		switch v := doc[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case primitive.ObjectID:
			if !v.IsZero() {
				return v.Hex()
			}
		}
	}
	return ""
}

func docString(doc bson.M, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	default:
		return ""
	}
}

func docFloat(doc bson.M, key string) (float64, bool) {
	switch v := doc[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func docInt64(doc bson.M, key string) (int64, bool) {
	switch v := doc[key].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case primitive.DateTime:
		return int64(v), true
	case time.Time:
		return v.UnixMilli(), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
