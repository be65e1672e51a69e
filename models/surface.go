package models

// SurfacePrefix marks ids of surface-anchored reports once normalized into
// AnchorRecord shape.
const SurfacePrefix = "surface_"

// SurfaceAnchor is a report pinned to a detected plane. Only the fields the
// planner and aggregator need survive normalization.
type SurfaceAnchor struct {
	ID              string  `bson:"_id,omitempty" json:"id"`
	MessageText     string  `bson:"messageText" json:"messageText"`
	Category        string  `bson:"category" json:"category"`
	Latitude        float64 `bson:"latitude" json:"latitude"`
	Longitude       float64 `bson:"longitude" json:"longitude"`
	Geohash         string  `bson:"geohash" json:"geohash"`
	RelativeOffsetX float64 `bson:"relativeOffsetX" json:"relativeOffsetX"`
	RelativeOffsetY float64 `bson:"relativeOffsetY" json:"relativeOffsetY"`
	RelativeOffsetZ float64 `bson:"relativeOffsetZ" json:"relativeOffsetZ"`
	PlaneType       string  `bson:"planeType" json:"planeType"`
	SurfaceNormalX  float64 `bson:"surfaceNormalX" json:"surfaceNormalX"`
	SurfaceNormalY  float64 `bson:"surfaceNormalY" json:"surfaceNormalY"`
	SurfaceNormalZ  float64 `bson:"surfaceNormalZ" json:"surfaceNormalZ"`
	Timestamp       int64   `bson:"timestamp" json:"timestamp"`
	UserID          string  `bson:"userId" json:"userId"`
	ImageURL        string  `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

// ToAnchorRecord normalizes a surface anchor into the shared record shape.
// Surface anchors carry no workflow state, so status and severity take their
// defaults.
func (s SurfaceAnchor) ToAnchorRecord() AnchorRecord {
	return AnchorRecord{
		ID:          SurfacePrefix + s.ID,
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
		Geohash:     s.Geohash,
		MessageText: s.MessageText,
		Category:    s.Category,
		Status:      StatusPending,
		Severity:    SeverityMedium,
		Timestamp:   s.Timestamp,
	}.Normalize()
}
