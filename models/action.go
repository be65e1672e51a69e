package models

import "strings"

// AuthorityAction is a step an administrator took on a report.
type AuthorityAction struct {
	ID         string `bson:"_id" json:"id"`
	IssueID    string `bson:"issueId" json:"issueId"`
	ActionType string `bson:"actionType" json:"actionType"`
	AdminEmail string `bson:"adminEmail" json:"adminEmail"`
	AdminUID   string `bson:"adminUid" json:"adminUid"`
	Notes      string `bson:"notes" json:"notes"`
	Timestamp  int64  `bson:"timestamp" json:"timestamp"`
}

// IsResolution reports whether the action marks its report as resolved.
// Action types are compared case-insensitively.
func (a AuthorityAction) IsResolution() bool {
	return strings.EqualFold(strings.TrimSpace(a.ActionType), string(StatusResolved))
}
