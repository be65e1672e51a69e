package models

// ImpactStats is the dashboard summary. It is recomputed in full on every
// aggregator trigger and never persisted.
type ImpactStats struct {
	TotalReports   int                 `json:"totalReports"`
	Fixed          int                 `json:"fixed"`
	InProgress     int                 `json:"inProgress"`
	Pending        int                 `json:"pending"`
	Rejected       int                 `json:"rejected"`
	RedZones       int                 `json:"redZones"`
	EstimatedReach int                 `json:"estimatedReach"`
	Categories     []CategoryBreakdown `json:"categories"`
	SuccessStories []SuccessStory      `json:"successStories"`
	LastUpdated    int64               `json:"lastUpdated"`
}

// CategoryBreakdown summarizes the reports that resolved to one category key.
type CategoryBreakdown struct {
	Key            string            `json:"key"`
	DisplayName    string            `json:"displayName"`
	Icon           string            `json:"icon"`
	Total          int               `json:"total"`
	Pending        int               `json:"pending"`
	InProgress     int               `json:"inProgress"`
	Resolved       int               `json:"resolved"`
	Rejected       int               `json:"rejected"`
	ResolutionRate float64           `json:"resolutionRate"`
	Hotspots       []string          `json:"hotspots"`
	RecentActions  []AuthorityAction `json:"recentActions"`
}

// SuccessStory is a resolved action shown on the dashboard. Matched is false
// when the referenced report could not be found; the story is still shown.
type SuccessStory struct {
	ActionID     string `json:"actionId"`
	IssueID      string `json:"issueId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	LocationName string `json:"locationName,omitempty"`
	AdminEmail   string `json:"adminEmail,omitempty"`
	Notes        string `json:"notes,omitempty"`
	ResolvedAt   int64  `json:"resolvedAt"`
	Matched      bool   `json:"matched"`
}
