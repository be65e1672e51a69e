// Package aggregator computes the impact dashboard from the latest snapshots
// of the issues, surface-anchor and authority-action collections.
package aggregator

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"civicanchor-be/models"
)

const (
	IssuesCap  = 500
	SurfaceCap = 500
	ActionsCap = 200

	// RedZoneThreshold is the report count at which a rounded coordinate
	// becomes a red zone.
	RedZoneThreshold = 5
	// RedZonePrecision is the number of decimals coordinates are rounded to
	// when clustering (~110 m).
	RedZonePrecision = 3

	HotspotLimit      = 3
	RecentActionLimit = 5
	SuccessStoryLimit = 10

	// ReachMultiplier turns a report count into the displayed reach figure.
	ReachMultiplier = 100
)

// Snapshot is one immutable view of the three sources.
type Snapshot struct {
	Issues  []models.AnchorRecord
	Surface []models.AnchorRecord
	Actions []models.AuthorityAction
}

// Compute merges the issue and surface snapshots and computes the stats.
func Compute(s Snapshot, now time.Time) models.ImpactStats {
	reports := make([]models.AnchorRecord, 0, len(s.Issues)+len(s.Surface))
	reports = append(reports, s.Issues...)
	reports = append(reports, s.Surface...)
	return ComputeImpactStats(reports, s.Actions, now)
}

type categoryGroup struct {
	breakdown models.CategoryBreakdown
	ids       map[string]struct{}
	places    map[string]int
}

// ComputeImpactStats builds the full dashboard summary. Inputs are not
// modified.
func ComputeImpactStats(reports []models.AnchorRecord, actions []models.AuthorityAction, now time.Time) models.ImpactStats {
	stats := models.ImpactStats{
		TotalReports:   len(reports),
		EstimatedReach: len(reports) * ReachMultiplier,
		Categories:     []models.CategoryBreakdown{},
		SuccessStories: []models.SuccessStory{},
		LastUpdated:    now.UnixMilli(),
	}

	byID := make(map[string]models.AnchorRecord, len(reports))
	clusters := make(map[string]int)
	groups := make(map[models.UseCase]*categoryGroup)

	for _, r := range reports {
		status := models.NormalizeStatus(string(r.Status))
		switch status {
		case models.StatusResolved:
			stats.Fixed++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusRejected:
			stats.Rejected++
		default:
			stats.Pending++
		}

		clusters[clusterKey(r.Latitude, r.Longitude)]++

		key := models.ResolveUseCase(r.UseCase, r.Category)
		g, ok := groups[key]
		if !ok {
			g = &categoryGroup{
				breakdown: models.CategoryBreakdown{
					Key:         string(key),
					DisplayName: key.DisplayName(),
					Icon:        key.Icon(),
				},
				ids:    make(map[string]struct{}),
				places: make(map[string]int),
			}
			groups[key] = g
		}
		g.breakdown.Total++
		switch status {
		case models.StatusResolved:
			g.breakdown.Resolved++
		case models.StatusInProgress:
			g.breakdown.InProgress++
		case models.StatusRejected:
			g.breakdown.Rejected++
		default:
			g.breakdown.Pending++
		}
		g.ids[r.ID] = struct{}{}
		if name := strings.TrimSpace(r.LocationName); name != "" {
			g.places[name]++
		}

		if _, seen := byID[r.ID]; !seen {
			byID[r.ID] = r
		}
	}

	for _, n := range clusters {
		if n >= RedZoneThreshold {
			stats.RedZones++
		}
	}

	recent := recentFirst(actions)

	for _, g := range groups {
		b := g.breakdown
		if b.Total > 0 {
			b.ResolutionRate = float64(b.Resolved) / float64(b.Total)
		}
		b.Hotspots = topPlaces(g.places, HotspotLimit)
		b.RecentActions = matchingActions(recent, g.ids, RecentActionLimit)
		stats.Categories = append(stats.Categories, b)
	}
	sort.Slice(stats.Categories, func(i, j int) bool {
		a, b := stats.Categories[i], stats.Categories[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Key < b.Key
	})

	stats.SuccessStories = successStories(recent, byID, SuccessStoryLimit)
	return stats
}

// clusterKey rounds a coordinate for red-zone grouping. Negative zero is
// folded into zero so points straddling the meridian or equator share a key.
func clusterKey(lat, lon float64) string {
	scale := math.Pow10(RedZonePrecision)
	rl := math.Round(lat*scale) / scale
	rn := math.Round(lon*scale) / scale
	if rl == 0 {
		rl = 0
	}
	if rn == 0 {
		rn = 0
	}
	return fmt.Sprintf("%.*f,%.*f", RedZonePrecision, rl, RedZonePrecision, rn)
}

// recentFirst returns a copy of actions sorted by timestamp, newest first.
func recentFirst(actions []models.AuthorityAction) []models.AuthorityAction {
	out := make([]models.AuthorityAction, len(actions))
	copy(out, actions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

func topPlaces(places map[string]int, limit int) []string {
	names := make([]string, 0, len(places))
	for name := range places {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if places[names[i]] != places[names[j]] {
			return places[names[i]] > places[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = fmt.Sprintf("%s (%d)", name, places[name])
	}
	return out
}

// matchingActions takes the first limit actions, in order, whose issue id
// belongs to ids either directly or under the surface prefix.
func matchingActions(actions []models.AuthorityAction, ids map[string]struct{}, limit int) []models.AuthorityAction {
	out := []models.AuthorityAction{}
	for _, a := range actions {
		if len(out) == limit {
			break
		}
		if _, ok := ids[a.IssueID]; ok {
			out = append(out, a)
			continue
		}
		if _, ok := ids[models.SurfacePrefix+a.IssueID]; ok {
			out = append(out, a)
		}
	}
	return out
}

func successStories(actions []models.AuthorityAction, byID map[string]models.AnchorRecord, limit int) []models.SuccessStory {
	stories := []models.SuccessStory{}
	for _, a := range actions {
		if len(stories) == limit {
			break
		}
		if !a.IsResolution() {
			continue
		}
		rec, ok := byID[a.IssueID]
		if !ok {
			rec, ok = byID[models.SurfacePrefix+a.IssueID]
		}
		stories = append(stories, buildStory(a, rec, ok))
	}
	return stories
}

func buildStory(a models.AuthorityAction, rec models.AnchorRecord, matched bool) models.SuccessStory {
	story := models.SuccessStory{
		ActionID:   a.ID,
		IssueID:    a.IssueID,
		AdminEmail: a.AdminEmail,
		Notes:      a.Notes,
		ResolvedAt: a.Timestamp,
		Matched:    matched,
	}
	if !matched {
		story.Title = "Community report resolved"
		story.Description = strings.TrimSpace(a.Notes)
		if story.Description == "" {
			story.Description = "An authority marked a community report as resolved."
		}
		story.Category = string(models.UseCaseGeneral)
		return story
	}

	key := models.ResolveUseCase(rec.UseCase, rec.Category)
	story.Title = key.DisplayName() + " issue resolved"
	if rec.LocationName != "" {
		story.Title += " at " + rec.LocationName
	}
	story.Description = rec.MessageText
	if story.Description == "" {
		story.Description = strings.TrimSpace(a.Notes)
	}
	story.Category = string(key)
	story.LocationName = rec.LocationName
	return story
}
