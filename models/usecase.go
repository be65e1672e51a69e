package models

import "strings"

// UseCase is one of the parent tags reports are grouped under on the
// dashboard.
type UseCase string

const (
	UseCaseLaborRights    UseCase = "LABOR_RIGHTS"
	UseCaseEnvironment    UseCase = "ENVIRONMENT"
	UseCaseInfrastructure UseCase = "INFRASTRUCTURE"
	UseCasePublicSafety   UseCase = "PUBLIC_SAFETY"
	UseCaseHousing        UseCase = "HOUSING"
	UseCaseAccessibility  UseCase = "ACCESSIBILITY"

	// UseCaseGeneral collects reports that match no parent tag.
	UseCaseGeneral UseCase = "GENERAL"
)

// UseCases lists the parent tags in dashboard order.
var UseCases = []UseCase{
	UseCaseLaborRights,
	UseCaseEnvironment,
	UseCaseInfrastructure,
	UseCasePublicSafety,
	UseCaseHousing,
	UseCaseAccessibility,
}

type useCaseInfo struct {
	name string
	icon string
}

var useCaseDisplay = map[UseCase]useCaseInfo{
	UseCaseLaborRights:    {"Labor Rights", "👷"},
	UseCaseEnvironment:    {"Environment", "🌿"},
	UseCaseInfrastructure: {"Infrastructure", "🚧"},
	UseCasePublicSafety:   {"Public Safety", "🚨"},
	UseCaseHousing:        {"Housing", "🏠"},
	UseCaseAccessibility:  {"Accessibility", "♿"},
	UseCaseGeneral:        {"General", "📍"},
}

// subcategories maps legacy free-form category tags to their parent.
var subcategories = map[string]UseCase{
	"WAGE_THEFT":        UseCaseLaborRights,
	"UNSAFE_WORKPLACE":  UseCaseLaborRights,
	"UNPAID_OVERTIME":   UseCaseLaborRights,
	"CHILD_LABOR":       UseCaseLaborRights,
	"ILLEGAL_DUMPING":   UseCaseEnvironment,
	"AIR_POLLUTION":     UseCaseEnvironment,
	"WATER_POLLUTION":   UseCaseEnvironment,
	"NOISE":             UseCaseEnvironment,
	"POTHOLE":           UseCaseInfrastructure,
	"STREETLIGHT":       UseCaseInfrastructure,
	"BROKEN_SIDEWALK":   UseCaseInfrastructure,
	"WATER_LEAK":        UseCaseInfrastructure,
	"HARASSMENT":        UseCasePublicSafety,
	"UNSAFE_CROSSING":   UseCasePublicSafety,
	"VANDALISM":         UseCasePublicSafety,
	"ABANDONED_VEHICLE": UseCasePublicSafety,
	"EVICTION":          UseCaseHousing,
	"UNSAFE_BUILDING":   UseCaseHousing,
	"MOLD":              UseCaseHousing,
	"NO_HEATING":        UseCaseHousing,
	"NO_RAMP":           UseCaseAccessibility,
	"BLOCKED_PATH":      UseCaseAccessibility,
	"BROKEN_ELEVATOR":   UseCaseAccessibility,
	"MISSING_SIGNAGE":   UseCaseAccessibility,
}

func tag(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ParseUseCase returns the parent tag s names, if any.
func ParseUseCase(s string) (UseCase, bool) {
	u := UseCase(tag(s))
	for _, known := range UseCases {
		if u == known {
			return u, true
		}
	}
	return "", false
}

// ParentOf returns the parent tag of a known subcategory.
func ParentOf(subcategory string) (UseCase, bool) {
	u, ok := subcategories[tag(subcategory)]
	return u, ok
}

// ResolveUseCase picks the dashboard group for a report. Precedence:
// a valid useCase, then category as a subcategory, then category as a parent
// tag, then useCase as a subcategory, then GENERAL.
func ResolveUseCase(useCase, category string) UseCase {
	if u, ok := ParseUseCase(useCase); ok {
		return u
	}
	if u, ok := ParentOf(category); ok {
		return u
	}
	if u, ok := ParseUseCase(category); ok {
		return u
	}
	if u, ok := ParentOf(useCase); ok {
		return u
	}
	return UseCaseGeneral
}

// DisplayName returns the human label for a parent tag.
func (u UseCase) DisplayName() string {
	if info, ok := useCaseDisplay[u]; ok {
		return info.name
	}
	return useCaseDisplay[UseCaseGeneral].name
}

// Icon returns the dashboard glyph for a parent tag.
func (u UseCase) Icon() string {
	if info, ok := useCaseDisplay[u]; ok {
		return info.icon
	}
	return useCaseDisplay[UseCaseGeneral].icon
}
