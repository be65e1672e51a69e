package controllers

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"civicanchor-be/models"
)

// DefaultRadiusMeters is used when a nearby query carries no radius.
const DefaultRadiusMeters = 500.0

var (
	errMissingCenter = errors.New("lat and lon query parameters are required")
	errBadCenter     = errors.New("lat and lon must be valid coordinates")
	errBadRadius     = errors.New("radius must be a number of meters")
)

// ParseRadius reads a radius in meters. Empty input yields the default.
func ParseRadius(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultRadiusMeters, nil
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, errBadRadius
	}
	return r, nil
}

// parseCenter reads the lat, lon and radius query parameters.
func parseCenter(c *gin.Context) (lat, lon, radius float64, err error) {
	latStr, lonStr := strings.TrimSpace(c.Query("lat")), strings.TrimSpace(c.Query("lon"))
	if latStr == "" || lonStr == "" {
		return 0, 0, 0, errMissingCenter
	}
	lat, err = strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, 0, errBadCenter
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, 0, errBadCenter
	}
	if !models.ValidCoordinates(lat, lon) {
		return 0, 0, 0, errBadCenter
	}
	radius, err = ParseRadius(c.Query("radius"))
	if err != nil {
		return 0, 0, 0, err
	}
	return lat, lon, radius, nil
}
