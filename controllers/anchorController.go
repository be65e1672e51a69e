package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"civicanchor-be/logger"
	"civicanchor-be/models"
	"civicanchor-be/planner"
)

// AnchorService is the planner surface the anchor handlers use.
type AnchorService interface {
	Submit(ctx context.Context, rec models.AnchorRecord) (models.AnchorRecord, error)
	Nearby(ctx context.Context, lat, lon, radiusMeters float64) ([]planner.Result, planner.Source, error)
	NearbyAll(ctx context.Context, lat, lon, radiusMeters float64) ([]planner.Result, error)
	Get(ctx context.Context, id string) (models.AnchorRecord, planner.Source, error)
	Recent(ctx context.Context, limit int) ([]models.AnchorRecord, planner.Source, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) (models.AnchorRecord, error)
	Upvote(ctx context.Context, id string) (models.AnchorRecord, error)
	PendingCount() (int, error)
	RetryPending(ctx context.Context) (planner.SyncReport, error)
	ClearPending() error
}

// AnchorController serves anchor submission, proximity queries and the
// pending-upload queue.
type AnchorController struct {
	svc     AnchorService
	log     *slog.Logger
	timeout time.Duration
}

// NewAnchorController returns a controller. timeout bounds each request's
// remote work; zero means 10 seconds.
func NewAnchorController(svc AnchorService, timeout time.Duration, log *slog.Logger) *AnchorController {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AnchorController{svc: svc, log: logger.OrDefault(log), timeout: timeout}
}

type anchorInput struct {
	ID            string   `json:"id"`
	Latitude      *float64 `json:"latitude" binding:"required"`
	Longitude     *float64 `json:"longitude" binding:"required"`
	MessageText   string   `json:"messageText" binding:"max=2000"`
	Category      string   `json:"category"`
	UseCase       string   `json:"useCase"`
	Status        string   `json:"status"`
	Severity      string   `json:"severity"`
	LocationName  string   `json:"locationName" binding:"max=200"`
	Upvotes       int      `json:"upvotes"`
	Timestamp     int64    `json:"timestamp"`
	WallAnchorID  string   `json:"wallAnchorId"`
	CloudAnchorID string   `json:"cloudAnchorId"`
}

func (in anchorInput) record() models.AnchorRecord {
	return models.AnchorRecord{
		ID:            in.ID,
		Latitude:      *in.Latitude,
		Longitude:     *in.Longitude,
		MessageText:   in.MessageText,
		Category:      in.Category,
		UseCase:       in.UseCase,
		Status:        models.Status(in.Status),
		Severity:      models.Severity(in.Severity),
		LocationName:  in.LocationName,
		Upvotes:       in.Upvotes,
		Timestamp:     in.Timestamp,
		WallAnchorID:  in.WallAnchorID,
		CloudAnchorID: in.CloudAnchorID,
	}
}

// CreateAnchor stores a new anchor locally and schedules its upload.
func (ac *AnchorController) CreateAnchor(c *gin.Context) {
	var input anchorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := ac.svc.Submit(c.Request.Context(), input.record())
	if errors.Is(err, planner.ErrInvalidCoordinates) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		ac.log.Error("anchor_submit_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store anchor"})
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// Nearby returns issues around a point.
func (ac *AnchorController) Nearby(c *gin.Context) {
	lat, lon, radius, err := parseCenter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ac.timeout)
	defer cancel()

	results, source, err := ac.svc.Nearby(ctx, lat, lon, radius)
	if err != nil {
		ac.log.Error("nearby_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query nearby anchors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":  source,
		"count":   len(results),
		"results": results,
	})
}

// NearbyAll returns issues and surface anchors around a point.
func (ac *AnchorController) NearbyAll(c *gin.Context) {
	lat, lon, radius, err := parseCenter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ac.timeout)
	defer cancel()

	results, err := ac.svc.NearbyAll(ctx, lat, lon, radius)
	if err != nil {
		ac.log.Error("nearby_all_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query nearby anchors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(results),
		"results": results,
	})
}

// PendingCount reports how many anchors are waiting for upload.
func (ac *AnchorController) PendingCount(c *gin.Context) {
	n, err := ac.svc.PendingCount()
	if err != nil {
		ac.log.Error("pending_count_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read pending uploads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": n})
}

// SyncPending retries every queued upload once.
func (ac *AnchorController) SyncPending(c *gin.Context) {
	report, err := ac.svc.RetryPending(c.Request.Context())
	if err != nil {
		ac.log.Error("pending_sync_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync pending uploads"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ClearPending drops the queue without uploading.
func (ac *AnchorController) ClearPending(c *gin.Context) {
	if err := ac.svc.ClearPending(); err != nil {
		ac.log.Error("pending_clear_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear pending uploads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pending uploads cleared"})
}

// GetAnchor returns one anchor by id.
func (ac *AnchorController) GetAnchor(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid anchor ID"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ac.timeout)
	defer cancel()

	rec, source, err := ac.svc.Get(ctx, id)
	if errors.Is(err, planner.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Anchor not found"})
		return
	}
	if err != nil {
		ac.log.Error("anchor_get_failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve anchor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"source": source, "anchor": rec})
}

// RecentAnchors returns the newest anchors.
func (ac *AnchorController) RecentAnchors(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(planner.RecentLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ac.timeout)
	defer cancel()

	records, source, err := ac.svc.Recent(ctx, limit)
	if err != nil {
		ac.log.Error("recent_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve recent anchors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":  source,
		"count":   len(records),
		"anchors": records,
	})
}

// UpdateStatus moves an anchor through its lifecycle.
func (ac *AnchorController) UpdateStatus(c *gin.Context) {
	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, ok := models.ParseStatus(input.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	rec, err := ac.svc.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	ac.writeModified(c, rec, err, "anchor_status_failed", "Failed to update anchor")
}

// Upvote adds one upvote to an anchor.
func (ac *AnchorController) Upvote(c *gin.Context) {
	rec, err := ac.svc.Upvote(c.Request.Context(), c.Param("id"))
	ac.writeModified(c, rec, err, "anchor_upvote_failed", "Failed to upvote anchor")
}

func (ac *AnchorController) writeModified(c *gin.Context, rec models.AnchorRecord, err error, event, msg string) {
	if errors.Is(err, planner.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Anchor not found"})
		return
	}
	if err != nil {
		ac.log.Error(event, "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, rec)
}
