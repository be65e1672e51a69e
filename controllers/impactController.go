package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"civicanchor-be/logger"
	"civicanchor-be/models"
)

// ImpactSource publishes the live dashboard statistics.
type ImpactSource interface {
	Latest() (models.ImpactStats, bool)
	Subscribe() (<-chan models.ImpactStats, func())
}

// ActionRecorder persists authority actions.
type ActionRecorder interface {
	InsertAction(ctx context.Context, a models.AuthorityAction) error
}

// ImpactController serves the impact dashboard and records authority actions.
type ImpactController struct {
	source   ImpactSource
	recorder ActionRecorder
	log      *slog.Logger
	now      func() time.Time
}

// NewImpactController returns a controller. recorder may be nil when no
// remote store is configured; CreateAction then answers 503.
func NewImpactController(source ImpactSource, recorder ActionRecorder, log *slog.Logger) *ImpactController {
	return &ImpactController{source: source, recorder: recorder, log: logger.OrDefault(log), now: time.Now}
}

// GetImpact returns the most recent statistics.
func (ic *ImpactController) GetImpact(c *gin.Context) {
	stats, ok := ic.source.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Impact statistics are not ready yet"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// StreamImpact sends one server-sent "impact" event per recompute until the
// client goes away.
func (ic *ImpactController) StreamImpact(c *gin.Context) {
	updates, cancel := ic.source.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case stats, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("impact", stats)
			c.Writer.Flush()
		}
	}
}

type actionInput struct {
	ID         string `json:"id"`
	IssueID    string `json:"issueId" binding:"required"`
	ActionType string `json:"actionType" binding:"required"`
	AdminEmail string `json:"adminEmail"`
	AdminUID   string `json:"adminUid"`
	Notes      string `json:"notes" binding:"max=2000"`
	Timestamp  int64  `json:"timestamp"`
}

// CreateAction records an authority action against a report.
func (ic *ImpactController) CreateAction(c *gin.Context) {
	if ic.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Remote store is not configured"})
		return
	}

	var input actionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action := models.AuthorityAction{
		ID:         strings.TrimSpace(input.ID),
		IssueID:    strings.TrimSpace(input.IssueID),
		ActionType: strings.ToUpper(strings.TrimSpace(input.ActionType)),
		AdminEmail: strings.TrimSpace(input.AdminEmail),
		AdminUID:   strings.TrimSpace(input.AdminUID),
		Notes:      strings.TrimSpace(input.Notes),
		Timestamp:  input.Timestamp,
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.Timestamp == 0 {
		action.Timestamp = ic.now().UnixMilli()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := ic.recorder.InsertAction(ctx, action); err != nil {
		ic.log.Error("action_insert_failed", "issue_id", action.IssueID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record action"})
		return
	}

	c.JSON(http.StatusCreated, action)
}
