package routes

import (
	"github.com/gin-gonic/gin"

	"civicanchor-be/controllers"
)

// AnchorRoutes sets up anchor submission, proximity and pending-queue routes.
// limit guards submission only.
func AnchorRoutes(r *gin.Engine, ac *controllers.AnchorController, limit gin.HandlerFunc) {
	anchors := r.Group("/api/anchors")
	{
		anchors.POST("", limit, ac.CreateAnchor)
		anchors.GET("/nearby", ac.Nearby)
		anchors.GET("/nearby/all", ac.NearbyAll)
		anchors.GET("/recent", ac.RecentAnchors)
		anchors.GET("/:id", ac.GetAnchor)
		anchors.PUT("/:id/status", ac.UpdateStatus)
		anchors.POST("/:id/upvote", limit, ac.Upvote)
		anchors.GET("/pending", ac.PendingCount)
		anchors.POST("/pending/sync", ac.SyncPending)
		anchors.DELETE("/pending", ac.ClearPending)
	}
}
