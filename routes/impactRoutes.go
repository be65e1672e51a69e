package routes

import (
	"github.com/gin-gonic/gin"

	"civicanchor-be/controllers"
)

// ImpactRoutes sets up the dashboard and authority action routes.
func ImpactRoutes(r *gin.Engine, ic *controllers.ImpactController) {
	impact := r.Group("/api/impact")
	{
		impact.GET("", ic.GetImpact)
		impact.GET("/stream", ic.StreamImpact)
	}
	r.POST("/api/actions", ic.CreateAction)
}
