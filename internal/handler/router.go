package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter はAPIのルーティングを設定します
// originsが空の場合は全てのオリジンを許可します
func NewRouter(h *Handler, logger *zap.Logger, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/state", h.GetState)
		api.GET("/notices", h.GetNotices)
		api.GET("/weather", h.GetWeather)
		api.POST("/auth", h.Authenticate)
		api.POST("/logout", h.Logout)

		guest := api.Group("", h.RequireAuth, h.RequireUnlocked)
		{
			guest.POST("/issues", h.AddIssue)
			guest.PUT("/feedback", h.SetFeedback)
			guest.POST("/checklist/:id/toggle", h.ToggleChecklistItem)
			guest.GET("/checkout/eligible", h.CheckoutEligible)
			guest.POST("/checkout", h.FinalizeCheckout)
		}

		admin := api.Group("/admin", h.RequireAdmin)
		{
			admin.PUT("/reservation", h.UpdateReservation)
		}
	}
	return r
}
