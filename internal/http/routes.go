package http

import (
	"github.com/gin-gonic/gin"
	"github.com/ifeelsam/core-bet/internal/http/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CORS для фронта на другом домене. Пустой allowedOrigin пускает всех
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (allowedOrigin == "" || origin == allowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// RegisterRoutes REST, метрики, health и websocket
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, ws gin.HandlerFunc) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if ws != nil {
		r.GET("/ws", ws)
	}

	api := r.Group("/api")
	{
		api.GET("/wallet", h.Wallet)
		api.GET("/summary", h.Summary)
		api.GET("/notices", h.Notices)

		mines := api.Group("/mines")
		mines.GET("/state", h.State)
		mines.POST("/refresh", h.Refresh)
		mines.POST("/bet", h.Bet)
		mines.POST("/reveal", h.Reveal)
		mines.POST("/cashout", h.CashOut)
		mines.GET("/info", h.Info)
		mines.GET("/quote", h.Quote)
	}
}
